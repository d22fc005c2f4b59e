package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vox-cua/agent/internal/pipeline"
	"github.com/vox-cua/agent/internal/voice"
)

// runREPL drives the same two-model pipeline from stdin lines. There is no
// microphone here, so the clarification bridge is bypassed: a fast-path
// CLARIFY escalates straight to the planner with no asker (spec.md §4.5).
func runREPL(ctx context.Context, deps pipeline.Dependencies, planner *pipeline.Planner) int {
	fmt.Println("Type a request, or \"quit\" to exit.")
	sc := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !sc.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if voice.IsQuitCommand(line) {
			break
		}

		fmt.Println(runTextRequest(ctx, deps, planner, line))
	}
	return 0
}

// runTextRequest runs one request through the fast path, escalating to the
// planner pipeline on clarify or escalate, and returns the summary line.
func runTextRequest(ctx context.Context, deps pipeline.Dependencies, planner *pipeline.Planner, request string) string {
	shot, err := deps.Screen.Capture(ctx, deps.MaxModelWidth)
	if err != nil {
		return "Lost screen access."
	}

	_, out := pipeline.RunDirectLoop(ctx, deps, nil, request, shot, pipeline.MaxDirectIterations)
	switch out.Kind {
	case pipeline.OutcomeDone:
		return out.Text
	case pipeline.OutcomeCancelled:
		return "Cancelled."
	}

	pipeShot, err := deps.Screen.Capture(ctx, deps.MaxModelWidth)
	if err != nil {
		return "Lost screen access."
	}
	result := pipeline.ExecutePipeline(ctx, deps, planner, nil, voice.NextPendingUtteranceID(), request, pipeShot)
	if result.Kind == pipeline.OutcomeCancelled {
		return "Cancelled."
	}
	return result.Text
}
