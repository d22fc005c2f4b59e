package pipeline

import (
	"context"
	"fmt"

	"github.com/vox-cua/agent/internal/desktop"
	"github.com/vox-cua/agent/pkg/provider/llm"
	"github.com/vox-cua/agent/pkg/types"
)

// SpeculativePayload is the full response of a speculative fire: the
// dispatcher itself only tracks the text and a tool-call count (spec.md
// §4.2 rule 4), so the voice loop keeps the actual calls here, protected by
// the dispatcher's generation token.
type SpeculativePayload struct {
	Text      string
	ToolCalls []types.ToolCall
}

// SpeculativeFire runs one streaming completion against a stable partial
// transcript plus the pre-captured screenshot. It is the FireFunc body the
// voice loop hands to the speculative dispatcher. The overlay is suppressed:
// a GUIDE highlight must not appear for a result that may never be claimed.
func SpeculativeFire(ctx context.Context, deps Dependencies, partialText string, shot desktop.Frame) (SpeculativePayload, error) {
	quiet := deps
	quiet.Overlay = nil

	history := []types.Message{{
		Role: "user",
		Content: []types.Block{
			types.TextBlock(partialText),
			types.ImageBlock(shot.ImageB64, shot.MediaType),
		},
	}}

	chunks, err := quiet.Executor.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:     history,
		Tools:        quiet.Tools,
		SystemPrompt: quiet.SystemPrompt,
	})
	if err != nil {
		return SpeculativePayload{}, err
	}

	var payload SpeculativePayload
	for chunk := range chunks {
		if chunk.FinishReason == "error" {
			return SpeculativePayload{}, fmt.Errorf("pipeline: speculative stream error")
		}
		payload.Text += chunk.Text
		payload.ToolCalls = append(payload.ToolCalls, chunk.ToolCalls...)
	}
	if err := ctx.Err(); err != nil {
		return SpeculativePayload{}, err
	}
	return payload, nil
}

// RunClaimedLoop continues a direct-execution loop from a claimed
// speculative result: the payload's tool calls execute immediately as the
// first batch (the model round they came from already happened during
// listening), then the normal round loop resumes for any follow-up work.
func RunClaimedLoop(ctx context.Context, deps Dependencies, userText string, initialShot desktop.Frame, payload SpeculativePayload, maxIterations int) ([]types.Message, Outcome) {
	if maxIterations <= 0 {
		maxIterations = MaxDirectIterations
	}

	history := []types.Message{{
		Role: "user",
		Content: []types.Block{
			types.TextBlock(userText),
			types.ImageBlock(initialShot.ImageB64, initialShot.MediaType),
		},
	}}
	history = appendToolUseMessage(history, payload.Text, payload.ToolCalls)

	detector := NewRepeatClickDetector()
	history, shot, err := deps.executeBatchRound(ctx, history, initialShot, payload.ToolCalls, detector)
	if err != nil {
		return history, Outcome{Kind: OutcomeEscalate}
	}
	if ctx.Err() != nil {
		return history, Outcome{Kind: OutcomeCancelled}
	}

	remaining := maxIterations - 1
	if remaining <= 0 {
		return history, Outcome{Kind: OutcomeEscalate, Iterations: 1}
	}
	return runIterations(ctx, deps, history, shot, remaining, detector)
}
