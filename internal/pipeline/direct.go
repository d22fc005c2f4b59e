package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vox-cua/agent/internal/desktop"
	"github.com/vox-cua/agent/internal/narration"
	"github.com/vox-cua/agent/pkg/provider/llm"
	"github.com/vox-cua/agent/pkg/types"
)

// MaxDirectIterations bounds the fast path before it gives up and escalates
// to the planner (spec.md §4.3.1: "runs up to max_direct_iterations rounds
// ... If the loop reaches its iteration cap, terminate escalate"). The spec
// leaves the exact cap an open question for the top-level call; per-block
// planner runs override it with MaxIterationsPerBlock.
const MaxDirectIterations = 15

// MaxIterationsPerBlock is the iteration cap the planner pipeline imposes on
// each individual WorkBlock's direct-execution run (spec.md §4.3.2).
const MaxIterationsPerBlock = 10

// MaxScreenshots is the number of images kept live in history; older images
// are replaced by a placeholder (spec.md §4.3.1 step 1).
const MaxScreenshots = 3

// PostActionSleep is the pause after dispatching each action in a batch.
const PostActionSleep = 200 * time.Millisecond

// BatchSettleDelay is the pause after a batch, before the fresh screenshot.
const BatchSettleDelay = 300 * time.Millisecond

// GuideSettleDelay is the pause after a GUIDE round before the fresh
// screenshot (spec.md §4.3.1 step 3).
const GuideSettleDelay = 1500 * time.Millisecond

// screenshotOmittedText replaces a trimmed-away image block.
const screenshotOmittedText = "[screenshot omitted]"

// Dependencies bundles the external collaborators a direct-execution loop or
// planner run needs. Concrete implementations of ScreenSource, ActionSink,
// and Overlay are external to this module (spec.md §1).
type Dependencies struct {
	Executor      llm.Provider
	Screen        desktop.ScreenSource
	Sink          desktop.ActionSink
	Maximizer     *desktop.IdempotentMaximizer
	Narration     *narration.Queue
	Overlay       Overlay
	Tools         []types.ToolDefinition
	SystemPrompt  string
	MaxModelWidth int
}

// RunDirectLoop executes the fast-path executor loop (spec.md §4.3.1) for
// one user request (or, when invoked from the planner, one WorkBlock
// directive), given an initial screenshot already captured by the caller.
// It returns the updated message history (for callers that continue the
// conversation) and the loop's terminal Outcome.
func RunDirectLoop(ctx context.Context, deps Dependencies, history []types.Message, userText string, initialShot desktop.Frame, maxIterations int) ([]types.Message, Outcome) {
	history = append(history, types.Message{
		Role: "user",
		Content: []types.Block{
			types.TextBlock(userText),
			types.ImageBlock(initialShot.ImageB64, initialShot.MediaType),
		},
	})
	return runIterations(ctx, deps, history, initialShot, maxIterations, NewRepeatClickDetector())
}

// runIterations drives the round loop of §4.3.1 over an already-seeded
// history. Shared between RunDirectLoop and the speculative-claim
// continuation, which seeds the first assistant turn itself.
func runIterations(ctx context.Context, deps Dependencies, history []types.Message, currentShot desktop.Frame, maxIterations int, detector *RepeatClickDetector) ([]types.Message, Outcome) {
	if maxIterations <= 0 {
		maxIterations = MaxDirectIterations
	}

	for iter := 0; iter < maxIterations; iter++ {
		rounds := iter + 1
		if err := ctx.Err(); err != nil {
			return history, Outcome{Kind: OutcomeCancelled, Iterations: iter}
		}

		history = trimScreenshots(history, MaxScreenshots)

		finalText, toolCalls, err := deps.streamRound(ctx, history, currentShot)
		if err != nil {
			return history, Outcome{Kind: OutcomeEscalate, Iterations: rounds}
		}

		kind, payload, guide, guideFound := ScanPrefixes(finalText)
		switch kind {
		case PrefixDone:
			return history, Outcome{Kind: OutcomeDone, Text: payload, Iterations: rounds}
		case PrefixClarify:
			return history, Outcome{Kind: OutcomeClarify, Text: payload, Iterations: rounds}
		case PrefixGuide:
			if !guideFound {
				break
			}
			if deps.Overlay != nil {
				gx, gy := desktop.ToLogical(currentShot, guide.X, guide.Y)
				deps.Overlay.ShowHighlight(ctx, gx, gy, guide.Instruction)
			}
			if guide.Instruction != "" {
				deps.Narration.Enqueue(guide.Instruction)
			}
			sleepCtx(ctx, GuideSettleDelay)

			shot, err := deps.Screen.Capture(ctx, deps.MaxModelWidth)
			if err != nil {
				return history, Outcome{Kind: OutcomeEscalate, Iterations: rounds}
			}
			currentShot = shot

			history = append(history, types.Message{Role: "assistant", Content: []types.Block{types.TextBlock(finalText)}})
			history = append(history, types.Message{
				Role: "user",
				Content: []types.Block{
					types.TextBlock("The user was guided. Here is the current screen. Continue helping."),
					types.ImageBlock(shot.ImageB64, shot.MediaType),
				},
			})
			continue
		}

		if len(toolCalls) == 0 {
			if strings.Contains(finalText, "?") {
				return history, Outcome{Kind: OutcomeClarify, Text: finalText, Iterations: rounds}
			}
			return history, Outcome{Kind: OutcomeDone, Text: finalText, Iterations: rounds}
		}

		history = appendToolUseMessage(history, finalText, toolCalls)

		var batchErr error
		history, currentShot, batchErr = deps.executeBatchRound(ctx, history, currentShot, toolCalls, detector)
		if batchErr != nil {
			return history, Outcome{Kind: OutcomeEscalate, Iterations: rounds}
		}
	}

	return history, Outcome{Kind: OutcomeEscalate, Iterations: maxIterations}
}

// executeBatchRound runs one tool-call batch with the spec's settle timing,
// captures the post-batch screenshot, folds in a repeat-click warning, and
// appends the tool-result message to history. Returns the fresh screenshot
// for the next round.
func (d Dependencies) executeBatchRound(ctx context.Context, history []types.Message, currentShot desktop.Frame, toolCalls []types.ToolCall, detector *RepeatClickDetector) ([]types.Message, desktop.Frame, error) {
	results := d.runBatch(ctx, currentShot, toolCalls, detector)

	if d.Maximizer != nil {
		d.Maximizer.MaximizeOnce(ctx)
	}
	sleepCtx(ctx, BatchSettleDelay)

	shot, err := d.Screen.Capture(ctx, d.MaxModelWidth)
	if err != nil {
		return history, currentShot, err
	}

	if warn := detector.CheckAndClear(); warn && len(results) > 0 {
		last := results[len(results)-1]
		results[len(results)-1] = types.ToolResultBlock(last.ToolUseID, last.Text+"\n\n"+RepeatClickWarning, last.ToolIsError)
	}
	if len(results) > 0 {
		results = append(results, types.ImageBlock(shot.ImageB64, shot.MediaType))
	}
	history = append(history, types.Message{Role: "user", Content: results})
	return history, shot, nil
}

// streamRound runs one streaming completion and returns the accumulated
// text, the completed tool calls, and a narration side effect for the first
// sentence of a non-signal response (spec.md §4.3.1 step 2).
func (d Dependencies) streamRound(ctx context.Context, history []types.Message, shot desktop.Frame) (string, []types.ToolCall, error) {
	chunks, err := d.Executor.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:     history,
		Tools:        d.Tools,
		SystemPrompt: d.SystemPrompt,
	})
	if err != nil {
		return "", nil, err
	}

	var text strings.Builder
	var toolCalls []types.ToolCall
	guideShown := false
	narrated := false

	for chunk := range chunks {
		if chunk.FinishReason == "error" {
			return "", nil, fmt.Errorf("pipeline: stream error")
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			current := text.String()
			trimmed := strings.TrimSpace(current)

			if !guideShown {
				if kind, _, guide, found := ScanPrefixes(current); found && kind == PrefixGuide {
					if d.Overlay != nil {
						gx, gy := desktop.ToLogical(shot, guide.X, guide.Y)
						d.Overlay.ShowHighlight(ctx, gx, gy, guide.Instruction)
					}
					guideShown = true
				}
			}

			if !narrated {
				isSignal := strings.HasPrefix(trimmed, "DONE:") || strings.HasPrefix(trimmed, "CLARIFY:") || strings.HasPrefix(trimmed, "GUIDE:")
				if !isSignal {
					if s := FirstSentence(current); sentenceTerminated(s) {
						d.Narration.Enqueue(s)
						narrated = true
					}
				}
			}
		}
		if len(chunk.ToolCalls) > 0 {
			toolCalls = append(toolCalls, chunk.ToolCalls...)
		}
	}

	return text.String(), toolCalls, nil
}

// runBatch dispatches every tool call in order with the spec's settle
// timing and builds the 1:1 tool-result acknowledgement blocks (spec.md
// §4.3.1 step 4, §8 invariant 5).
func (d Dependencies) runBatch(ctx context.Context, shot desktop.Frame, calls []types.ToolCall, detector *RepeatClickDetector) []types.Block {
	results := make([]types.Block, 0, len(calls))
	for _, call := range calls {
		action, ok := ParseComputerAction(call)
		if !ok {
			results = append(results, types.ToolResultBlock(call.ID, "unrecognized action, ignored", true))
			continue
		}

		detector.Observe(action)
		logical := desktop.RescaleAction(shot, action)
		if err := d.Sink.Dispatch(ctx, logical); err != nil {
			results = append(results, types.ToolResultBlock(call.ID, fmt.Sprintf("error: %v", err), true))
			continue
		}
		results = append(results, types.ToolResultBlock(call.ID, "ok", false))
		sleepCtx(ctx, PostActionSleep)
	}
	return results
}

// appendToolUseMessage appends the assistant's turn: its text (if not blank)
// followed by one tool-use block per call, preserving model order.
func appendToolUseMessage(history []types.Message, text string, calls []types.ToolCall) []types.Message {
	var blocks []types.Block
	if strings.TrimSpace(text) != "" {
		blocks = append(blocks, types.TextBlock(text))
	}
	for _, c := range calls {
		blocks = append(blocks, types.ToolUseBlock(c.ID, c.Name, c.Arguments))
	}
	return append(history, types.Message{Role: "assistant", Content: blocks})
}

// trimScreenshots keeps at most maxImages ContentImage blocks live across
// history, replacing older ones with a placeholder text block while
// preserving every other block (spec.md §4.3.1 step 1, §8 invariant 4).
func trimScreenshots(history []types.Message, maxImages int) []types.Message {
	total := 0
	for _, m := range history {
		total += m.CountImages()
	}
	if total <= maxImages {
		return history
	}

	toDrop := total - maxImages
	out := make([]types.Message, len(history))
	for i, m := range history {
		out[i] = m
	}
	for i := range out {
		if toDrop == 0 {
			break
		}
		content := make([]types.Block, len(out[i].Content))
		copy(content, out[i].Content)
		changed := false
		for j := range content {
			if toDrop == 0 {
				break
			}
			if content[j].Kind == types.ContentImage {
				content[j] = types.TextBlock(screenshotOmittedText)
				changed = true
				toDrop--
			}
		}
		if changed {
			out[i].Content = content
		}
	}
	return out
}

// sentenceTerminated reports whether s ends with a sentence-ending
// punctuation mark, i.e. FirstSentence actually found a terminator rather
// than falling back to the whole (still-growing) text.
func sentenceTerminated(s string) bool {
	if s == "" {
		return false
	}
	last := s[len(s)-1]
	return last == '.' || last == '!' || last == '?'
}

// sleepCtx sleeps for d or returns early if ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
