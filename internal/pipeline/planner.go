package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vox-cua/agent/internal/agenterr"
	"github.com/vox-cua/agent/internal/desktop"
	"github.com/vox-cua/agent/pkg/provider/llm"
	"github.com/vox-cua/agent/pkg/types"
)

// MaxPlanBlocks bounds how many WorkBlocks one plan may carry (spec.md
// §4.3.2 step 1: "1-4 WorkBlocks").
const MaxPlanBlocks = 4

// MaxReplans caps total replans per turn (spec.md §4.3.2 step 2).
const MaxReplans = 2

// MaxClarifications bounds the questions one plan may ask.
const MaxClarifications = 2

// Asker asks the user one clarification question and returns the spoken
// answer. The voice loop implements it over the clarification bridge; text
// mode passes nil, bypassing clarifications entirely (spec.md §4.5).
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Planner drives the JSON-only planner model (spec.md §4.3.2). Safe for
// concurrent use.
type Planner struct {
	Model llm.Provider

	evals singleflight.Group
}

// NewPlanner returns a Planner backed by model.
func NewPlanner(model llm.Provider) *Planner {
	return &Planner{Model: model}
}

// FallbackPlan is the one-block plan used when the planner itself fails
// (spec.md §7 NetworkTransient): the user's text, verbatim, as the
// directive.
func FallbackPlan(userRequest string) PipelineResponse {
	return PipelineResponse{Blocks: []WorkBlock{{
		Directive:       userRequest,
		ExpectedOutcome: "The screen reflects progress on the user's request.",
	}}}
}

// PlanPipeline asks the planner to break userRequest into 1-4 WorkBlocks
// plus up to 2 clarification questions, given the current screenshot.
func (p *Planner) PlanPipeline(ctx context.Context, userRequest string, shot desktop.Frame) (PipelineResponse, error) {
	prompt := fmt.Sprintf("User request: %s\n\nThe attached screenshot shows the current screen. Produce the plan JSON.", userRequest)
	return p.completePlan(ctx, planSystemPrompt, prompt, shot)
}

// Replan asks for a fresh 1-3 block plan after a block evaluation failed.
func (p *Planner) Replan(ctx context.Context, userRequest, accomplished string, shot desktop.Frame) (PipelineResponse, error) {
	prompt := fmt.Sprintf(
		"Original request: %s\n\nAccomplished so far: %s\n\nThe attached screenshot shows the current screen. The previous plan failed; produce a fresh plan JSON.",
		userRequest, orNone(accomplished))
	resp, err := p.completePlan(ctx, replanSystemPrompt, prompt, shot)
	if err != nil {
		return resp, err
	}
	resp.Clarifications = nil
	return resp, nil
}

// ReplanWithClarification folds the user's clarification answer into a
// fresh plan for the remaining work.
func (p *Planner) ReplanWithClarification(ctx context.Context, originalRequest, answer, accomplished string, shot desktop.Frame) (PipelineResponse, error) {
	prompt := fmt.Sprintf(
		"Original request: %s\n\nThe user answered the clarification question: %s\n\nAccomplished so far: %s\n\nThe attached screenshot shows the current screen. Produce the plan JSON for the remaining work.",
		originalRequest, answer, orNone(accomplished))
	resp, err := p.completePlan(ctx, replanSystemPrompt, prompt, shot)
	if err != nil {
		return resp, err
	}
	resp.Clarifications = nil
	return resp, nil
}

// EvaluateBlock asks the planner whether an executed block's expected
// outcome holds on the current screenshot. Concurrent evaluations of the
// same block of the same utterance collapse into one model call.
func (p *Planner) EvaluateBlock(ctx context.Context, utteranceID int, block WorkBlock, shot desktop.Frame, iterations int, hitIterationLimit bool, blockIndex, total int) (BlockEvaluation, error) {
	key := fmt.Sprintf("%d/%d", utteranceID, blockIndex)
	v, err, _ := p.evals.Do(key, func() (any, error) {
		return p.evaluateBlock(ctx, block, shot, iterations, hitIterationLimit, blockIndex, total)
	})
	if err != nil {
		return BlockEvaluation{}, err
	}
	return v.(BlockEvaluation), nil
}

func (p *Planner) evaluateBlock(ctx context.Context, block WorkBlock, shot desktop.Frame, iterations int, hitIterationLimit bool, blockIndex, total int) (BlockEvaluation, error) {
	prompt := fmt.Sprintf(
		"Block %d of %d.\nExpected outcome: %s\nExecutor iterations used: %d\nHit iteration limit: %t\n\nThe attached screenshot shows the current screen. Produce the evaluation JSON.",
		blockIndex+1, total, block.ExpectedOutcome, iterations, hitIterationLimit)

	raw, err := p.complete(ctx, evaluateSystemPrompt, prompt, shot)
	if err != nil {
		return BlockEvaluation{}, err
	}

	var eval BlockEvaluation
	if err := ParseTolerantJSON(raw, &eval); err != nil {
		slog.Warn("pipeline: malformed block evaluation", "raw", raw, "err", err)
		return BlockEvaluation{}, fmt.Errorf("%w: evaluate_block: %v", agenterr.ErrParse, err)
	}
	if eval.Status != "ok" && eval.Status != "failed" {
		return BlockEvaluation{}, fmt.Errorf("%w: evaluate_block status %q", agenterr.ErrParse, eval.Status)
	}
	return eval, nil
}

func (p *Planner) completePlan(ctx context.Context, system, prompt string, shot desktop.Frame) (PipelineResponse, error) {
	raw, err := p.complete(ctx, system, prompt, shot)
	if err != nil {
		return PipelineResponse{}, err
	}

	var resp PipelineResponse
	if err := ParseTolerantJSON(raw, &resp); err != nil {
		slog.Warn("pipeline: malformed plan", "raw", raw, "err", err)
		return PipelineResponse{}, fmt.Errorf("%w: plan: %v", agenterr.ErrParse, err)
	}
	if len(resp.Blocks) == 0 {
		return PipelineResponse{}, fmt.Errorf("%w: plan has no blocks", agenterr.ErrParse)
	}
	if len(resp.Blocks) > MaxPlanBlocks {
		resp.Blocks = resp.Blocks[:MaxPlanBlocks]
	}
	if len(resp.Clarifications) > MaxClarifications {
		resp.Clarifications = resp.Clarifications[:MaxClarifications]
	}
	return resp, nil
}

func (p *Planner) complete(ctx context.Context, system, prompt string, shot desktop.Frame) (string, error) {
	content := []types.Block{types.TextBlock(prompt)}
	if shot.ImageB64 != "" {
		content = append(content, types.ImageBlock(shot.ImageB64, shot.MediaType))
	}
	resp, err := p.Model.Complete(ctx, llm.CompletionRequest{
		Messages:     []types.Message{{Role: "user", Content: content}},
		SystemPrompt: system,
	})
	if err != nil {
		return "", fmt.Errorf("%w: planner call: %v", agenterr.ErrNetworkTransient, err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: planner call: empty response", agenterr.ErrNetworkTransient)
	}
	return resp.Content, nil
}

// ExecutePipeline runs the escalation path (spec.md §4.3.2): plan, execute
// blocks sequentially, evaluate each against a fresh screenshot, replan on
// failure up to MaxReplans, and fan out a parallel clarification ask loop
// when the plan carries questions. Returns the final outcome and a summary
// of what was accomplished.
func ExecutePipeline(ctx context.Context, deps Dependencies, planner *Planner, asker Asker, utteranceID int, userRequest string, initialShot desktop.Frame) Outcome {
	plan, err := planner.PlanPipeline(ctx, userRequest, initialShot)
	if err != nil {
		slog.Warn("pipeline: plan failed, falling back to one-block plan", "err", err)
		plan = FallbackPlan(userRequest)
	}

	// Clarification fan-out: the ask loop runs while initial blocks execute
	// (spec.md §4.3.2 step 3); its answer gates the replan afterwards.
	answerCh := make(chan string, 1)
	g, gctx := errgroup.WithContext(ctx)
	asking := len(plan.Clarifications) > 0 && asker != nil
	if asking {
		questions := plan.Clarifications
		g.Go(func() error {
			defer close(answerCh)
			for _, q := range questions {
				answer, err := asker.Ask(gctx, q)
				if err != nil {
					return nil
				}
				if strings.TrimSpace(answer) != "" {
					answerCh <- answer
					return nil
				}
			}
			return nil
		})
	} else {
		close(answerCh)
	}

	accomplished, outcome := executeBlocks(ctx, deps, planner, utteranceID, userRequest, plan.ExecutableBlocks())
	if outcome.Kind == OutcomeCancelled {
		g.Wait()
		return outcome
	}

	if asking {
		var answer string
		select {
		case answer = <-answerCh:
		case <-ctx.Done():
			g.Wait()
			return Outcome{Kind: OutcomeCancelled}
		}
		g.Wait()

		if strings.TrimSpace(answer) != "" {
			shot, err := deps.Screen.Capture(ctx, deps.MaxModelWidth)
			if err != nil {
				return Outcome{Kind: OutcomeDone, Text: summarize(accomplished)}
			}
			followup, err := planner.ReplanWithClarification(ctx, userRequest, answer, strings.Join(accomplished, "; "), shot)
			if err != nil {
				slog.Warn("pipeline: replan with clarification failed", "err", err)
				return Outcome{Kind: OutcomeDone, Text: summarize(accomplished)}
			}
			more, out := executeBlocks(ctx, deps, planner, utteranceID, userRequest, followup.Blocks)
			accomplished = append(accomplished, more...)
			if out.Kind == OutcomeCancelled {
				return out
			}
		}
	}

	return Outcome{Kind: OutcomeDone, Text: summarize(accomplished)}
}

// executeBlocks runs blocks sequentially with per-block evaluation and
// replanning, returning the accomplishment summaries in execution order.
func executeBlocks(ctx context.Context, deps Dependencies, planner *Planner, utteranceID int, userRequest string, blocks []WorkBlock) ([]string, Outcome) {
	var accomplished []string
	replans := 0

	for i := 0; i < len(blocks); i++ {
		if ctx.Err() != nil {
			return accomplished, Outcome{Kind: OutcomeCancelled}
		}
		block := blocks[i]

		shot, err := deps.Screen.Capture(ctx, deps.MaxModelWidth)
		if err != nil {
			return accomplished, Outcome{Kind: OutcomeDone, Text: "Lost screen access."}
		}

		_, out := RunDirectLoop(ctx, deps, nil, block.Directive, shot, MaxIterationsPerBlock)
		if out.Kind == OutcomeCancelled {
			return accomplished, out
		}
		hitLimit := out.Kind == OutcomeEscalate

		evalShot, err := deps.Screen.Capture(ctx, deps.MaxModelWidth)
		if err != nil {
			evalShot = shot
		}

		eval, err := planner.EvaluateBlock(ctx, utteranceID, block, evalShot, out.Iterations, hitLimit, i, len(blocks))
		if err != nil {
			// An unevaluable block counts as progress; stopping the whole run
			// over a broken judge call would discard real work.
			slog.Warn("pipeline: block evaluation failed, advancing", "block", i, "err", err)
			accomplished = append(accomplished, block.Directive)
			continue
		}

		if eval.Status == "ok" {
			accomplished = append(accomplished, nonEmpty(eval.Summary, block.Directive))
			continue
		}

		if replans >= MaxReplans {
			slog.Warn("pipeline: replan budget exhausted, returning partial accomplishment")
			return accomplished, Outcome{Kind: OutcomeDone, Text: summarize(accomplished)}
		}
		replans++

		fresh, err := planner.Replan(ctx, userRequest, strings.Join(accomplished, "; "), evalShot)
		if err != nil {
			slog.Warn("pipeline: replan failed", "err", err)
			return accomplished, Outcome{Kind: OutcomeDone, Text: summarize(accomplished)}
		}
		blocks = fresh.Blocks
		i = -1 // restart from block index 0 of the new plan
	}

	return accomplished, Outcome{Kind: OutcomeDone, Text: summarize(accomplished)}
}

func summarize(accomplished []string) string {
	if len(accomplished) == 0 {
		return "I couldn't complete that."
	}
	return strings.Join(accomplished, " ")
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "nothing yet"
	}
	return s
}
