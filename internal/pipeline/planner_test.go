package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/vox-cua/agent/internal/agenterr"
	"github.com/vox-cua/agent/internal/desktop"
	"github.com/vox-cua/agent/pkg/provider/llm"
	llmmock "github.com/vox-cua/agent/pkg/provider/llm/mock"
	"github.com/vox-cua/agent/pkg/types"
)

// scriptedModel returns a fixed sequence of Complete responses, one per
// call, recording each request. Used where the planner makes several calls
// with different expected replies in one test.
type scriptedModel struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     []llm.CompletionRequest
}

func (s *scriptedModel) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &llm.CompletionResponse{Content: `{"status": "ok", "summary": "done"}`}, nil
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return &llm.CompletionResponse{Content: next}, nil
}

func (s *scriptedModel) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}

func (s *scriptedModel) CountTokens(messages []types.Message) (int, error) { return 0, nil }

func (s *scriptedModel) Capabilities() types.ModelCapabilities { return types.ModelCapabilities{} }

func TestPlanPipeline_ParsesFencedJSON(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"Here is the plan:\n```json\n{\"blocks\": [{\"directive\": \"Open the browser.\", \"expected_outcome\": \"A browser window is visible.\"}], \"clarifications\": [\"When?\"]}\n```",
	}}
	p := NewPlanner(model)

	resp, err := p.PlanPipeline(context.Background(), "find flights", desktop.Frame{ImageB64: "img", MediaType: "image/png"})
	if err != nil {
		t.Fatalf("PlanPipeline: %v", err)
	}
	if len(resp.Blocks) != 1 || resp.Blocks[0].Directive != "Open the browser." {
		t.Fatalf("blocks = %+v", resp.Blocks)
	}
	if len(resp.Clarifications) != 1 || resp.Clarifications[0] != "When?" {
		t.Fatalf("clarifications = %+v", resp.Clarifications)
	}
}

func TestPlanPipeline_EmptyBlocksIsParseError(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"blocks": []}`}}
	p := NewPlanner(model)

	_, err := p.PlanPipeline(context.Background(), "do nothing", desktop.Frame{})
	if !errors.Is(err, agenterr.ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}

func TestPlanPipeline_NetworkErrorWraps(t *testing.T) {
	model := &scriptedModel{err: errors.New("boom")}
	p := NewPlanner(model)

	_, err := p.PlanPipeline(context.Background(), "open chrome", desktop.Frame{})
	if !errors.Is(err, agenterr.ErrNetworkTransient) {
		t.Fatalf("err = %v, want ErrNetworkTransient", err)
	}
}

func TestEvaluateBlock_MalformedJSON(t *testing.T) {
	model := &scriptedModel{responses: []string{"the block looks fine to me"}}
	p := NewPlanner(model)

	_, err := p.EvaluateBlock(context.Background(), 1, WorkBlock{ExpectedOutcome: "browser open"}, desktop.Frame{}, 3, false, 0, 1)
	if !errors.Is(err, agenterr.ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}

func TestEvaluateBlock_UnknownStatus(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"status": "maybe", "summary": "?"}`}}
	p := NewPlanner(model)

	_, err := p.EvaluateBlock(context.Background(), 1, WorkBlock{}, desktop.Frame{}, 1, false, 0, 1)
	if !errors.Is(err, agenterr.ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}

func TestFallbackPlan_VerbatimDirective(t *testing.T) {
	plan := FallbackPlan("open the settings and turn off bluetooth")
	if len(plan.Blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(plan.Blocks))
	}
	if plan.Blocks[0].Directive != "open the settings and turn off bluetooth" {
		t.Fatalf("directive = %q", plan.Blocks[0].Directive)
	}
	if len(plan.Clarifications) != 0 {
		t.Fatalf("fallback plan must not ask questions")
	}
}

// doneExecutor is an executor whose every round immediately reports DONE, so
// pipeline tests exercise planner control flow without real action batches.
func doneExecutor() *llmmock.Provider {
	return &llmmock.Provider{StreamChunks: []llm.Chunk{
		{Text: "DONE: block finished", FinishReason: "end_turn"},
	}}
}

// recordingAsker answers the first question it is asked.
type recordingAsker struct {
	mu        sync.Mutex
	questions []string
	answer    string
}

func (a *recordingAsker) Ask(ctx context.Context, question string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.questions = append(a.questions, question)
	return a.answer, nil
}

func directives(executor *llmmock.Provider) []string {
	var out []string
	for _, call := range executor.StreamCalls {
		for _, m := range call.Req.Messages {
			if m.Role != "user" {
				continue
			}
			for _, b := range m.Content {
				if b.Kind == types.ContentText {
					out = append(out, b.Text)
				}
			}
			break // first user message carries the directive
		}
	}
	return out
}

func TestExecutePipeline_ClarificationDropsFinalBlock(t *testing.T) {
	// Two blocks + one question: only block 1 may run before the answer
	// arrives; the answer-dependent work comes from replan_with_clarification.
	model := &scriptedModel{responses: []string{
		`{"blocks": [{"directive": "Open flight search.", "expected_outcome": "Flight search visible."}, {"directive": "Pick the date.", "expected_outcome": "Date picked."}], "clarifications": ["When?"]}`,
		`{"status": "ok", "summary": "Flight search open."}`,
		`{"blocks": [{"directive": "Search flights for next Friday.", "expected_outcome": "Results listed."}]}`,
		`{"status": "ok", "summary": "Results listed."}`,
	}}
	executor := doneExecutor()
	asker := &recordingAsker{answer: "next friday"}
	deps := newTestDeps(t, executor, &fakeSink{}, &fakeScreen{})

	out := ExecutePipeline(context.Background(), deps, NewPlanner(model), asker, 7, "find flights", desktop.Frame{ImageB64: "img"})
	if out.Kind != OutcomeDone {
		t.Fatalf("outcome = %+v", out)
	}

	ran := directives(executor)
	for _, d := range ran {
		if d == "Pick the date." {
			t.Fatalf("answer-dependent block executed before clarification: %v", ran)
		}
	}
	if len(asker.questions) != 1 || asker.questions[0] != "When?" {
		t.Fatalf("questions = %v", asker.questions)
	}
	found := false
	for _, d := range ran {
		if d == "Search flights for next Friday." {
			found = true
		}
	}
	if !found {
		t.Fatalf("clarification follow-up block never executed: %v", ran)
	}
}

func TestExecutePipeline_ReplanCappedAtTwo(t *testing.T) {
	// Every evaluation fails; after two replans the run returns the partial
	// accomplishment instead of replanning forever.
	failed := `{"status": "failed", "summary": "not there yet"}`
	plan := `{"blocks": [{"directive": "Try the thing.", "expected_outcome": "Thing done."}]}`
	model := &scriptedModel{responses: []string{
		plan, failed, // initial plan, eval fails
		plan, failed, // replan 1, eval fails
		plan, failed, // replan 2, eval fails -> budget exhausted
	}}
	executor := doneExecutor()
	deps := newTestDeps(t, executor, &fakeSink{}, &fakeScreen{})

	out := ExecutePipeline(context.Background(), deps, NewPlanner(model), nil, 8, "do the thing", desktop.Frame{ImageB64: "img"})
	if out.Kind != OutcomeDone {
		t.Fatalf("outcome = %+v", out)
	}

	model.mu.Lock()
	calls := len(model.calls)
	model.mu.Unlock()
	if calls != 6 {
		t.Fatalf("planner calls = %d, want 6 (plan + 2 replans, each evaluated once)", calls)
	}
}

func TestExecutePipeline_PlannerFailureUsesFallbackPlan(t *testing.T) {
	model := &scriptedModel{err: errors.New("503")}
	executor := doneExecutor()
	deps := newTestDeps(t, executor, &fakeSink{}, &fakeScreen{})

	out := ExecutePipeline(context.Background(), deps, NewPlanner(model), nil, 9, "open the settings", desktop.Frame{ImageB64: "img"})
	if out.Kind != OutcomeDone {
		t.Fatalf("outcome = %+v", out)
	}

	ran := directives(executor)
	if len(ran) == 0 || !strings.Contains(ran[0], "open the settings") {
		t.Fatalf("fallback plan should run the verbatim user text, ran %v", ran)
	}
}

func TestExecutePipeline_CancelledMidBlocks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := &scriptedModel{responses: []string{
		`{"blocks": [{"directive": "A.", "expected_outcome": "a"}]}`,
	}}
	deps := newTestDeps(t, doneExecutor(), &fakeSink{}, &fakeScreen{})

	out := ExecutePipeline(ctx, deps, NewPlanner(model), nil, 10, "whatever", desktop.Frame{})
	if out.Kind != OutcomeCancelled {
		t.Fatalf("outcome = %+v, want cancelled", out)
	}
}
