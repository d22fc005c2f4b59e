package voice

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/vox-cua/agent/internal/agenterr"
	"github.com/vox-cua/agent/internal/desktop"
	"github.com/vox-cua/agent/internal/narration"
	"github.com/vox-cua/agent/internal/pipeline"
	"github.com/vox-cua/agent/internal/speculative"
	"github.com/vox-cua/agent/internal/telemetry"
	"github.com/vox-cua/agent/pkg/provider/llm"
	llmmock "github.com/vox-cua/agent/pkg/provider/llm/mock"
	ttsmock "github.com/vox-cua/agent/pkg/provider/tts/mock"
	"github.com/vox-cua/agent/pkg/types"
)

// seqSTT returns one scripted transcript per Listen call, in order, then
// "quit" forever so Run always terminates.
type seqSTT struct {
	mu      sync.Mutex
	results []string
}

func (s *seqSTT) Setup(ctx context.Context) (bool, error) { return true, nil }

func (s *seqSTT) Listen(ctx context.Context, onStablePartial func(string)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return "quit", nil
	}
	next := s.results[0]
	s.results = s.results[1:]
	return next, nil
}

func (s *seqSTT) StopListening() {}

type fakeScreen struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeScreen) Capture(ctx context.Context, maxModelWidth int) (desktop.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return desktop.Frame{}, f.err
	}
	return desktop.Frame{ImageB64: "img", MediaType: "image/png", LogicalW: 1920, LogicalH: 1080, BitmapW: 1024, BitmapH: 576}, nil
}

type fakeSink struct {
	mu         sync.Mutex
	dispatched []desktop.ComputerAction
	maximized  int
}

func (f *fakeSink) Dispatch(ctx context.Context, a desktop.ComputerAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, a)
	return nil
}

func (f *fakeSink) MaximizeForegroundWindow(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maximized++
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatched)
}

func newTestLoop(t *testing.T, stt *seqSTT, executor llm.Provider, interpreter llm.Provider) (*Loop, *fakeSink) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	tracker, err := telemetry.NewTracker(mp)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	mem, err := NewMemory(filepath.Join(t.TempDir(), "memory.json"))
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}

	sink := &fakeSink{}
	deps := pipeline.Dependencies{
		Executor:      executor,
		Screen:        &fakeScreen{},
		Sink:          sink,
		Maximizer:     desktop.NewIdempotentMaximizer(sink),
		Narration:     narration.New(&ttsmock.Provider{}),
		Tools:         pipeline.Tools(),
		SystemPrompt:  pipeline.ExecutorSystemPrompt,
		MaxModelWidth: desktop.DefaultMaxModelWidth,
	}

	return &Loop{
		STT:         stt,
		Narration:   deps.Narration,
		Dispatcher:  speculative.New(),
		Deps:        deps,
		Planner:     pipeline.NewPlanner(executor),
		Interpreter: interpreter,
		Bridge:      NewClarificationBridge(),
		Session:     NewSessionContext(),
		Memory:      mem,
		Perf:        tracker,
	}, sink
}

func runLoop(t *testing.T, l *Loop) {
	t.Helper()
	done := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go func() { done <- l.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(25 * time.Second):
		t.Fatal("Run never returned")
	}
}

func TestLoop_QuitTokenShutsDown(t *testing.T) {
	l, _ := newTestLoop(t, &seqSTT{}, &llmmock.Provider{}, &llmmock.Provider{})
	runLoop(t, l)
}

func TestLoop_SimpleCommandDispatchesActions(t *testing.T) {
	executor := &llmmock.Provider{StreamScript: [][]llm.Chunk{
		{{
			Text:         "Opening Chrome.",
			FinishReason: "tool_use",
			ToolCalls: []types.ToolCall{
				{ID: "t1", Name: "computer", Arguments: `{"action":"key","key":"cmd+space"}`},
				{ID: "t2", Name: "computer", Arguments: `{"action":"type","text":"Chrome"}`},
				{ID: "t3", Name: "computer", Arguments: `{"action":"key","key":"Return"}`},
			},
		}},
		{{Text: "DONE: Opening Chrome", FinishReason: "end_turn"}},
	}}
	l, sink := newTestLoop(t, &seqSTT{results: []string{"open chrome"}}, executor, &llmmock.Provider{})

	runLoop(t, l)

	if sink.count() < 3 {
		t.Fatalf("dispatched %d actions, want >= 3", sink.count())
	}
	actions, _ := l.Perf.Counts()
	if actions != 1 {
		t.Fatalf("recorded actions = %d, want 1", actions)
	}
	lines := l.Session.Lines()
	if len(lines) == 0 || lines[0] != "User: open chrome" {
		t.Fatalf("session lines = %v", lines)
	}
}

func TestLoop_EmptyTranscriptConsumesNoUtteranceID(t *testing.T) {
	before := NextPendingUtteranceID()
	l, _ := newTestLoop(t, &seqSTT{results: []string{"", "   "}}, &llmmock.Provider{}, &llmmock.Provider{})
	runLoop(t, l)
	if after := NextPendingUtteranceID(); after != before {
		t.Fatalf("utterance ids consumed on empty transcripts: %d -> %d", before, after)
	}
}

func TestLoop_StopTokenLeavesNoSpeculativeTaskInflight(t *testing.T) {
	l, _ := newTestLoop(t, &seqSTT{results: []string{"stop"}}, &llmmock.Provider{}, &llmmock.Provider{})
	runLoop(t, l)
	if l.Dispatcher.State() == speculative.StateInflight {
		t.Fatal("orphan speculative task left inflight")
	}
}

func TestLoop_PendingBridgeReceivesNextTranscript(t *testing.T) {
	l, _ := newTestLoop(t, &seqSTT{results: []string{"next friday"}}, &llmmock.Provider{}, &llmmock.Provider{})
	l.Bridge.MarkPending()

	got := make(chan string, 1)
	go func() {
		answer, err := l.Bridge.WaitForAnswer(context.Background())
		if err != nil {
			t.Errorf("WaitForAnswer: %v", err)
		}
		got <- answer
	}()

	runLoop(t, l)

	select {
	case answer := <-got:
		if answer != "next friday" {
			t.Fatalf("answer = %q", answer)
		}
	case <-time.After(time.Second):
		t.Fatal("bridge never received the transcript")
	}
}

func TestLoop_ComplexMemoryPersistsFact(t *testing.T) {
	interpreter := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: `{"type": "memory", "remember": "Prefers aisle seats", "response": "Got it."}`,
	}}
	l, sink := newTestLoop(t, &seqSTT{results: []string{"remember that i like aisle seats"}}, &llmmock.Provider{}, interpreter)

	runLoop(t, l)

	facts := l.Memory.Facts()
	if len(facts) != 1 || facts[0] != "Prefers aisle seats" {
		t.Fatalf("facts = %v", facts)
	}
	if sink.count() != 0 {
		t.Fatal("memory turn must not dispatch actions")
	}
}

func TestLoop_ComplexChatSkipsActions(t *testing.T) {
	interpreter := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: `{"type": "chat", "response": "The weather app is on your dock."}`,
	}}
	l, sink := newTestLoop(t, &seqSTT{results: []string{"tell me about the weather app"}}, &llmmock.Provider{}, interpreter)

	runLoop(t, l)

	if sink.count() != 0 {
		t.Fatal("chat turn must not dispatch actions")
	}
	_, misses := l.Perf.Counts()
	if misses != 1 {
		t.Fatalf("no-action outcomes = %d, want 1", misses)
	}
}

func TestInterpretVoiceInput_ParsesFollowup(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: "```json\n{\"type\": \"followup\", \"directive\": \"Open Firefox instead of Chrome\", \"response\": \"Switching to Firefox\"}\n```",
	}}

	interp, err := InterpretVoiceInput(context.Background(), model, "actually, make it firefox", []string{"User: open chrome"}, nil)
	if err != nil {
		t.Fatalf("InterpretVoiceInput: %v", err)
	}
	if interp.Type != "followup" || interp.Directive != "Open Firefox instead of Chrome" {
		t.Fatalf("interp = %+v", interp)
	}
}

func TestInterpretVoiceInput_RejectsUnknownType(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: `{"type": "dance", "response": "?"}`,
	}}
	_, err := InterpretVoiceInput(context.Background(), model, "hmm", nil, nil)
	if !errors.Is(err, agenterr.ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}

func TestInterpretVoiceInput_NetworkError(t *testing.T) {
	model := &llmmock.Provider{CompleteErr: errors.New("reset by peer")}
	_, err := InterpretVoiceInput(context.Background(), model, "actually never mind that", nil, nil)
	if !errors.Is(err, agenterr.ErrNetworkTransient) {
		t.Fatalf("err = %v, want ErrNetworkTransient", err)
	}
}
