package voice

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vox-cua/agent/internal/desktop"
	"github.com/vox-cua/agent/internal/narration"
	"github.com/vox-cua/agent/internal/pipeline"
	"github.com/vox-cua/agent/internal/speculative"
	"github.com/vox-cua/agent/internal/telemetry"
	"github.com/vox-cua/agent/pkg/provider/llm"
	"github.com/vox-cua/agent/pkg/provider/stt"
	"github.com/vox-cua/agent/pkg/types"
)

// MuteSettleDelay is how long the loop waits after muting narration before
// the microphone opens, so trailing speech never reaches the recognizer.
const MuteSettleDelay = 300 * time.Millisecond

// CompletionPollInterval is the cadence at which the loop polls the
// TaskCompletionBox while an action task runs (spec.md §4.5).
const CompletionPollInterval = 200 * time.Millisecond

// DrainHold bounds how long the loop waits for the completion summary to
// finish speaking before the next listen cycle mutes the queue.
const DrainHold = 5 * time.Second

// fillers are the acknowledgements spoken while the simple path works.
var fillers = []string{"On it.", "Sure.", "Let me do that.", "Got it.", "One moment."}

// NextPendingUtteranceID returns the id the next NewUtterance call will
// assign, without consuming it. The speculative dispatcher fires under this
// id while the utterance itself is only created once a non-empty final
// transcript arrives (spec.md §4.5 step 3).
func NextPendingUtteranceID() int {
	return int(atomic.LoadInt64(&counter)) + 1
}

// Loop is the single-operator voice loop (spec.md §4.5). It owns one
// Utterance at a time, the handle of its action task, and the decision of
// when the microphone may open. All other components are shared and
// internally synchronized.
type Loop struct {
	STT         stt.Provider
	Narration   *narration.Queue
	Dispatcher  *speculative.Dispatcher
	Deps        pipeline.Dependencies
	Planner     *pipeline.Planner
	Interpreter llm.Provider
	Bridge      *ClarificationBridge
	Session     *SessionContext
	Memory      *Memory
	Perf        *telemetry.Tracker

	// SpeculativeEnabled mirrors USE_SPECULATIVE=1; the dispatcher may still
	// auto-disable at runtime.
	SpeculativeEnabled bool

	// taskCancel belongs to the in-flight action task. Only Run's goroutine
	// touches it.
	taskCancel context.CancelFunc

	// The dispatcher only reports a tool-call count; the full claimed
	// payload lives here, overwritten on every fire and protected by the
	// dispatcher's generation token against stale claims.
	specMu      sync.Mutex
	specPayload pipeline.SpeculativePayload
}

// Run drives utterances until a quit token or ctx cancellation. The
// returned error is nil on graceful shutdown.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.Dispatcher.Reset()
		l.Narration.Mute()
		sleepCtx(ctx, MuteSettleDelay)

		preShot, partial := l.listenOnce(ctx)
		l.Narration.Unmute()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		final := FixEmailWhitespace(strings.TrimSpace(partial.final))
		if final == "" {
			l.Dispatcher.Cancel()
			continue
		}

		if IsQuitCommand(final) {
			l.cancelTask()
			l.Dispatcher.Cancel()
			l.Narration.Enqueue("Goodbye.")
			l.drainNarration(ctx, DrainHold)
			return nil
		}
		if IsStopCommand(final) {
			l.cancelTask()
			l.Narration.Interrupt()
			l.Dispatcher.Cancel()
			l.Narration.Enqueue("Cancelled.")
			continue
		}

		if l.Bridge.IsPending() {
			l.Dispatcher.Cancel()
			l.Bridge.ProvideAnswer(final)
			continue
		}

		// A new utterance supersedes the previous task (spec.md §5 ordering:
		// cancelled, narration interrupted, not drained).
		l.cancelTask()
		l.Narration.Interrupt()

		utt := NewUtterance(time.Now())
		utt.Raw = partial.final
		utt.Clean = final
		l.Session.AddUser(final, utt.Start)

		shot := preShot
		if shot.ImageB64 == "" {
			captured, err := l.Deps.Screen.Capture(ctx, l.Deps.MaxModelWidth)
			if err != nil {
				slog.Error("voice: screen capture lost", "err", err)
				l.Narration.Enqueue("Lost screen access.")
				telemetry.NewPerfGuard(l.Perf, utt.Start).EmitNoAction()
				continue
			}
			shot = captured
		}
		utt.Screen = shot

		guard := telemetry.NewPerfGuard(l.Perf, utt.Start)
		box := NewTaskCompletionBox()
		taskCtx, cancel := context.WithCancel(ctx)
		l.taskCancel = cancel

		go l.runTask(taskCtx, utt, guard, box, shot, partial.stable)

		l.waitForDone(ctx, box)
	}
}

// listenResult carries what one microphone session produced.
type listenResult struct {
	stable string // last stable partial, "" if none fired
	final  string
}

// listenOnce opens the microphone for one utterance. The stable-partial
// callback pre-captures the screenshot and may fire the speculative
// dispatcher (spec.md §4.5 step 1).
func (l *Loop) listenOnce(ctx context.Context) (desktop.Frame, listenResult) {
	var mu sync.Mutex
	var preShot desktop.Frame
	var stable string

	pendingID := NextPendingUtteranceID()

	onStable := func(p string) {
		mu.Lock()
		defer mu.Unlock()
		stable = p
		if preShot.ImageB64 == "" {
			if shot, err := l.Deps.Screen.Capture(ctx, l.Deps.MaxModelWidth); err == nil {
				preShot = shot
			}
		}
		if l.SpeculativeEnabled && l.Dispatcher.Enabled() && preShot.ImageB64 != "" && speculative.IsSimpleCommand(p) {
			shot := preShot
			l.Dispatcher.Fire(ctx, pendingID, p, func(fctx context.Context, text string) (speculative.Result, error) {
				payload, err := pipeline.SpeculativeFire(fctx, l.Deps, text, shot)
				if err != nil {
					return speculative.Result{}, err
				}
				l.specMu.Lock()
				l.specPayload = payload
				l.specMu.Unlock()
				return speculative.Result{Text: payload.Text, ToolCalls: len(payload.ToolCalls)}, nil
			})
		}
	}

	final, err := l.STT.Listen(ctx, onStable)
	if err != nil {
		slog.Error("voice: listen failed", "err", err)
		final = ""
	}

	mu.Lock()
	defer mu.Unlock()
	return preShot, listenResult{stable: stable, final: final}
}

// runTask executes one utterance's action task to completion and posts the
// result into box. Runs on its own goroutine; every path below checks ctx
// at its suspension points.
func (l *Loop) runTask(ctx context.Context, utt *Utterance, guard *telemetry.PerfGuard, box *TaskCompletionBox, shot desktop.Frame, stablePartial string) {
	// An utterance that never dispatches an action still emits exactly one
	// outcome; EmitNoAction is a no-op if the wrapped sink already emitted.
	defer guard.EmitNoAction()

	deps := l.Deps
	deps.Sink = perfSink{inner: l.Deps.Sink, guard: guard}

	var status ResultStatus
	var summary string
	if speculative.IsSimpleCommand(utt.Clean) {
		status, summary = l.runSimple(ctx, deps, utt, stablePartial, shot)
	} else {
		status, summary = l.runComplex(ctx, deps, utt, stablePartial, shot)
	}

	utt.Status = status
	utt.Result = summary

	if status == ResultCancelled {
		// User interrupts are never announced (spec.md §7).
		box.Complete(status, summary)
		return
	}
	if summary != "" {
		l.Session.AddAgent(summary, time.Now())
		l.Narration.Enqueue(summary)
	}
	box.Complete(status, summary)
}

// runSimple is the fast path: filler, speculative claim if possible,
// otherwise the full direct-execution loop (spec.md §4.5 simple path).
func (l *Loop) runSimple(ctx context.Context, deps pipeline.Dependencies, utt *Utterance, stablePartial string, shot desktop.Frame) (ResultStatus, string) {
	filler := fillers[rand.Intn(len(fillers))]
	l.Narration.Enqueue(filler)

	if l.SpeculativeEnabled && stablePartial != "" {
		if res, ok := l.Dispatcher.Claim(utt.ID, stablePartial, utt.Clean, true); ok {
			l.specMu.Lock()
			payload := l.specPayload
			l.specMu.Unlock()
			if res.ToolCalls >= 1 && len(payload.ToolCalls) >= 1 {
				if narr := pipeline.StripSignalPrefixes(pipeline.FirstSentence(res.Text)); narr != "" {
					l.Narration.InterruptAndEnqueue(narr)
				}
				history, out := pipeline.RunClaimedLoop(ctx, deps, utt.Clean, shot, payload, pipeline.MaxDirectIterations)
				return l.settleOutcome(ctx, deps, utt, history, out)
			}
			// A claimed result with zero tool calls is a miss by the caller
			// (spec.md §4.2 rule 4): the partial was too ambiguous to act on.
		}
		l.Dispatcher.Cancel()
	} else {
		l.Dispatcher.Cancel()
	}

	history, out := pipeline.RunDirectLoop(ctx, deps, nil, utt.Clean, shot, pipeline.MaxDirectIterations)
	return l.settleOutcome(ctx, deps, utt, history, out)
}

// runComplex routes through the interpreter (spec.md §4.5 complex path),
// falling back to the simple path if the interpreter call fails.
func (l *Loop) runComplex(ctx context.Context, deps pipeline.Dependencies, utt *Utterance, stablePartial string, shot desktop.Frame) (ResultStatus, string) {
	l.Dispatcher.Cancel()

	interp, err := InterpretVoiceInput(ctx, l.Interpreter, utt.Clean, l.Session.Lines(), l.Memory.Facts())
	if err != nil {
		slog.Warn("voice: interpreter failed, taking simple path", "err", err)
		l.Narration.Enqueue(fillers[rand.Intn(len(fillers))])
		history, out := pipeline.RunDirectLoop(ctx, deps, nil, utt.Clean, shot, pipeline.MaxDirectIterations)
		return l.settleOutcome(ctx, deps, utt, history, out)
	}

	switch interp.Type {
	case "command", "followup":
		if interp.Response != "" {
			l.Narration.Enqueue(interp.Response)
		}
		directive := interp.Directive
		if strings.TrimSpace(directive) == "" {
			directive = utt.Clean
		}
		history, out := pipeline.RunDirectLoop(ctx, deps, nil, directive, shot, pipeline.MaxDirectIterations)
		return l.settleOutcome(ctx, deps, utt, history, out)

	case "interrupt":
		if interp.Response == "" {
			interp.Response = "Okay."
		}
		return ResultDone, interp.Response

	case "chat":
		return ResultDone, interp.Response

	case "memory":
		if _, err := l.Memory.Add(interp.Remember); err != nil {
			slog.Error("voice: memory persist failed", "err", err)
		}
		if interp.Response == "" {
			interp.Response = "Got it."
		}
		return ResultDone, interp.Response
	}

	return ResultDone, interp.Response
}

// settleOutcome resolves a direct-execution outcome: done and cancelled
// pass through, a clarification runs one bridge cycle, and escalation (or a
// second clarification failure) hands the request to the planner pipeline
// (spec.md §4.5).
func (l *Loop) settleOutcome(ctx context.Context, deps pipeline.Dependencies, utt *Utterance, history []types.Message, out pipeline.Outcome) (ResultStatus, string) {
	if out.Kind == pipeline.OutcomeClarify {
		answer, err := l.ask(ctx, out.Text)
		if err == nil && strings.TrimSpace(answer) != "" {
			shot, cerr := deps.Screen.Capture(ctx, deps.MaxModelWidth)
			if cerr == nil {
				history, out = pipeline.RunDirectLoop(ctx, deps, history, answer, shot, pipeline.MaxDirectIterations)
			} else {
				out = pipeline.Outcome{Kind: pipeline.OutcomeEscalate}
			}
		} else {
			out = pipeline.Outcome{Kind: pipeline.OutcomeEscalate}
		}
	}

	switch out.Kind {
	case pipeline.OutcomeDone:
		return ResultDone, out.Text
	case pipeline.OutcomeCancelled:
		return ResultCancelled, ""
	default:
		// Escalate, or a clarification cycle that exhausted without
		// resolution (spec.md §4.3.2).
		return l.escalate(ctx, deps, utt)
	}
}

// escalate invokes the planner pipeline for the current utterance.
func (l *Loop) escalate(ctx context.Context, deps pipeline.Dependencies, utt *Utterance) (ResultStatus, string) {
	shot, err := deps.Screen.Capture(ctx, deps.MaxModelWidth)
	if err != nil {
		return ResultError, "Lost screen access."
	}
	out := pipeline.ExecutePipeline(ctx, deps, l.Planner, bridgeAsker{l}, utt.ID, utt.Clean, shot)
	if out.Kind == pipeline.OutcomeCancelled {
		return ResultCancelled, ""
	}
	return ResultDone, out.Text
}

// ask speaks question and suspends until the voice loop relays the answer
// through the clarification bridge.
func (l *Loop) ask(ctx context.Context, question string) (string, error) {
	l.Bridge.MarkPending()
	l.Narration.EnqueueAndWait(ctx, question)
	return l.Bridge.WaitForAnswer(ctx)
}

// bridgeAsker adapts the loop's bridge cycle to the planner pipeline's
// clarification fan-out.
type bridgeAsker struct{ l *Loop }

func (a bridgeAsker) Ask(ctx context.Context, question string) (string, error) {
	return a.l.ask(ctx, question)
}

// waitForDone polls the completion box without opening the microphone, so
// narration plays uninterrupted; the microphone opens only to collect a
// pending clarification answer (spec.md §4.5 wait-for-done semantics).
func (l *Loop) waitForDone(ctx context.Context, box *TaskCompletionBox) {
	for {
		if ctx.Err() != nil {
			return
		}
		if done, _, _ := box.Poll(); done {
			l.drainNarration(ctx, DrainHold)
			return
		}
		if l.Bridge.IsPending() && !l.Narration.IsActive() {
			l.collectAnswer(ctx)
		}
		sleepCtx(ctx, CompletionPollInterval)
	}
}

// collectAnswer opens the microphone for one clarification answer.
func (l *Loop) collectAnswer(ctx context.Context) {
	l.Narration.Mute()
	sleepCtx(ctx, MuteSettleDelay)
	answer, err := l.STT.Listen(ctx, func(string) {})
	l.Narration.Unmute()
	if err != nil || ctx.Err() != nil {
		l.Bridge.Cancel()
		return
	}

	answer = FixEmailWhitespace(strings.TrimSpace(answer))
	if answer == "" {
		return // keep waiting; the question is still pending
	}
	if IsStopCommand(answer) || IsQuitCommand(answer) {
		l.Bridge.Cancel()
		l.cancelTask()
		l.Narration.Enqueue("Cancelled.")
		return
	}
	l.Bridge.ProvideAnswer(answer)
}

// drainNarration holds up to limit for the queue to finish speaking.
func (l *Loop) drainNarration(ctx context.Context, limit time.Duration) {
	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) && l.Narration.IsActive() {
		if ctx.Err() != nil {
			return
		}
		sleepCtx(ctx, CompletionPollInterval)
	}
}

// cancelTask cancels the in-flight action task, if any, and wakes any
// clarification continuation so nothing leaks.
func (l *Loop) cancelTask() {
	if l.taskCancel != nil {
		l.taskCancel()
		l.taskCancel = nil
	}
	l.Bridge.Cancel()
}

// perfSink wraps the session's ActionSink so the utterance's PerfGuard sees
// the first dispatched action (spec.md §8 invariant 1).
type perfSink struct {
	inner desktop.ActionSink
	guard *telemetry.PerfGuard
}

func (s perfSink) Dispatch(ctx context.Context, a desktop.ComputerAction) error {
	s.guard.EmitAction(ctx)
	return s.inner.Dispatch(ctx, a)
}

func (s perfSink) MaximizeForegroundWindow(ctx context.Context) error {
	return s.inner.MaximizeForegroundWindow(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
