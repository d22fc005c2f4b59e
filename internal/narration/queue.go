// Package narration implements the serialized FIFO text-to-speech speaker
// (spec.md §4.1): one utterance speaks at a time, and the queue coordinates
// with the voice loop so spoken text is never fed back into the microphone.
package narration

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vox-cua/agent/pkg/provider/tts"
)

// PreemptDebounce is the delay between interrupt() and the deferred enqueue
// in interrupt_and_enqueue, letting the audio graph quiesce.
const PreemptDebounce = 50 * time.Millisecond

// Queue is a serialized FIFO TTS speaker with mute, interrupt, stale-skip,
// and preempt semantics. The zero value is not usable; construct with New.
type Queue struct {
	backend tts.Provider

	mu       sync.Mutex
	entries  []string
	speaking bool
	muted    bool
	pending  bool // true during the interrupt_and_enqueue debounce window

	current   string
	waiters   map[string][]chan struct{}
	speakGen  int
	cancelCur context.CancelFunc
}

// New creates a Queue that synthesizes and plays speech through backend.
func New(backend tts.Provider) *Queue {
	return &Queue{
		backend: backend,
		waiters: make(map[string][]chan struct{}),
	}
}

// Enqueue appends text to the FIFO. Non-blocking. If muted, silently drops.
// If nothing is speaking, playback begins immediately. Empty or
// whitespace-only text is rejected.
func (q *Queue) Enqueue(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.muted {
		return
	}
	q.entries = append(q.entries, text)
	q.maybeStartLocked()
}

// EnqueueAndWait appends text and blocks the caller until exactly that
// utterance has finished speaking (or is dropped by mute/interrupt).
func (q *Queue) EnqueueAndWait(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	q.mu.Lock()
	if q.muted {
		q.mu.Unlock()
		return
	}
	done := make(chan struct{})
	q.waiters[text] = append(q.waiters[text], done)
	q.entries = append(q.entries, text)
	q.maybeStartLocked()
	q.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Interrupt stops the current utterance immediately and clears the queue.
// Returns whether anything was playing.
func (q *Queue) Interrupt() bool {
	q.mu.Lock()
	wasActive := q.speaking || len(q.entries) > 0
	for _, text := range q.entries {
		q.notifyLocked(text)
	}
	q.entries = nil
	cancel := q.cancelCur
	q.cancelCur = nil
	q.speaking = false
	cur := q.current
	q.current = ""
	q.notifyLocked(cur)
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return wasActive
}

// InterruptAndEnqueue interrupts the current utterance and schedules text to
// speak after PreemptDebounce. Between the interrupt and the deferred
// enqueue, IsActive still reports true so callers don't race to open the
// microphone (spec.md §9, narration preempt debounce).
func (q *Queue) InterruptAndEnqueue(text string) {
	q.Interrupt()
	if strings.TrimSpace(text) == "" {
		return
	}
	q.mu.Lock()
	q.pending = true
	q.mu.Unlock()

	go func() {
		time.Sleep(PreemptDebounce)
		q.mu.Lock()
		q.pending = false
		if !q.muted {
			q.entries = append(q.entries, text)
			q.maybeStartLocked()
		}
		q.mu.Unlock()
	}()
}

// Mute stops current playback, clears the queue, and rejects subsequent
// Enqueue/EnqueueAndWait calls until Unmute.
func (q *Queue) Mute() {
	q.Interrupt()
	q.mu.Lock()
	q.muted = true
	q.mu.Unlock()
}

// Unmute re-enables enqueues.
func (q *Queue) Unmute() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.muted = false
}

// SkipStale drops queued entries but lets the in-progress utterance finish.
func (q *Queue) SkipStale() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, text := range q.entries {
		q.notifyLocked(text)
	}
	q.entries = nil
}

// IsActive reports whether the queue is currently speaking, has queued
// entries, or is inside the InterruptAndEnqueue debounce window.
func (q *Queue) IsActive() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.speaking || len(q.entries) > 0 || q.pending
}

// maybeStartLocked begins speaking the next entry if nothing is currently
// speaking. Must be called with q.mu held.
func (q *Queue) maybeStartLocked() {
	if q.speaking || q.muted || len(q.entries) == 0 {
		return
	}
	text := q.entries[0]
	q.entries = q.entries[1:]
	q.speaking = true
	q.current = text
	q.speakGen++
	gen := q.speakGen

	ctx, cancel := context.WithCancel(context.Background())
	q.cancelCur = cancel

	go q.speak(ctx, gen, text)
}

// speak synthesizes and plays text, then advances the queue via the
// completion callback contract.
func (q *Queue) speak(ctx context.Context, gen int, text string) {
	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	audioCh, err := q.backend.SynthesizeStream(ctx, textCh)
	if err == nil {
		for range audioCh {
			// Playback of each chunk is the backend's responsibility; the
			// queue only waits for the channel to drain or ctx to cancel.
		}
	}
	q.onComplete(gen, text)
}

// onComplete advances the queue once an utterance finishes, waking exactly
// one waiter for that utterance (invariant c in spec.md §4.1).
func (q *Queue) onComplete(gen int, text string) {
	q.mu.Lock()
	if gen != q.speakGen {
		// A newer utterance has already superseded this one (interrupted).
		q.mu.Unlock()
		return
	}
	q.speaking = false
	q.current = ""
	q.cancelCur = nil
	q.notifyLocked(text)
	q.maybeStartLocked()
	q.mu.Unlock()
}

// notifyLocked wakes exactly one waiter registered for text, if any. Must be
// called with q.mu held.
func (q *Queue) notifyLocked(text string) {
	if text == "" {
		return
	}
	waiters := q.waiters[text]
	if len(waiters) == 0 {
		return
	}
	close(waiters[0])
	if len(waiters) > 1 {
		q.waiters[text] = waiters[1:]
	} else {
		delete(q.waiters, text)
	}
}
