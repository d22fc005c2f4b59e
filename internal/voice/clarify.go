package voice

import (
	"context"
	"errors"
	"sync"
)

// ErrClarificationCancelled is returned by WaitForAnswer when Cancel wakes
// the waiting task with no answer (spec.md §4.5: "no continuation leaks").
var ErrClarificationCancelled = errors.New("voice: clarification cancelled")

// ClarificationBridge is a single-slot rendezvous that suspends an in-flight
// action task while a question is spoken and answered via the same
// microphone (spec.md §4.5). Shared, process-wide, internally synchronized;
// only one clarification may be pending at a time.
type ClarificationBridge struct {
	mu      sync.Mutex
	pending bool
	answer  chan string // closed (after send, or empty-on-cancel) to wake WaitForAnswer
}

// NewClarificationBridge returns a bridge with no pending question.
func NewClarificationBridge() *ClarificationBridge {
	return &ClarificationBridge{}
}

// MarkPending arms the bridge before the question is spoken. Must be called
// by the action task before it calls WaitForAnswer.
func (b *ClarificationBridge) MarkPending() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = true
	b.answer = make(chan string, 1)
}

// IsPending reports whether a clarification question is outstanding. The
// voice loop polls this to decide whether the next transcript should be
// routed to ProvideAnswer instead of starting a new task.
func (b *ClarificationBridge) IsPending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// WaitForAnswer suspends the calling goroutine until ProvideAnswer or
// Cancel is called, or ctx is cancelled. Returns the answer text, or
// ErrClarificationCancelled if the bridge was explicitly cancelled, or
// ctx.Err() if the context was cancelled first.
func (b *ClarificationBridge) WaitForAnswer(ctx context.Context) (string, error) {
	b.mu.Lock()
	ch := b.answer
	b.mu.Unlock()
	if ch == nil {
		return "", ErrClarificationCancelled
	}

	select {
	case text, ok := <-ch:
		if !ok {
			return "", ErrClarificationCancelled
		}
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ProvideAnswer wakes a pending WaitForAnswer call with text. A no-op if no
// clarification is pending.
func (b *ClarificationBridge) ProvideAnswer(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.pending {
		return
	}
	b.pending = false
	b.answer <- text
	close(b.answer)
	b.answer = nil
}

// Cancel wakes a pending WaitForAnswer call with no answer, so no
// continuation leaks. A no-op if no clarification is pending.
func (b *ClarificationBridge) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.pending {
		return
	}
	b.pending = false
	close(b.answer)
	b.answer = nil
}
