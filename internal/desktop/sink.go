package desktop

import (
	"context"
	"sync"
)

// ActionSink executes ComputerAction values, in logical screen coordinates,
// against the host's input devices and windowing system. Implementations are
// external collaborators; this package only defines the contract and an
// idempotent wrapper for the "maximize foreground window" side effect.
type ActionSink interface {
	// Dispatch executes a single action, already rescaled to logical space.
	Dispatch(ctx context.Context, a ComputerAction) error

	// MaximizeForegroundWindow maximizes whichever window currently has
	// focus. Safe to call more than once; this package ensures it only runs
	// once per session via IdempotentMaximizer.
	MaximizeForegroundWindow(ctx context.Context) error
}

// IdempotentMaximizer wraps an ActionSink so MaximizeForegroundWindow only
// takes effect the first time it is called, per spec.md §4.3.1 step 5. The
// spec's open question on this side effect is resolved by making it
// opt-out-able via Disable, rather than guessing intent.
type IdempotentMaximizer struct {
	sink ActionSink

	mu       sync.Mutex
	done     bool
	disabled bool
}

// NewIdempotentMaximizer wraps sink.
func NewIdempotentMaximizer(sink ActionSink) *IdempotentMaximizer {
	return &IdempotentMaximizer{sink: sink}
}

// Disable turns MaximizeOnce into a no-op for the rest of the session,
// honoring a config opt-out.
func (m *IdempotentMaximizer) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled = true
}

// MaximizeOnce calls the underlying sink's MaximizeForegroundWindow exactly
// once across the lifetime of m, unless Disable was called first.
func (m *IdempotentMaximizer) MaximizeOnce(ctx context.Context) error {
	m.mu.Lock()
	if m.done || m.disabled {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	m.mu.Unlock()
	return m.sink.MaximizeForegroundWindow(ctx)
}
