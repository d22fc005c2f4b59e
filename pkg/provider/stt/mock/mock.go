// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to script Setup/Listen behavior without a live microphone or
// cloud recognizer connection.
//
// Example:
//
//	p := &mock.Provider{SetupReady: true, ListenResult: "turn on the lights"}
//	ready, _ := p.Setup(ctx)
//	text, _ := p.Listen(ctx, func(string) {})
package mock

import (
	"context"
	"sync"

	"github.com/vox-cua/agent/pkg/provider/stt"
)

// SetupCall records a single invocation of Setup.
type SetupCall struct {
	Ctx context.Context
}

// ListenCall records a single invocation of Listen.
type ListenCall struct {
	Ctx context.Context
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SetupReady is returned by Setup.
	SetupReady bool
	// SetupErr, if non-nil, is returned as the error from Setup.
	SetupErr error

	// Partials is the sequence of stable-partial strings delivered to
	// onStablePartial before Listen returns.
	Partials []string
	// ListenResult is the final text returned by Listen.
	ListenResult string
	// ListenErr, if non-nil, is returned as the error from Listen.
	ListenErr error

	// --- Call records ---

	SetupCalls  []SetupCall
	ListenCalls []ListenCall

	// StopListeningCallCount is the number of times StopListening was called.
	StopListeningCallCount int

	// stopped is closed by StopListening to interrupt an in-flight Listen call.
	stopped chan struct{}
}

// Setup records the call and returns SetupReady, SetupErr.
func (p *Provider) Setup(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SetupCalls = append(p.SetupCalls, SetupCall{Ctx: ctx})
	return p.SetupReady, p.SetupErr
}

// Listen records the call, delivers each scripted partial to onStablePartial,
// and returns ListenResult, ListenErr. It returns early if ctx is cancelled
// or StopListening is called.
func (p *Provider) Listen(ctx context.Context, onStablePartial func(string)) (string, error) {
	p.mu.Lock()
	p.ListenCalls = append(p.ListenCalls, ListenCall{Ctx: ctx})
	partials := make([]string, len(p.Partials))
	copy(partials, p.Partials)
	result, err := p.ListenResult, p.ListenErr
	stop := make(chan struct{})
	p.stopped = stop
	p.mu.Unlock()

	for _, partial := range partials {
		select {
		case <-ctx.Done():
			return "", nil
		case <-stop:
			return "", nil
		default:
			onStablePartial(partial)
		}
	}

	select {
	case <-ctx.Done():
		return "", nil
	case <-stop:
		return "", nil
	default:
	}
	return result, err
}

// StopListening records the call and interrupts any in-flight Listen call.
func (p *Provider) StopListening() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StopListeningCallCount++
	if p.stopped != nil {
		select {
		case <-p.stopped:
		default:
			close(p.stopped)
		}
	}
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SetupCalls = nil
	p.ListenCalls = nil
	p.StopListeningCallCount = 0
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
