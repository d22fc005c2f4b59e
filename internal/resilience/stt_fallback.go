package resilience

import (
	"context"
	"errors"

	"github.com/vox-cua/agent/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends (on-device first, cloud recognizer second). Each backend has
// its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Setup prepares the first healthy backend. If the primary fails to prepare
// (an error or a not-ready result), subsequent fallbacks are tried.
func (f *STTFallback) Setup(ctx context.Context) (bool, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (bool, error) {
		ready, err := p.Setup(ctx)
		if err == nil && !ready {
			return false, errors.New("resilience: stt backend not ready")
		}
		return ready, err
	})
}

// Listen delegates to the first healthy backend. Fallback only applies to
// which backend is selected before Listen is called; once a Listen call is
// in flight, its own retry/error behavior is the backend's responsibility.
func (f *STTFallback) Listen(ctx context.Context, onStablePartial func(string)) (string, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (string, error) {
		return p.Listen(ctx, onStablePartial)
	})
}

// StopListening forwards to every registered backend, since the caller does
// not know which one is currently listening.
func (f *STTFallback) StopListening() {
	for i := range f.group.entries {
		f.group.entries[i].value.StopListening()
	}
}
