// Package resilience keeps the voice loop responsive when a backend starts
// failing: a circuit breaker stops the agent from stalling every utterance
// on a dead inference endpoint or cloud recognizer, and a fallback group
// fails over to the next healthy backend (on-device STT to cloud, primary
// model to fallback) without the caller noticing.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// is open and the retry window has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is a [CircuitBreaker] operating mode.
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the retry window
	// elapses.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through; the probes
	// decide whether the breaker closes again or re-opens.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Defaults tuned for an interactive voice session: a spoken request is
// already seconds old by the time a model call fails, so the breaker trips
// fast and probes again soon rather than benching a backend for half a
// minute.
const (
	defaultTripAfter  = 3
	defaultRetryAfter = 15 * time.Second
	defaultProbeMax   = 2
)

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take the
// voice-session defaults above.
type CircuitBreakerConfig struct {
	// Name labels the guarded backend ("claude", "cloudws") in log lines.
	Name string

	// MaxFailures is how many consecutive failures trip the breaker open.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration

	// HalfOpenMax bounds the half-open state: this many successful probes
	// close the breaker, and no more than this many calls are admitted while
	// probing.
	HalfOpenMax int
}

// CircuitBreaker is a three-state breaker (closed, open, half-open) guarding
// one backend.
type CircuitBreaker struct {
	name       string
	tripAfter  int
	retryAfter time.Duration
	probeMax   int

	mu       sync.Mutex
	state    State
	failures int       // consecutive failures while closed
	openedAt time.Time // last failure that kept the breaker open
	probes   int       // calls admitted while half-open
	probeOK  int       // successful probes while half-open
}

// NewCircuitBreaker builds a breaker from cfg, filling zero fields with the
// voice-session defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:       cfg.Name,
		tripAfter:  cfg.MaxFailures,
		retryAfter: cfg.ResetTimeout,
		probeMax:   cfg.HalfOpenMax,
	}
	if cb.tripAfter <= 0 {
		cb.tripAfter = defaultTripAfter
	}
	if cb.retryAfter <= 0 {
		cb.retryAfter = defaultRetryAfter
	}
	if cb.probeMax <= 0 {
		cb.probeMax = defaultProbeMax
	}
	return cb
}

// Execute runs fn unless the breaker rejects the call. An open breaker
// whose retry window has elapsed flips to half-open and admits fn as a
// probe.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probing, admitted := cb.admit()
	if !admitted {
		return ErrCircuitOpen
	}

	err := fn()
	cb.settle(err, probing)
	return err
}

// admit decides whether a call may proceed, flipping open to half-open when
// the retry window has elapsed. Reports whether the admitted call counts as
// a half-open probe.
func (cb *CircuitBreaker) admit() (probing, admitted bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.retryAfter {
			return false, false
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeOK = 0
		slog.Info("circuit half-open, probing backend", "name", cb.name)
		fallthrough
	case StateHalfOpen:
		if cb.probes >= cb.probeMax {
			return false, false
		}
		cb.probes++
		return true, true
	default:
		return false, true
	}
}

// settle records a call result and applies the state transitions.
func (cb *CircuitBreaker) settle(err error, probing bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err == nil && probing:
		cb.probeOK++
		if cb.probeOK >= cb.probeMax {
			cb.state = StateClosed
			cb.failures = 0
			cb.probes = 0
			cb.probeOK = 0
			slog.Info("circuit closed, backend recovered", "name", cb.name)
		}
	case err == nil:
		cb.failures = 0
	case probing:
		// One failed probe sends the breaker straight back to open.
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.failures = cb.tripAfter
		slog.Warn("circuit re-opened, probe failed", "name", cb.name)
	default:
		cb.failures++
		cb.openedAt = time.Now()
		if cb.failures >= cb.tripAfter {
			cb.state = StateOpen
			slog.Warn("circuit opened", "name", cb.name, "consecutive_failures", cb.failures)
		}
	}
}

// State reports the breaker's mode. An open breaker whose retry window has
// elapsed reports half-open; the stored transition happens on the next
// Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.retryAfter {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeOK = 0
	slog.Info("circuit manually reset", "name", cb.name)
}
