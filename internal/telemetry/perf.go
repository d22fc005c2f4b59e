// Package telemetry implements the Perf Tracker (spec.md §2/§8): a
// per-utterance voice-to-first-action latency histogram plus a rolling
// window of recent samples. Grounded on the teacher's internal/observe
// package — the same OTel meter + Prometheus exporter bridge pattern, scoped
// down to the single histogram this spec names instead of the teacher's full
// voice-pipeline metrics surface.
package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for this module's metrics.
const meterName = "github.com/vox-cua/agent"

// RingBufferSize is the number of recent latency samples the tracker keeps,
// per spec.md §3 ("ring buffer of 50").
const RingBufferSize = 50

// latencyBuckets are histogram bucket boundaries in seconds, tuned for the
// sub-3-second voice-to-first-action budget this system targets.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 10}

// Tracker is the shared, process-wide Perf Tracker. It records one latency
// sample per utterance that reaches a first action, and separately counts
// utterances that terminated with no action. Safe for concurrent use.
type Tracker struct {
	histogram metric.Float64Histogram

	mu      sync.Mutex
	ring    [RingBufferSize]time.Duration
	next    int
	filled  int
	actions int64
	misses  int64
}

// NewTracker creates a Tracker that records its histogram through mp.
func NewTracker(mp metric.MeterProvider) (*Tracker, error) {
	m := mp.Meter(meterName)
	hist, err := m.Float64Histogram(
		"voxcua.voice_to_first_action.duration",
		metric.WithDescription("Latency from utterance start to the first dispatched action."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	)
	if err != nil {
		return nil, err
	}
	return &Tracker{histogram: hist}, nil
}

// recordAction records a successful voice-to-first-action latency sample.
func (t *Tracker) recordAction(ctx context.Context, d time.Duration) {
	t.histogram.Record(ctx, d.Seconds())

	t.mu.Lock()
	t.ring[t.next] = d
	t.next = (t.next + 1) % RingBufferSize
	if t.filled < RingBufferSize {
		t.filled++
	}
	t.mu.Unlock()

	atomic.AddInt64(&t.actions, 1)
}

// recordNoAction records an utterance that produced no action.
func (t *Tracker) recordNoAction() {
	atomic.AddInt64(&t.misses, 1)
}

// Snapshot returns the samples currently held in the ring buffer, oldest
// first.
func (t *Tracker) Snapshot() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]time.Duration, t.filled)
	start := 0
	if t.filled == RingBufferSize {
		start = t.next
	}
	for i := 0; i < t.filled; i++ {
		out[i] = t.ring[(start+i)%RingBufferSize]
	}
	return out
}

// Counts returns the number of recorded actions and no-action outcomes.
func (t *Tracker) Counts() (actions, noActions int64) {
	return atomic.LoadInt64(&t.actions), atomic.LoadInt64(&t.misses)
}

// PerfGuard tracks one utterance's voice-to-first-action outcome. It
// guarantees exactly one outcome is emitted per utterance (spec.md §8
// invariant 1): the first EmitAction or EmitNoAction call wins, and every
// subsequent call on the same guard is a no-op.
type PerfGuard struct {
	tracker *Tracker
	start   time.Time
	emitted int32
}

// NewPerfGuard starts timing an utterance against tracker. start is the
// utterance's creation timestamp (spec.md §3, Utterance.start timestamp).
func NewPerfGuard(tracker *Tracker, start time.Time) *PerfGuard {
	return &PerfGuard{tracker: tracker, start: start}
}

// EmitAction records the latency from the guard's start to now as a
// successful voice-to-first-action sample. Idempotent: only the first call
// (across EmitAction and EmitNoAction) has any effect.
func (g *PerfGuard) EmitAction(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&g.emitted, 0, 1) {
		return
	}
	g.tracker.recordAction(ctx, time.Since(g.start))
}

// EmitNoAction records that this utterance produced no action. Idempotent:
// only the first call (across EmitAction and EmitNoAction) has any effect.
func (g *PerfGuard) EmitNoAction() {
	if !atomic.CompareAndSwapInt32(&g.emitted, 0, 1) {
		return
	}
	g.tracker.recordNoAction()
}
