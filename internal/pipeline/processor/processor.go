// Package processor contains the built-in frame transforms: PassThrough,
// Gain, and the multi-input Mixer. All of them implement
// [pipeline.Processor] and are safe for concurrent configuration updates
// while a flow is driving them.
package processor

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/airliftlabs/airlift/internal/observe"
	"github.com/airliftlabs/airlift/internal/pipeline"
)

// Option configures a processor during construction.
type Option func(*tracker)

// WithMetrics sets the metrics instance frame counts are recorded to.
func WithMetrics(m *observe.Metrics) Option {
	return func(t *tracker) {
		t.metrics = m
	}
}

// tracker accumulates the counters every processor reports in its status.
type tracker struct {
	frames  atomic.Uint64
	errs    atomic.Uint64
	latNs   atomic.Int64 // EWMA of per-call duration, nanoseconds
	running atomic.Bool
	started time.Time

	metrics *observe.Metrics
	attrs   metric.MeasurementOption
}

// init stamps the start time used for rate computation and applies the
// construction options. Called once from each processor constructor; trackers
// are embedded and must not be copied after first use.
func (t *tracker) init(name string, opts ...Option) {
	t.started = time.Now()
	for _, o := range opts {
		o(t)
	}
	if t.metrics == nil {
		t.metrics = observe.DefaultMetrics()
	}
	t.attrs = metric.WithAttributes(observe.Attr("processor", name))
}

// SetRunning records whether a flow is currently driving the processor. The
// owning flow calls this on start and stop.
func (t *tracker) SetRunning(v bool) {
	t.running.Store(v)
}

// observe records one Process call that transformed n frames in d.
func (t *tracker) observe(n int, d time.Duration) {
	if n > 0 {
		t.frames.Add(uint64(n))
		t.metrics.FramesProcessed.Add(context.Background(), int64(n), t.attrs)
	}

	// EWMA with alpha 1/8. Cheap, lock-free, good enough for a status page.
	prev := t.latNs.Load()
	t.latNs.Store(prev + (int64(d)-prev)/8)
}

func (t *tracker) status(name string) pipeline.ProcessorStatus {
	frames := t.frames.Load()
	elapsed := time.Since(t.started).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(frames) / elapsed
	}
	return pipeline.ProcessorStatus{
		Name:            name,
		Running:         t.running.Load(),
		FramesProcessed: frames,
		Errors:          t.errs.Load(),
		ProcessingRate:  rate,
		LatencyEstimate: time.Duration(t.latNs.Load()),
	}
}

// floatValue coerces the numeric types a YAML or JSON config patch can carry.
func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// intValue coerces the integer types a YAML or JSON config patch can carry.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
