// Package observe provides application-wide observability primitives for
// Airlift: OpenTelemetry metrics and the HTTP middleware that records them.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Airlift metrics.
const meterName = "github.com/airliftlabs/airlift"

// Metrics holds all OpenTelemetry metric instruments for the audio node.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Pipeline throughput counters ---

	// FramesProduced counts frames pushed by producers. Use with attribute:
	//   attribute.String("producer", ...)
	FramesProduced metric.Int64Counter

	// FramesProcessed counts frames transformed by processors. Use with
	// attribute:
	//   attribute.String("processor", ...)
	FramesProcessed metric.Int64Counter

	// FramesDropped counts ring buffer evictions. Use with attribute:
	//   attribute.String("buffer", ...)
	FramesDropped metric.Int64Counter

	// BytesWritten counts bytes delivered to external sinks. Use with
	// attribute:
	//   attribute.String("consumer", ...)
	BytesWritten metric.Int64Counter

	// --- Error counters ---

	// ProcessorErrors counts failed process invocations. Use with attributes:
	//   attribute.String("flow", ...), attribute.String("processor", ...)
	ProcessorErrors metric.Int64Counter

	// ConsumerErrors counts failed sink writes. Use with attribute:
	//   attribute.String("consumer", ...)
	ConsumerErrors metric.Int64Counter

	// --- Latency histograms ---

	// FlowTickDuration tracks the time one flow loop iteration takes. Use
	// with attribute:
	//   attribute.String("flow", ...)
	FlowTickDuration metric.Float64Histogram

	// --- Gauges ---

	// ActiveProducers tracks the number of running producers.
	ActiveProducers metric.Int64UpDownCounter

	// ActiveFlows tracks the number of running flows.
	ActiveFlows metric.Int64UpDownCounter

	// LiveSubscribers tracks connected websocket live-stream clients.
	LiveSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// tickBuckets defines histogram bucket boundaries (in seconds) sized for the
// 10 ms flow tick — anything past 100 ms means the loop is falling behind
// the frame quantum.
var tickBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.FramesProduced, err = m.Int64Counter("airlift.frames.produced",
		metric.WithDescription("Total frames pushed by producers."),
	); err != nil {
		return nil, err
	}
	if met.FramesProcessed, err = m.Int64Counter("airlift.frames.processed",
		metric.WithDescription("Total frames transformed by processors."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("airlift.frames.dropped",
		metric.WithDescription("Total ring buffer evictions by buffer name."),
	); err != nil {
		return nil, err
	}
	if met.BytesWritten, err = m.Int64Counter("airlift.bytes.written",
		metric.WithDescription("Total bytes delivered to external sinks by consumer."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProcessorErrors, err = m.Int64Counter("airlift.processor.errors",
		metric.WithDescription("Total failed process invocations by flow and processor."),
	); err != nil {
		return nil, err
	}
	if met.ConsumerErrors, err = m.Int64Counter("airlift.consumer.errors",
		metric.WithDescription("Total failed sink writes by consumer."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.FlowTickDuration, err = m.Float64Histogram("airlift.flow.tick.duration",
		metric.WithDescription("Duration of one flow loop iteration."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveProducers, err = m.Int64UpDownCounter("airlift.active_producers",
		metric.WithDescription("Number of running producers."),
	); err != nil {
		return nil, err
	}
	if met.ActiveFlows, err = m.Int64UpDownCounter("airlift.active_flows",
		metric.WithDescription("Number of running flows."),
	); err != nil {
		return nil, err
	}
	if met.LiveSubscribers, err = m.Int64UpDownCounter("airlift.live_subscribers",
		metric.WithDescription("Connected websocket live-stream clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("airlift.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}
