package producer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/airliftlabs/airlift/internal/observe"
	"github.com/airliftlabs/airlift/internal/pipeline"
	"github.com/airliftlabs/airlift/internal/ring"
	"github.com/airliftlabs/airlift/pkg/audio"
)

// Compile-time interface assertion.
var _ pipeline.Producer = (*Capture)(nil)

// Source is a live sample source a [Capture] producer reads from, typically
// backed by a device driver. Read fills p with interleaved samples and
// returns how many were written; it may block up to roughly one frame
// quantum.
type Source interface {
	Read(p []int16) (int, error)
	Close() error
}

// OpenSourceFunc opens the capture source. Called once per Start.
type OpenSourceFunc func(ctx context.Context, format audio.Format) (Source, error)

// CaptureOption configures a [Capture] producer.
type CaptureOption func(*Capture)

// WithCaptureLogger sets the producer's logger.
func WithCaptureLogger(log *slog.Logger) CaptureOption {
	return func(c *Capture) {
		c.log = log
	}
}

// WithCaptureMetrics sets the metrics instance frame counts are recorded to.
func WithCaptureMetrics(m *observe.Metrics) CaptureOption {
	return func(c *Capture) {
		c.metrics = m
	}
}

// Capture reads live audio from a driver-provided [Source] in 100 ms frames.
// If the source cannot be opened, or a read fails mid-stream, the producer
// degrades to silence at the same cadence and reports Connected=false.
// Start never fails on an unreachable device.
type Capture struct {
	name    string
	format  audio.Format
	open    OpenSourceFunc
	log     *slog.Logger
	metrics *observe.Metrics

	lifecycle
	buf       *ring.Buffer
	connected atomic.Bool
	samples   atomic.Uint64
	errs      atomic.Uint64
}

// NewCapture creates a capture producer. open may be nil, in which case the
// producer generates silence only; useful for wiring a topology before the
// device integration exists.
func NewCapture(name string, format audio.Format, open OpenSourceFunc, opts ...CaptureOption) *Capture {
	c := &Capture{
		name:   name,
		format: format,
		open:   open,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Name returns the producer's identity.
func (c *Capture) Name() string {
	return c.name
}

// AttachOutput sets the buffer frames are pushed into. Attach before Start.
func (c *Capture) AttachOutput(buf *ring.Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = buf
}

// Start launches the capture loop. No-op success when already running. An
// unreachable source does not fail Start; the loop degrades to silence.
func (c *Capture) Start(ctx context.Context) error {
	if c.start(ctx, c.run) {
		c.metrics.ActiveProducers.Add(ctx, 1)
		c.log.Info("capture producer started", slog.String("producer", c.name))
	}
	return nil
}

// Stop terminates the loop and blocks until it has exited.
func (c *Capture) Stop() error {
	if c.stop() {
		c.metrics.ActiveProducers.Add(context.Background(), -1)
		c.log.Info("capture producer stopped", slog.String("producer", c.name))
	}
	return nil
}

// Status returns a snapshot of the producer. Connected=false means the
// source is unreachable and silence is being generated.
func (c *Capture) Status() pipeline.ProducerStatus {
	st := pipeline.ProducerStatus{
		Name:             c.name,
		Running:          c.isRunning(),
		Connected:        c.connected.Load(),
		SamplesProcessed: c.samples.Load(),
		Errors:           c.errs.Load(),
	}
	c.mu.Lock()
	if c.buf != nil {
		st.Buffer = c.buf.Stats()
	}
	c.mu.Unlock()
	return st
}

func (c *Capture) run(ctx context.Context) {
	var src Source
	if c.open != nil {
		var err error
		src, err = c.open(ctx, c.format)
		if err != nil {
			c.errs.Add(1)
			c.log.Error("capture source unreachable, producing silence",
				slog.String("producer", c.name),
				slog.String("error", err.Error()))
			src = nil
		}
	}
	c.connected.Store(src != nil)
	defer func() {
		if src != nil {
			src.Close()
		}
	}()

	quantum := audio.QuantumSamples(c.format)
	ticker := time.NewTicker(audio.FrameQuantum)
	defer ticker.Stop()

	attrs := metric.WithAttributes(observe.Attr("producer", c.name))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		samples := make([]int16, quantum)
		if src != nil {
			if _, err := src.Read(samples); err != nil {
				c.errs.Add(1)
				c.connected.Store(false)
				c.log.Error("capture read failed, degrading to silence",
					slog.String("producer", c.name),
					slog.String("error", err.Error()))
				src.Close()
				src = nil
				clear(samples)
			}
		}

		c.buf.Push(audio.Frame{
			CapturedAt: time.Now(),
			Samples:    samples,
			SampleRate: c.format.SampleRate,
			Channels:   c.format.Channels,
		})
		c.samples.Add(uint64(len(samples)))
		c.metrics.FramesProduced.Add(ctx, 1, attrs)
	}
}
