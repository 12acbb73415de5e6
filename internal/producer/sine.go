package producer

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/airliftlabs/airlift/internal/observe"
	"github.com/airliftlabs/airlift/internal/pipeline"
	"github.com/airliftlabs/airlift/internal/ring"
	"github.com/airliftlabs/airlift/pkg/audio"
)

// Compile-time interface assertion.
var _ pipeline.Producer = (*Sine)(nil)

const (
	// sineTick is the block cadence: one 10 ms block per tick.
	sineTick = 10 * time.Millisecond

	// sineAmplitude keeps the tone well below full scale so mixing several
	// tones does not clip immediately.
	sineAmplitude = 0.2
)

// SineOption configures a [Sine] producer.
type SineOption func(*Sine)

// WithSineAmplitude overrides the default 0.2 amplitude. Values outside
// (0, 1] are ignored.
func WithSineAmplitude(a float64) SineOption {
	return func(s *Sine) {
		if a > 0 && a <= 1 {
			s.amplitude = a
		}
	}
}

// WithSineLogger sets the producer's logger.
func WithSineLogger(log *slog.Logger) SineOption {
	return func(s *Sine) {
		s.log = log
	}
}

// WithSineMetrics sets the metrics instance frame counts are recorded to.
func WithSineMetrics(m *observe.Metrics) SineOption {
	return func(s *Sine) {
		s.metrics = m
	}
}

// Sine generates a continuous test tone in 10 ms blocks. Phase carries over
// between blocks so the tone is free of clicks.
type Sine struct {
	name      string
	freq      float64
	format    audio.Format
	amplitude float64
	log       *slog.Logger
	metrics   *observe.Metrics

	lifecycle
	buf     *ring.Buffer
	samples atomic.Uint64
	errs    atomic.Uint64
}

// NewSine creates a tone producer at the given frequency and output format.
func NewSine(name string, freq float64, format audio.Format, opts ...SineOption) *Sine {
	s := &Sine{
		name:      name,
		freq:      freq,
		format:    format,
		amplitude: sineAmplitude,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Name returns the producer's identity.
func (s *Sine) Name() string {
	return s.name
}

// AttachOutput sets the buffer the tone is pushed into. Attach before Start.
func (s *Sine) AttachOutput(buf *ring.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = buf
}

// Start launches the generation loop. No-op success when already running.
func (s *Sine) Start(ctx context.Context) error {
	if s.start(ctx, s.run) {
		s.metrics.ActiveProducers.Add(ctx, 1)
		s.log.Info("sine producer started",
			slog.String("producer", s.name),
			slog.Float64("frequency_hz", s.freq))
	}
	return nil
}

// Stop terminates the loop and blocks until it has exited.
func (s *Sine) Stop() error {
	if s.stop() {
		s.metrics.ActiveProducers.Add(context.Background(), -1)
		s.log.Info("sine producer stopped", slog.String("producer", s.name))
	}
	return nil
}

// Status returns a snapshot of the producer. A tone generator is always
// connected.
func (s *Sine) Status() pipeline.ProducerStatus {
	st := pipeline.ProducerStatus{
		Name:             s.name,
		Running:          s.isRunning(),
		Connected:        true,
		SamplesProcessed: s.samples.Load(),
		Errors:           s.errs.Load(),
	}
	s.mu.Lock()
	if s.buf != nil {
		st.Buffer = s.buf.Stats()
	}
	s.mu.Unlock()
	return st
}

func (s *Sine) run(ctx context.Context) {
	blockFrames := s.format.SampleRate / 100 // samples per channel per 10 ms
	step := 2 * math.Pi * s.freq / float64(s.format.SampleRate)
	scale := s.amplitude * 32767

	ticker := time.NewTicker(sineTick)
	defer ticker.Stop()

	var phase float64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		samples := make([]int16, blockFrames*s.format.Channels)
		for i := 0; i < blockFrames; i++ {
			v := int16(math.Sin(phase) * scale)
			for ch := 0; ch < s.format.Channels; ch++ {
				samples[i*s.format.Channels+ch] = v
			}
			phase += step
		}
		// Keep the phase bounded so precision does not degrade over hours.
		phase = math.Mod(phase, 2*math.Pi)

		s.buf.Push(audio.Frame{
			CapturedAt: time.Now(),
			Samples:    samples,
			SampleRate: s.format.SampleRate,
			Channels:   s.format.Channels,
		})
		s.samples.Add(uint64(len(samples)))
		s.metrics.FramesProduced.Add(ctx, 1,
			metric.WithAttributes(observe.Attr("producer", s.name)))
	}
}
