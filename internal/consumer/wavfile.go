package consumer

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.opentelemetry.io/otel/metric"

	"github.com/airliftlabs/airlift/internal/observe"
	"github.com/airliftlabs/airlift/internal/pipeline"
	"github.com/airliftlabs/airlift/internal/ring"
)

// Compile-time interface assertion.
var _ pipeline.Consumer = (*WAVFile)(nil)

// WAVFileOption configures a [WAVFile] consumer.
type WAVFileOption func(*WAVFile)

// WithWAVLogger sets the consumer's logger.
func WithWAVLogger(log *slog.Logger) WAVFileOption {
	return func(c *WAVFile) {
		c.log = log
	}
}

// WithWAVMetrics sets the metrics instance byte counts are recorded to.
func WithWAVMetrics(m *observe.Metrics) WAVFileOption {
	return func(c *WAVFile) {
		c.metrics = m
	}
}

// WAVFile records a buffer to a linear-PCM WAV file. The encoder is created
// lazily from the first frame's format. Total length is unknown while
// streaming, so the header's declared sizes are finalised only when the
// consumer stops.
type WAVFile struct {
	name    string
	path    string
	log     *slog.Logger
	metrics *observe.Metrics

	lifecycle
	buf       *ring.Buffer
	connected atomic.Bool
	frames    atomic.Uint64
	bytes     atomic.Uint64
	errs      atomic.Uint64
}

// NewWAVFile creates a consumer recording to the file at path. The file is
// created (or truncated) when the first frame arrives.
func NewWAVFile(name, path string, opts ...WAVFileOption) *WAVFile {
	c := &WAVFile{
		name: name,
		path: path,
		log:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Name returns the consumer's identity.
func (c *WAVFile) Name() string {
	return c.name
}

// AttachInput sets the buffer frames are drained from. Attach before Start.
func (c *WAVFile) AttachInput(buf *ring.Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = buf
}

// Start launches the drain loop. No-op success when already running.
func (c *WAVFile) Start(ctx context.Context) error {
	if c.start(ctx, c.run) {
		c.log.Info("wav consumer started",
			slog.String("consumer", c.name),
			slog.String("path", c.path))
	}
	return nil
}

// Stop terminates the loop, blocks until it has exited, and finalises the
// WAV header.
func (c *WAVFile) Stop() error {
	if c.stop() {
		c.log.Info("wav consumer stopped",
			slog.String("consumer", c.name),
			slog.Uint64("bytes_written", c.bytes.Load()))
	}
	return nil
}

// Status returns a snapshot of the consumer.
func (c *WAVFile) Status() pipeline.ConsumerStatus {
	return pipeline.ConsumerStatus{
		Name:            c.name,
		Running:         c.isRunning(),
		Connected:       c.connected.Load(),
		FramesProcessed: c.frames.Load(),
		BytesWritten:    c.bytes.Load(),
		Errors:          c.errs.Load(),
	}
}

func (c *WAVFile) run(ctx context.Context) {
	attrs := metric.WithAttributes(observe.Attr("consumer", c.name))

	var (
		file *os.File
		enc  *wav.Encoder
	)
	defer func() {
		// Closing the encoder backpatches the RIFF and data chunk sizes
		// now that the stream length is known.
		if enc != nil {
			if err := enc.Close(); err != nil {
				c.errs.Add(1)
				c.metrics.ConsumerErrors.Add(ctx, 1, attrs)
				c.log.Error("finalise wav header",
					slog.String("consumer", c.name),
					slog.String("error", err.Error()))
			}
		}
		if file != nil {
			file.Close()
		}
		c.connected.Store(false)
	}()

	ticker := time.NewTicker(drainTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for {
			frame, ok := c.buf.Pop()
			if !ok {
				break
			}

			if enc == nil {
				f, err := os.Create(c.path)
				if err != nil {
					c.errs.Add(1)
					c.metrics.ConsumerErrors.Add(ctx, 1, attrs)
					c.log.Error("create wav file",
						slog.String("consumer", c.name),
						slog.String("error", err.Error()))
					continue
				}
				file = f
				enc = wav.NewEncoder(f, frame.SampleRate, 16, frame.Channels, 1)
				c.connected.Store(true)
			}

			data := make([]int, len(frame.Samples))
			for i, s := range frame.Samples {
				data[i] = int(s)
			}
			err := enc.Write(&gaudio.IntBuffer{
				Format: &gaudio.Format{
					NumChannels: frame.Channels,
					SampleRate:  frame.SampleRate,
				},
				Data:           data,
				SourceBitDepth: 16,
			})
			if err != nil {
				c.errs.Add(1)
				c.metrics.ConsumerErrors.Add(ctx, 1, attrs)
				c.log.Error("write wav frame",
					slog.String("consumer", c.name),
					slog.String("error", err.Error()))
				continue
			}

			n := uint64(len(frame.Samples) * 2)
			c.frames.Add(1)
			c.bytes.Add(n)
			c.metrics.BytesWritten.Add(ctx, int64(n), attrs)
		}
	}
}
