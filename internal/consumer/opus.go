package consumer

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"layeh.com/gopus"

	"github.com/airliftlabs/airlift/internal/observe"
	"github.com/airliftlabs/airlift/internal/pipeline"
	"github.com/airliftlabs/airlift/internal/ring"
	"github.com/airliftlabs/airlift/pkg/audio"
)

// Compile-time interface assertion.
var _ pipeline.Consumer = (*OpusStream)(nil)

const (
	// opusChunkMillis is the Opus frame duration. 20 ms is the codec's
	// sweet spot for live audio.
	opusChunkMillis = 20

	// maxOpusPacket bounds a single encoded packet.
	maxOpusPacket = 4000
)

// OpusStreamOption configures an [OpusStream] consumer.
type OpusStreamOption func(*OpusStream)

// WithOpusLogger sets the consumer's logger.
func WithOpusLogger(log *slog.Logger) OpusStreamOption {
	return func(c *OpusStream) {
		c.log = log
	}
}

// WithOpusMetrics sets the metrics instance byte counts are recorded to.
func WithOpusMetrics(m *observe.Metrics) OpusStreamOption {
	return func(c *OpusStream) {
		c.metrics = m
	}
}

// WithOpusBitrate sets the encoder's target bitrate in bits per second.
func WithOpusBitrate(bps int) OpusStreamOption {
	return func(c *OpusStream) {
		c.bitrate = bps
	}
}

// OpusStream compresses a buffer to Opus and writes length-prefixed packets
// (2-byte big-endian length, then the packet) to an io.Writer, typically a
// network connection. Each 100 ms frame is split into 20 ms encoder chunks.
//
// Opus only supports a fixed set of sample rates (8, 12, 16, 24, 48 kHz);
// NewOpusStream fails on anything else.
type OpusStream struct {
	name    string
	w       io.Writer
	format  audio.Format
	bitrate int
	enc     *gopus.Encoder
	log     *slog.Logger
	metrics *observe.Metrics

	lifecycle
	buf    *ring.Buffer
	frames atomic.Uint64
	bytes  atomic.Uint64
	errs   atomic.Uint64
}

// NewOpusStream creates an Opus streaming consumer writing to w.
func NewOpusStream(name string, w io.Writer, format audio.Format, opts ...OpusStreamOption) (*OpusStream, error) {
	enc, err := gopus.NewEncoder(format.SampleRate, format.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("consumer: opus encoder for %d Hz / %d ch: %w",
			format.SampleRate, format.Channels, err)
	}

	c := &OpusStream{
		name:   name,
		w:      w,
		format: format,
		enc:    enc,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.bitrate > 0 {
		enc.SetBitrate(c.bitrate)
	}
	return c, nil
}

// Name returns the consumer's identity.
func (c *OpusStream) Name() string {
	return c.name
}

// AttachInput sets the buffer frames are drained from. Attach before Start.
func (c *OpusStream) AttachInput(buf *ring.Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = buf
}

// Start launches the encode loop. No-op success when already running.
func (c *OpusStream) Start(ctx context.Context) error {
	if c.start(ctx, c.run) {
		c.log.Info("opus consumer started", slog.String("consumer", c.name))
	}
	return nil
}

// Stop terminates the loop and blocks until it has exited.
func (c *OpusStream) Stop() error {
	if c.stop() {
		c.log.Info("opus consumer stopped",
			slog.String("consumer", c.name),
			slog.Uint64("bytes_written", c.bytes.Load()))
	}
	return nil
}

// Status returns a snapshot of the consumer.
func (c *OpusStream) Status() pipeline.ConsumerStatus {
	return pipeline.ConsumerStatus{
		Name:            c.name,
		Running:         c.isRunning(),
		Connected:       true,
		FramesProcessed: c.frames.Load(),
		BytesWritten:    c.bytes.Load(),
		Errors:          c.errs.Load(),
	}
}

func (c *OpusStream) run(ctx context.Context) {
	chunkPerChannel := c.format.SampleRate * opusChunkMillis / 1000
	chunkSamples := chunkPerChannel * c.format.Channels

	ticker := time.NewTicker(drainTick)
	defer ticker.Stop()

	attrs := metric.WithAttributes(observe.Attr("consumer", c.name))

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
			c.frames.Add(1)

			for off := 0; off < len(frame.Samples); off += chunkSamples {
				chunk := make([]int16, chunkSamples)
				copy(chunk, frame.Samples[off:])

				packet, err := c.enc.Encode(chunk, chunkPerChannel, maxOpusPacket)
				if err != nil {
					c.errs.Add(1)
					c.metrics.ConsumerErrors.Add(ctx, 1, attrs)
					c.log.Error("opus encode failed",
						slog.String("consumer", c.name),
						slog.String("error", err.Error()))
					continue
				}

				var prefix [2]byte
				binary.BigEndian.PutUint16(prefix[:], uint16(len(packet)))
				if _, err := c.w.Write(prefix[:]); err != nil {
					c.errs.Add(1)
					c.metrics.ConsumerErrors.Add(ctx, 1, attrs)
					c.log.Error("opus write failed",
						slog.String("consumer", c.name),
						slog.String("error", err.Error()))
					continue
				}
				if _, err := c.w.Write(packet); err != nil {
					c.errs.Add(1)
					c.metrics.ConsumerErrors.Add(ctx, 1, attrs)
					c.log.Error("opus write failed",
						slog.String("consumer", c.name),
						slog.String("error", err.Error()))
					continue
				}

				n := uint64(2 + len(packet))
				c.bytes.Add(n)
				c.metrics.BytesWritten.Add(ctx, int64(n), attrs)
			}
		}
	}
}
