package producer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"go.opentelemetry.io/otel/metric"

	"github.com/airliftlabs/airlift/internal/observe"
	"github.com/airliftlabs/airlift/internal/pipeline"
	"github.com/airliftlabs/airlift/internal/ring"
	"github.com/airliftlabs/airlift/pkg/audio"
)

// Compile-time interface assertion.
var _ pipeline.Producer = (*File)(nil)

// fallbackFormat is used when a file cannot be decoded and the producer
// degrades to silence.
var fallbackFormat = audio.Format{SampleRate: 48000, Channels: 2}

// FileOption configures a [File] producer.
type FileOption func(*File)

// WithFileLoop restarts playback from the beginning when the file ends.
// Without it the producer keeps emitting silence after the last frame.
func WithFileLoop() FileOption {
	return func(f *File) {
		f.loop = true
	}
}

// WithFileLogger sets the producer's logger.
func WithFileLogger(log *slog.Logger) FileOption {
	return func(f *File) {
		f.log = log
	}
}

// WithFileMetrics sets the metrics instance frame counts are recorded to.
func WithFileMetrics(m *observe.Metrics) FileOption {
	return func(f *File) {
		f.metrics = m
	}
}

// File plays a WAV, MP3, or OGG file as a real-time source, emitting one
// 100 ms frame per tick. A file that cannot be opened or decoded degrades
// the producer to silence generation; it never fails Start.
type File struct {
	name    string
	path    string
	loop    bool
	log     *slog.Logger
	metrics *observe.Metrics

	lifecycle
	buf       *ring.Buffer
	connected atomic.Bool
	samples   atomic.Uint64
	errs      atomic.Uint64
}

// NewFile creates a file producer for the audio file at path. The container
// is picked by file extension (.wav, .mp3, .ogg).
func NewFile(name, path string, opts ...FileOption) *File {
	f := &File{
		name: name,
		path: path,
		log:  slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	if f.metrics == nil {
		f.metrics = observe.DefaultMetrics()
	}
	return f
}

// Name returns the producer's identity.
func (f *File) Name() string {
	return f.name
}

// AttachOutput sets the buffer frames are pushed into. Attach before Start.
func (f *File) AttachOutput(buf *ring.Buffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = buf
}

// Start launches the playback loop. No-op success when already running.
// Decode failures do not fail Start; the producer emits silence instead.
func (f *File) Start(ctx context.Context) error {
	if f.start(ctx, f.run) {
		f.metrics.ActiveProducers.Add(ctx, 1)
		f.log.Info("file producer started",
			slog.String("producer", f.name),
			slog.String("path", f.path))
	}
	return nil
}

// Stop terminates the loop and blocks until it has exited.
func (f *File) Stop() error {
	if f.stop() {
		f.metrics.ActiveProducers.Add(context.Background(), -1)
		f.log.Info("file producer stopped", slog.String("producer", f.name))
	}
	return nil
}

// Status returns a snapshot of the producer. Connected=false means playback
// degraded to silence because the file could not be decoded.
func (f *File) Status() pipeline.ProducerStatus {
	st := pipeline.ProducerStatus{
		Name:             f.name,
		Running:          f.isRunning(),
		Connected:        f.connected.Load(),
		SamplesProcessed: f.samples.Load(),
		Errors:           f.errs.Load(),
	}
	f.mu.Lock()
	if f.buf != nil {
		st.Buffer = f.buf.Stats()
	}
	f.mu.Unlock()
	return st
}

func (f *File) run(ctx context.Context) {
	pcm, format, err := decodeFile(f.path)
	if err != nil {
		f.errs.Add(1)
		f.connected.Store(false)
		f.log.Error("decode failed, producing silence",
			slog.String("producer", f.name),
			slog.String("path", f.path),
			slog.String("error", err.Error()))
		pcm, format = nil, fallbackFormat
	} else {
		f.connected.Store(true)
	}

	quantum := audio.QuantumSamples(format)
	ticker := time.NewTicker(audio.FrameQuantum)
	defer ticker.Stop()

	attrs := metric.WithAttributes(observe.Attr("producer", f.name))
	cursor := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		samples := make([]int16, quantum)
		if pcm != nil {
			n := copy(samples, pcm[cursor:])
			cursor += n
			if cursor >= len(pcm) {
				if f.loop {
					cursor = 0
				} else {
					pcm = nil // tail reached; silence from here on
				}
			}
		}

		f.buf.Push(audio.Frame{
			CapturedAt: time.Now(),
			Samples:    samples,
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
		})
		f.samples.Add(uint64(len(samples)))
		f.metrics.FramesProduced.Add(ctx, 1, attrs)
	}
}

// decodeFile loads an entire audio file into interleaved 16-bit PCM.
func decodeFile(path string) ([]int16, audio.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWAV(path)
	case ".mp3":
		return decodeMP3(path)
	case ".ogg":
		return decodeOGG(path)
	default:
		return nil, audio.Format{}, fmt.Errorf("producer: unsupported file type %q", filepath.Ext(path))
	}
}

func decodeWAV(path string) ([]int16, audio.Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, audio.Format{}, err
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("decode wav: %w", err)
	}

	samples := make([]int16, len(buf.Data))
	shift := uint(0)
	if dec.BitDepth > 16 {
		shift = uint(dec.BitDepth - 16)
	}
	for i, v := range buf.Data {
		samples[i] = int16(v >> shift)
	}
	return samples, audio.Format{
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}

func decodeMP3(path string) ([]int16, audio.Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, audio.Format{}, err
	}
	defer file.Close()

	dec, err := mp3.NewDecoder(file)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("decode mp3: %w", err)
	}

	// The decoder always yields 16-bit little-endian stereo.
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("decode mp3: %w", err)
	}
	return audio.BytesToInt16(raw), audio.Format{
		SampleRate: dec.SampleRate(),
		Channels:   2,
	}, nil
}

func decodeOGG(path string) ([]int16, audio.Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, audio.Format{}, err
	}
	defer file.Close()

	data, format, err := oggvorbis.ReadAll(file)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("decode ogg: %w", err)
	}

	samples := make([]int16, len(data))
	for i, v := range data {
		scaled := v * 32767
		switch {
		case scaled > 32767:
			samples[i] = 32767
		case scaled < -32768:
			samples[i] = -32768
		default:
			samples[i] = int16(scaled)
		}
	}
	return samples, audio.Format{
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}, nil
}
