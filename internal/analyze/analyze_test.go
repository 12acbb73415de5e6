package analyze_test

import (
	"math"
	"testing"
	"time"

	"github.com/airliftlabs/airlift/internal/analyze"
	"github.com/airliftlabs/airlift/internal/ring"
	"github.com/airliftlabs/airlift/pkg/audio"
)

func frame(channels int, samples ...int16) audio.Frame {
	return audio.Frame{
		CapturedAt: time.Now(),
		Samples:    samples,
		SampleRate: 48000,
		Channels:   channels,
	}
}

func TestBuffer_EmptyYieldsZero(t *testing.T) {
	levels := analyze.Buffer(ring.New(4))
	if levels.Frames != 0 {
		t.Errorf("frames: got %d, want 0", levels.Frames)
	}
	if levels.ClippingRatio != 0 {
		t.Errorf("clipping: got %v, want 0", levels.ClippingRatio)
	}
}

func TestBuffer_PeakAndRMS(t *testing.T) {
	buf := ring.New(4)
	// Stereo: left constant half scale, right silent.
	buf.Push(frame(2, 16384, 0, 16384, 0))

	levels := analyze.Buffer(buf)
	if levels.Channels != 2 {
		t.Fatalf("channels: got %d, want 2", levels.Channels)
	}

	wantLeft := 16384.0 / 32768
	if math.Abs(levels.Peak[0]-wantLeft) > 1e-9 {
		t.Errorf("left peak: got %v, want %v", levels.Peak[0], wantLeft)
	}
	if levels.Peak[1] != 0 {
		t.Errorf("right peak: got %v, want 0", levels.Peak[1])
	}

	// A constant signal's RMS equals its amplitude.
	if math.Abs(levels.RMS[0]-wantLeft) > 1e-9 {
		t.Errorf("left rms: got %v, want %v", levels.RMS[0], wantLeft)
	}
	if levels.RMS[1] != 0 {
		t.Errorf("right rms: got %v, want 0", levels.RMS[1])
	}
}

func TestBuffer_ClippingRatio(t *testing.T) {
	buf := ring.New(4)
	buf.Push(frame(1, 32767, 0, -32768, 0))

	levels := analyze.Buffer(buf)
	if got := levels.ClippingRatio; got != 0.5 {
		t.Errorf("clipping ratio: got %v, want 0.5", got)
	}
}

func TestBuffer_DoesNotConsume(t *testing.T) {
	buf := ring.New(4)
	buf.Push(frame(1, 1, 2, 3))

	_ = analyze.Buffer(buf)
	if got := buf.Len(); got != 1 {
		t.Errorf("analysis consumed frames: depth %d, want 1", got)
	}
}
