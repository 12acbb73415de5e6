package processor_test

import (
	"testing"
	"time"

	"github.com/airliftlabs/airlift/internal/pipeline/processor"
	"github.com/airliftlabs/airlift/internal/ring"
	"github.com/airliftlabs/airlift/pkg/audio"
)

// tinyFormat keeps the mixer's 100 ms accumulator at two samples so tests
// can assert whole frames.
var tinyFormat = audio.Format{SampleRate: 20, Channels: 1}

// tinyFrame builds a mono frame already in tinyFormat, so no format
// conversion happens on the way into the accumulator.
func tinyFrame(samples ...int16) audio.Frame {
	return audio.Frame{
		CapturedAt: time.Now(),
		Samples:    samples,
		SampleRate: tinyFormat.SampleRate,
		Channels:   1,
	}
}

func TestMixer_AdditiveCombination(t *testing.T) {
	a, b, out := ring.New(4), ring.New(4), ring.New(4)
	a.Push(tinyFrame(1000, 1000))
	b.Push(tinyFrame(1000, 1000))

	m := processor.NewMixer("mix", tinyFormat)
	m.AddInput("a", a, 1.0)
	m.AddInput("b", b, 0.5)

	if err := m.Process(nil, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frame, ok := out.Pop()
	if !ok {
		t.Fatal("no mixed frame")
	}
	if len(frame.Samples) != 2 {
		t.Fatalf("samples: got %d, want 2", len(frame.Samples))
	}
	for i, s := range frame.Samples {
		if s != 1500 {
			t.Errorf("sample %d: got %d, want 1500", i, s)
		}
	}
}

func TestMixer_ClampsOnClipping(t *testing.T) {
	a, b, out := ring.New(4), ring.New(4), ring.New(4)
	a.Push(tinyFrame(30000, 30000))
	b.Push(tinyFrame(30000, 30000))

	m := processor.NewMixer("mix", tinyFormat)
	m.AddInput("a", a, 1.0)
	m.AddInput("b", b, 1.0)

	if err := m.Process(nil, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frame, _ := out.Pop()
	for i, s := range frame.Samples {
		if s != 32767 {
			t.Errorf("sample %d: got %d, want 32767 (saturated, not wrapped)", i, s)
		}
	}
}

func TestMixer_SilenceSuppression(t *testing.T) {
	a, out := ring.New(4), ring.New(4)

	m := processor.NewMixer("mix", tinyFormat)
	m.AddInput("a", a, 1.0)

	if err := m.Process(nil, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out.Len(); got != 0 {
		t.Errorf("output frames with all inputs empty: got %d, want 0", got)
	}
}

func TestMixer_EmptyInputContributesSilence(t *testing.T) {
	a, b, out := ring.New(4), ring.New(4), ring.New(4)
	a.Push(tinyFrame(700, -700))
	// b stays empty this round.

	m := processor.NewMixer("mix", tinyFormat)
	m.AddInput("a", a, 1.0)
	m.AddInput("b", b, 1.0)

	if err := m.Process(nil, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frame, ok := out.Pop()
	if !ok {
		t.Fatal("no mixed frame")
	}
	if frame.Samples[0] != 700 || frame.Samples[1] != -700 {
		t.Errorf("got %v, want [700 -700]", frame.Samples)
	}
}

func TestMixer_ShortFramePadsWithSilence(t *testing.T) {
	a, out := ring.New(4), ring.New(4)
	a.Push(tinyFrame(500)) // one sample against a two-sample quantum

	m := processor.NewMixer("mix", tinyFormat)
	m.AddInput("a", a, 1.0)

	if err := m.Process(nil, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frame, _ := out.Pop()
	if frame.Samples[0] != 500 || frame.Samples[1] != 0 {
		t.Errorf("got %v, want [500 0]", frame.Samples)
	}
}

func TestMixer_GainClampedOnWrite(t *testing.T) {
	a, out := ring.New(4), ring.New(4)
	a.Push(tinyFrame(1000, 1000))

	m := processor.NewMixer("mix", tinyFormat)
	m.AddInput("a", a, 5.0) // clamped to 1.0

	if err := m.Process(nil, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frame, _ := out.Pop()
	if frame.Samples[0] != 1000 {
		t.Errorf("got %d, want 1000 (gain clamped to 1.0)", frame.Samples[0])
	}
}

func TestMixer_OutputFormat(t *testing.T) {
	a, out := ring.New(4), ring.New(4)
	a.Push(tinyFrame(1))

	m := processor.NewMixer("mix", tinyFormat)
	m.AddInput("a", a, 1.0)

	if err := m.Process(nil, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frame, _ := out.Pop()
	if frame.SampleRate != tinyFormat.SampleRate || frame.Channels != tinyFormat.Channels {
		t.Errorf("format: got %d/%d, want %d/%d",
			frame.SampleRate, frame.Channels, tinyFormat.SampleRate, tinyFormat.Channels)
	}
	if frame.CapturedAt.IsZero() {
		t.Error("mixed frame should carry a timestamp")
	}
}

func TestMixer_SharedBufferLeavesOtherReadersAlone(t *testing.T) {
	shared, out := ring.New(4), ring.New(4)
	shared.Push(tinyFrame(42))

	m := processor.NewMixer("mix", tinyFormat)
	m.AddInput("src", shared, 1.0)

	if err := m.Process(nil, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The mixer uses its own reader cursor, so another reader still sees
	// the frame.
	if _, ok := shared.PopReader("other"); !ok {
		t.Error("mixer pop consumed the frame for other readers")
	}
}

func TestMixer_ConvertsInputFormat(t *testing.T) {
	a, out := ring.New(4), ring.New(4)
	a.Push(tinyFrame(1000, -1000)) // mono, against a stereo output format

	m := processor.NewMixer("mix", audio.Format{SampleRate: 20, Channels: 2})
	m.AddInput("a", a, 1.0)

	if err := m.Process(nil, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frame, ok := out.Pop()
	if !ok {
		t.Fatal("no mixed frame")
	}
	want := []int16{1000, 1000, -1000, -1000}
	if len(frame.Samples) != len(want) {
		t.Fatalf("samples: got %v, want %v", frame.Samples, want)
	}
	for i := range want {
		if frame.Samples[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, frame.Samples[i], want[i])
		}
	}
}

func TestMixer_UpdateConfig(t *testing.T) {
	a, out := ring.New(4), ring.New(4)

	m := processor.NewMixer("mix", tinyFormat)
	m.AddInput("a", a, 1.0)

	err := m.UpdateConfig(map[string]any{
		"gains":       map[string]any{"a": 0.5, "ghost": 0.9},
		"master_gain": 2.0,
		"sample_rate": 40,
		"bogus":       true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// gain 0.5 then master 2.0: samples come out unchanged, but the new
	// sample rate doubles the accumulator to four samples.
	a.Push(tinyFrame(1000, 1000))
	if err := m.Process(nil, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frame, ok := out.Pop()
	if !ok {
		t.Fatal("no mixed frame")
	}
	if len(frame.Samples) != 4 {
		t.Fatalf("samples after sample_rate update: got %d, want 4", len(frame.Samples))
	}
	if frame.Samples[0] != 1000 {
		t.Errorf("sample 0: got %d, want 1000", frame.Samples[0])
	}
}
