package processor

import (
	"sync"
	"time"

	"github.com/airliftlabs/airlift/internal/pipeline"
	"github.com/airliftlabs/airlift/internal/ring"
	"github.com/airliftlabs/airlift/pkg/audio"
)

// Compile-time interface assertion.
var _ pipeline.Processor = (*Mixer)(nil)

// mixerInput is one named source feeding the mixer.
type mixerInput struct {
	buf  *ring.Buffer
	gain float64 // always clamped into [0, 1]
	conv audio.FormatConverter
}

// Mixer merges several independently-fed buffers into a single output
// stream. Unlike the other processors it owns its input wiring: each
// configured input is a named buffer popped with a private reader cursor
// ("mixer:<mixer>:<input>"), so mixers can share producer buffers with other
// readers without stealing frames from them. The input buffer passed to
// Process is ignored.
//
// Each invocation mixes at most one frame per input into a fixed 100 ms
// accumulator sized to the output format. Inputs whose frames arrive in a
// different format are converted to the output format before accumulation.
// Inputs with nothing available this round contribute silence. If every
// input was empty, no output frame is emitted at all, so downstream cadence
// is irregular when sources go quiet.
type Mixer struct {
	name string
	tracker

	mu     sync.Mutex
	inputs map[string]*mixerInput
	order  []string // insertion order, for deterministic mixing
	format audio.Format
	master float64
}

// NewMixer creates a mixer producing frames in the given output format.
func NewMixer(name string, format audio.Format, opts ...Option) *Mixer {
	m := &Mixer{
		name:   name,
		inputs: make(map[string]*mixerInput),
		format: format,
		master: 1.0,
	}
	m.tracker.init(name, opts...)
	return m
}

// Name returns the mixer's identity.
func (m *Mixer) Name() string {
	return m.name
}

// AddInput wires a named source buffer with the given gain. Adding a name
// twice replaces the previous wiring.
func (m *Mixer) AddInput(name string, buf *ring.Buffer, gain float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.inputs[name]; !exists {
		m.order = append(m.order, name)
	}
	m.inputs[name] = &mixerInput{buf: buf, gain: clampGain(gain)}
}

// SetGain updates one input's gain. Unknown input names are ignored.
func (m *Mixer) SetGain(input string, gain float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if in, ok := m.inputs[input]; ok {
		in.gain = clampGain(gain)
	}
}

// Process pops at most one frame from each configured input, scales it by
// that input's gain, and adds it into a 100 ms accumulator with saturation
// at the int16 bounds. The mixed frame is pushed to out; if no input had a
// frame available, nothing is emitted. The in parameter is unused.
func (m *Mixer) Process(_, out *ring.Buffer) error {
	start := time.Now()

	m.mu.Lock()
	format := m.format
	master := m.master
	type source struct {
		reader string
		buf    *ring.Buffer
		gain   float64
		conv   *audio.FormatConverter
	}
	sources := make([]source, 0, len(m.order))
	for _, name := range m.order {
		in := m.inputs[name]
		in.conv.Target = format
		sources = append(sources, source{
			reader: "mixer:" + m.name + ":" + name,
			buf:    in.buf,
			gain:   in.gain,
			conv:   &in.conv,
		})
	}
	m.mu.Unlock()

	acc := make([]int32, audio.QuantumSamples(format))
	mixed := false

	for _, src := range sources {
		frame, ok := src.buf.PopReader(src.reader)
		if !ok {
			continue
		}
		frame = src.conv.Convert(frame)
		mixed = true

		n := min(len(acc), len(frame.Samples))
		for i := 0; i < n; i++ {
			acc[i] = saturateAdd(acc[i], int32(float64(frame.Samples[i])*src.gain))
		}
	}

	if !mixed {
		return nil
	}

	samples := make([]int16, len(acc))
	for i, v := range acc {
		scaled := float64(v) * master
		switch {
		case scaled > 32767:
			samples[i] = 32767
		case scaled < -32768:
			samples[i] = -32768
		default:
			samples[i] = int16(scaled)
		}
	}

	out.Push(audio.Frame{
		CapturedAt: time.Now(),
		Samples:    samples,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	})
	m.observe(1, time.Since(start))
	return nil
}

// UpdateConfig applies a partial patch to the mixer's live state.
// Recognised keys:
//
//	gains        map of input name to numeric gain, clamped into [0, 1]
//	master_gain  numeric master gain applied after mixing
//	sample_rate  output sample rate
//	channels     output channel count
//
// Unrecognised keys, unknown input names, and non-numeric values are
// ignored.
func (m *Mixer) UpdateConfig(cfg map[string]any) error {
	if v, ok := cfg["gains"]; ok {
		if gains, ok := v.(map[string]any); ok {
			for name, gv := range gains {
				if g, ok := floatValue(gv); ok {
					m.SetGain(name, g)
				}
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := cfg["master_gain"]; ok {
		if f, ok := floatValue(v); ok {
			m.master = f
		}
	}
	if v, ok := cfg["sample_rate"]; ok {
		if n, ok := intValue(v); ok && n > 0 {
			m.format.SampleRate = n
		}
	}
	if v, ok := cfg["channels"]; ok {
		if n, ok := intValue(v); ok && n > 0 {
			m.format.Channels = n
		}
	}
	return nil
}

// Status returns a snapshot of the mixer's counters. A mixer only counts as
// running while a flow drives it and at least one input is wired.
func (m *Mixer) Status() pipeline.ProcessorStatus {
	st := m.status(m.name)

	m.mu.Lock()
	wired := len(m.inputs) > 0
	m.mu.Unlock()
	st.Running = st.Running && wired
	return st
}

// clampGain forces a per-input gain into [0, 1].
func clampGain(g float64) float64 {
	switch {
	case g < 0:
		return 0
	case g > 1:
		return 1
	default:
		return g
	}
}

// saturateAdd adds two accumulator values with saturation at the int16
// bounds, preventing wraparound when clipping inputs stack up.
func saturateAdd(a, b int32) int32 {
	sum := a + b
	switch {
	case sum > 32767:
		return 32767
	case sum < -32768:
		return -32768
	default:
		return sum
	}
}
