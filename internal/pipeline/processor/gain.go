package processor

import (
	"sync"
	"time"

	"github.com/airliftlabs/airlift/internal/pipeline"
	"github.com/airliftlabs/airlift/internal/ring"
)

// Compile-time interface assertion.
var _ pipeline.Processor = (*Gain)(nil)

// Gain scales every sample by a constant factor, clamping the result to the
// 16-bit signed range. Factors above 1.0 amplify; the clamp prevents
// wraparound on clipping.
type Gain struct {
	name string
	tracker

	mu     sync.Mutex
	factor float64
}

// NewGain creates a Gain processor with the given factor.
func NewGain(name string, factor float64, opts ...Option) *Gain {
	g := &Gain{name: name, factor: factor}
	g.tracker.init(name, opts...)
	return g
}

// Name returns the processor's identity.
func (g *Gain) Name() string {
	return g.name
}

// Factor returns the current gain factor.
func (g *Gain) Factor() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.factor
}

// SetFactor replaces the gain factor. Takes effect on the next Process call.
func (g *Gain) SetFactor(factor float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.factor = factor
}

// Process drains in, scales each frame's samples by the factor, and pushes
// the scaled copies to out in arrival order. Incoming frames are cloned, not
// mutated, since other readers may still observe them.
func (g *Gain) Process(in, out *ring.Buffer) error {
	start := time.Now()
	factor := g.Factor()

	n := 0
	for {
		frame, ok := in.Pop()
		if !ok {
			break
		}
		scaled := frame.Clone()
		for i, s := range scaled.Samples {
			scaled.Samples[i] = scaleSample(s, factor)
		}
		out.Push(scaled)
		n++
	}
	g.observe(n, time.Since(start))
	return nil
}

// UpdateConfig recognises the key "gain" (numeric). Unrecognised keys are
// ignored.
func (g *Gain) UpdateConfig(cfg map[string]any) error {
	if v, ok := cfg["gain"]; ok {
		if f, ok := floatValue(v); ok {
			g.SetFactor(f)
		}
	}
	return nil
}

// Status returns a snapshot of the processor's counters.
func (g *Gain) Status() pipeline.ProcessorStatus {
	return g.status(g.name)
}

// scaleSample multiplies s by factor with saturation at the int16 bounds.
func scaleSample(s int16, factor float64) int16 {
	v := float64(s) * factor
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}
