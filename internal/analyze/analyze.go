// Package analyze computes signal-quality diagnostics over buffered audio:
// per-channel peak and RMS levels and a clipping ratio. It reads buffer
// snapshots, never consuming frames, so diagnostics cannot starve the
// pipeline.
package analyze

import (
	"math"

	"github.com/airliftlabs/airlift/internal/ring"
)

// Levels describes the signal observed in one buffer snapshot.
type Levels struct {
	// Frames is how many frames the snapshot covered.
	Frames int `json:"frames"`

	// Channels is the channel count of the analysed audio.
	Channels int `json:"channels"`

	// Peak is the per-channel maximum absolute sample, normalised to [0, 1].
	Peak []float64 `json:"peak"`

	// RMS is the per-channel root mean square level, normalised to [0, 1].
	RMS []float64 `json:"rms"`

	// ClippingRatio is the fraction of samples at full scale.
	ClippingRatio float64 `json:"clipping_ratio"`
}

// Buffer analyses the current contents of buf without consuming anything.
// An empty buffer yields zero Levels.
func Buffer(buf *ring.Buffer) Levels {
	frames := buf.Snapshot()
	if len(frames) == 0 {
		return Levels{}
	}

	channels := frames[0].Channels
	if channels < 1 {
		channels = 1
	}

	var (
		peak    = make([]float64, channels)
		sumSq   = make([]float64, channels)
		count   = make([]int, channels)
		clipped int
		total   int
	)

	for _, frame := range frames {
		for i, s := range frame.Samples {
			ch := i % channels
			v := math.Abs(float64(s)) / 32768
			if v > peak[ch] {
				peak[ch] = v
			}
			sumSq[ch] += v * v
			count[ch]++
			total++
			if s == 32767 || s == -32768 {
				clipped++
			}
		}
	}

	rms := make([]float64, channels)
	for ch := range rms {
		if count[ch] > 0 {
			rms[ch] = math.Sqrt(sumSq[ch] / float64(count[ch]))
		}
	}

	levels := Levels{
		Frames:   len(frames),
		Channels: channels,
		Peak:     peak,
		RMS:      rms,
	}
	if total > 0 {
		levels.ClippingRatio = float64(clipped) / float64(total)
	}
	return levels
}
