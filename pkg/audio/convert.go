package audio

import (
	"log/slog"
	"sync"
)

// FormatConverter converts Frames to a target format. It logs a warning on
// the first format mismatch and validates channel alignment. Create one per
// stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts a frame to the target format. If the source format already
// matches the target, the frame is returned unchanged (zero allocation).
// Conversion order: resample first, then channel convert.
func (c *FormatConverter) Convert(frame Frame) Frame {
	// Validate: sample count must align with the declared channel count.
	if frame.Channels <= 0 || len(frame.Samples)%frame.Channels != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("format converter: misaligned PCM data, dropping frame",
				"samples", len(frame.Samples),
				"channels", frame.Channels,
			)
		})
		return Frame{
			CapturedAt: frame.CapturedAt,
			SampleRate: c.Target.SampleRate,
			Channels:   c.Target.Channels,
		}
	}

	// Fast path: source matches target.
	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("format mismatch: converting",
			"from", formatString(Format{frame.SampleRate, frame.Channels}),
			"to", formatString(c.Target),
		)
	})

	samples := frame.Samples
	rate := frame.SampleRate
	channels := frame.Channels

	// Resample first — avoids resampling stereo when the target is mono.
	if rate != c.Target.SampleRate {
		samples = Resample(samples, channels, rate, c.Target.SampleRate)
		rate = c.Target.SampleRate
	}

	if channels != c.Target.Channels {
		switch {
		case channels == 1 && c.Target.Channels == 2:
			samples = MonoToStereo(samples)
		case channels == 2 && c.Target.Channels == 1:
			samples = StereoToMono(samples)
		}
		channels = c.Target.Channels
	}

	return Frame{
		CapturedAt: frame.CapturedAt,
		Samples:    samples,
		SampleRate: rate,
		Channels:   channels,
	}
}

// Resample converts interleaved int16 PCM from srcRate to dstRate using
// linear interpolation per channel. If srcRate == dstRate, the input is
// returned unchanged.
func Resample(samples []int16, channels, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) < channels {
		return samples
	}

	srcFrames := len(samples) / channels
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]int16, dstFrames*channels)
	ratio := float64(srcRate) / float64(dstRate)

	for i := 0; i < dstFrames; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		for ch := 0; ch < channels; ch++ {
			s0 := samples[srcIdx*channels+ch]
			s1 := s0
			if srcIdx+1 < srcFrames {
				s1 = samples[(srcIdx+1)*channels+ch]
			}
			out[i*channels+ch] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
		}
	}
	return out
}
