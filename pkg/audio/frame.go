package audio

import "time"

// Frame is a single chunk of interleaved int16 PCM flowing through the
// pipeline. Frames are the atomic unit of audio transport — produced by
// capture loops, merged and transformed by processors, and drained to file
// or network sinks.
//
// Frames are value objects: a processor that alters samples must work on its
// own copy (see [Frame.Clone]) rather than mutating a frame another holder
// may still read.
type Frame struct {
	// CapturedAt marks when the underlying samples were captured.
	CapturedAt time.Time

	// Samples holds interleaved 16-bit signed PCM. len(Samples) is always a
	// multiple of Channels.
	Samples []int16

	// SampleRate in Hz (e.g., 48000 for live capture, 44100 for files).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FrameQuantum is the nominal duration of one pipeline frame. Producers cut
// their sample streams into chunks of this length, and the mixer sizes its
// accumulator to it.
const FrameQuantum = 100 * time.Millisecond

// QuantumSamples returns the number of interleaved samples that one
// [FrameQuantum] occupies at the given format.
func QuantumSamples(f Format) int {
	return f.SampleRate / 10 * f.Channels
}

// Duration returns the playback duration of the frame, derived from the
// sample count and format. Returns zero for malformed frames.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	perChannel := len(f.Samples) / f.Channels
	return time.Duration(perChannel) * time.Second / time.Duration(f.SampleRate)
}

// Clone returns a deep copy of the frame. The sample slice is duplicated so
// the copy can be mutated independently.
func (f Frame) Clone() Frame {
	samples := make([]int16, len(f.Samples))
	copy(samples, f.Samples)
	f.Samples = samples
	return f
}

// Silence returns a frame of digital silence in the given format, spanning
// one [FrameQuantum], stamped with the current time.
func Silence(f Format) Frame {
	return Frame{
		CapturedAt: time.Now(),
		Samples:    make([]int16, QuantumSamples(f)),
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
	}
}
