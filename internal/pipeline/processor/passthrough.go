package processor

import (
	"time"

	"github.com/airliftlabs/airlift/internal/pipeline"
	"github.com/airliftlabs/airlift/internal/ring"
)

// Compile-time interface assertion.
var _ pipeline.Processor = (*PassThrough)(nil)

// PassThrough forwards frames unchanged. Useful as a chain placeholder and
// for tapping a buffer without altering the signal.
type PassThrough struct {
	name string
	tracker
}

// NewPassThrough creates a PassThrough processor named name.
func NewPassThrough(name string, opts ...Option) *PassThrough {
	p := &PassThrough{name: name}
	p.tracker.init(name, opts...)
	return p
}

// Name returns the processor's identity.
func (p *PassThrough) Name() string {
	return p.name
}

// Process moves every currently-available frame from in to out unchanged.
func (p *PassThrough) Process(in, out *ring.Buffer) error {
	start := time.Now()
	n := 0
	for {
		frame, ok := in.Pop()
		if !ok {
			break
		}
		out.Push(frame)
		n++
	}
	p.observe(n, time.Since(start))
	return nil
}

// UpdateConfig recognises no keys; every patch is a no-op success.
func (p *PassThrough) UpdateConfig(map[string]any) error {
	return nil
}

// Status returns a snapshot of the processor's counters.
func (p *PassThrough) Status() pipeline.ProcessorStatus {
	return p.status(p.name)
}
