// Package ring provides the bounded, thread-shared frame buffer at the heart
// of the pipeline, plus a process-wide registry of named buffers.
//
// A [Buffer] is written by exactly one goroutine and read by any number of
// goroutines. Overflow never blocks the writer: the oldest unread frame is
// evicted and a counter incremented. A live audio pipeline must never stall
// on a full buffer — a dropped frame is preferable to blocking upstream
// capture.
package ring

import (
	"sync"
	"time"

	"github.com/airliftlabs/airlift/pkg/audio"
)

// DefaultReader is the reader ID used by [Buffer.Pop]. Components that share
// a buffer with other readers should use [Buffer.PopReader] with their own ID
// so each consumes the stream independently.
const DefaultReader = "default"

// Stats is a point-in-time snapshot of a buffer's state.
type Stats struct {
	Capacity      int       `json:"capacity"`
	Depth         int       `json:"depth"`
	DroppedFrames uint64    `json:"dropped_frames"`
	OldestAt      time.Time `json:"oldest_at,omitzero"`
	NewestAt      time.Time `json:"newest_at,omitzero"`
}

// Buffer is a bounded FIFO of [audio.Frame] with drop-oldest overflow.
//
// Frames carry a monotonically increasing sequence number internally; each
// reader holds its own cursor into that sequence, so a slow reader never
// blocks a fast one — it just observes more evictions. All methods are safe
// for concurrent use; every operation takes the mutex exactly once and never
// holds it across a blocking call.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	frames   []audio.Frame
	nextSeq  uint64 // sequence assigned to the next push; first frame is 1
	headSeq  uint64 // sequence of the newest frame, 0 while empty
	readers  map[string]uint64
	dropped  uint64
}

// New creates a buffer holding at most capacity frames. Capacity below 1 is
// raised to 1.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		capacity: capacity,
		frames:   make([]audio.Frame, capacity),
		nextSeq:  1,
		readers:  make(map[string]uint64),
	}
}

// Push appends a frame and returns the resulting depth. Push never blocks
// and never fails: when the buffer is full the oldest frame is evicted and
// the dropped counter incremented by exactly one.
func (b *Buffer) Push(frame audio.Frame) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	seq := b.nextSeq
	b.nextSeq++
	b.frames[seq%uint64(b.capacity)] = frame
	b.headSeq = seq

	if seq > uint64(b.capacity) {
		b.dropped++
	}
	return b.depthLocked()
}

// Pop removes and returns the oldest frame visible to the default reader.
// The second return is false when no frame is available; callers poll or
// sleep rather than block.
func (b *Buffer) Pop() (audio.Frame, bool) {
	return b.PopReader(DefaultReader)
}

// PopReader removes and returns the oldest frame not yet consumed by the
// given reader. Each reader ID owns an independent cursor; a reader that
// falls behind the eviction horizon resumes at the oldest surviving frame.
func (b *Buffer) PopReader(readerID string) (audio.Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.headSeq == 0 {
		return audio.Frame{}, false
	}

	oldest := b.oldestLocked()
	pos, ok := b.readers[readerID]
	if !ok || pos < oldest {
		pos = oldest
	}
	if pos > b.headSeq {
		b.readers[readerID] = pos
		return audio.Frame{}, false
	}

	frame := b.frames[pos%uint64(b.capacity)]
	b.readers[readerID] = pos + 1
	return frame, true
}

// Available reports how many frames the given reader could pop right now.
func (b *Buffer) Available(readerID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.headSeq == 0 {
		return 0
	}
	oldest := b.oldestLocked()
	pos, ok := b.readers[readerID]
	if !ok || pos < oldest {
		pos = oldest
	}
	if pos > b.headSeq {
		return 0
	}
	return int(b.headSeq - pos + 1)
}

// Len returns the number of frames currently held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.depthLocked()
}

// Capacity returns the fixed capacity the buffer was created with.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Clear empties the buffer and resets all reader cursors and the dropped
// counter.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.frames)
	b.nextSeq = 1
	b.headSeq = 0
	b.dropped = 0
	clear(b.readers)
}

// Stats returns a snapshot of the buffer's state. Timestamps are zero while
// the buffer is empty.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		Capacity:      b.capacity,
		DroppedFrames: b.dropped,
	}
	if b.headSeq == 0 {
		return s
	}
	oldest := b.oldestLocked()
	s.Depth = b.depthLocked()
	s.OldestAt = b.frames[oldest%uint64(b.capacity)].CapturedAt
	s.NewestAt = b.frames[b.headSeq%uint64(b.capacity)].CapturedAt
	return s
}

// Snapshot copies the current contents oldest-to-newest without disturbing
// any reader cursor. Intended for diagnostics.
func (b *Buffer) Snapshot() []audio.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.headSeq == 0 {
		return nil
	}
	oldest := b.oldestLocked()
	out := make([]audio.Frame, 0, b.depthLocked())
	for seq := oldest; seq <= b.headSeq; seq++ {
		out = append(out, b.frames[seq%uint64(b.capacity)])
	}
	return out
}

func (b *Buffer) oldestLocked() uint64 {
	if b.headSeq > uint64(b.capacity) {
		return b.headSeq - uint64(b.capacity) + 1
	}
	return 1
}

func (b *Buffer) depthLocked() int {
	if b.headSeq == 0 {
		return 0
	}
	return int(b.headSeq - b.oldestLocked() + 1)
}
