package ring_test

import (
	"sync"
	"testing"
	"time"

	"github.com/airliftlabs/airlift/internal/ring"
	"github.com/airliftlabs/airlift/pkg/audio"
)

// frameAt builds a one-sample frame whose timestamp encodes n, so tests can
// track ordering through the buffer.
func frameAt(n int) audio.Frame {
	return audio.Frame{
		CapturedAt: time.Unix(int64(n), 0),
		Samples:    []int16{int16(n)},
		SampleRate: 48000,
		Channels:   1,
	}
}

func TestPushPop_FIFO(t *testing.T) {
	buf := ring.New(10)
	for i := 1; i <= 3; i++ {
		buf.Push(frameAt(i))
	}

	for i := 1; i <= 3; i++ {
		frame, ok := buf.Pop()
		if !ok {
			t.Fatalf("pop %d: no frame", i)
		}
		if got, want := frame.CapturedAt.Unix(), int64(i); got != want {
			t.Errorf("pop %d: got ts %d, want %d", i, got, want)
		}
	}
	if _, ok := buf.Pop(); ok {
		t.Error("pop on drained buffer should report no data")
	}
}

func TestPush_DropOldest(t *testing.T) {
	buf := ring.New(3)
	for i := 1; i <= 4; i++ {
		buf.Push(frameAt(i))
	}

	if got := buf.Stats().DroppedFrames; got != 1 {
		t.Errorf("dropped: got %d, want 1", got)
	}
	for _, want := range []int64{2, 3, 4} {
		frame, ok := buf.Pop()
		if !ok {
			t.Fatalf("expected frame with ts %d", want)
		}
		if got := frame.CapturedAt.Unix(); got != want {
			t.Errorf("got ts %d, want %d", got, want)
		}
	}
}

func TestPush_ReturnsDepth(t *testing.T) {
	buf := ring.New(2)
	if got := buf.Push(frameAt(1)); got != 1 {
		t.Errorf("first push: got depth %d, want 1", got)
	}
	if got := buf.Push(frameAt(2)); got != 2 {
		t.Errorf("second push: got depth %d, want 2", got)
	}
	// Overflow: depth stays at capacity.
	if got := buf.Push(frameAt(3)); got != 2 {
		t.Errorf("overflow push: got depth %d, want 2", got)
	}
}

func TestPopReader_IndependentCursors(t *testing.T) {
	buf := ring.New(10)
	buf.Push(frameAt(1))
	buf.Push(frameAt(2))

	a, _ := buf.PopReader("a")
	b, _ := buf.PopReader("b")
	if a.CapturedAt != b.CapturedAt {
		t.Error("independent readers should both see the oldest frame")
	}

	a2, ok := buf.PopReader("a")
	if !ok || a2.CapturedAt.Unix() != 2 {
		t.Errorf("reader a second pop: got %v ok=%v, want ts 2", a2.CapturedAt.Unix(), ok)
	}
	if got := buf.Available("b"); got != 1 {
		t.Errorf("reader b available: got %d, want 1", got)
	}
}

func TestPopReader_LaggingReaderSkipsForward(t *testing.T) {
	buf := ring.New(2)
	buf.Push(frameAt(1))
	if _, ok := buf.PopReader("slow"); !ok {
		t.Fatal("expected first frame")
	}

	// Overwrite everything the slow reader has not seen.
	for i := 2; i <= 5; i++ {
		buf.Push(frameAt(i))
	}

	frame, ok := buf.PopReader("slow")
	if !ok {
		t.Fatal("expected a frame after eviction")
	}
	// Frames 2 and 3 were evicted; the reader resumes at 4.
	if got := frame.CapturedAt.Unix(); got != 4 {
		t.Errorf("got ts %d, want 4", got)
	}
}

func TestStats(t *testing.T) {
	buf := ring.New(3)

	empty := buf.Stats()
	if empty.Depth != 0 || empty.DroppedFrames != 0 {
		t.Errorf("empty stats: got %+v", empty)
	}
	if !empty.OldestAt.IsZero() || !empty.NewestAt.IsZero() {
		t.Error("empty buffer should report zero timestamps")
	}

	for i := 1; i <= 4; i++ {
		buf.Push(frameAt(i))
	}
	s := buf.Stats()
	if s.Capacity != 3 {
		t.Errorf("capacity: got %d, want 3", s.Capacity)
	}
	if s.Depth != 3 {
		t.Errorf("depth: got %d, want 3", s.Depth)
	}
	if s.DroppedFrames != 1 {
		t.Errorf("dropped: got %d, want 1", s.DroppedFrames)
	}
	if got := s.OldestAt.Unix(); got != 2 {
		t.Errorf("oldest: got ts %d, want 2", got)
	}
	if got := s.NewestAt.Unix(); got != 4 {
		t.Errorf("newest: got ts %d, want 4", got)
	}
}

func TestClear(t *testing.T) {
	buf := ring.New(3)
	for i := 1; i <= 5; i++ {
		buf.Push(frameAt(i))
	}
	buf.Clear()

	if got := buf.Len(); got != 0 {
		t.Errorf("len after clear: got %d, want 0", got)
	}
	if got := buf.Stats().DroppedFrames; got != 0 {
		t.Errorf("dropped after clear: got %d, want 0", got)
	}
	if _, ok := buf.Pop(); ok {
		t.Error("pop after clear should report no data")
	}
}

func TestSnapshot_DoesNotAdvanceCursors(t *testing.T) {
	buf := ring.New(5)
	buf.Push(frameAt(1))
	buf.Push(frameAt(2))

	snap := buf.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot length: got %d, want 2", len(snap))
	}
	if got := buf.Available(ring.DefaultReader); got != 2 {
		t.Errorf("available after snapshot: got %d, want 2", got)
	}
}

func TestConcurrentWriterAndReaders(t *testing.T) {
	buf := ring.New(64)
	const frames = 1000

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for i := 1; i <= frames; i++ {
			buf.Push(frameAt(i))
		}
	}()

	read := func(reader string) {
		defer wg.Done()
		var last int64
		seen := 0
		for seen < frames/2 {
			frame, ok := buf.PopReader(reader)
			if !ok {
				// Writer may have finished; bail once everything is consumed.
				if buf.Available(reader) == 0 && seen > 0 {
					return
				}
				time.Sleep(time.Millisecond)
				continue
			}
			if ts := frame.CapturedAt.Unix(); ts <= last {
				t.Errorf("reader %s: out-of-order ts %d after %d", reader, ts, last)
				return
			} else {
				last = ts
			}
			seen++
		}
	}

	go read("a")
	go read("b")
	wg.Wait()
}
