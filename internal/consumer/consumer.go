// Package consumer contains the built-in sinks: a WAV file recorder, a
// websocket live streamer, and an Opus packet streamer. All of them
// implement [pipeline.Consumer].
//
// Consumer loops poll their input buffer and tolerate empty polls; write
// failures are logged and counted, never fatal.
package consumer

import (
	"context"
	"sync"
	"time"
)

// drainTick is the polling cadence of every consumer loop. Well below the
// 100 ms frame quantum so sinks never fall behind a healthy pipeline.
const drainTick = 20 * time.Millisecond

// lifecycle implements the idempotent start / blocking stop discipline every
// consumer shares, mirroring the producer side.
type lifecycle struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func (l *lifecycle) start(ctx context.Context, run func(context.Context)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return false
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true

	done := l.done
	go func() {
		defer close(done)
		run(loopCtx)
	}()
	return true
}

func (l *lifecycle) stop() bool {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return false
	}
	cancel, done := l.cancel, l.done
	l.running = false
	l.mu.Unlock()

	cancel()
	<-done
	return true
}

func (l *lifecycle) isRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
