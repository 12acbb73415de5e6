// Package producer contains the built-in frame sources: a sine tone
// generator, a file player (WAV, MP3, OGG), and a device capture producer.
// All of them implement [pipeline.Producer].
//
// Producers never fail Start because a source is unreachable. They degrade
// to generating silent frames at the expected cadence instead, so downstream
// consumers keep receiving well-formed audio, and report Connected=false in
// their status.
package producer

import (
	"context"
	"sync"
)

// lifecycle implements the idempotent start / blocking stop discipline every
// producer shares. start returns false when the loop is already running;
// stop blocks until the loop goroutine has exited and returns false when
// nothing was running.
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
