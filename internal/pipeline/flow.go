package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/airliftlabs/airlift/internal/observe"
	"github.com/airliftlabs/airlift/internal/ring"
)

const (
	// flowTick is the cadence of the processing loop. Well below the 100 ms
	// frame quantum so frames never queue up waiting for a tick.
	flowTick = 10 * time.Millisecond

	// flowIdleSleep is how long the loop sleeps when it has nothing to do.
	flowIdleSleep = 100 * time.Millisecond

	// defaultStageCap bounds each intermediate stage buffer. Stages are
	// drained every tick, so depth beyond a few frames means the chain is
	// falling behind and dropping is the right call.
	defaultStageCap = 32

	// defaultMergeCap bounds the private buffer that multi-input flows merge
	// their inputs into.
	defaultMergeCap = 64
)

// FlowOption configures a [Flow] during construction.
type FlowOption func(*Flow)

// WithFlowLogger sets the logger used for per-tick diagnostics.
func WithFlowLogger(log *slog.Logger) FlowOption {
	return func(f *Flow) {
		f.log = log
	}
}

// WithFlowMetrics sets the metrics instance tick durations and processor
// errors are recorded to.
func WithFlowMetrics(m *observe.Metrics) FlowOption {
	return func(f *Flow) {
		f.metrics = m
	}
}

// WithStageCapacity overrides the capacity of the intermediate stage buffers
// and the input merge buffer.
func WithStageCapacity(n int) FlowOption {
	return func(f *Flow) {
		if n > 0 {
			f.stageCap = n
		}
	}
}

// runStater is implemented by processors that report a running flag in their
// status. The owning flow flips it on start and stop.
type runStater interface {
	SetRunning(bool)
}

// Flow drives an ordered processor chain on a dedicated goroutine: input
// buffers are merged into a private buffer, each processor stage reads from
// the previous stage's buffer and writes to its own, and consumers drain the
// final stage's buffer.
//
// Inputs and consumers are attached before Start; the topology of a running
// flow is fixed. State machine: created, running, stopped. Start on a
// running flow is a no-op success; Stop blocks until the loop goroutine has
// exited and then stops the consumers so remaining frames can drain.
type Flow struct {
	name     string
	procs    []Processor
	stages   []*ring.Buffer // one per processor; the last is the public output
	merge    *ring.Buffer
	readerID string
	stageCap int

	log     *slog.Logger
	metrics *observe.Metrics

	mu        sync.Mutex
	inputs    []*ring.Buffer
	consumers []Consumer
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}

	ticks atomic.Uint64
}

// NewFlow creates a flow named name running the given processor chain. The
// chain may be empty, in which case consumers read merged input directly.
func NewFlow(name string, procs []Processor, opts ...FlowOption) *Flow {
	f := &Flow{
		name:     name,
		procs:    procs,
		readerID: "flow:" + name,
		stageCap: defaultStageCap,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	if f.metrics == nil {
		f.metrics = observe.DefaultMetrics()
	}

	mergeCap := defaultMergeCap
	if f.stageCap != defaultStageCap {
		mergeCap = f.stageCap
	}
	f.merge = ring.New(mergeCap)
	f.stages = make([]*ring.Buffer, len(procs))
	for i := range procs {
		f.stages[i] = ring.New(f.stageCap)
	}
	return f
}

// Name returns the flow's identity.
func (f *Flow) Name() string {
	return f.name
}

// Output returns the buffer consumers read from: the last stage buffer, or
// the merge buffer when the chain is empty.
func (f *Flow) Output() *ring.Buffer {
	if len(f.stages) > 0 {
		return f.stages[len(f.stages)-1]
	}
	return f.merge
}

// AttachInput adds an input buffer. Fails on a running flow.
func (f *Flow) AttachInput(buf *ring.Buffer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return fmt.Errorf("flow %q: cannot attach input while running", f.name)
	}
	f.inputs = append(f.inputs, buf)
	return nil
}

// AttachConsumer wires c to the flow's output buffer. Fails on a running
// flow.
func (f *Flow) AttachConsumer(c Consumer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return fmt.Errorf("flow %q: cannot attach consumer while running", f.name)
	}
	c.AttachInput(f.Output())
	f.consumers = append(f.consumers, c)
	return nil
}

// Start launches the processing loop and the attached consumers. Calling
// Start on a running flow is a no-op success.
func (f *Flow) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return nil
	}

	for _, c := range f.consumers {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("flow %q: start consumer %q: %w", f.name, c.Name(), err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.cancel = cancel
	f.done = make(chan struct{})
	f.running = true
	for _, p := range f.procs {
		if rs, ok := p.(runStater); ok {
			rs.SetRunning(true)
		}
	}
	f.metrics.ActiveFlows.Add(ctx, 1)

	go f.run(loopCtx)

	f.log.Info("flow started",
		slog.String("flow", f.name),
		slog.Int("processors", len(f.procs)),
		slog.Int("inputs", len(f.inputs)),
		slog.Int("consumers", len(f.consumers)))
	return nil
}

// Stop signals the loop to terminate, waits for it to exit, then stops the
// consumers so frames still in the output buffer can drain. Stopping a flow
// that is not running is a no-op success.
func (f *Flow) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	cancel, done := f.cancel, f.done
	f.running = false
	f.mu.Unlock()

	cancel()
	<-done
	for _, p := range f.procs {
		if rs, ok := p.(runStater); ok {
			rs.SetRunning(false)
		}
	}
	f.metrics.ActiveFlows.Add(context.Background(), -1)

	var errs []error
	f.mu.Lock()
	consumers := f.consumers
	f.mu.Unlock()
	for _, c := range consumers {
		if err := c.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop consumer %q: %w", c.Name(), err))
		}
	}

	f.log.Info("flow stopped", slog.String("flow", f.name))
	return errors.Join(errs...)
}

// Status returns a snapshot of the flow and every stage.
func (f *Flow) Status() FlowStatus {
	f.mu.Lock()
	running := f.running
	consumers := f.consumers
	f.mu.Unlock()

	st := FlowStatus{
		Name:       f.name,
		Running:    running,
		Ticks:      f.ticks.Load(),
		Processors: make([]ProcessorStatus, 0, len(f.procs)),
		Consumers:  make([]ConsumerStatus, 0, len(consumers)),
		Output:     f.Output().Stats(),
	}
	for _, p := range f.procs {
		st.Processors = append(st.Processors, p.Status())
	}
	for _, c := range consumers {
		st.Consumers = append(st.Consumers, c.Status())
	}
	return st
}

// run is the processing loop. One iteration per tick: merge inputs, then run
// each processor stage in order. Processor errors are logged and counted,
// never fatal; the contract is best-effort forward progress.
func (f *Flow) run(ctx context.Context) {
	defer close(f.done)

	ticker := time.NewTicker(flowTick)
	defer ticker.Stop()

	flowAttr := metric.WithAttributes(observe.Attr("flow", f.name))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Nothing wired in and nothing to drive: idle instead of spinning.
		if len(f.inputs) == 0 && len(f.procs) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(flowIdleSleep):
			}
			continue
		}

		start := time.Now()

		for _, in := range f.inputs {
			for {
				frame, ok := in.PopReader(f.readerID)
				if !ok {
					break
				}
				f.merge.Push(frame)
			}
		}

		in := f.merge
		for i, p := range f.procs {
			out := f.stages[i]
			if err := p.Process(in, out); err != nil {
				f.metrics.ProcessorErrors.Add(ctx, 1,
					metric.WithAttributes(
						observe.Attr("flow", f.name),
						observe.Attr("processor", p.Name())))
				f.log.Error("processor failed",
					slog.String("flow", f.name),
					slog.String("processor", p.Name()),
					slog.String("error", err.Error()))
			}
			in = out
		}

		f.ticks.Add(1)
		f.metrics.FlowTickDuration.Record(ctx, time.Since(start).Seconds(), flowAttr)
	}
}
