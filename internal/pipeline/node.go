package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/airliftlabs/airlift/internal/observe"
	"github.com/airliftlabs/airlift/internal/ring"
)

// DefaultProducerBufferCap is the capacity of a producer's output buffer
// when the topology does not declare one. Sixteen 100 ms frames gives
// readers over a second of slack before drops start.
const DefaultProducerBufferCap = 16

// dropScanInterval is how often a running node folds buffer eviction counts
// into the frames-dropped metric.
const dropScanInterval = time.Second

// NodeOption configures a [Node] during construction.
type NodeOption func(*Node)

// WithNodeLogger sets the node's logger.
func WithNodeLogger(log *slog.Logger) NodeOption {
	return func(n *Node) {
		n.log = log
	}
}

// WithNodeMetrics sets the metrics instance passed down to owned components.
func WithNodeMetrics(m *observe.Metrics) NodeOption {
	return func(n *Node) {
		n.metrics = m
	}
}

// Node is the top-level container: it owns every producer, each producer's
// output buffer, and every flow. Topology is fixed once Start is called;
// there is no live rewiring.
//
// Start brings up producers before flows so buffers carry data the moment a
// flow ticks. Stop reverses the order, stopping flows and their consumers
// first so in-flight frames drain instead of being written to buffers nobody
// reads anymore.
type Node struct {
	name    string
	log     *slog.Logger
	metrics *observe.Metrics

	mu        sync.Mutex
	producers []Producer
	flows     []*Flow
	buffers   *ring.Registry
	running   bool
	startedAt time.Time

	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
	dropSeen      map[string]uint64 // touched only by the monitor goroutine
}

// NewNode creates an empty node named name.
func NewNode(name string, opts ...NodeOption) *Node {
	n := &Node{
		name:     name,
		log:      slog.Default(),
		buffers:  ring.NewRegistry(),
		dropSeen: make(map[string]uint64),
	}
	for _, o := range opts {
		o(n)
	}
	if n.metrics == nil {
		n.metrics = observe.DefaultMetrics()
	}
	return n
}

// Name returns the node's identity.
func (n *Node) Name() string {
	return n.name
}

// Buffers returns the node's buffer registry. Producer output buffers are
// registered as "producer:<name>".
func (n *Node) Buffers() *ring.Registry {
	return n.buffers
}

// AddProducer creates an output buffer of the given capacity, registers it
// as "producer:<name>", attaches it to p, and takes ownership of p. A
// capacity below one falls back to [DefaultProducerBufferCap]. Fails on a
// running node or a duplicate producer name.
func (n *Node) AddProducer(p Producer, bufCap int) (*ring.Buffer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return nil, fmt.Errorf("node %q: cannot add producer while running", n.name)
	}
	if bufCap < 1 {
		bufCap = DefaultProducerBufferCap
	}

	buf := ring.New(bufCap)
	if err := n.buffers.Register("producer:"+p.Name(), buf); err != nil {
		return nil, fmt.Errorf("node %q: %w", n.name, err)
	}
	p.AttachOutput(buf)
	n.producers = append(n.producers, p)
	return buf, nil
}

// AddFlow takes ownership of f. Fails on a running node.
func (n *Node) AddFlow(f *Flow) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return fmt.Errorf("node %q: cannot add flow while running", n.name)
	}
	n.flows = append(n.flows, f)
	return nil
}

// Start brings up every producer, then every flow. Idempotent: starting a
// running node is a no-op success. If a flow fails to start, everything
// already started is stopped again and the error is returned.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return nil
	}

	for _, p := range n.producers {
		if err := p.Start(ctx); err != nil {
			n.stopAllLocked()
			return fmt.Errorf("node %q: start producer %q: %w", n.name, p.Name(), err)
		}
	}
	for _, f := range n.flows {
		if err := f.Start(ctx); err != nil {
			n.stopAllLocked()
			return fmt.Errorf("node %q: start flow %q: %w", n.name, f.Name(), err)
		}
	}

	monCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	n.monitorCancel = cancel
	n.monitorDone = make(chan struct{})
	go n.monitor(monCtx)

	n.running = true
	n.startedAt = time.Now()
	n.log.Info("node started",
		slog.String("node", n.name),
		slog.Int("producers", len(n.producers)),
		slog.Int("flows", len(n.flows)))
	return nil
}

// Stop shuts down flows first, producers second, collecting every error.
// Stopping a stopped node is a no-op success.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}
	n.monitorCancel()
	<-n.monitorDone
	err := n.stopAllLocked()
	n.running = false
	n.log.Info("node stopped", slog.String("node", n.name))
	return err
}

// stopAllLocked stops flows then producers. Must be called with n.mu held.
// Both Stop implementations are no-ops on already-stopped components, so
// this is safe to use for start rollback too.
func (n *Node) stopAllLocked() error {
	var errs []error
	for _, f := range n.flows {
		if err := f.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop flow %q: %w", f.Name(), err))
		}
	}
	for _, p := range n.producers {
		if err := p.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop producer %q: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// monitor drives the periodic drop scan while the node runs.
func (n *Node) monitor(ctx context.Context) {
	defer close(n.monitorDone)

	ticker := time.NewTicker(dropScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.recordDrops(ctx)
		}
	}
}

// recordDrops records each registered buffer's eviction delta since the
// previous scan to the frames-dropped metric. A buffer registered under more
// than one name is counted once, under its lexicographically first name. A
// count below the previous scan means the buffer was cleared; the baseline
// resets without recording.
func (n *Node) recordDrops(ctx context.Context) {
	names := n.buffers.Names()
	sort.Strings(names)

	seen := make(map[*ring.Buffer]bool, len(names))
	for _, name := range names {
		buf := n.buffers.Get(name)
		if buf == nil || seen[buf] {
			continue
		}
		seen[buf] = true

		dropped := buf.Stats().DroppedFrames
		if prev := n.dropSeen[name]; dropped > prev {
			n.metrics.FramesDropped.Add(ctx, int64(dropped-prev),
				metric.WithAttributes(observe.Attr("buffer", name)))
		}
		n.dropSeen[name] = dropped
	}
}

// Status returns an aggregated snapshot of the node and everything it owns.
func (n *Node) Status() NodeStatus {
	n.mu.Lock()
	defer n.mu.Unlock()

	st := NodeStatus{
		Name:          n.name,
		Running:       n.running,
		ProducerCount: len(n.producers),
		FlowCount:     len(n.flows),
		Producers:     make([]ProducerStatus, 0, len(n.producers)),
		Flows:         make([]FlowStatus, 0, len(n.flows)),
	}
	if n.running {
		st.Uptime = time.Since(n.startedAt)
	}
	for _, p := range n.producers {
		st.Producers = append(st.Producers, p.Status())
	}
	for _, f := range n.flows {
		st.Flows = append(st.Flows, f.Status())
	}
	return st
}
