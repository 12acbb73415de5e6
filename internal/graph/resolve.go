package graph

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/airliftlabs/airlift/internal/consumer"
	"github.com/airliftlabs/airlift/internal/observe"
	"github.com/airliftlabs/airlift/internal/pipeline"
	"github.com/airliftlabs/airlift/internal/pipeline/processor"
	"github.com/airliftlabs/airlift/internal/producer"
	"github.com/airliftlabs/airlift/internal/ring"
	"github.com/airliftlabs/airlift/pkg/audio"
)

// defaultFormat is assumed when an input does not pin its own format.
var defaultFormat = audio.Format{SampleRate: 48000, Channels: 2}

// defaultSineFrequency is used when a sine input omits its frequency.
const defaultSineFrequency = 440.0

// ResolverOption configures a [Resolver].
type ResolverOption func(*Resolver)

// WithLogger sets the logger handed to every constructed component.
func WithLogger(log *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.log = log
	}
}

// WithMetrics sets the metrics instance handed to every constructed
// component.
func WithMetrics(m *observe.Metrics) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithSourceOpener sets the device opener for capture inputs. Without it,
// capture producers generate silence.
func WithSourceOpener(open producer.OpenSourceFunc) ResolverOption {
	return func(r *Resolver) {
		r.openSource = open
	}
}

// Resolved is the output of [Resolver.Resolve]: the wired node plus the
// side tables the HTTP layer mounts.
type Resolved struct {
	// Node owns every producer and flow, ready to start.
	Node *pipeline.Node

	// Services maps service names to the buffers they diagnose.
	Services map[string]*ring.Buffer

	// Live maps output names to websocket handlers for pcm outputs.
	Live map[string]http.Handler
}

// Resolver constructs runtime objects from a validated topology.
type Resolver struct {
	log        *slog.Logger
	metrics    *observe.Metrics
	openSource producer.OpenSourceFunc
}

// NewResolver creates a resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{log: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Resolve validates t and, only if every structural rule holds, constructs
// and wires producers, processors, flows, and consumers. Nothing is started;
// the caller owns the returned node's lifecycle. A validation failure
// returns the aggregated [ErrInvalidTopology] with no objects built.
func (r *Resolver) Resolve(t *Topology) (*Resolved, error) {
	if err := Validate(t); err != nil {
		return nil, err
	}

	nodeName := t.Node.Name
	if nodeName == "" {
		nodeName = "airlift"
	}
	node := pipeline.NewNode(nodeName,
		pipeline.WithNodeLogger(r.log),
		pipeline.WithNodeMetrics(r.metrics))

	capacity := map[string]int{}
	for _, b := range t.RingBuffers {
		capacity[b.Name] = b.Capacity
	}

	inputSpecs := map[string]InputSpec{}
	inputBufs := map[string]*ring.Buffer{}
	for _, in := range t.Inputs {
		p, err := r.buildProducer(in)
		if err != nil {
			return nil, err
		}
		buf, err := node.AddProducer(p, capacity[in.Buffer])
		if err != nil {
			return nil, err
		}
		// Alias the producer buffer under its declared topology name so
		// outputs and services resolve it by either handle.
		if err := node.Buffers().Register(in.Buffer, buf); err != nil {
			return nil, err
		}
		inputSpecs[in.Name] = in
		inputBufs[in.Name] = buf
	}

	procs := map[string]pipeline.Processor{}
	for _, spec := range t.Processors {
		p, err := r.buildProcessor(spec, inputSpecs, inputBufs)
		if err != nil {
			return nil, err
		}
		procs[spec.Name] = p
	}

	outputSpecs := map[string]OutputSpec{}
	for _, out := range t.Outputs {
		outputSpecs[out.Name] = out
	}

	resolved := &Resolved{
		Node:     node,
		Services: map[string]*ring.Buffer{},
		Live:     map[string]http.Handler{},
	}

	attached := map[string]bool{}
	for _, spec := range t.Flows {
		chain := make([]pipeline.Processor, 0, len(spec.Processors))
		for _, name := range spec.Processors {
			chain = append(chain, procs[name])
		}

		flow := pipeline.NewFlow(spec.Name, chain,
			pipeline.WithFlowLogger(r.log),
			pipeline.WithFlowMetrics(r.metrics))
		for _, name := range spec.Inputs {
			if err := flow.AttachInput(inputBufs[name]); err != nil {
				return nil, err
			}
		}
		for _, name := range spec.Outputs {
			c, err := r.buildConsumer(outputSpecs[name], inputSpecs, resolved)
			if err != nil {
				return nil, err
			}
			if err := flow.AttachConsumer(c); err != nil {
				return nil, err
			}
			attached[name] = true
		}
		if err := node.AddFlow(flow); err != nil {
			return nil, err
		}
	}

	// Outputs no flow claims read their declared buffer directly, through an
	// implicit consumer-only flow.
	for _, out := range t.Outputs {
		if attached[out.Name] {
			continue
		}
		c, err := r.buildConsumer(out, inputSpecs, resolved)
		if err != nil {
			return nil, err
		}
		flow := pipeline.NewFlow("out:"+out.Name, nil,
			pipeline.WithFlowLogger(r.log),
			pipeline.WithFlowMetrics(r.metrics))
		if err := flow.AttachInput(node.Buffers().Get(out.Buffer)); err != nil {
			return nil, err
		}
		if err := flow.AttachConsumer(c); err != nil {
			return nil, err
		}
		if err := node.AddFlow(flow); err != nil {
			return nil, err
		}
	}

	for _, svc := range t.Services {
		name := svc.Buffer
		if name == "" {
			name = inputSpecs[svc.Input].Buffer
		}
		resolved.Services[svc.Name] = node.Buffers().Get(name)
	}

	return resolved, nil
}

func (r *Resolver) buildProducer(in InputSpec) (pipeline.Producer, error) {
	format := audio.Format{SampleRate: in.SampleRate, Channels: in.Channels}
	if format.SampleRate == 0 {
		format.SampleRate = defaultFormat.SampleRate
	}
	if format.Channels == 0 {
		format.Channels = defaultFormat.Channels
	}

	switch in.Type {
	case "sine":
		freq := in.Frequency
		if freq == 0 {
			freq = defaultSineFrequency
		}
		return producer.NewSine(in.Name, freq, format,
			producer.WithSineLogger(r.log),
			producer.WithSineMetrics(r.metrics)), nil
	case "file":
		opts := []producer.FileOption{
			producer.WithFileLogger(r.log),
			producer.WithFileMetrics(r.metrics),
		}
		if in.Loop {
			opts = append(opts, producer.WithFileLoop())
		}
		return producer.NewFile(in.Name, in.Path, opts...), nil
	case "capture":
		return producer.NewCapture(in.Name, format, r.openSource,
			producer.WithCaptureLogger(r.log),
			producer.WithCaptureMetrics(r.metrics)), nil
	default:
		return nil, fmt.Errorf("graph: input %q has unknown type %q", in.Name, in.Type)
	}
}

func (r *Resolver) buildProcessor(spec ProcessorSpec, inputSpecs map[string]InputSpec, inputBufs map[string]*ring.Buffer) (pipeline.Processor, error) {
	switch spec.Type {
	case "passthrough":
		return processor.NewPassThrough(spec.Name, processor.WithMetrics(r.metrics)), nil
	case "gain":
		return processor.NewGain(spec.Name, spec.Gain, processor.WithMetrics(r.metrics)), nil
	case "mixer":
		format := audio.Format{SampleRate: spec.SampleRate, Channels: spec.Channels}
		if format.SampleRate == 0 {
			format.SampleRate = defaultFormat.SampleRate
		}
		if format.Channels == 0 {
			format.Channels = defaultFormat.Channels
		}
		m := processor.NewMixer(spec.Name, format, processor.WithMetrics(r.metrics))
		for name, gain := range spec.Inputs {
			m.AddInput(name, inputBufs[name], gain)
		}
		if spec.MasterGain != 0 {
			if err := m.UpdateConfig(map[string]any{"master_gain": spec.MasterGain}); err != nil {
				return nil, err
			}
		}
		return m, nil
	default:
		return nil, fmt.Errorf("graph: processor %q has unknown type %q", spec.Name, spec.Type)
	}
}

func (r *Resolver) buildConsumer(out OutputSpec, inputSpecs map[string]InputSpec, resolved *Resolved) (pipeline.Consumer, error) {
	switch out.Encoding {
	case "wav":
		path := out.Path
		if path == "" {
			path = out.Name + ".wav"
		}
		return consumer.NewWAVFile(out.Name, path,
			consumer.WithWAVLogger(r.log),
			consumer.WithWAVMetrics(r.metrics)), nil
	case "pcm":
		live := consumer.NewLiveStream(out.Name,
			consumer.WithLiveLogger(r.log),
			consumer.WithLiveMetrics(r.metrics))
		resolved.Live[out.Name] = live
		return live, nil
	case "opus":
		in := inputSpecs[out.Input]
		format := audio.Format{SampleRate: in.SampleRate, Channels: in.Channels}
		if format.SampleRate == 0 {
			format.SampleRate = defaultFormat.SampleRate
		}
		if format.Channels == 0 {
			format.Channels = defaultFormat.Channels
		}
		opts := []consumer.OpusStreamOption{
			consumer.WithOpusLogger(r.log),
			consumer.WithOpusMetrics(r.metrics),
		}
		if out.Bitrate > 0 {
			opts = append(opts, consumer.WithOpusBitrate(out.Bitrate))
		}
		return consumer.NewOpusStream(out.Name, &lazyDialWriter{addr: out.Address}, format, opts...)
	default:
		return nil, fmt.Errorf("graph: output %q has unknown encoding %q", out.Name, out.Encoding)
	}
}

// lazyDialWriter dials its TCP target on first write and re-dials after a
// failed write, so an opus output can be constructed, and the node started,
// while the receiving end is still down.
type lazyDialWriter struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
}

func (w *lazyDialWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		conn, err := net.Dial("tcp", w.addr)
		if err != nil {
			return 0, err
		}
		w.conn = conn
	}
	n, err := w.conn.Write(p)
	if err != nil {
		w.conn.Close()
		w.conn = nil
	}
	return n, err
}
