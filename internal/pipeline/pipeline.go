// Package pipeline defines the execution model of an Airlift node: Producers
// generate PCM frames into ring buffers, Processors transform frames between
// buffers, Consumers drain buffers to external sinks, and Flows drive ordered
// processor chains on a dedicated goroutine.
//
// Everything after construction is best-effort: processor and consumer errors
// are logged and counted, never fatal. Only graph resolution (see
// internal/graph) may reject a configuration outright.
package pipeline

import (
	"context"
	"time"

	"github.com/airliftlabs/airlift/internal/ring"
)

// Producer generates frames into a single output buffer attached before
// start. Start spawns the capture loop and is idempotent; Stop blocks until
// the loop goroutine has exited, guaranteeing no further writes afterwards.
//
// A producer that cannot reach its capture source must not fail Start.
// Instead it degrades to generating silent frames at the expected cadence and
// reports Connected=false in its status.
type Producer interface {
	Name() string
	AttachOutput(buf *ring.Buffer)
	Start(ctx context.Context) error
	Stop() error
	Status() ProducerStatus
}

// Processor transforms frames between an explicit input/output buffer pair.
// A Process call drains all currently-available frames from in, transforms
// each, and pushes the results to out in arrival order before returning.
//
// UpdateConfig applies a partial configuration patch. Unrecognised keys are
// ignored, not errors. It must be safe to call concurrently with Process.
type Processor interface {
	Name() string
	Process(in, out *ring.Buffer) error
	UpdateConfig(cfg map[string]any) error
	Status() ProcessorStatus
}

// Consumer drains a single input buffer, attached before start, to an
// external sink. Start/Stop semantics match [Producer]. Empty polls are not
// errors; the loop sleeps briefly and tries again.
type Consumer interface {
	Name() string
	AttachInput(buf *ring.Buffer)
	Start(ctx context.Context) error
	Stop() error
	Status() ConsumerStatus
}

// ProducerStatus is a point-in-time snapshot of a producer.
type ProducerStatus struct {
	Name             string     `json:"name"`
	Running          bool       `json:"running"`
	Connected        bool       `json:"connected"`
	SamplesProcessed uint64     `json:"samples_processed"`
	Errors           uint64     `json:"errors"`
	Buffer           ring.Stats `json:"buffer"`
}

// ProcessorStatus is a point-in-time snapshot of a processor. Running means
// a flow is currently driving it; for mixers it additionally requires at
// least one wired input.
type ProcessorStatus struct {
	Name            string        `json:"name"`
	Running         bool          `json:"running"`
	FramesProcessed uint64        `json:"frames_processed"`
	Errors          uint64        `json:"errors"`
	ProcessingRate  float64       `json:"processing_rate"` // frames per second since start
	LatencyEstimate time.Duration `json:"latency_estimate"`
}

// ConsumerStatus is a point-in-time snapshot of a consumer.
type ConsumerStatus struct {
	Name            string `json:"name"`
	Running         bool   `json:"running"`
	Connected       bool   `json:"connected"`
	FramesProcessed uint64 `json:"frames_processed"`
	BytesWritten    uint64 `json:"bytes_written"`
	Errors          uint64 `json:"errors"`
}

// FlowStatus is a point-in-time snapshot of a flow and its stages.
type FlowStatus struct {
	Name       string            `json:"name"`
	Running    bool              `json:"running"`
	Ticks      uint64            `json:"ticks"`
	Processors []ProcessorStatus `json:"processors"`
	Consumers  []ConsumerStatus  `json:"consumers"`
	Output     ring.Stats        `json:"output"`
}

// NodeStatus aggregates the state of every producer and flow a node owns.
type NodeStatus struct {
	Name          string           `json:"name"`
	Running       bool             `json:"running"`
	Uptime        time.Duration    `json:"uptime"`
	ProducerCount int              `json:"producer_count"`
	FlowCount     int              `json:"flow_count"`
	Producers     []ProducerStatus `json:"producers"`
	Flows         []FlowStatus     `json:"flows"`
}
