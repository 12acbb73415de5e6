// Package graph turns a declarative pipeline topology into wired runtime
// objects. Validation is strict and happens entirely before construction:
// every structural violation is collected and reported in one aggregated
// error, and a broken topology never gets partially wired, let alone
// started. After Resolve succeeds, everything downstream is best-effort.
package graph

// Topology is the declarative description of an Airlift node: named ring
// buffers, inputs (producers), processors, outputs (consumers), diagnostic
// services, and the flows that tie them together by identifier.
type Topology struct {
	Node        NodeSpec         `yaml:"node"`
	RingBuffers []RingBufferSpec `yaml:"ringbuffers"`
	Inputs      []InputSpec      `yaml:"inputs"`
	Processors  []ProcessorSpec  `yaml:"processors"`
	Outputs     []OutputSpec     `yaml:"outputs"`
	Services    []ServiceSpec    `yaml:"services"`
	Flows       []FlowSpec       `yaml:"flows"`
}

// NodeSpec names the node.
type NodeSpec struct {
	Name string `yaml:"name"`
}

// RingBufferSpec declares a named buffer slot and its capacity.
type RingBufferSpec struct {
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity"`
}

// InputSpec declares a producer. Type selects the implementation: "sine",
// "file", or "capture". Every input must declare the buffer it fills.
type InputSpec struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Buffer string `yaml:"buffer"`

	// Frequency is the tone frequency for sine inputs, in Hz.
	Frequency float64 `yaml:"frequency,omitempty"`

	// Path is the audio file for file inputs.
	Path string `yaml:"path,omitempty"`

	// Loop restarts file playback at the end instead of going silent.
	Loop bool `yaml:"loop,omitempty"`

	// SampleRate and Channels set the output format for sine and capture
	// inputs. File inputs take their format from the file.
	SampleRate int `yaml:"sample_rate,omitempty"`
	Channels   int `yaml:"channels,omitempty"`
}

// ProcessorSpec declares a transform. Type selects the implementation:
// "passthrough", "gain", or "mixer".
type ProcessorSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// Gain is the scaling factor for gain processors.
	Gain float64 `yaml:"gain,omitempty"`

	// SampleRate and Channels set the mixer's output format.
	SampleRate int `yaml:"sample_rate,omitempty"`
	Channels   int `yaml:"channels,omitempty"`

	// Inputs maps input names to per-input gains for mixer processors.
	Inputs map[string]float64 `yaml:"inputs,omitempty"`

	// MasterGain is applied by the mixer after accumulation. Zero means 1.0.
	MasterGain float64 `yaml:"master_gain,omitempty"`
}

// OutputSpec declares a consumer. Every output must reference an input and
// that input's buffer, and carry an encoding identifier: "wav" records to a
// file, "pcm" streams raw samples over websocket, "opus" streams compressed
// packets to a network address.
type OutputSpec struct {
	Name     string `yaml:"name"`
	Input    string `yaml:"input"`
	Buffer   string `yaml:"buffer"`
	Encoding string `yaml:"encoding"`

	// Path is the target file for wav outputs.
	Path string `yaml:"path,omitempty"`

	// Address is the TCP target for opus outputs.
	Address string `yaml:"address,omitempty"`

	// Bitrate is the opus encoder bitrate in bits per second.
	Bitrate int `yaml:"bitrate,omitempty"`
}

// ServiceSpec declares a diagnostic reader (signal levels, buffer stats).
// A service must reference a buffer or an input; when both are given they
// must agree.
type ServiceSpec struct {
	Name   string `yaml:"name"`
	Buffer string `yaml:"buffer,omitempty"`
	Input  string `yaml:"input,omitempty"`
}

// FlowSpec ties inputs, an ordered processor chain, and outputs together.
type FlowSpec struct {
	Name       string   `yaml:"name"`
	Inputs     []string `yaml:"inputs,omitempty"`
	Processors []string `yaml:"processors,omitempty"`
	Outputs    []string `yaml:"outputs,omitempty"`
}
