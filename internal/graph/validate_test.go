package graph_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/airliftlabs/airlift/internal/graph"
)

// validTopology returns a topology that passes every structural rule.
func validTopology() *graph.Topology {
	return &graph.Topology{
		Node: graph.NodeSpec{Name: "test"},
		RingBuffers: []graph.RingBufferSpec{
			{Name: "main", Capacity: 8},
		},
		Inputs: []graph.InputSpec{
			{Name: "tone", Type: "sine", Buffer: "main", Frequency: 440},
		},
		Processors: []graph.ProcessorSpec{
			{Name: "soft", Type: "gain", Gain: 0.5},
		},
		Outputs: []graph.OutputSpec{
			{Name: "rec", Input: "tone", Buffer: "main", Encoding: "wav", Path: "rec.wav"},
		},
		Services: []graph.ServiceSpec{
			{Name: "levels", Buffer: "main", Input: "tone"},
		},
		Flows: []graph.FlowSpec{
			{Name: "main", Inputs: []string{"tone"}, Processors: []string{"soft"}, Outputs: []string{"rec"}},
		},
	}
}

func TestValidate_AcceptsValidTopology(t *testing.T) {
	if err := graph.Validate(validTopology()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InputWithoutBuffer(t *testing.T) {
	top := validTopology()
	top.Inputs[0].Buffer = ""

	err := graph.Validate(top)
	if !errors.Is(err, graph.ErrInvalidTopology) {
		t.Fatalf("want ErrInvalidTopology, got %v", err)
	}
	if !strings.Contains(err.Error(), "declares no buffer") {
		t.Errorf("error should name the rule, got %q", err)
	}
}

func TestValidate_OutputBufferMismatch(t *testing.T) {
	top := validTopology()
	top.RingBuffers = append(top.RingBuffers, graph.RingBufferSpec{Name: "other", Capacity: 4})
	top.Outputs[0].Buffer = "other"

	err := graph.Validate(top)
	if !errors.Is(err, graph.ErrInvalidTopology) {
		t.Fatalf("want ErrInvalidTopology, got %v", err)
	}
	if !strings.Contains(err.Error(), "does not match input") {
		t.Errorf("error should report the mismatch, got %q", err)
	}
}

func TestValidate_OutputWithoutInput(t *testing.T) {
	top := validTopology()
	top.Outputs[0].Input = ""

	if err := graph.Validate(top); !errors.Is(err, graph.ErrInvalidTopology) {
		t.Fatalf("want ErrInvalidTopology, got %v", err)
	}
}

func TestValidate_OutputWithoutEncoding(t *testing.T) {
	top := validTopology()
	top.Outputs[0].Encoding = ""

	err := graph.Validate(top)
	if !errors.Is(err, graph.ErrInvalidTopology) {
		t.Fatalf("want ErrInvalidTopology, got %v", err)
	}
	if !strings.Contains(err.Error(), "declares no encoding") {
		t.Errorf("error should name the missing encoding, got %q", err)
	}
}

func TestValidate_ServiceWithoutReference(t *testing.T) {
	top := validTopology()
	top.Services[0].Buffer = ""
	top.Services[0].Input = ""

	if err := graph.Validate(top); !errors.Is(err, graph.ErrInvalidTopology) {
		t.Fatalf("want ErrInvalidTopology, got %v", err)
	}
}

func TestValidate_ServiceMismatch(t *testing.T) {
	top := validTopology()
	top.RingBuffers = append(top.RingBuffers, graph.RingBufferSpec{Name: "other", Capacity: 4})
	top.Services[0].Buffer = "other" // input "tone" fills "main"

	err := graph.Validate(top)
	if !errors.Is(err, graph.ErrInvalidTopology) {
		t.Fatalf("want ErrInvalidTopology, got %v", err)
	}
	if !strings.Contains(err.Error(), "does not match input") {
		t.Errorf("error should report the mismatch, got %q", err)
	}
}

func TestValidate_AggregatesAllViolations(t *testing.T) {
	top := validTopology()
	top.RingBuffers = append(top.RingBuffers, graph.RingBufferSpec{Name: "other", Capacity: 4})
	top.Outputs[0].Encoding = ""     // rule 3 violation
	top.Services[0].Buffer = "other" // rule 4 violation

	err := graph.Validate(top)
	if !errors.Is(err, graph.ErrInvalidTopology) {
		t.Fatalf("want ErrInvalidTopology, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "declares no encoding") {
		t.Error("missing encoding violation not reported")
	}
	if !strings.Contains(msg, "does not match input") {
		t.Error("service mismatch violation not reported")
	}
}

func TestValidate_DanglingFlowReferences(t *testing.T) {
	top := validTopology()
	top.Flows[0].Inputs = append(top.Flows[0].Inputs, "ghost-in")
	top.Flows[0].Processors = append(top.Flows[0].Processors, "ghost-proc")
	top.Flows[0].Outputs = append(top.Flows[0].Outputs, "ghost-out")

	err := graph.Validate(top)
	if !errors.Is(err, graph.ErrInvalidTopology) {
		t.Fatalf("want ErrInvalidTopology, got %v", err)
	}
	for _, want := range []string{"ghost-in", "ghost-proc", "ghost-out"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("dangling reference %q not reported", want)
		}
	}
}

func TestValidate_UnknownTypes(t *testing.T) {
	top := validTopology()
	top.Inputs[0].Type = "theremin"
	top.Processors[0].Type = "reverb"
	top.Outputs[0].Encoding = "flac"

	err := graph.Validate(top)
	if !errors.Is(err, graph.ErrInvalidTopology) {
		t.Fatalf("want ErrInvalidTopology, got %v", err)
	}
	for _, want := range []string{"theremin", "reverb", "flac"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("unknown identifier %q not reported", want)
		}
	}
}

func TestValidate_BufferBoundTwice(t *testing.T) {
	top := validTopology()
	top.Inputs = append(top.Inputs, graph.InputSpec{
		Name: "tone2", Type: "sine", Buffer: "main",
	})

	err := graph.Validate(top)
	if !errors.Is(err, graph.ErrInvalidTopology) {
		t.Fatalf("want ErrInvalidTopology, got %v", err)
	}
	if !strings.Contains(err.Error(), "bound to both") {
		t.Errorf("double binding not reported, got %q", err)
	}
}
