package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/airliftlabs/airlift/internal/config"
	"github.com/airliftlabs/airlift/internal/graph"
)

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
topology:
  node:
    name: studio
  ringbuffers:
    - name: main
      capacity: 16
  inputs:
    - name: tone
      type: sine
      buffer: main
      frequency: 440
  processors:
    - name: soft
      type: gain
      gain: 0.5
  outputs:
    - name: rec
      input: tone
      buffer: main
      encoding: wav
      path: out.wav
  flows:
    - name: main
      inputs: [tone]
      processors: [soft]
      outputs: [rec]
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want debug", cfg.Server.LogLevel)
	}
	if got := cfg.Topology.Node.Name; got != "studio" {
		t.Errorf("node name: got %q, want studio", got)
	}
	if len(cfg.Topology.Inputs) != 1 || cfg.Topology.Inputs[0].Frequency != 440 {
		t.Errorf("inputs: got %+v", cfg.Topology.Inputs)
	}
	if len(cfg.Topology.Flows) != 1 || cfg.Topology.Flows[0].Processors[0] != "soft" {
		t.Errorf("flows: got %+v", cfg.Topology.Flows)
	}
}

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("topology:\n  node:\n    name: bare\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr: got %q, want default %q", cfg.Server.ListenAddr, config.DefaultListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want info", cfg.Server.LogLevel)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	yaml := "server:\n  listen_addr: ':1'\n  max_volume: 11\n"
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Error("unknown fields should be rejected")
	}
}

func TestLoadFromReader_InvalidLogLevel(t *testing.T) {
	yaml := "server:\n  log_level: loud\n"
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("invalid log level should be rejected")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should name the field, got %q", err)
	}
}

func TestLoadFromReader_TopologyViolationsSurface(t *testing.T) {
	yaml := strings.Replace(validYAML, "encoding: wav", "encoding: \"\"", 1)
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if !errors.Is(err, graph.ErrInvalidTopology) {
		t.Fatalf("want ErrInvalidTopology, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load("/nonexistent/airlift.yaml"); err == nil {
		t.Error("missing file should be an error")
	}
}
