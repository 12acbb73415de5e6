package graph

import (
	"errors"
	"fmt"
)

// ErrInvalidTopology wraps every aggregated validation failure returned by
// [Validate].
var ErrInvalidTopology = errors.New("graph: invalid topology")

// Validate checks the topology's structural rules and returns one aggregated
// error listing every violation, or nil. The rules:
//
//  1. every input declares a buffer;
//  2. every output declares an input and a buffer, and the referenced
//     input's buffer must match;
//  3. every output declares an encoding identifier;
//  4. every service references a buffer or an input, and when both are given
//     they must be mutually consistent.
//
// Referential integrity (names resolving to declared objects, no duplicate
// identifiers) is checked alongside, since a dangling name is just as fatal
// at wiring time.
func Validate(t *Topology) error {
	var errs []error

	buffers := map[string]bool{}
	for _, b := range t.RingBuffers {
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("ringbuffer without a name"))
			continue
		}
		if buffers[b.Name] {
			errs = append(errs, fmt.Errorf("duplicate ringbuffer %q", b.Name))
		}
		buffers[b.Name] = true
	}

	inputs := map[string]InputSpec{}
	bufferOwner := map[string]string{}
	for _, in := range t.Inputs {
		if in.Name == "" {
			errs = append(errs, fmt.Errorf("input without a name"))
			continue
		}
		if _, dup := inputs[in.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate input %q", in.Name))
			continue
		}
		inputs[in.Name] = in

		switch in.Type {
		case "sine", "file", "capture":
		default:
			errs = append(errs, fmt.Errorf("input %q has unknown type %q", in.Name, in.Type))
		}

		// Rule 1.
		if in.Buffer == "" {
			errs = append(errs, fmt.Errorf("input %q declares no buffer", in.Name))
			continue
		}
		if !buffers[in.Buffer] {
			errs = append(errs, fmt.Errorf("input %q references unknown buffer %q", in.Name, in.Buffer))
		}
		if owner, taken := bufferOwner[in.Buffer]; taken {
			errs = append(errs, fmt.Errorf("buffer %q is bound to both input %q and input %q", in.Buffer, owner, in.Name))
		} else {
			bufferOwner[in.Buffer] = in.Name
		}
	}

	processors := map[string]ProcessorSpec{}
	for _, p := range t.Processors {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("processor without a name"))
			continue
		}
		if _, dup := processors[p.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate processor %q", p.Name))
			continue
		}
		processors[p.Name] = p

		switch p.Type {
		case "passthrough", "gain":
		case "mixer":
			for name := range p.Inputs {
				if _, ok := inputs[name]; !ok {
					errs = append(errs, fmt.Errorf("processor %q mixes unknown input %q", p.Name, name))
				}
			}
		default:
			errs = append(errs, fmt.Errorf("processor %q has unknown type %q", p.Name, p.Type))
		}
	}

	outputs := map[string]OutputSpec{}
	for _, out := range t.Outputs {
		if out.Name == "" {
			errs = append(errs, fmt.Errorf("output without a name"))
			continue
		}
		if _, dup := outputs[out.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate output %q", out.Name))
			continue
		}
		outputs[out.Name] = out

		// Rule 2.
		switch {
		case out.Input == "" && out.Buffer == "":
			errs = append(errs, fmt.Errorf("output %q declares neither input nor buffer", out.Name))
		case out.Input == "":
			errs = append(errs, fmt.Errorf("output %q declares no input", out.Name))
		case out.Buffer == "":
			errs = append(errs, fmt.Errorf("output %q declares no buffer", out.Name))
		default:
			in, ok := inputs[out.Input]
			if !ok {
				errs = append(errs, fmt.Errorf("output %q references unknown input %q", out.Name, out.Input))
			} else if in.Buffer != out.Buffer {
				errs = append(errs, fmt.Errorf("output %q buffer %q does not match input %q buffer %q",
					out.Name, out.Buffer, out.Input, in.Buffer))
			}
		}

		// Rule 3.
		switch out.Encoding {
		case "":
			errs = append(errs, fmt.Errorf("output %q declares no encoding", out.Name))
		case "wav", "pcm", "opus":
		default:
			errs = append(errs, fmt.Errorf("output %q has unknown encoding %q", out.Name, out.Encoding))
		}
	}

	// Rule 4.
	for _, svc := range t.Services {
		if svc.Name == "" {
			errs = append(errs, fmt.Errorf("service without a name"))
			continue
		}
		switch {
		case svc.Buffer == "" && svc.Input == "":
			errs = append(errs, fmt.Errorf("service %q references neither buffer nor input", svc.Name))
		case svc.Buffer != "" && svc.Input != "":
			in, ok := inputs[svc.Input]
			if !ok {
				errs = append(errs, fmt.Errorf("service %q references unknown input %q", svc.Name, svc.Input))
			} else if in.Buffer != svc.Buffer {
				errs = append(errs, fmt.Errorf("service %q buffer %q does not match input %q buffer %q",
					svc.Name, svc.Buffer, svc.Input, in.Buffer))
			}
		case svc.Buffer != "":
			if !buffers[svc.Buffer] {
				errs = append(errs, fmt.Errorf("service %q references unknown buffer %q", svc.Name, svc.Buffer))
			}
		default:
			if _, ok := inputs[svc.Input]; !ok {
				errs = append(errs, fmt.Errorf("service %q references unknown input %q", svc.Name, svc.Input))
			}
		}
	}

	flowNames := map[string]bool{}
	for _, fl := range t.Flows {
		if fl.Name == "" {
			errs = append(errs, fmt.Errorf("flow without a name"))
			continue
		}
		if flowNames[fl.Name] {
			errs = append(errs, fmt.Errorf("duplicate flow %q", fl.Name))
			continue
		}
		flowNames[fl.Name] = true

		for _, name := range fl.Inputs {
			if _, ok := inputs[name]; !ok {
				errs = append(errs, fmt.Errorf("flow %q references unknown input %q", fl.Name, name))
			}
		}
		for _, name := range fl.Processors {
			if _, ok := processors[name]; !ok {
				errs = append(errs, fmt.Errorf("flow %q references unknown processor %q", fl.Name, name))
			}
		}
		for _, name := range fl.Outputs {
			if _, ok := outputs[name]; !ok {
				errs = append(errs, fmt.Errorf("flow %q references unknown output %q", fl.Name, name))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidTopology, errors.Join(errs...))
	}
	return nil
}
