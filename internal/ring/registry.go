package ring

import (
	"fmt"
	"sync"
)

// Registry maps buffer names to shared [Buffer] instances so that flows,
// mixers, and diagnostic services can connect to producer output by name
// rather than by reference plumbing. Producer buffers are registered as
// "producer:<name>"; topology-declared buffers keep their declared name.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	buffers map[string]*Buffer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{buffers: make(map[string]*Buffer)}
}

// Register adds a buffer under the given name. Registering a name twice is
// an error — buffer identity is fixed at wiring time.
func (r *Registry) Register(name string, buf *Buffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.buffers[name]; exists {
		return fmt.Errorf("ring: buffer %q already registered", name)
	}
	r.buffers[name] = buf
	return nil
}

// Get returns the buffer registered under name, or nil when absent.
func (r *Registry) Get(name string) *Buffer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buffers[name]
}

// Names returns all registered buffer names in unspecified order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.buffers))
	for name := range r.buffers {
		names = append(names, name)
	}
	return names
}

// StatsAll returns a stats snapshot for every registered buffer, keyed by
// name.
func (r *Registry) StatsAll() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Stats, len(r.buffers))
	for name, buf := range r.buffers {
		out[name] = buf.Stats()
	}
	return out
}
