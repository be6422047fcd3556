package capability

import (
	"context"
	"encoding/json"
	"sync"
)

// HandlerFunc performs one command's effect on host state and returns the
// result value to marshal into the Response. Handlers run synchronously on
// the host main-loop tick and must not be called from any other context.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Descriptor describes a registered capability for introspection.
type Descriptor struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	ParamsSchema json.RawMessage `json:"params_schema,omitempty"`
}

// Capability pairs a descriptor with its handler.
type Capability struct {
	Descriptor Descriptor
	Handler    HandlerFunc
}

// Registry owns a mutable, threadsafe set of capability descriptors and
// handlers keyed by command name. Registration typically happens once at
// startup on the host integration side, but the registry tolerates
// concurrent mutation.
type Registry struct {
	mu       sync.RWMutex
	order    []Descriptor           // descriptors in registration order, for listing
	handlers map[string]HandlerFunc // name -> handler
}

// NewRegistry constructs a Registry with the given capability definitions.
func NewRegistry(defs ...Capability) *Registry {
	r := &Registry{}
	r.Replace(defs...)
	return r
}

// Replace atomically replaces the entire capability set.
func (r *Registry) Replace(defs ...Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = r.order[:0]
	r.handlers = make(map[string]HandlerFunc, len(defs))
	for _, d := range defs {
		// last write wins on duplicate names
		r.order = append(r.order, d.Descriptor)
		if d.Handler != nil {
			r.handlers[d.Descriptor.Name] = d.Handler
		}
	}
}

// Register adds a capability if its name is not already taken.
// Returns true if added.
func (r *Registry) Register(def Capability) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string]HandlerFunc)
	}
	name := def.Descriptor.Name
	if _, exists := r.handlers[name]; exists {
		return false
	}
	for _, d := range r.order {
		if d.Name == name {
			return false
		}
	}
	r.order = append(r.order, def.Descriptor)
	if def.Handler != nil {
		r.handlers[name] = def.Handler
	}
	return true
}

// Remove deletes a capability by name. Returns true if removed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	removed := false
	for _, d := range r.order {
		if d.Name == name {
			removed = true
			continue
		}
		r.order[n] = d
		n++
	}
	if removed {
		r.order = r.order[:n]
		delete(r.handlers, name)
	}
	return removed
}

// Lookup returns the handler registered for the given command name.
func (r *Registry) Lookup(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Snapshot returns a copy of the current descriptors in registration order.
func (r *Registry) Snapshot() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, len(r.order))
	copy(out, r.order)
	return out
}
