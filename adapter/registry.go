package adapter

import (
	"fmt"
	"sort"
	"sync"
)

// Registration pairs a descriptor with the builder that produces its live
// implementation.
type Registration struct {
	Descriptor Descriptor
	Builder    Builder
}

// Registry holds all known adapter descriptors and their builders. Lookups by
// capability are deterministic: descending priority, then registration order.
// The registry never makes a remote call.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
	order   map[string]int
	next    int
}

// DefaultRegistry is the global adapter registry. Adapter sub-packages
// register themselves against it at init time.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Registration),
		order:   make(map[string]int),
	}
}

// Register adds an adapter to the registry. It fails with
// ErrDuplicateAdapterType when the descriptor type is already registered and
// ErrInvalidDescriptor when the descriptor violates its invariants.
func (r *Registry) Register(d Descriptor, b Builder) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("%w: %q has no builder", ErrInvalidDescriptor, d.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[d.Type]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateAdapterType, d.Type)
	}
	r.entries[d.Type] = Registration{Descriptor: d, Builder: b}
	r.order[d.Type] = r.next
	r.next++
	return nil
}

// MustRegister is Register for init-time wiring; it panics on error.
func (r *Registry) MustRegister(d Descriptor, b Builder) {
	if err := r.Register(d, b); err != nil {
		panic(err)
	}
}

// ByType returns the registration for an adapter type.
func (r *Registry) ByType(adapterType string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[adapterType]
	return reg, ok
}

// ByCapability returns all registrations whose descriptor supports the given
// capability, ordered by descending priority and then by registration order.
func (r *Registry) ByCapability(c Capability) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Registration
	for _, reg := range r.entries {
		if reg.Descriptor.Supports(c) {
			out = append(out, reg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].Descriptor, out[j].Descriptor
		if di.Priority != dj.Priority {
			return di.Priority > dj.Priority
		}
		return r.order[di.Type] < r.order[dj.Type]
	})
	return out
}

// Types returns the registered adapter type names in registration order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return r.order[types[i]] < r.order[types[j]] })
	return types
}

// Has reports whether an adapter type is registered.
func (r *Registry) Has(adapterType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[adapterType]
	return ok
}

// Register adds an adapter to the default registry.
func Register(d Descriptor, b Builder) error {
	return DefaultRegistry.Register(d, b)
}

// MustRegister adds an adapter to the default registry, panicking on error.
func MustRegister(d Descriptor, b Builder) {
	DefaultRegistry.MustRegister(d, b)
}
