package statusbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

// DefaultBusName is used when the config does not name a bus.
const DefaultBusName = "channel"

// Registry maintains a mapping of bus names to their builders and delivery
// guarantees. Bus packages register themselves using Register.
type Registry struct {
	mu         sync.RWMutex
	builders   map[string]Builder
	guarantees map[string]Guarantees
}

// DefaultRegistry is the global status bus registry.
var DefaultRegistry = NewRegistry()

// NewRegistry creates a new bus registry.
func NewRegistry() *Registry {
	return &Registry{
		builders:   make(map[string]Builder),
		guarantees: make(map[string]Guarantees),
	}
}

// Register adds a bus builder and its guarantees to the registry.
// The name should match the StatusBus config value (e.g. "nats", "kafka").
func (r *Registry) Register(name string, builder Builder, g Guarantees) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = builder
	r.guarantees[name] = g
}

// GetGuarantees returns the guarantees for a registered bus.
// Returns a zero Guarantees struct if the bus is unknown.
func (r *Registry) GetGuarantees(name string) Guarantees {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if g, ok := r.guarantees[name]; ok {
		return g
	}
	return Guarantees{Name: name}
}

// Build creates a bus using the registered builder for the config's
// StatusBus value, falling back to DefaultBusName when unset.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Bus, error) {
	if cfg == nil {
		return Bus{}, fmt.Errorf("config is required")
	}

	name := cfg.GetStatusBusSystem()
	if name == "" {
		name = DefaultBusName
	}

	r.mu.RLock()
	builder, ok := r.builders[name]
	r.mu.RUnlock()

	if !ok {
		return Bus{}, fmt.Errorf("unknown status bus: %q (registered: %v)", name, r.Names())
	}

	return builder(ctx, cfg, logger)
}

// Names returns the list of registered bus names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	return names
}

// Has returns true if a bus is registered with the given name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builders[name]
	return ok
}

// Register adds a bus builder to the default registry.
func Register(name string, builder Builder, g Guarantees) {
	DefaultRegistry.Register(name, builder, g)
}

// Build creates a bus using the default registry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Bus, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
