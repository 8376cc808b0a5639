package provider

import (
	"fmt"
	"sync"
)

// Registry resolves geocode/route/POI providers by Kind, grounded on the
// original service's GeoProviderManager (providers/manager.py): instances
// are constructed lazily via their Factory and cached.
type Registry struct {
	mu        sync.Mutex
	factories map[Kind]Factory
	instances map[Kind]GeoProvider

	defaultKind Kind
}

// Factory constructs a GeoProvider instance on first use.
type Factory func() (GeoProvider, error)

// NewRegistry creates an empty Registry with the given default provider
// kind (used for routing, which per spec.md §4.3 is always OSM).
func NewRegistry(defaultKind Kind) *Registry {
	return &Registry{
		factories:   make(map[Kind]Factory),
		instances:   make(map[Kind]GeoProvider),
		defaultKind: defaultKind,
	}
}

// Register associates kind with a construction factory. Registration
// failures (e.g. a provider's required API key is absent) are the caller's
// responsibility to skip, mirroring the source's try/except import guard.
func (r *Registry) Register(kind Kind, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Get returns the provider for kind, constructing and caching it on first
// use.
func (r *Registry) Get(kind Kind) (GeoProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if instance, ok := r.instances[kind]; ok {
		return instance, nil
	}

	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("no provider registered for kind %q", kind)
	}

	instance, err := factory()
	if err != nil {
		return nil, fmt.Errorf("constructing provider %q: %w", kind, err)
	}

	r.instances[kind] = instance
	return instance, nil
}

// Default returns the provider for the registry's default kind.
func (r *Registry) Default() (GeoProvider, error) {
	return r.Get(r.defaultKind)
}
