// Package provider contains the backing execution endpoint clients and
// their shared plumbing: registry, pooled HTTP transport, and circuit
// breaker protection.
package provider

import (
	"fmt"
	"sync"

	"roleroute/internal/domain"
)

// Registry holds named providers. It implements domain.ProviderResolver.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.Provider
	order     []string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]domain.Provider)}
}

// Register adds a provider. Returns an error if the name is taken.
func (r *Registry) Register(p domain.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns all registered providers in registration order.
func (r *Registry) List() []domain.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

var _ domain.ProviderResolver = (*Registry)(nil)
