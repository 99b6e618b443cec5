package provider

import (
	"fmt"
	"strings"
	"sync"
)

// Registry holds pluggable provider implementations keyed by lowercase
// name, per spec.md §4.1: "Implementations are pluggable via a registry
// keyed by lowercase provider name with declared capability flags."
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Facade
	defaultName string
}

// NewRegistry builds an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Facade)}
}

// Register adds a provider under its lowercased Name().
func (r *Registry) Register(p Facade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(p.Name())] = p
}

// SetDefault marks which registered provider is used when the caller
// does not specify one explicitly.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultName = strings.ToLower(name)
}

// Resolve applies the selection precedence of spec.md §4.1: "explicit
// argument > configured default > registry default." An empty explicit
// name falls through to the configured default, and an empty
// configured default falls through to whichever single provider was
// registered (if exactly one exists).
func (r *Registry) Resolve(explicit string) (Facade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if explicit != "" {
		if p, ok := r.providers[strings.ToLower(explicit)]; ok {
			return p, nil
		}
		return nil, fmt.Errorf("provider: unknown provider %q", explicit)
	}
	if r.defaultName != "" {
		if p, ok := r.providers[r.defaultName]; ok {
			return p, nil
		}
	}
	if len(r.providers) == 1 {
		for _, p := range r.providers {
			return p, nil
		}
	}
	return nil, fmt.Errorf("provider: no provider resolvable (explicit=%q, default=%q, registered=%d)", explicit, r.defaultName, len(r.providers))
}

// Names returns the lowercased names of all registered providers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	return names
}
