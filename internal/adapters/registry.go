package adapters

import (
	"sync"

	"github.com/relaycore/inference-gateway/internal/gwerr"
)

// Registry maps dialects to their adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter for its dialect, replacing any previous one.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Dialect()] = a
}

// Get returns the adapter for a dialect.
func (r *Registry) Get(dialect string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[dialect]
	if !ok {
		return nil, gwerr.Newf(gwerr.KindInternal, "no adapter registered for dialect %q", dialect)
	}
	return a, nil
}

// Dialects returns the registered dialect names.
func (r *Registry) Dialects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for d := range r.adapters {
		out = append(out, d)
	}
	return out
}
