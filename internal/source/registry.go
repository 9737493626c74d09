package source

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"skytrace-backend/config"
	"skytrace-backend/internal/store"
)

// Env carries the dependencies and defaults shared by every client a registry builds.
type Env struct {
	Store        store.Store
	ADSBExchange config.ADSBExchangeConfig
	FetchTimeout time.Duration
}

// Factory builds a client from a job configuration blob.
// It returns an error wrapping ErrInvalidConfig when the blob is unusable.
type Factory func(cfg map[string]any, env Env) (Client, error)

// Registry maps client type tags to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with every built-in client type.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ClientTypeADSBExchange, NewADSBExchangeClient)
	r.Register(ClientTypeSynthetic, NewSyntheticClient)
	return r
}

// Register adds or replaces the factory for clientType.
func (r *Registry) Register(clientType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[clientType] = f
}

// New builds a client of the given type.
func (r *Registry) New(clientType string, cfg map[string]any, env Env) (Client, error) {
	r.mu.RLock()
	f, ok := r.factories[clientType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClient, clientType)
	}
	return f(cfg, env)
}

// Types lists the registered client types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
