package ai

import (
	"fmt"
	"sync"
)

// AdapterRegistry maps provider ids to their live adapters. Registration
// happens at startup, lookups happen on every dispatch.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{
		adapters: make(map[string]Adapter),
	}
}

func (r *AdapterRegistry) Register(adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := adapter.ID()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("adapter already registered: %s", id)
	}
	r.adapters[id] = adapter
	return nil
}

func (r *AdapterRegistry) Get(id string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if adapter, ok := r.adapters[id]; ok {
		return adapter, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
}

func (r *AdapterRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}
