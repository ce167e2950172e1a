package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jdelaire/openbot/core/chat"
)

// Registry holds the connected adapters keyed by platform name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]chat.Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]chat.Adapter),
	}
}

// Register adds an adapter under its platform name.
func (r *Registry) Register(a chat.Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.ToLower(a.Platform())
	if name == "" {
		return fmt.Errorf("adapter has no platform name")
	}
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}
	r.adapters[name] = a
	return nil
}

// Get returns the adapter for platform.
func (r *Registry) Get(platform string) (chat.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[strings.ToLower(platform)]
	if !ok {
		return nil, fmt.Errorf("adapter %q not found", platform)
	}
	return a, nil
}

// Platforms returns the registered platform names, sorted.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
