package simulation

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a simulator client from resolved settings
type Factory func(settings Settings) (SimulatorClient, error)

// Plugin describes a registered simulator plugin
type Plugin struct {
	Name        string
	Description string
	Parameters  []Parameter
	Factory     Factory
}

// Registry manages available simulator plugins
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry creates a new plugin registry
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
	}
}

// Register adds a plugin to the registry
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Factory == nil {
		return fmt.Errorf("simulator %s has no factory", p.Name)
	}
	if _, exists := r.plugins[p.Name]; exists {
		return fmt.Errorf("simulator %s already registered", p.Name)
	}

	r.plugins[p.Name] = p
	return nil
}

// Get returns a new client of the requested plugin built from settings
func (r *Registry) Get(name string, settings Settings) (SimulatorClient, error) {
	r.mu.RLock()
	p, exists := r.plugins[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("simulator %s not found", name)
	}

	resolved, err := settings.Resolve(p.Parameters)
	if err != nil {
		return nil, fmt.Errorf("invalid settings for simulator %s: %w", name, err)
	}
	return p.Factory(resolved)
}

// Plugin returns the registration of the named plugin
func (r *Registry) Plugin(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[name]
	return p, ok
}

// List returns all registered plugin names in alphabetical order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global plugin registry
var DefaultRegistry = NewRegistry()
