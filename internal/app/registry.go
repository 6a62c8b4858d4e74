package app

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the collection of loaded applications
type Registry struct {
	mu         sync.RWMutex
	apps       map[string]*App
	defaultApp string
}

// NewRegistry creates a new application registry
func NewRegistry(apps map[string]*App, defaultApp string) *Registry {
	return &Registry{
		apps:       apps,
		defaultApp: defaultApp,
	}
}

// Get retrieves an application by name
func (r *Registry) Get(name string) (*App, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	app, exists := r.apps[name]
	if !exists {
		return nil, fmt.Errorf("app '%s' not found", name)
	}

	return app, nil
}

// Default returns the default application, or an error if none is configured
func (r *Registry) Default() (*App, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultApp == "" {
		return nil, fmt.Errorf("no default app configured")
	}

	app, exists := r.apps[r.defaultApp]
	if !exists {
		return nil, fmt.Errorf("default app '%s' not found", r.defaultApp)
	}

	return app, nil
}

// List returns all application names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.apps))
	for name := range r.apps {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Count returns the number of applications
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.apps)
}
