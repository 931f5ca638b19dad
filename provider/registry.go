package provider

import (
	"fmt"
	"sort"
	"sync"
)

var (
	mu        sync.RWMutex
	factories = make(map[string]func() (Provider, error))
)

// Register adds a provider factory under a name. Provider packages call
// this from init(); a later registration under the same name replaces the
// earlier one.
func Register(name string, factory func() (Provider, error)) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// Get builds the provider registered under name.
func Get(name string) (Provider, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider %q (registered: %v)", name, Available())
	}
	return factory()
}

// Available returns the sorted names of all registered providers.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
