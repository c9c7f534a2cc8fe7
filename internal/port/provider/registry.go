package provider

import "sync"

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a provider factory available by id. It is typically called
// from an init() function in the provider package, activated by a blank
// import at startup. Registering an id twice replaces the earlier factory;
// registration order is caller-controlled, so the last one wins.
func Register(id string, factory Factory) {
	if id == "" || factory == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	factories[id] = factory
}

// Resolve returns the factory registered under id.
func Resolve(id string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[id]
	return f, ok
}

// Available returns the ids of all registered providers.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()
	ids := make([]string, 0, len(factories))
	for id := range factories {
		ids = append(ids, id)
	}
	return ids
}
