// Package kvstore defines the port interface for namespaced key-value persistence.
package kvstore

import "context"

// Store is one namespace of the underlying key-value engine. Implementations
// must be safe for concurrent use; writes to distinct keys are independent.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set writes a single key.
	Set(ctx context.Context, key string, value []byte) error

	// SetMany writes all entries as one batch.
	SetMany(ctx context.Context, entries map[string][]byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys in the namespace, in the store's native order.
	// Callers must not rely on the ordering being meaningful.
	Keys(ctx context.Context) ([]string, error)
}

// DB is the port interface for a namespaced key-value engine. Namespace
// returns a view scoped to the given name; views over the same name share
// the same underlying data.
type DB interface {
	Namespace(name string) Store
}
