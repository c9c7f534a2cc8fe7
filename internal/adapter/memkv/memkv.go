// Package memkv implements the kvstore port with an in-process map.
// It backs the "memory" store backend and the unit tests.
package memkv

import (
	"context"
	"sync"

	"github.com/loomhq/loom/internal/port/kvstore"
)

// DB is an in-memory namespaced key-value engine.
type DB struct {
	mu         sync.RWMutex
	namespaces map[string]map[string][]byte
}

// New creates an empty in-memory engine.
func New() *DB {
	return &DB{namespaces: make(map[string]map[string][]byte)}
}

// Namespace returns a view scoped to name. Views over the same name share data.
func (d *DB) Namespace(name string) kvstore.Store {
	return &store{db: d, ns: name}
}

func (d *DB) bucket(ns string, create bool) map[string][]byte {
	b, ok := d.namespaces[ns]
	if !ok && create {
		b = make(map[string][]byte)
		d.namespaces[ns] = b
	}
	return b
}

type store struct {
	db *DB
	ns string
}

func (s *store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	b := s.db.bucket(s.ns, false)
	if b == nil {
		return nil, false, nil
	}
	v, ok := b[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *store) Set(_ context.Context, key string, value []byte) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b := s.db.bucket(s.ns, true)
	v := make([]byte, len(value))
	copy(v, value)
	b[key] = v
	return nil
}

func (s *store) SetMany(_ context.Context, entries map[string][]byte) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b := s.db.bucket(s.ns, true)
	for key, value := range entries {
		v := make([]byte, len(value))
		copy(v, value)
		b[key] = v
	}
	return nil
}

func (s *store) Delete(_ context.Context, key string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if b := s.db.bucket(s.ns, false); b != nil {
		delete(b, key)
	}
	return nil
}

func (s *store) Keys(_ context.Context) ([]string, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	b := s.db.bucket(s.ns, false)
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	return keys, nil
}
