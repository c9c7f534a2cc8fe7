// Package cachedkv decorates a kvstore engine with a read-through byte cache.
// Get checks the cache first; writes and deletes update the backing store and
// keep the cache coherent. Keys always goes to the backing store.
package cachedkv

import (
	"context"
	"time"

	"github.com/loomhq/loom/internal/port/cache"
	"github.com/loomhq/loom/internal/port/kvstore"
)

// DB wraps a kvstore.DB with a shared cache layer.
type DB struct {
	inner kvstore.DB
	cache cache.Cache
	ttl   time.Duration
}

// New creates a cached engine. ttl bounds how long cached reads live.
func New(inner kvstore.DB, c cache.Cache, ttl time.Duration) *DB {
	return &DB{inner: inner, cache: c, ttl: ttl}
}

// Namespace returns a cached view over the inner namespace.
func (d *DB) Namespace(name string) kvstore.Store {
	return &store{
		inner: d.inner.Namespace(name),
		cache: d.cache,
		ttl:   d.ttl,
		ns:    name,
	}
}

type store struct {
	inner kvstore.Store
	cache cache.Cache
	ttl   time.Duration
	ns    string
}

// cacheKey namespaces cache entries; '\x00' cannot appear in namespace names
// produced by the workspace domain.
func (s *store) cacheKey(key string) string {
	return s.ns + "\x00" + key
}

func (s *store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, found, err := s.cache.Get(ctx, s.cacheKey(key)); err == nil && found {
		return val, true, nil
	}

	val, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}

	_ = s.cache.Set(ctx, s.cacheKey(key), val, s.ttl)
	return val, true, nil
}

func (s *store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.inner.Set(ctx, key, value); err != nil {
		return err
	}
	_ = s.cache.Set(ctx, s.cacheKey(key), value, s.ttl)
	return nil
}

func (s *store) SetMany(ctx context.Context, entries map[string][]byte) error {
	if err := s.inner.SetMany(ctx, entries); err != nil {
		return err
	}
	for key, value := range entries {
		_ = s.cache.Set(ctx, s.cacheKey(key), value, s.ttl)
	}
	return nil
}

func (s *store) Delete(ctx context.Context, key string) error {
	if err := s.inner.Delete(ctx, key); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, s.cacheKey(key))
	return nil
}

func (s *store) Keys(ctx context.Context) ([]string, error) {
	return s.inner.Keys(ctx)
}
