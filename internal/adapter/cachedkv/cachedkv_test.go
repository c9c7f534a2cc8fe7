package cachedkv_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/loomhq/loom/internal/adapter/cachedkv"
	"github.com/loomhq/loom/internal/adapter/memkv"
	"github.com/loomhq/loom/internal/port/kvstore/kvstoretest"
)

// memCache is a simple in-memory byte cache for testing the decorator.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
	hits int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	v, ok := m.data[key]
	if ok {
		m.hits++
	}
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestCompliance(t *testing.T) {
	kvstoretest.Run(t, cachedkv.New(memkv.New(), newMemCache(), time.Minute))
}

func TestReadThroughBackfill(t *testing.T) {
	ctx := context.Background()
	inner := memkv.New()
	c := newMemCache()
	ns := cachedkv.New(inner, c, time.Minute).Namespace("n")

	// Seed directly in the backing store so the first read is a cache miss.
	if err := inner.Namespace("n").Set(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}

	for range 3 {
		val, ok, err := ns.Get(ctx, "k")
		if err != nil || !ok || string(val) != "v" {
			t.Fatalf("expected v, got %q ok=%v err=%v", val, ok, err)
		}
	}

	if c.hits != 2 {
		t.Fatalf("expected 2 cache hits after backfill, got %d", c.hits)
	}
}

func TestDeleteInvalidates(t *testing.T) {
	ctx := context.Background()
	ns := cachedkv.New(memkv.New(), newMemCache(), time.Minute).Namespace("n")

	if err := ns.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := ns.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := ns.Get(ctx, "k"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestNamespacesDoNotCollideInCache(t *testing.T) {
	ctx := context.Background()
	db := cachedkv.New(memkv.New(), newMemCache(), time.Minute)

	a := db.Namespace("a")
	b := db.Namespace("b")

	if err := a.Set(ctx, "k", []byte("from-a")); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Fatal("cache served a value across namespaces")
	}
}
