// Package kvstoretest provides a compliance test suite for kvstore.DB
// implementations. Adapter tests call Run against a fresh instance.
package kvstoretest

import (
	"context"
	"slices"
	"testing"

	"github.com/loomhq/loom/internal/port/kvstore"
)

// Run exercises the kvstore port contract against db.
func Run(t *testing.T, db kvstore.DB) {
	t.Helper()
	ctx := context.Background()
	ns := db.Namespace("compliance")

	t.Run("GetMiss", func(t *testing.T) {
		_, ok, err := ns.Get(ctx, "missing")
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("expected miss for unset key")
		}
	})

	t.Run("SetAndGet", func(t *testing.T) {
		if err := ns.Set(ctx, "k1", []byte("v1")); err != nil {
			t.Fatal(err)
		}
		val, ok, err := ns.Get(ctx, "k1")
		if err != nil {
			t.Fatal(err)
		}
		if !ok || string(val) != "v1" {
			t.Fatalf("expected v1, got %q ok=%v", val, ok)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := ns.Set(ctx, "k1", []byte("v2")); err != nil {
			t.Fatal(err)
		}
		val, _, err := ns.Get(ctx, "k1")
		if err != nil {
			t.Fatal(err)
		}
		if string(val) != "v2" {
			t.Fatalf("expected v2 after overwrite, got %q", val)
		}
	})

	t.Run("SetMany", func(t *testing.T) {
		err := ns.SetMany(ctx, map[string][]byte{
			"batch-a": []byte("1"),
			"batch-b": []byte("2"),
		})
		if err != nil {
			t.Fatal(err)
		}
		for _, key := range []string{"batch-a", "batch-b"} {
			if _, ok, _ := ns.Get(ctx, key); !ok {
				t.Fatalf("expected %s present after SetMany", key)
			}
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := ns.Delete(ctx, "k1"); err != nil {
			t.Fatal(err)
		}
		if _, ok, _ := ns.Get(ctx, "k1"); ok {
			t.Fatal("expected miss after Delete")
		}
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		if err := ns.Delete(ctx, "never-existed"); err != nil {
			t.Fatal("deleting a missing key must not error")
		}
	})

	t.Run("Keys", func(t *testing.T) {
		keys, err := ns.Keys(ctx)
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{"batch-a", "batch-b"} {
			if !slices.Contains(keys, want) {
				t.Fatalf("expected key %s in %v", want, keys)
			}
		}
	})

	t.Run("NamespaceIsolation", func(t *testing.T) {
		other := db.Namespace("compliance-other")
		if err := other.Set(ctx, "iso", []byte("x")); err != nil {
			t.Fatal(err)
		}
		if _, ok, _ := ns.Get(ctx, "iso"); ok {
			t.Fatal("key from another namespace leaked")
		}
		keys, err := ns.Keys(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if slices.Contains(keys, "iso") {
			t.Fatal("Keys leaked entries from another namespace")
		}
	})

	t.Run("SameNamespaceSharesData", func(t *testing.T) {
		again := db.Namespace("compliance")
		if _, ok, _ := again.Get(ctx, "batch-a"); !ok {
			t.Fatal("second view of the same namespace must see existing data")
		}
	})
}
