package ristretto_test

import (
	"testing"
	"time"

	"github.com/loomhq/loom/internal/adapter/ristretto"
)

func newCache(t *testing.T) *ristretto.Cache {
	t.Helper()
	c, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestSetAndGet(t *testing.T) {
	c := newCache(t)
	ctx := t.Context()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	val, found, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected found after Set")
	}
	if string(val) != "v" {
		t.Fatalf("expected v, got %s", val)
	}
}

func TestGetMiss(t *testing.T) {
	c := newCache(t)

	_, found, err := c.Get(t.Context(), "nonexistent")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected miss for nonexistent key")
	}
}

func TestDelete(t *testing.T) {
	c := newCache(t)
	ctx := t.Context()

	_ = c.Set(ctx, "del", []byte("v"), time.Minute)
	c.Wait()

	if err := c.Delete(ctx, "del"); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	if _, found, _ := c.Get(ctx, "del"); found {
		t.Fatal("expected miss after Delete")
	}
}

func TestDeleteNonexistent(t *testing.T) {
	c := newCache(t)

	if err := c.Delete(t.Context(), "never-existed"); err != nil {
		t.Fatal("Delete of nonexistent key should not error")
	}
}

func TestOverwrite(t *testing.T) {
	c := newCache(t)
	ctx := t.Context()

	_ = c.Set(ctx, "ow", []byte("v1"), time.Minute)
	c.Wait()
	_ = c.Set(ctx, "ow", []byte("v2"), time.Minute)
	c.Wait()

	val, found, err := c.Get(ctx, "ow")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected found after overwrite")
	}
	if string(val) != "v2" {
		t.Fatalf("expected v2 after overwrite, got %s", val)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := newCache(t)
	ctx := t.Context()

	_ = c.Set(ctx, "short", []byte("v"), 20*time.Millisecond)
	c.Wait()

	time.Sleep(50 * time.Millisecond)

	if _, found, _ := c.Get(ctx, "short"); found {
		t.Fatal("expected entry to expire")
	}
}
