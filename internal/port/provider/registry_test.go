package provider_test

import (
	"context"
	"slices"
	"testing"

	"github.com/loomhq/loom/internal/domain/document"
	"github.com/loomhq/loom/internal/port/provider"
)

type stubProvider struct {
	id string
}

func (p *stubProvider) ID() string { return p.id }

func (p *stubProvider) Initialize(context.Context, *provider.InitContext) error { return nil }

func (p *stubProvider) LoadInitialData(context.Context) error { return nil }

func (p *stubProvider) Stop(context.Context) error { return nil }

func (p *stubProvider) Erase(context.Context) error { return nil }

func (p *stubProvider) Document() *document.Document { return nil }

func TestRegisterAndResolve(t *testing.T) {
	provider.Register("test-reg", func() (provider.Provider, error) {
		return &stubProvider{id: "test-reg"}, nil
	})

	factory, ok := provider.Resolve("test-reg")
	if !ok {
		t.Fatal("expected factory for test-reg")
	}
	p, err := factory()
	if err != nil {
		t.Fatal(err)
	}
	if p.ID() != "test-reg" {
		t.Fatalf("expected test-reg, got %s", p.ID())
	}
}

func TestResolveUnknown(t *testing.T) {
	if _, ok := provider.Resolve("nonexistent"); ok {
		t.Fatal("expected no factory for unknown id")
	}
}

func TestLastRegistrationWins(t *testing.T) {
	provider.Register("test-dup", func() (provider.Provider, error) {
		return &stubProvider{id: "first"}, nil
	})
	provider.Register("test-dup", func() (provider.Provider, error) {
		return &stubProvider{id: "second"}, nil
	})

	factory, ok := provider.Resolve("test-dup")
	if !ok {
		t.Fatal("expected factory for test-dup")
	}
	p, err := factory()
	if err != nil {
		t.Fatal(err)
	}
	if p.ID() != "second" {
		t.Fatalf("expected last registration to win, got %s", p.ID())
	}
}

func TestRegisterIgnoresEmptyAndNil(t *testing.T) {
	provider.Register("", func() (provider.Provider, error) { return nil, nil })
	provider.Register("test-nil", nil)

	if _, ok := provider.Resolve(""); ok {
		t.Fatal("empty id must not register")
	}
	if _, ok := provider.Resolve("test-nil"); ok {
		t.Fatal("nil factory must not register")
	}
}

func TestAvailableListsRegistered(t *testing.T) {
	provider.Register("test-avail", func() (provider.Provider, error) {
		return &stubProvider{id: "test-avail"}, nil
	})

	if !slices.Contains(provider.Available(), "test-avail") {
		t.Fatal("expected test-avail in Available()")
	}
}
