// Package provider defines the workspace provider port (interface) and the
// factory registry through which provider variants plug in.
package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/loomhq/loom/internal/domain/document"
	"github.com/loomhq/loom/internal/port/kvstore"
	"github.com/loomhq/loom/internal/port/messagequeue"
)

// API is the shared handle bundle passed to every provider's Initialize.
// It is read-only from the provider's point of view.
type API struct {
	// Queue is the message queue used by sync-capable providers. May be nil
	// when the process runs without a broker.
	Queue messagequeue.Queue

	// DB is the key-value engine. Providers needing state outside their
	// scoped settings view derive their own namespace from it.
	DB kvstore.DB

	// BreakerMaxFailures and BreakerTimeout configure the circuit breaker
	// of providers that guard outbound calls. Zero values select the
	// provider's own defaults.
	BreakerMaxFailures int
	BreakerTimeout     time.Duration
}

// InitContext bundles everything a provider needs to bring one workspace up.
type InitContext struct {
	// Workspace is the id of the workspace being initialized.
	Workspace string

	// API holds the shared handles (queue, key-value engine).
	API *API

	// Settings is the key-value view scoped to this workspace. The caller's
	// initial config has already been written here.
	Settings kvstore.Store

	// Document is the handle the provider populates and keeps current.
	Document *document.Document

	// Logger is scoped to this workspace and provider.
	Logger *slog.Logger

	// Debug enables verbose provider diagnostics.
	Debug bool
}

// Provider is the port interface a workspace backend must satisfy.
// The manager guarantees the call order Initialize, LoadInitialData, then
// eventually exactly one of Stop or Erase, each at most once per instance.
type Provider interface {
	// ID returns the stable registry identifier (e.g. "local", "remote").
	ID() string

	// Initialize performs the variant's connection and setup steps.
	Initialize(ctx context.Context, ic *InitContext) error

	// LoadInitialData populates the document with existing persisted or
	// remote content. Called once, immediately after Initialize succeeds.
	LoadInitialData(ctx context.Context) error

	// Stop releases live resources but preserves persisted data.
	Stop(ctx context.Context) error

	// Erase irreversibly deletes the workspace's persisted data. The
	// instance is unusable afterwards.
	Erase(ctx context.Context) error

	// Document returns the owned document handle. Undefined before
	// Initialize has completed.
	Document() *document.Document
}

// Factory constructs a fresh, uninitialized provider instance.
type Factory func() (Provider, error)
