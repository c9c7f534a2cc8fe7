// Package service contains the workspace lifecycle manager: provider binding
// resolution, single-flight initialization caching and the stop/erase
// teardown protocol.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	loomotel "github.com/loomhq/loom/internal/adapter/otel"
	"github.com/loomhq/loom/internal/domain"
	"github.com/loomhq/loom/internal/domain/document"
	"github.com/loomhq/loom/internal/domain/workspace"
	"github.com/loomhq/loom/internal/port/broadcast"
	"github.com/loomhq/loom/internal/port/kvstore"
	"github.com/loomhq/loom/internal/port/messagequeue"
	"github.com/loomhq/loom/internal/port/provider"
)

// Event types pushed to connected clients on lifecycle transitions.
const (
	EventWorkspaceOpened  = "workspace.opened"
	EventWorkspaceStopped = "workspace.stopped"
	EventWorkspaceErased  = "workspace.erased"
)

// Metrics receives lifecycle measurements. Implemented by the otel adapter;
// a nil Metrics disables instrumentation.
type Metrics interface {
	WorkspaceOpened(ctx context.Context, providerID string, dur time.Duration)
	WorkspaceOpenFailed(ctx context.Context)
	WorkspaceStopped(ctx context.Context)
	WorkspaceErased(ctx context.Context)
}

// Workspace is the live handle returned to callers after successful
// provider setup. It owns its provider instance.
type Workspace struct {
	ID       string
	Provider provider.Provider
}

// Document returns the workspace's document handle.
func (w *Workspace) Document() *document.Document {
	return w.Provider.Document()
}

// flight is the promise cell for one workspace id: at most one exists per id,
// installed before any suspension point so concurrent callers share the same
// initialization.
type flight struct {
	done chan struct{}
	ws   *Workspace
	err  error
}

// ManagerOptions carries the optional manager collaborators.
type ManagerOptions struct {
	Events           broadcast.Broadcaster
	Metrics          Metrics
	Debug            bool
	EraseParallelism int64

	// BreakerMaxFailures and BreakerTimeout are handed to providers through
	// the shared API bundle. Zero values select provider defaults.
	BreakerMaxFailures int
	BreakerTimeout     time.Duration
}

// Manager resolves workspace ids to initialized providers and caches the
// live handles. Safe for concurrent use.
type Manager struct {
	db     kvstore.DB
	system kvstore.Store
	api    *provider.API
	log    *slog.Logger

	events           broadcast.Broadcaster
	metrics          Metrics
	debug            bool
	eraseParallelism int64

	mu      sync.Mutex
	flights map[string]*flight
}

// NewManager creates a workspace manager over the given key-value engine and
// message queue. queue may be nil when the process runs without a broker;
// providers requiring one then fail their initialization.
func NewManager(db kvstore.DB, queue messagequeue.Queue, log *slog.Logger, opts ManagerOptions) *Manager {
	if opts.EraseParallelism <= 0 {
		opts.EraseParallelism = 4
	}
	return &Manager{
		db:     db,
		system: db.Namespace(workspace.SystemNamespace),
		api: &provider.API{
			Queue:              queue,
			DB:                 db,
			BreakerMaxFailures: opts.BreakerMaxFailures,
			BreakerTimeout:     opts.BreakerTimeout,
		},
		log:              log,
		events:           opts.Events,
		metrics:          opts.Metrics,
		debug:            opts.Debug,
		eraseParallelism: opts.EraseParallelism,
		flights:          make(map[string]*flight),
	}
}

// API returns the shared handle bundle passed into every provider's
// initialize context.
func (m *Manager) API() *provider.API { return m.api }

// GetOrCreate resolves id to a live workspace, initializing it on first use.
// An empty id returns (nil, nil) so callers with "no workspace selected"
// states need no special casing. Concurrent calls for the same id share one
// initialization and observe the same result or the same failure; a failed
// initialization is evicted so a later call can retry.
func (m *Manager) GetOrCreate(ctx context.Context, id string, opts workspace.OpenOptions) (*Workspace, error) {
	if id == "" {
		return nil, nil
	}

	m.mu.Lock()
	if f, ok := m.flights[id]; ok {
		m.mu.Unlock()
		return m.await(ctx, f)
	}
	f := &flight{done: make(chan struct{})}
	m.flights[id] = f
	m.mu.Unlock()

	// The initialization outlives the installing caller: waiters joined the
	// same flight, so one client disconnect must not cancel it for everyone.
	ws, err := m.initialize(context.WithoutCancel(ctx), id, opts)
	f.ws, f.err = ws, err
	if err != nil {
		// Evict before settling the flight so a caller arriving between the
		// two steps starts a fresh attempt instead of seeing the failure.
		m.evict(id, f)
		close(f.done)
		return nil, err
	}
	close(f.done)
	return ws, nil
}

// await blocks until f settles. The waiting caller may bail out on its own
// context; the initialization itself keeps running.
func (m *Manager) await(ctx context.Context, f *flight) (*Workspace, error) {
	select {
	case <-f.done:
		return f.ws, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// evict removes f from the cache unless another flight has replaced it.
func (m *Manager) evict(id string, f *flight) {
	m.mu.Lock()
	if m.flights[id] == f {
		delete(m.flights, id)
	}
	m.mu.Unlock()
}

// initialize runs the resolution sequence for a cache miss: persist config,
// resolve the provider binding, then bring the provider up.
func (m *Manager) initialize(ctx context.Context, id string, opts workspace.OpenOptions) (*Workspace, error) {
	start := time.Now()

	if err := m.SetConfig(ctx, id, opts.Config); err != nil {
		m.openFailed(ctx)
		return nil, err
	}

	providerID, factory, err := m.resolveBinding(ctx, id, opts.Provider)
	if err != nil {
		m.openFailed(ctx)
		return nil, err
	}

	ctx, span := loomotel.StartOpenSpan(ctx, id, providerID)
	defer span.End()

	p, err := factory()
	if err != nil {
		m.openFailed(ctx)
		return nil, fmt.Errorf("construct provider %s: %w", providerID, err)
	}

	ic := &provider.InitContext{
		Workspace: id,
		API:       m.api,
		Settings:  m.db.Namespace(workspace.SettingsNamespace(id)),
		Document:  document.New(id),
		Logger:    m.log.With("workspace", id, "provider", providerID),
		Debug:     m.debug,
	}

	if err := p.Initialize(ctx, ic); err != nil {
		m.openFailed(ctx)
		return nil, fmt.Errorf("initialize workspace %s: %w", id, err)
	}
	if err := p.LoadInitialData(ctx); err != nil {
		m.openFailed(ctx)
		return nil, fmt.Errorf("load workspace %s: %w", id, err)
	}

	if m.metrics != nil {
		m.metrics.WorkspaceOpened(ctx, providerID, time.Since(start))
	}
	m.broadcast(ctx, EventWorkspaceOpened, workspace.Binding{Workspace: id, Provider: providerID})
	m.log.Info("workspace opened", "workspace", id, "provider", providerID, "took", time.Since(start))

	return &Workspace{ID: id, Provider: p}, nil
}

// resolveBinding decides which provider manages id. An explicit hint naming
// a registered provider always wins and overwrites the persisted binding;
// otherwise the persisted binding is used. When neither yields a registered
// provider the call fails with domain.ErrProviderNotFound.
func (m *Manager) resolveBinding(ctx context.Context, id, hint string) (string, provider.Factory, error) {
	if hint != "" {
		if factory, ok := provider.Resolve(hint); ok {
			if err := m.system.Set(ctx, workspace.BindingKey(id), []byte(hint)); err != nil {
				return "", nil, fmt.Errorf("persist binding %s: %w", id, err)
			}
			return hint, factory, nil
		}
		m.log.Warn("ignoring unknown provider hint", "workspace", id, "hint", hint)
	}

	value, ok, err := m.system.Get(ctx, workspace.BindingKey(id))
	if err != nil {
		return "", nil, fmt.Errorf("read binding %s: %w", id, err)
	}
	if ok {
		bound := string(value)
		if factory, registered := provider.Resolve(bound); registered {
			return bound, factory, nil
		}
		return "", nil, fmt.Errorf("workspace %s bound to unregistered provider %q: %w",
			id, bound, domain.ErrProviderNotFound)
	}

	return "", nil, fmt.Errorf("workspace %s: %w", id, domain.ErrProviderNotFound)
}

// ListWorkspaces returns the ids of all workspaces with a persisted provider
// binding, in the store's native key order.
func (m *Manager) ListWorkspaces(ctx context.Context) ([]string, error) {
	keys, err := m.system.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		if id, ok := workspace.IDFromBindingKey(key); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// StopWorkspace removes id from the cache so new GetOrCreate calls start
// fresh, waits for any in-flight initialization to settle, then stops the
// provider. Stopping an unknown or failed workspace is a no-op.
func (m *Manager) StopWorkspace(ctx context.Context, id string) error {
	m.mu.Lock()
	f := m.flights[id]
	delete(m.flights, id)
	m.mu.Unlock()

	if f == nil {
		return nil
	}

	<-f.done
	if f.err != nil {
		return nil
	}

	if err := f.ws.Provider.Stop(ctx); err != nil {
		return fmt.Errorf("stop workspace %s: %w", id, err)
	}

	if m.metrics != nil {
		m.metrics.WorkspaceStopped(ctx)
	}
	m.broadcast(ctx, EventWorkspaceStopped, workspace.Binding{Workspace: id})
	m.log.Info("workspace stopped", "workspace", id)
	return nil
}

// EraseWorkspace deletes the persisted provider binding and, when the
// workspace is live, erases the provider's persisted data. Errors from the
// provider's erase propagate to the caller.
func (m *Manager) EraseWorkspace(ctx context.Context, id string) error {
	ctx, span := loomotel.StartEraseSpan(ctx, id)
	defer span.End()

	if err := m.system.Delete(ctx, workspace.BindingKey(id)); err != nil {
		return fmt.Errorf("delete binding %s: %w", id, err)
	}

	m.mu.Lock()
	f := m.flights[id]
	delete(m.flights, id)
	m.mu.Unlock()

	if f != nil {
		<-f.done
		// The flight may have re-persisted the binding after the delete
		// above (resolution runs concurrently with erase), so clear it
		// again now that the flight has settled.
		if err := m.system.Delete(ctx, workspace.BindingKey(id)); err != nil {
			return fmt.Errorf("delete binding %s: %w", id, err)
		}
		if f.err == nil {
			if err := f.ws.Provider.Erase(ctx); err != nil {
				return fmt.Errorf("erase workspace %s: %w", id, err)
			}
		}
	}

	if m.metrics != nil {
		m.metrics.WorkspaceErased(ctx)
	}
	m.broadcast(ctx, EventWorkspaceErased, workspace.Binding{Workspace: id})
	m.log.Info("workspace erased", "workspace", id)
	return nil
}

// EraseAllWorkspaces erases every bound workspace with bounded concurrency.
// Per-workspace failures are collected, not fatal to the rest.
func (m *Manager) EraseAllWorkspaces(ctx context.Context) error {
	ids, err := m.ListWorkspaces(ctx)
	if err != nil {
		return err
	}

	sem := semaphore.NewWeighted(m.eraseParallelism)
	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("erase %s: %w", id, err))
				errMu.Unlock()
				return
			}
			defer sem.Release(1)

			if err := m.EraseWorkspace(ctx, id); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// StopAll stops every live workspace. Used during graceful shutdown.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.flights))
	for id := range m.flights {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := m.StopWorkspace(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetConfig writes all entries into the workspace's settings namespace as a
// single batch. An empty mapping is a no-op, avoiding needless store writes.
func (m *Manager) SetConfig(ctx context.Context, id string, cfg workspace.Config) error {
	if id == "" || len(cfg) == 0 {
		return nil
	}

	entries := make(map[string][]byte, len(cfg))
	for key, value := range cfg {
		entries[key] = []byte(value)
	}
	if err := m.db.Namespace(workspace.SettingsNamespace(id)).SetMany(ctx, entries); err != nil {
		return fmt.Errorf("write config %s: %w", id, err)
	}
	return nil
}

func (m *Manager) openFailed(ctx context.Context) {
	if m.metrics != nil {
		m.metrics.WorkspaceOpenFailed(ctx)
	}
}

func (m *Manager) broadcast(ctx context.Context, eventType string, payload any) {
	if m.events != nil {
		m.events.BroadcastEvent(ctx, eventType, payload)
	}
}
