// Package localstore implements the local-only workspace provider. Document
// entries are persisted in the workspace's scoped key-value namespace and
// never leave the process.
package localstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loomhq/loom/internal/domain/document"
	"github.com/loomhq/loom/internal/port/kvstore"
	"github.com/loomhq/loom/internal/port/provider"
)

const providerID = "local"

// docKeyPrefix separates document entries from other workspace settings
// sharing the same namespace.
const docKeyPrefix = "doc:"

func init() {
	provider.Register(providerID, func() (provider.Provider, error) {
		return New(), nil
	})
}

// Provider is the local-only workspace backend.
type Provider struct {
	log      *slog.Logger
	settings kvstore.Store
	doc      *document.Document
}

// New creates an uninitialized local provider.
func New() *Provider {
	return &Provider{}
}

// ID returns "local".
func (p *Provider) ID() string { return providerID }

// Initialize wires the provider to its context and starts persisting local
// document updates into the scoped store.
func (p *Provider) Initialize(_ context.Context, ic *provider.InitContext) error {
	p.log = ic.Logger
	p.settings = ic.Settings
	p.doc = ic.Document

	p.doc.OnLocalUpdate(p.persist)
	if ic.Debug {
		p.log.Debug("local provider initialized")
	}
	return nil
}

// LoadInitialData reads persisted document entries back into the document.
func (p *Provider) LoadInitialData(ctx context.Context) error {
	keys, err := p.settings.Keys(ctx)
	if err != nil {
		return fmt.Errorf("local load: %w", err)
	}

	for _, key := range keys {
		docKey, ok := strings.CutPrefix(key, docKeyPrefix)
		if !ok {
			continue
		}
		value, found, err := p.settings.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("local load %s: %w", key, err)
		}
		if !found {
			continue
		}
		// Apply, not Set: loading must not echo back into persistence.
		p.doc.Apply(document.Update{Workspace: p.doc.ID(), Key: docKey, Value: string(value)})
	}

	p.log.Info("local data loaded", "entries", p.doc.Len())
	return nil
}

// persist writes one locally originated document update to the scoped store.
func (p *Provider) persist(u document.Update) {
	ctx := context.Background()
	var err error
	if u.Delete {
		err = p.settings.Delete(ctx, docKeyPrefix+u.Key)
	} else {
		err = p.settings.Set(ctx, docKeyPrefix+u.Key, []byte(u.Value))
	}
	if err != nil {
		p.log.Error("persist document update failed", "key", u.Key, "error", err)
	}
}

// Stop detaches from the document. Persisted data is preserved.
func (p *Provider) Stop(context.Context) error {
	p.doc.OnLocalUpdate(nil)
	p.log.Info("local provider stopped")
	return nil
}

// Erase deletes all persisted document entries for this workspace.
func (p *Provider) Erase(ctx context.Context) error {
	p.doc.OnLocalUpdate(nil)

	keys, err := p.settings.Keys(ctx)
	if err != nil {
		return fmt.Errorf("local erase: %w", err)
	}
	for _, key := range keys {
		if err := p.settings.Delete(ctx, key); err != nil {
			return fmt.Errorf("local erase %s: %w", key, err)
		}
	}

	p.log.Info("local provider erased", "keys", len(keys))
	return nil
}

// Document returns the owned document handle.
func (p *Provider) Document() *document.Document { return p.doc }
