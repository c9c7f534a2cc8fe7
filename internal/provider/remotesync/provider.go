// Package remotesync implements the NATS-replicated workspace provider. Local
// document updates are persisted to the scoped store and published on the
// workspace's sync subject; inbound updates from other replicas are applied
// to the document. The publish path is protected by a circuit breaker.
package remotesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loomhq/loom/internal/domain/document"
	"github.com/loomhq/loom/internal/port/kvstore"
	"github.com/loomhq/loom/internal/port/messagequeue"
	"github.com/loomhq/loom/internal/port/provider"
	"github.com/loomhq/loom/internal/resilience"
)

const providerID = "remote"

const docKeyPrefix = "doc:"

// Breaker defaults for the publish path, used when the shared API bundle
// carries no settings. The underlying queue owns timeouts.
const (
	defaultBreakerMaxFailures = 5
	defaultBreakerTimeout     = 30 * time.Second
)

func init() {
	provider.Register(providerID, func() (provider.Provider, error) {
		return New(), nil
	})
}

// envelope is the wire format for replicated updates. Origin identifies the
// publishing replica so it can ignore its own messages.
type envelope struct {
	Origin string          `json:"origin"`
	Update document.Update `json:"update"`
}

// Provider is the remote-sync workspace backend.
type Provider struct {
	log      *slog.Logger
	settings kvstore.Store
	doc      *document.Document
	queue    messagequeue.Queue
	breaker  *resilience.Breaker

	origin      string
	subject     string
	unsubscribe func()
}

// New creates an uninitialized remote provider. The publish breaker is built
// during Initialize, from the settings carried on the shared API bundle.
func New() *Provider {
	return &Provider{origin: uuid.NewString()}
}

// ID returns "remote".
func (p *Provider) ID() string { return providerID }

// Initialize establishes the sync session: it subscribes to the workspace's
// update subject and starts replicating local document updates.
func (p *Provider) Initialize(ctx context.Context, ic *provider.InitContext) error {
	if ic.API == nil || ic.API.Queue == nil {
		return errors.New("remote provider requires a message queue")
	}

	p.log = ic.Logger
	p.settings = ic.Settings
	p.doc = ic.Document
	p.queue = ic.API.Queue
	p.breaker = newPublishBreaker(ic.API)
	p.subject = fmt.Sprintf(messagequeue.SubjectWorkspaceUpdates, ic.Workspace)

	cancel, err := p.queue.Subscribe(ctx, p.subject, p.handleRemote)
	if err != nil {
		return fmt.Errorf("remote subscribe %s: %w", p.subject, err)
	}
	p.unsubscribe = cancel

	p.doc.OnLocalUpdate(p.replicate)
	if ic.Debug {
		p.log.Debug("remote provider initialized", "subject", p.subject, "origin", p.origin)
	}
	return nil
}

// LoadInitialData reads the locally persisted replica back into the document.
// Updates missed while offline arrive through the JetStream subscription.
func (p *Provider) LoadInitialData(ctx context.Context) error {
	keys, err := p.settings.Keys(ctx)
	if err != nil {
		return fmt.Errorf("remote load: %w", err)
	}

	for _, key := range keys {
		docKey, ok := strings.CutPrefix(key, docKeyPrefix)
		if !ok {
			continue
		}
		value, found, err := p.settings.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("remote load %s: %w", key, err)
		}
		if !found {
			continue
		}
		p.doc.Apply(document.Update{Workspace: p.doc.ID(), Key: docKey, Value: string(value)})
	}

	p.log.Info("replica loaded", "entries", p.doc.Len())
	return nil
}

// replicate persists a locally originated update and publishes it to the
// sync subject. Publishing goes through the circuit breaker; a rejected or
// failed publish is logged, never surfaced to the editing caller.
func (p *Provider) replicate(u document.Update) {
	ctx := context.Background()
	p.persist(ctx, u)

	data, err := json.Marshal(envelope{Origin: p.origin, Update: u})
	if err != nil {
		p.log.Error("marshal sync update failed", "key", u.Key, "error", err)
		return
	}

	err = p.breaker.Execute(func() error {
		return p.queue.Publish(ctx, p.subject, data)
	})
	if err != nil {
		p.log.Warn("sync publish failed", "key", u.Key, "rev", u.Rev, "error", err)
	}
}

// handleRemote applies an inbound update from another replica.
func (p *Provider) handleRemote(ctx context.Context, _ string, data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("remote decode: %w", err)
	}
	if env.Origin == p.origin {
		return nil // our own message echoed back
	}

	p.doc.Apply(env.Update)
	p.persist(ctx, env.Update)
	return nil
}

func (p *Provider) persist(ctx context.Context, u document.Update) {
	var err error
	if u.Delete {
		err = p.settings.Delete(ctx, docKeyPrefix+u.Key)
	} else {
		err = p.settings.Set(ctx, docKeyPrefix+u.Key, []byte(u.Value))
	}
	if err != nil {
		p.log.Error("persist replica update failed", "key", u.Key, "error", err)
	}
}

// Stop ends the sync session but preserves the persisted replica.
func (p *Provider) Stop(context.Context) error {
	p.doc.OnLocalUpdate(nil)
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
	p.log.Info("remote provider stopped")
	return nil
}

// Erase ends the sync session, deletes the local replica and announces the
// erasure so other replicas can react.
func (p *Provider) Erase(ctx context.Context) error {
	p.doc.OnLocalUpdate(nil)
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}

	keys, err := p.settings.Keys(ctx)
	if err != nil {
		return fmt.Errorf("remote erase: %w", err)
	}
	for _, key := range keys {
		if err := p.settings.Delete(ctx, key); err != nil {
			return fmt.Errorf("remote erase %s: %w", key, err)
		}
	}

	subject := fmt.Sprintf(messagequeue.SubjectWorkspaceErased, p.doc.ID())
	if err := p.queue.Publish(ctx, subject, []byte(p.origin)); err != nil {
		p.log.Warn("erase announcement failed", "error", err)
	}

	p.log.Info("remote provider erased", "keys", len(keys))
	return nil
}

// Document returns the owned document handle.
func (p *Provider) Document() *document.Document { return p.doc }

// newPublishBreaker builds the publish-path breaker from the shared API
// bundle, falling back to the provider defaults for unset fields.
func newPublishBreaker(api *provider.API) *resilience.Breaker {
	maxFailures := api.BreakerMaxFailures
	if maxFailures <= 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := api.BreakerTimeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}
	return resilience.NewBreaker(maxFailures, timeout)
}
