// Package natskv implements the kvstore port on a NATS JetStream KeyValue bucket.
package natskv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/loomhq/loom/internal/port/kvstore"
)

// DB wraps one JetStream KeyValue bucket as a namespaced kvstore engine.
// Namespaces and keys are base64url-encoded into JetStream key segments,
// since the engine's key charset is wider than JetStream's.
type DB struct {
	kv jetstream.KeyValue
}

// New creates (or updates) the backing KeyValue bucket and returns the engine.
func New(ctx context.Context, js jetstream.JetStream, bucket string) (*DB, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "loom workspace state",
	})
	if err != nil {
		return nil, fmt.Errorf("natskv bucket %s: %w", bucket, err)
	}
	return &DB{kv: kv}, nil
}

// Namespace returns a store view scoped to the given name.
func (d *DB) Namespace(name string) kvstore.Store {
	return &store{kv: d.kv, prefix: encode(name)}
}

type store struct {
	kv     jetstream.KeyValue
	prefix string
}

func (s *store) jsKey(key string) string {
	return s.prefix + "." + encode(key)
}

func (s *store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := s.kv.Get(ctx, s.jsKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("natskv get %s: %w", key, err)
	}
	return entry.Value(), true, nil
}

func (s *store) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(ctx, s.jsKey(key), value); err != nil {
		return fmt.Errorf("natskv set %s: %w", key, err)
	}
	return nil
}

// SetMany writes entries one by one; JetStream KV has no batch primitive.
func (s *store) SetMany(ctx context.Context, entries map[string][]byte) error {
	for key, value := range entries {
		if err := s.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *store) Delete(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, s.jsKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("natskv delete %s: %w", key, err)
	}
	return nil
}

func (s *store) Keys(ctx context.Context) ([]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("natskv list keys: %w", err)
	}

	var keys []string
	for jsKey := range lister.Keys() {
		ns, enc, ok := strings.Cut(jsKey, ".")
		if !ok || ns != s.prefix {
			continue
		}
		key, err := decode(enc)
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func encode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func decode(s string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
