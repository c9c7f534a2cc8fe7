package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomhq/loom/internal/port/kvstore"
)

// DB implements kvstore.DB on a single kv table keyed by (namespace, key).
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates a kvstore engine backed by the given connection pool.
func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

// Namespace returns a store view scoped to the given namespace.
func (d *DB) Namespace(name string) kvstore.Store {
	return &store{pool: d.pool, ns: name}
}

type store struct {
	pool *pgxpool.Pool
	ns   string
}

func (s *store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM kv WHERE namespace = $1 AND key = $2`,
		s.ns, key).Scan(&value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv get %s/%s: %w", s.ns, key, err)
	}
	return value, true, nil
}

func (s *store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv (namespace, key, value, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		s.ns, key, value)
	if err != nil {
		return fmt.Errorf("kv set %s/%s: %w", s.ns, key, err)
	}
	return nil
}

func (s *store) SetMany(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for key, value := range entries {
		batch.Queue(
			`INSERT INTO kv (namespace, key, value, updated_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			s.ns, key, value)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("kv set many %s: %w", s.ns, err)
		}
	}
	return nil
}

func (s *store) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM kv WHERE namespace = $1 AND key = $2`, s.ns, key)
	if err != nil {
		return fmt.Errorf("kv delete %s/%s: %w", s.ns, key, err)
	}
	return nil
}

func (s *store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM kv WHERE namespace = $1`, s.ns)
	if err != nil {
		return nil, fmt.Errorf("kv keys %s: %w", s.ns, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("kv scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
