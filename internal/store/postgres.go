package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a [StateStore] backed by a single keyed JSONB table.
// It exists so a shared deployment can keep learner state server-side instead
// of in per-machine files.
//
// All operations are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ StateStore = (*PostgresStore)(nil)

const stateSchema = `
CREATE TABLE IF NOT EXISTS lingua_state (
    key        TEXT PRIMARY KEY,
    value      JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// NewPostgresStore connects to the database at dsn, verifies connectivity,
// and ensures the state table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, stateSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Load fetches the JSON document for key.
func (p *PostgresStore) Load(key string) ([]byte, error) {
	var value []byte
	err := p.pool.QueryRow(context.Background(),
		`SELECT value FROM lingua_state WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: load %q: %w", key, err)
	}
	return value, nil
}

// Save upserts the JSON document for key.
func (p *PostgresStore) Save(key string, value []byte) error {
	_, err := p.pool.Exec(context.Background(),
		`INSERT INTO lingua_state (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("postgres store: save %q: %w", key, err)
	}
	return nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}
