package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool is the slice of pgxpool.Pool the store needs (satisfied by
// pgxmock in tests).
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore persists cache entries in Postgres so re-runs within the
// TTL window stay cheap across processes.
type PostgresStore struct {
	pool PgxPool
}

// PostgresStoreConfig controls the connection pool.
type PostgresStoreConfig struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	fingerprint TEXT PRIMARY KEY,
	value       BYTEA NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL
)`

const upsertCacheEntry = `
INSERT INTO cache_entries (fingerprint, value, created_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (fingerprint) DO UPDATE
SET value = EXCLUDED.value, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`

const selectCacheEntry = `
SELECT value, created_at, expires_at FROM cache_entries WHERE fingerprint = $1`

// NewPostgresStore connects to Postgres and ensures the cache table
// exists.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("cache.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse cache dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect cache store: %w", err)
	}
	store := &PostgresStore{pool: pool}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool PgxPool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createCacheTable); err != nil {
		return fmt.Errorf("create cache table: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Get fetches the entry for fingerprint.
func (s *PostgresStore) Get(ctx context.Context, fingerprint string) (Entry, bool, error) {
	entry := Entry{Fingerprint: fingerprint}
	err := s.pool.QueryRow(ctx, selectCacheEntry, fingerprint).
		Scan(&entry.Value, &entry.CreatedAt, &entry.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("select cache entry: %w", err)
	}
	return entry, true, nil
}

// Put upserts entry by fingerprint.
func (s *PostgresStore) Put(ctx context.Context, entry Entry) error {
	if _, err := s.pool.Exec(ctx, upsertCacheEntry,
		entry.Fingerprint, entry.Value, entry.CreatedAt, entry.ExpiresAt,
	); err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}
