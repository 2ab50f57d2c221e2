// Package postgres provides the Postgres-backed resolution ledger.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/docresolver/internal/document"
)

const defaultTable = "resolutions"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for resolution rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ResolutionStore writes resolution rows into Postgres.
type ResolutionStore struct {
	pool  execCloser
	table string
}

// NewResolutionStore creates a Postgres-backed ResolutionStore using the provided config.
func NewResolutionStore(ctx context.Context, cfg Config) (*ResolutionStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ResolutionStore{pool: pool, table: table}, nil
}

// NewResolutionStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewResolutionStoreWithPool(pool execCloser, table string) (*ResolutionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ResolutionStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		return defaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ResolutionStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the ledger table when it does not exist.
func (s *ResolutionStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	identifier TEXT NOT NULL,
	identifier_kind TEXT NOT NULL,
	source_url TEXT NOT NULL,
	mirror TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	location TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	duration_ms BIGINT NOT NULL,
	resolved_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// StoreResolution inserts a resolution row into Postgres.
func (s *ResolutionStore) StoreResolution(ctx context.Context, record document.ResolutionRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("resolution store is not configured")
	}
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	identifier,
	identifier_kind,
	source_url,
	mirror,
	name,
	location,
	content_hash,
	content_type,
	size_bytes,
	duration_ms,
	resolved_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`, s.table)

	args := []any{
		record.ID,
		record.Identifier,
		string(record.Kind),
		record.SourceURL,
		record.Mirror,
		record.Name,
		record.Location,
		record.Hash,
		record.ContentType,
		record.SizeBytes,
		record.DurationMs,
		record.ResolvedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert resolution: %w", err)
	}
	return nil
}
