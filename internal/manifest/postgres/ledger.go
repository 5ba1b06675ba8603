// Package postgres stores manifest entries in a Postgres table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/cc-text-pipeline/internal/manifest"
)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "flushed_objects"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for manifest rows.
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

// Ledger writes manifest entries into Postgres.
type Ledger struct {
	pool  execCloser
	table string
}

// New connects to Postgres and ensures the manifest table exists.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("manifest.postgres.dsn is required")
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
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	l, err := NewWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := l.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

// NewWithPool constructs a ledger from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table string) (*Ledger, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Ledger{pool: pool, table: table}, nil
}

// EnsureSchema creates the manifest table when missing.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	object_key   TEXT PRIMARY KEY,
	uri          TEXT NOT NULL,
	documents    INTEGER NOT NULL,
	bytes        BIGINT NOT NULL,
	source_files TEXT[] NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
)`, l.table)
	if _, err := l.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create manifest table: %w", err)
	}
	return nil
}

// Record inserts the entry unless its object key is already present.
func (l *Ledger) Record(ctx context.Context, e manifest.Entry) error {
	if e.ObjectKey == "" {
		return fmt.Errorf("object key is required")
	}
	sources := e.SourceFiles
	if sources == nil {
		sources = []string{}
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	object_key,
	uri,
	documents,
	bytes,
	source_files,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6
) ON CONFLICT (object_key) DO NOTHING`, l.table)

	if _, err := l.pool.Exec(ctx, query, e.ObjectKey, e.URI, e.Documents, e.Bytes, sources, e.CreatedAt); err != nil {
		return fmt.Errorf("insert manifest entry: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (l *Ledger) Close() error {
	if l == nil || l.pool == nil {
		return nil
	}
	l.pool.Close()
	return nil
}
