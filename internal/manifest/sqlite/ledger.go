// Package sqlite stores manifest entries in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/cc-text-pipeline/internal/manifest"
)

const schema = `
CREATE TABLE IF NOT EXISTS flushed_objects (
	object_key   TEXT PRIMARY KEY,
	uri          TEXT NOT NULL,
	documents    INTEGER NOT NULL,
	bytes        INTEGER NOT NULL,
	source_files TEXT NOT NULL,
	created_at   TEXT NOT NULL
)`

// Ledger writes manifest entries to SQLite.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("manifest.sqlite.path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Workers share one process; a single connection serializes writes and
	// keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create manifest table: %w", err)
	}
	return &Ledger{db: db}, nil
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
	encoded, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshal source files: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
INSERT INTO flushed_objects (object_key, uri, documents, bytes, source_files, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (object_key) DO NOTHING`,
		e.ObjectKey, e.URI, e.Documents, e.Bytes, string(encoded), e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert manifest entry: %w", err)
	}
	return nil
}

// List returns all entries ordered by creation time.
func (l *Ledger) List(ctx context.Context) ([]manifest.Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT object_key, uri, documents, bytes, source_files, created_at
FROM flushed_objects ORDER BY created_at, object_key`)
	if err != nil {
		return nil, fmt.Errorf("list manifest entries: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []manifest.Entry
	for rows.Next() {
		var (
			e       manifest.Entry
			sources string
			created string
		)
		if err := rows.Scan(&e.ObjectKey, &e.URI, &e.Documents, &e.Bytes, &sources, &created); err != nil {
			return nil, fmt.Errorf("scan manifest entry: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &e.SourceFiles); err != nil {
			return nil, fmt.Errorf("decode source files: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manifest entries: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
