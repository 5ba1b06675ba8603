// Package manifest records every output object produced by the workers so
// downstream jobs can list them without scanning the bucket.
package manifest

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Entry describes one flushed output object.
type Entry struct {
	ObjectKey   string
	URI         string
	Documents   int
	Bytes       int64
	SourceFiles []string
	CreatedAt   time.Time
}

// Ledger persists entries. Recording the same ObjectKey twice is a no-op.
type Ledger interface {
	Record(ctx context.Context, e Entry) error
	Close() error
}

// Noop drops every entry.
type Noop struct{}

// Record implements Ledger.
func (Noop) Record(context.Context, Entry) error { return nil }

// Close implements Ledger.
func (Noop) Close() error { return nil }

// Memory keeps entries in process, mostly for tests.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	seen    map[string]struct{}
}

// NewMemory returns an empty Memory ledger.
func NewMemory() *Memory {
	return &Memory{seen: make(map[string]struct{})}
}

// Record implements Ledger.
func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[e.ObjectKey]; ok {
		return nil
	}
	m.seen[e.ObjectKey] = struct{}{}
	e.SourceFiles = slices.Clone(e.SourceFiles)
	m.entries = append(m.entries, e)
	return nil
}

// Entries returns a copy of the recorded entries in insertion order.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

// Close implements Ledger.
func (m *Memory) Close() error { return nil }

// SourceFiles returns the distinct, sorted WARC filenames in files.
func SourceFiles(files []string) []string {
	out := slices.Clone(files)
	slices.Sort(out)
	return slices.Compact(out)
}
