// Package index reads the cluster index that maps SURT ranges to CDX shard byte ranges.
package index

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
)

const minFields = 4

// Locator lazily yields index entries from a tab-separated cluster index.
// It is single pass and not restartable.
type Locator struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
	yielded int
	limit   int
	err     error
}

// NewLocator reads rows from r.
func NewLocator(r io.Reader) *Locator {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	l := &Locator{scanner: sc}
	if c, ok := r.(io.Closer); ok {
		l.closer = c
	}
	return l
}

// Open opens the index file at path.
func Open(path string) (*Locator, error) {
	f, err := os.Open(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	return NewLocator(f), nil
}

// Limit caps the number of entries yielded; n <= 0 means no cap.
func (l *Locator) Limit(n int) *Locator {
	l.limit = n
	return l
}

// Next returns the next entry, io.EOF at the end of input, or a
// *pipeline.MalformedIndexRowError that ends the scan.
func (l *Locator) Next() (pipeline.IndexEntry, error) {
	if l.err != nil {
		return pipeline.IndexEntry{}, l.err
	}
	if l.limit > 0 && l.yielded >= l.limit {
		l.err = io.EOF
		return pipeline.IndexEntry{}, l.err
	}
	for l.scanner.Scan() {
		l.line++
		raw := strings.TrimRight(l.scanner.Text(), "\r")
		if strings.TrimSpace(raw) == "" {
			continue
		}
		entry, err := parseRow(raw, l.line)
		if err != nil {
			l.err = err
			return pipeline.IndexEntry{}, err
		}
		l.yielded++
		return entry, nil
	}
	if err := l.scanner.Err(); err != nil {
		l.err = fmt.Errorf("scan index: %w", err)
		return pipeline.IndexEntry{}, l.err
	}
	l.err = io.EOF
	return pipeline.IndexEntry{}, l.err
}

// Close releases the underlying file, if any.
func (l *Locator) Close() error {
	if l.closer == nil {
		return nil
	}
	if err := l.closer.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	return nil
}

func parseRow(raw string, line int) (pipeline.IndexEntry, error) {
	fields := strings.Split(raw, "\t")
	if len(fields) < minFields {
		return pipeline.IndexEntry{}, &pipeline.MalformedIndexRowError{
			Line:   line,
			Fields: len(fields),
			Reason: fmt.Sprintf("expected at least %d tab-separated fields", minFields),
		}
	}
	offset, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return pipeline.IndexEntry{}, malformed(line, len(fields), "byte offset", err)
	}
	length, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
	if err != nil {
		return pipeline.IndexEntry{}, malformed(line, len(fields), "byte length", err)
	}
	if offset < 0 || length <= 0 {
		return pipeline.IndexEntry{}, malformed(line, len(fields), "byte range", errors.New("out of range"))
	}
	entry := pipeline.IndexEntry{
		ShardID:    fields[0],
		ShardFile:  strings.TrimSpace(fields[1]),
		ByteOffset: offset,
		ByteLength: length,
	}
	if len(fields) > minFields {
		entry.LineNumber = strings.TrimSpace(fields[4])
	}
	return entry, nil
}

func malformed(line, fields int, what string, err error) error {
	return &pipeline.MalformedIndexRowError{
		Line:   line,
		Fields: fields,
		Reason: fmt.Sprintf("invalid %s: %v", what, err),
	}
}
