// Package buffer accumulates extracted documents and writes them to object
// storage as Parquet files.
package buffer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/JakeFAU/cc-text-pipeline/internal/manifest"
	"github.com/JakeFAU/cc-text-pipeline/internal/metrics"
	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
)

// ContentType is set on every uploaded object.
const ContentType = "application/vnd.apache.parquet"

// DefaultCapacity is used when Config.Capacity is not positive.
const DefaultCapacity = 20

// Config controls flushing.
type Config struct {
	Capacity int
	Prefix   string
}

// FlushResult describes an uploaded object.
type FlushResult struct {
	Key       string
	URI       string
	Documents int
	Bytes     int
}

// Buffer holds documents until capacity is reached or Flush is called. It is
// owned by a single worker and is not safe for concurrent use.
type Buffer struct {
	store    pipeline.BlobStore
	ledger   manifest.Ledger
	clock    pipeline.Clock
	ids      pipeline.IDGenerator
	recorder metrics.Recorder
	logger   *zap.Logger
	capacity int
	prefix   string
	docs     []pipeline.ExtractedDocument
}

// Option customizes a Buffer.
type Option func(*Buffer)

// WithLedger records each flushed object in l.
func WithLedger(l manifest.Ledger) Option {
	return func(b *Buffer) {
		if l != nil {
			b.ledger = l
		}
	}
}

// WithRecorder reports flushes to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(b *Buffer) { b.recorder = metrics.OrNop(r) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Buffer) {
		if l != nil {
			b.logger = l
		}
	}
}

// New constructs a Buffer.
func New(cfg Config, store pipeline.BlobStore, clock pipeline.Clock, ids pipeline.IDGenerator, opts ...Option) (*Buffer, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if clock == nil || ids == nil {
		return nil, fmt.Errorf("clock and id generator are required")
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer{
		store:    store,
		ledger:   manifest.Noop{},
		clock:    clock,
		ids:      ids,
		recorder: metrics.Nop{},
		logger:   zap.NewNop(),
		capacity: capacity,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		docs:     make([]pipeline.ExtractedDocument, 0, capacity),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Add appends doc and flushes when the buffer reaches capacity. A failed
// automatic flush keeps every document, including doc.
func (b *Buffer) Add(ctx context.Context, doc pipeline.ExtractedDocument) error {
	b.docs = append(b.docs, doc)
	if len(b.docs) < b.capacity {
		return nil
	}
	if _, err := b.Flush(ctx); err != nil {
		return err
	}
	return nil
}

// Len returns the number of buffered documents.
func (b *Buffer) Len() int { return len(b.docs) }

// Discard drops buffered documents and returns how many were dropped.
func (b *Buffer) Discard() int {
	n := len(b.docs)
	b.docs = b.docs[:0]
	return n
}

// Flush writes all buffered documents as one object. An empty buffer is a
// no-op. On any error the buffer is left untouched.
func (b *Buffer) Flush(ctx context.Context) (FlushResult, error) {
	if len(b.docs) == 0 {
		return FlushResult{}, nil
	}
	data, err := Encode(b.docs)
	if err != nil {
		return FlushResult{}, err
	}
	id, err := b.ids.NewID()
	if err != nil {
		return FlushResult{}, fmt.Errorf("generate object id: %w", err)
	}
	now := b.clock.Now().UTC()
	key := b.objectKey(now, id)

	uri, err := b.store.PutObject(ctx, key, ContentType, bytes.NewReader(data))
	if err != nil {
		return FlushResult{}, fmt.Errorf("upload %s: %w", key, err)
	}

	res := FlushResult{Key: key, URI: uri, Documents: len(b.docs), Bytes: len(data)}
	entry := manifest.Entry{
		ObjectKey:   key,
		URI:         uri,
		Documents:   res.Documents,
		Bytes:       int64(res.Bytes),
		SourceFiles: b.sourceFiles(),
		CreatedAt:   now,
	}
	if err := b.ledger.Record(ctx, entry); err != nil {
		// The object is already stored, so the flush still counts.
		b.logger.Warn("record manifest entry", zap.String("key", key), zap.Error(err))
	}

	b.recorder.ObjectFlushed(res.Documents, res.Bytes)
	b.logger.Info("flushed documents",
		zap.String("uri", uri),
		zap.Int("documents", res.Documents),
		zap.Int("bytes", res.Bytes),
	)
	b.docs = b.docs[:0]
	return res, nil
}

func (b *Buffer) objectKey(t time.Time, id string) string {
	return path.Join(b.prefix, t.Format("2006/01/02"), id+".parquet")
}

func (b *Buffer) sourceFiles() []string {
	files := make([]string, 0, len(b.docs))
	for _, d := range b.docs {
		if d.Filename != "" {
			files = append(files, d.Filename)
		}
	}
	return manifest.SourceFiles(files)
}

// Encode serializes docs as a Snappy-compressed Parquet file.
func Encode(docs []pipeline.ExtractedDocument) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[pipeline.ExtractedDocument](&buf, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(docs); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads a Parquet file produced by Encode.
func Decode(data []byte) ([]pipeline.ExtractedDocument, error) {
	docs, err := parquet.Read[pipeline.ExtractedDocument](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	return docs, nil
}
