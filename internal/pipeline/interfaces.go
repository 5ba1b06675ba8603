package pipeline

import (
	"context"
	"io"
	"time"
)

// ChunkSource yields index entries until io.EOF.
type ChunkSource interface {
	Next() (IndexEntry, error)
}

// Fetcher downloads and inflates a byte range of a remote object.
type Fetcher interface {
	Fetch(ctx context.Context, location string, offset, length int64) ([]byte, error)
}

// Publisher sends one message body to the work queue.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Delivery is a received message awaiting acknowledgment.
type Delivery interface {
	ID() string
	Body() []byte
	Ack(ctx context.Context) error
	Nack(ctx context.Context, requeue bool) error
}

// Consumer hands out one delivery at a time.
type Consumer interface {
	Receive(ctx context.Context) (Delivery, error)
	Close() error
}

// BlobStore uploads an object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// RecordReader iterates the container records inside a fetched range.
type RecordReader interface {
	Next() (ArchiveRecord, error)
	Close()
}

// ArchiveParser opens a RecordReader over raw (already inflated) bytes.
type ArchiveParser interface {
	Open(data []byte) (RecordReader, error)
}

// Extractor turns a captured HTTP response payload into plain text.
type Extractor interface {
	Extract(payload []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers for object keys.
type IDGenerator interface {
	NewID() (string, error)
}
