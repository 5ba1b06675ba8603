// Package warc reads WARC records from an inflated archive byte range.
package warc

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/slyrz/warc"

	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
)

// Parser implements pipeline.ArchiveParser on top of slyrz/warc.
type Parser struct{}

// NewParser returns a Parser.
func NewParser() Parser { return Parser{} }

// Open starts reading records from data.
func (Parser) Open(data []byte) (pipeline.RecordReader, error) {
	r, err := warc.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open warc reader: %w", err)
	}
	return &Reader{r: r}, nil
}

// Reader yields records until io.EOF.
type Reader struct {
	r *warc.Reader
}

// Next returns the next record. Content is fully buffered so records stay
// readable after Next is called again.
func (r *Reader) Next() (pipeline.ArchiveRecord, error) {
	rec, err := r.r.ReadRecord()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return pipeline.ArchiveRecord{}, io.EOF
		}
		return pipeline.ArchiveRecord{}, fmt.Errorf("read warc record: %w", err)
	}
	content, err := io.ReadAll(rec.Content)
	if err != nil {
		return pipeline.ArchiveRecord{}, fmt.Errorf("read warc content: %w", err)
	}
	return pipeline.ArchiveRecord{
		Type:      rec.Header.Get("WARC-Type"),
		TargetURI: rec.Header.Get("WARC-Target-URI"),
		Content:   bytes.NewReader(content),
	}, nil
}

// Close releases the underlying reader.
func (r *Reader) Close() {
	r.r.Close()
}
