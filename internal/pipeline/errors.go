package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedIndexRow aborts an index scan.
	ErrMalformedIndexRow = errors.New("malformed index row")
	// ErrCorruptRecord marks a single unparseable CDX line.
	ErrCorruptRecord = errors.New("corrupt record")
	// ErrFetch marks a network or decompression failure.
	ErrFetch = errors.New("fetch failed")
	// ErrExtractionEmpty means the extractor produced no text. It is a rejection, not a failure.
	ErrExtractionEmpty = errors.New("extraction produced no text")
	// ErrFilterRejected means a filter stage rejected the document.
	ErrFilterRejected = errors.New("rejected by filter")
)

// MalformedIndexRowError describes the index row that stopped a scan.
type MalformedIndexRowError struct {
	Line   int
	Fields int
	Reason string
}

func (e *MalformedIndexRowError) Error() string {
	return fmt.Sprintf("malformed index row at line %d (%d fields): %s", e.Line, e.Fields, e.Reason)
}

// Unwrap lets errors.Is match ErrMalformedIndexRow.
func (e *MalformedIndexRowError) Unwrap() error { return ErrMalformedIndexRow }

// CorruptRecordError describes a CDX line that could not be parsed.
type CorruptRecordError struct {
	ShardFile string
	Line      int
	Err       error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt record in %s line %d: %v", e.ShardFile, e.Line, e.Err)
}

// Is matches ErrCorruptRecord.
func (e *CorruptRecordError) Is(target error) bool { return target == ErrCorruptRecord }

// Unwrap returns the parse error.
func (e *CorruptRecordError) Unwrap() error { return e.Err }

// FetchError describes a failed ranged download.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Is matches ErrFetch.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// Unwrap returns the underlying transport or gzip error.
func (e *FetchError) Unwrap() error { return e.Err }
