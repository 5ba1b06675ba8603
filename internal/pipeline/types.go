// Package pipeline holds the shared domain types, collaborator interfaces, and
// error taxonomy used by the batcher and worker stages.
package pipeline

import (
	"io"
)

// IndexEntry is one row of the cluster index: a byte range inside a CDX shard.
type IndexEntry struct {
	ShardID    string
	ShardFile  string
	ByteOffset int64
	ByteLength int64
	LineNumber string
}

// CandidateURL is the unit carried inside a queued batch.
type CandidateURL struct {
	SurtURL   string         `json:"surt_url"`
	Timestamp string         `json:"timestamp"`
	Metadata  RecordMetadata `json:"metadata"`
}

// Batch is an ordered group of candidates published as one queue message.
type Batch []CandidateURL

// ArchiveRecord is one record read from a fetched WARC byte range.
type ArchiveRecord struct {
	Type      string
	TargetURI string
	Content   io.Reader
}

// RecordTypeResponse marks records that carry captured page content.
const RecordTypeResponse = "response"

// ExtractedDocument is a document that survived extraction and every filter stage.
type ExtractedDocument struct {
	SurtURL  string `parquet:"surt_url" json:"surt_url"`
	URL      string `parquet:"url" json:"url"`
	Text     string `parquet:"text" json:"text"`
	Filename string `parquet:"filename" json:"filename"`
	Offset   int64  `parquet:"offset" json:"offset"`
	Length   int64  `parquet:"length" json:"length"`
}
