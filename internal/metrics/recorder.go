// Package metrics exposes the counting hooks used by the batcher and worker
// stages, a Prometheus-backed implementation, and the metrics HTTP server.
package metrics

import "time"

// Candidate outcomes reported by the batcher.
const (
	CandidatePassed     = "passed"
	CandidateNonEnglish = "non_english"
	CandidateNon200     = "non_200"
	CandidateCorrupt    = "corrupt"
)

// Batch outcomes reported by the worker.
const (
	BatchAcked    = "acked"
	BatchRequeued = "requeued"
	BatchRejected = "rejected"
)

// Rejection stages that are not filter names.
const (
	StageInvalidMetadata = "invalid_metadata"
	StageCorruptArchive  = "corrupt_archive"
	StageExtractionEmpty = "extraction_empty"
	StageEmptyOutput     = "empty_output"
)

// Recorder receives counting hooks from the pipeline stages. Implementations
// must be safe for concurrent use.
type Recorder interface {
	CandidateEvaluated(outcome string)
	BatchPublished(size int)
	BatchConsumed(outcome string)
	DocumentAccepted()
	DocumentRejected(stage string)
	ObjectFlushed(documents int, bytes int)
	FetchObserved(outcome string, attempts int, d time.Duration)
}

// Nop discards every observation.
type Nop struct{}

// CandidateEvaluated implements Recorder.
func (Nop) CandidateEvaluated(string) {}

// BatchPublished implements Recorder.
func (Nop) BatchPublished(int) {}

// BatchConsumed implements Recorder.
func (Nop) BatchConsumed(string) {}

// DocumentAccepted implements Recorder.
func (Nop) DocumentAccepted() {}

// DocumentRejected implements Recorder.
func (Nop) DocumentRejected(string) {}

// ObjectFlushed implements Recorder.
func (Nop) ObjectFlushed(int, int) {}

// FetchObserved implements Recorder.
func (Nop) FetchObserved(string, int, time.Duration) {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
