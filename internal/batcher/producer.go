// Package batcher scans the crawl index, selects candidate captures, and
// publishes them to the work queue in fixed-size batches.
package batcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/cc-text-pipeline/internal/metrics"
	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
	"github.com/JakeFAU/cc-text-pipeline/internal/queue"
)

// DefaultBatchSize is used when Config.BatchSize is not positive.
const DefaultBatchSize = 50

// IndexPrefix returns the path under which a dataset's CDX shards live.
func IndexPrefix(dataset string) string {
	return "cc-index/collections/" + dataset + "/indexes"
}

// Config controls batching.
type Config struct {
	BatchSize   int
	IndexPrefix string
}

// Stats summarizes a scan.
type Stats struct {
	Chunks     int
	Lines      int
	Passed     int
	NonEnglish int
	Non200     int
	Corrupt    int
	Batches    int
}

// Producer drives the index scan. A Producer runs one scan; its accumulator
// is private to that scan.
type Producer struct {
	fetcher   pipeline.Fetcher
	publisher pipeline.Publisher
	recorder  metrics.Recorder
	logger    *zap.Logger
	batchSize int
	prefix    string

	pending pipeline.Batch
	stats   Stats
}

// Option customizes a Producer.
type Option func(*Producer)

// WithRecorder reports candidate outcomes and batches to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Producer) { p.recorder = metrics.OrNop(r) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Producer) {
		if l != nil {
			p.logger = l
		}
	}
}

// New constructs a Producer.
func New(cfg Config, fetcher pipeline.Fetcher, publisher pipeline.Publisher, opts ...Option) (*Producer, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	size := cfg.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	p := &Producer{
		fetcher:   fetcher,
		publisher: publisher,
		recorder:  metrics.Nop{},
		logger:    zap.NewNop(),
		batchSize: size,
		prefix:    strings.TrimRight(cfg.IndexPrefix, "/"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run consumes chunks until io.EOF and publishes every matching candidate.
// The final partial batch is published once after the last chunk.
func (p *Producer) Run(ctx context.Context, chunks pipeline.ChunkSource) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scan canceled: %w", err)
		}
		entry, err := chunks.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read index: %w", err)
		}
		if err := p.processChunk(ctx, entry); err != nil {
			return err
		}
	}

	if len(p.pending) > 0 {
		if err := p.publish(ctx); err != nil {
			return err
		}
	}
	p.logger.Info("index scan complete",
		zap.Int("chunks", p.stats.Chunks),
		zap.Int("lines", p.stats.Lines),
		zap.Int("passed", p.stats.Passed),
		zap.Int("non_english", p.stats.NonEnglish),
		zap.Int("non_200", p.stats.Non200),
		zap.Int("corrupt", p.stats.Corrupt),
		zap.Int("batches", p.stats.Batches),
	)
	return nil
}

// Stats returns the counters accumulated so far.
func (p *Producer) Stats() Stats { return p.stats }

func (p *Producer) processChunk(ctx context.Context, entry pipeline.IndexEntry) error {
	location := entry.ShardFile
	if p.prefix != "" {
		location = p.prefix + "/" + entry.ShardFile
	}
	data, err := p.fetcher.Fetch(ctx, location, entry.ByteOffset, entry.ByteLength)
	if err != nil {
		return fmt.Errorf("fetch chunk %s@%d: %w", entry.ShardFile, entry.ByteOffset, err)
	}
	p.stats.Chunks++

	for i, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		p.stats.Lines++
		cand, err := parseLine(line)
		if err != nil {
			corrupt := &pipeline.CorruptRecordError{ShardFile: entry.ShardFile, Line: i + 1, Err: err}
			p.logger.Debug("skipping corrupt cdx line", zap.Error(corrupt))
			p.stats.Corrupt++
			p.recorder.CandidateEvaluated(metrics.CandidateCorrupt)
			continue
		}
		if outcome := evaluate(cand.Metadata); outcome != metrics.CandidatePassed {
			p.count(outcome)
			continue
		}
		p.count(metrics.CandidatePassed)
		p.pending = append(p.pending, cand)
		if len(p.pending) >= p.batchSize {
			if err := p.publish(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Producer) count(outcome string) {
	switch outcome {
	case metrics.CandidatePassed:
		p.stats.Passed++
	case metrics.CandidateNonEnglish:
		p.stats.NonEnglish++
	case metrics.CandidateNon200:
		p.stats.Non200++
	}
	p.recorder.CandidateEvaluated(outcome)
}

func (p *Producer) publish(ctx context.Context) error {
	body, err := queue.EncodeBatch(p.pending)
	if err != nil {
		return err
	}
	if err := p.publisher.Publish(ctx, body); err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	p.stats.Batches++
	p.recorder.BatchPublished(len(p.pending))
	p.logger.Debug("published batch", zap.Int("size", len(p.pending)))
	p.pending = nil
	return nil
}

// evaluate applies the inclusion rule: English among the detected languages
// and an HTTP 200 capture.
func evaluate(m pipeline.RecordMetadata) string {
	if !m.HasLanguage("eng") {
		return metrics.CandidateNonEnglish
	}
	if status, ok := m.Status(); !ok || status != "200" {
		return metrics.CandidateNon200
	}
	return metrics.CandidatePassed
}

// parseLine splits "<surt> <timestamp> <json>" into a candidate.
func parseLine(line string) (pipeline.CandidateURL, error) {
	surt, rest, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok {
		return pipeline.CandidateURL{}, errors.New("missing timestamp")
	}
	ts, blob, ok := strings.Cut(strings.TrimLeft(rest, " "), " ")
	if !ok {
		return pipeline.CandidateURL{}, errors.New("missing metadata")
	}
	var meta pipeline.RecordMetadata
	if err := json.Unmarshal([]byte(blob), &meta); err != nil {
		return pipeline.CandidateURL{}, fmt.Errorf("decode metadata: %w", err)
	}
	if meta == nil {
		return pipeline.CandidateURL{}, errors.New("metadata is not an object")
	}
	return pipeline.CandidateURL{SurtURL: surt, Timestamp: ts, Metadata: meta}, nil
}
