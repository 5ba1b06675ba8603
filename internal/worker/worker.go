// Package worker consumes queued batches, re-fetches each capture, and
// writes the text that survives the filter chain to the output buffer.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/cc-text-pipeline/internal/buffer"
	"github.com/JakeFAU/cc-text-pipeline/internal/filter"
	"github.com/JakeFAU/cc-text-pipeline/internal/metrics"
	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
	"github.com/JakeFAU/cc-text-pipeline/internal/queue"
)

// Sink receives accepted documents. *buffer.Buffer satisfies it.
type Sink interface {
	Add(ctx context.Context, doc pipeline.ExtractedDocument) error
	Flush(ctx context.Context) (buffer.FlushResult, error)
	Discard() int
}

// Worker runs the receive, process, flush, ack loop for one consumer.
type Worker struct {
	name      string
	consumer  pipeline.Consumer
	fetcher   pipeline.Fetcher
	parser    pipeline.ArchiveParser
	extractor pipeline.Extractor
	chain     *filter.Chain
	sink      Sink
	recorder  metrics.Recorder
	logger    *zap.Logger
}

// Deps groups the collaborators of a Worker.
type Deps struct {
	Consumer  pipeline.Consumer
	Fetcher   pipeline.Fetcher
	Parser    pipeline.ArchiveParser
	Extractor pipeline.Extractor
	Chain     *filter.Chain
	Sink      Sink
	Recorder  metrics.Recorder
	Logger    *zap.Logger
}

// New constructs a Worker.
func New(name string, deps Deps) (*Worker, error) {
	switch {
	case deps.Consumer == nil:
		return nil, fmt.Errorf("consumer is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case deps.Parser == nil:
		return nil, fmt.Errorf("archive parser is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Chain == nil:
		return nil, fmt.Errorf("filter chain is required")
	case deps.Sink == nil:
		return nil, fmt.Errorf("output sink is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		name:      name,
		consumer:  deps.Consumer,
		fetcher:   deps.Fetcher,
		parser:    deps.Parser,
		extractor: deps.Extractor,
		chain:     deps.Chain,
		sink:      deps.Sink,
		recorder:  metrics.OrNop(deps.Recorder),
		logger:    logger.With(zap.String("worker", name)),
	}, nil
}

// Run blocks, handling one delivery at a time until ctx ends or the queue
// closes. A delivery already received is processed to completion even if ctx
// is canceled meanwhile.
func (w *Worker) Run(ctx context.Context) error {
	for {
		d, err := w.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return nil
			}
			return fmt.Errorf("receive delivery: %w", err)
		}
		w.handle(context.WithoutCancel(ctx), d)
	}
}

func (w *Worker) handle(ctx context.Context, d pipeline.Delivery) {
	log := w.logger.With(zap.String("delivery_id", d.ID()))

	batch, err := queue.DecodeBatch(d.Body())
	if err != nil {
		log.Error("undecodable batch, rejecting", zap.Error(err))
		w.settle(ctx, log, d, metrics.BatchRejected)
		return
	}

	if err := w.ProcessBatch(ctx, batch); err != nil {
		dropped := w.sink.Discard()
		log.Warn("batch failed, requeueing",
			zap.Int("items", len(batch)),
			zap.Int("dropped_documents", dropped),
			zap.Error(err),
		)
		w.settle(ctx, log, d, metrics.BatchRequeued)
		return
	}

	if _, err := w.sink.Flush(ctx); err != nil {
		dropped := w.sink.Discard()
		log.Error("flush failed, requeueing", zap.Int("dropped_documents", dropped), zap.Error(err))
		w.settle(ctx, log, d, metrics.BatchRequeued)
		return
	}

	log.Debug("batch processed", zap.Int("items", len(batch)))
	w.settle(ctx, log, d, metrics.BatchAcked)
}

func (w *Worker) settle(ctx context.Context, log *zap.Logger, d pipeline.Delivery, outcome string) {
	var err error
	switch outcome {
	case metrics.BatchAcked:
		err = d.Ack(ctx)
	case metrics.BatchRequeued:
		err = d.Nack(ctx, true)
	default:
		err = d.Nack(ctx, false)
	}
	if err != nil {
		log.Error("settle delivery", zap.String("outcome", outcome), zap.Error(err))
	}
	w.recorder.BatchConsumed(outcome)
}

// ProcessBatch fetches and filters every item of batch, adding accepted
// documents to the sink. A fetch or sink failure aborts the batch.
func (w *Worker) ProcessBatch(ctx context.Context, batch pipeline.Batch) error {
	for _, item := range batch {
		if err := w.processItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) processItem(ctx context.Context, item pipeline.CandidateURL) error {
	log := w.logger.With(zap.String("surt_url", item.SurtURL))

	loc, err := item.Metadata.Location()
	if err != nil {
		log.Warn("skipping item with invalid location", zap.Error(err))
		w.recorder.DocumentRejected(metrics.StageInvalidMetadata)
		return nil
	}

	data, err := w.fetcher.Fetch(ctx, loc.Filename, loc.Offset, loc.Length)
	if err != nil {
		return fmt.Errorf("fetch %s@%d: %w", loc.Filename, loc.Offset, err)
	}

	records, err := w.parser.Open(data)
	if err != nil {
		log.Warn("skipping unreadable archive range", zap.String("filename", loc.Filename), zap.Error(err))
		w.recorder.DocumentRejected(metrics.StageCorruptArchive)
		return nil
	}
	defer records.Close()

	for {
		rec, err := records.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			log.Warn("stopping at corrupt archive record", zap.String("filename", loc.Filename), zap.Error(err))
			w.recorder.DocumentRejected(metrics.StageCorruptArchive)
			return nil
		}
		if rec.Type != pipeline.RecordTypeResponse {
			continue
		}
		if err := w.processRecord(ctx, log, item, loc, rec); err != nil {
			return err
		}
	}
}

func (w *Worker) processRecord(
	ctx context.Context,
	log *zap.Logger,
	item pipeline.CandidateURL,
	loc pipeline.Location,
	rec pipeline.ArchiveRecord,
) error {
	payload, err := io.ReadAll(rec.Content)
	if err != nil {
		log.Warn("read record content", zap.Error(err))
		w.recorder.DocumentRejected(metrics.StageCorruptArchive)
		return nil
	}

	text, err := w.extractor.Extract(payload)
	if err != nil || text == "" {
		if err != nil && !errors.Is(err, pipeline.ErrExtractionEmpty) {
			log.Debug("extraction failed", zap.Error(err))
		}
		w.recorder.DocumentRejected(metrics.StageExtractionEmpty)
		return nil
	}

	res := w.chain.Apply(filter.NewDocument(text))
	if !res.Accepted() {
		log.Debug("document rejected", zap.String("stage", res.Stage()))
		return nil
	}
	if res.Document().Empty() {
		w.recorder.DocumentRejected(metrics.StageEmptyOutput)
		return nil
	}

	url, ok := item.Metadata.String("url")
	if !ok || url == "" {
		url = rec.TargetURI
	}
	doc := pipeline.ExtractedDocument{
		SurtURL:  item.SurtURL,
		URL:      url,
		Text:     res.Document().Text(),
		Filename: loc.Filename,
		Offset:   loc.Offset,
		Length:   loc.Length,
	}
	if err := w.sink.Add(ctx, doc); err != nil {
		return fmt.Errorf("buffer document: %w", err)
	}
	w.recorder.DocumentAccepted()
	return nil
}
