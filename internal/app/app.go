// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/cc-text-pipeline/internal/batcher"
	"github.com/JakeFAU/cc-text-pipeline/internal/buffer"
	"github.com/JakeFAU/cc-text-pipeline/internal/clock/system"
	"github.com/JakeFAU/cc-text-pipeline/internal/config"
	"github.com/JakeFAU/cc-text-pipeline/internal/dispatcher"
	"github.com/JakeFAU/cc-text-pipeline/internal/extract"
	"github.com/JakeFAU/cc-text-pipeline/internal/fetcher/ranged"
	"github.com/JakeFAU/cc-text-pipeline/internal/filter"
	"github.com/JakeFAU/cc-text-pipeline/internal/filter/detector"
	"github.com/JakeFAU/cc-text-pipeline/internal/id/uuid"
	"github.com/JakeFAU/cc-text-pipeline/internal/manifest"
	pgledger "github.com/JakeFAU/cc-text-pipeline/internal/manifest/postgres"
	sqliteledger "github.com/JakeFAU/cc-text-pipeline/internal/manifest/sqlite"
	"github.com/JakeFAU/cc-text-pipeline/internal/metrics"
	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
	"github.com/JakeFAU/cc-text-pipeline/internal/policy/ratelimit"
	pubsubqueue "github.com/JakeFAU/cc-text-pipeline/internal/queue/pubsub"
	"github.com/JakeFAU/cc-text-pipeline/internal/queue/rabbitmq"
	"github.com/JakeFAU/cc-text-pipeline/internal/storage/gcs"
	"github.com/JakeFAU/cc-text-pipeline/internal/storage/local"
	"github.com/JakeFAU/cc-text-pipeline/internal/storage/minio"
	s3store "github.com/JakeFAU/cc-text-pipeline/internal/storage/s3"
	"github.com/JakeFAU/cc-text-pipeline/internal/warc"
	"github.com/JakeFAU/cc-text-pipeline/internal/worker"
)

// Backend opens publishers and consumers on the configured work queue.
type Backend interface {
	Publisher(ctx context.Context) (pipeline.Publisher, error)
	Consumer(ctx context.Context, name string) (pipeline.Consumer, error)
	Close() error
}

// App holds all the shared, long-lived services for the application.
// It is built once at startup and hands out producers and workers wired
// against the configured providers.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Prometheus
	fetcher  *ranged.Fetcher
	queue    Backend

	mu      sync.Mutex
	closers []func() error
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	backend Backend
}

// WithBackend replaces the queue built from configuration.
func WithBackend(b Backend) Option {
	return func(o *options) { o.backend = b }
}

// New creates the App. It fails fast when the work queue cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewPrometheus(registry)

	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  prom,
	}
	a.fetcher = a.buildFetcher()

	backend := o.backend
	if backend == nil {
		var err error
		backend, err = newBackend(ctx, cfg.Queue, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize queue: %w", err)
		}
	}
	a.queue = backend
	a.addCloser(backend.Close)

	logger.Info("application services initialized",
		zap.String("queue", cfg.Queue.Provider),
		zap.String("storage", cfg.Storage.Provider),
		zap.String("manifest", cfg.Manifest.Provider),
	)
	return a, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Metrics returns the Prometheus recorder shared by every component.
func (a *App) Metrics() *metrics.Prometheus { return a.metrics }

// Registry exposes the metrics registry, mostly for tests.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Fetcher returns the ranged fetcher shared by the producer and workers.
func (a *App) Fetcher() *ranged.Fetcher { return a.fetcher }

func (a *App) buildFetcher() *ranged.Fetcher {
	fc := a.cfg.Fetch
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   fc.RateLimitRPS,
		DefaultBurst: fc.RateLimitBurst,
		OnDelay: func(host string, d time.Duration) {
			a.logger.Debug("rate limited", zap.String("host", host), zap.Duration("delay", d))
		},
	})
	return ranged.New(
		ranged.Config{
			BaseURL:   a.cfg.Index.BaseURL,
			Timeout:   a.cfg.FetchTimeout(),
			UserAgent: fc.UserAgent,
		},
		ranged.WithRetryPolicy(ranged.NewExponentialRetryPolicy(fc.MaxRetries, a.cfg.BackoffInitial(), a.cfg.BackoffMax())),
		ranged.WithLimiter(limiter),
		ranged.WithRecorder(a.metrics),
		ranged.WithLogger(a.logger.Named("fetcher")),
	)
}

// NewProducer builds a batch producer publishing onto the work queue.
// dataset selects the crawl whose CDX shards the index rows point into.
func (a *App) NewProducer(ctx context.Context, dataset string) (*batcher.Producer, error) {
	if dataset == "" {
		dataset = a.cfg.Index.Dataset
	}
	pub, err := a.queue.Publisher(ctx)
	if err != nil {
		return nil, fmt.Errorf("open publisher: %w", err)
	}
	if c, ok := pub.(interface{ Close() error }); ok {
		a.addCloser(c.Close)
	}
	return batcher.New(
		batcher.Config{
			BatchSize:   a.cfg.Batcher.BatchSize,
			IndexPrefix: batcher.IndexPrefix(dataset),
		},
		a.fetcher,
		pub,
		batcher.WithRecorder(a.metrics),
		batcher.WithLogger(a.logger.Named("batcher")),
	)
}

// NewDispatcher builds n workers, each with its own consumer and output
// buffer, sharing one blob store and manifest ledger.
func (a *App) NewDispatcher(ctx context.Context, n int) (*dispatcher.Dispatcher, error) {
	if n <= 0 {
		n = a.cfg.Worker.Concurrency
	}
	store, err := newBlobStore(ctx, a.cfg.Storage, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	ledger, err := newLedger(ctx, a.cfg.Manifest, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize manifest: %w", err)
	}
	a.addCloser(ledger.Close)

	extractor, err := extract.New(a.cfg.Worker.Extractor)
	if err != nil {
		return nil, err
	}
	chain := newChain(a.cfg.Filters, a.metrics, a.logger)
	parser := warc.NewParser()

	runners := make([]dispatcher.Runner, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("worker-%d", i+1)
		consumer, err := a.queue.Consumer(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("open consumer for %s: %w", name, err)
		}
		a.addCloser(consumer.Close)

		buf, err := buffer.New(
			buffer.Config{Capacity: a.cfg.Worker.BufferSize, Prefix: a.cfg.Storage.Prefix},
			store,
			system.New(),
			uuid.New(),
			buffer.WithLedger(ledger),
			buffer.WithRecorder(a.metrics),
			buffer.WithLogger(a.logger.Named("buffer").With(zap.String("worker", name))),
		)
		if err != nil {
			return nil, fmt.Errorf("build buffer for %s: %w", name, err)
		}
		w, err := newWorker(name, consumer, a, parser, extractor, chain, buf)
		if err != nil {
			return nil, err
		}
		runners = append(runners, w)
	}
	return dispatcher.New(runners, a.logger), nil
}

func newWorker(
	name string,
	consumer pipeline.Consumer,
	a *App,
	parser pipeline.ArchiveParser,
	extractor pipeline.Extractor,
	chain *filter.Chain,
	sink worker.Sink,
) (*worker.Worker, error) {
	return worker.New(name, worker.Deps{
		Consumer:  consumer,
		Fetcher:   a.fetcher,
		Parser:    parser,
		Extractor: extractor,
		Chain:     chain,
		Sink:      sink,
		Recorder:  a.metrics,
		Logger:    a.logger,
	})
}

func (a *App) addCloser(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// Close shuts down every service in reverse order of construction.
func (a *App) Close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	a.logger.Info("shutting down application services")
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
			errs = append(errs, err)
		}
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func newChain(cfg config.FiltersConfig, rec metrics.Recorder, logger *zap.Logger) *filter.Chain {
	return filter.NewChain(rec,
		filter.NewLength(cfg.Length.MinChars, cfg.Length.MaxChars),
		filter.NewLanguage(detector.NewWhatlang(), cfg.Language.Target, cfg.Language.MinPercent, logger.Named("language")),
		filter.NewLineWise(cfg.LineWise.MinWords, cfg.LineWise.MaxUpperRatio),
	)
}

func newBlobStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (pipeline.BlobStore, error) {
	switch cfg.Provider {
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, err
		}
		if err := store.Verify(ctx); err != nil {
			return nil, err
		}
		logger.Info("using gcs storage", zap.String("bucket", cfg.Bucket))
		return store, nil
	case "s3":
		store, err := s3store.New(ctx, s3store.Config{
			Bucket:       cfg.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		if err := store.Verify(ctx); err != nil {
			return nil, err
		}
		logger.Info("using s3 storage", zap.String("bucket", cfg.Bucket))
		return store, nil
	case "minio":
		store, err := minio.New(minio.Config{
			Endpoint:     cfg.MinIO.Endpoint,
			AccessKey:    cfg.MinIO.AccessKey,
			SecretKey:    cfg.MinIO.SecretKey,
			Secure:       cfg.MinIO.Secure,
			Region:       cfg.S3.Region,
			Bucket:       cfg.Bucket,
			CreateBucket: cfg.MinIO.CreateBucket,
		})
		if err != nil {
			return nil, err
		}
		if err := store.Verify(ctx); err != nil {
			return nil, err
		}
		logger.Info("using minio storage", zap.String("endpoint", cfg.MinIO.Endpoint), zap.String("bucket", cfg.Bucket))
		return store, nil
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, err
		}
		logger.Info("using local storage", zap.String("base_dir", cfg.Local.BaseDir))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

func newLedger(ctx context.Context, cfg config.ManifestConfig, logger *zap.Logger) (manifest.Ledger, error) {
	switch cfg.Provider {
	case "", "noop":
		logger.Info("manifest disabled; flushed objects are not recorded")
		return manifest.Noop{}, nil
	case "postgres":
		l, err := pgledger.New(ctx, pgledger.Config{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Postgres.Table,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("recording manifest in postgres", zap.String("table", cfg.Postgres.Table))
		return l, nil
	case "sqlite":
		l, err := sqliteledger.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("recording manifest in sqlite", zap.String("path", cfg.SQLite.Path))
		return l, nil
	default:
		return nil, fmt.Errorf("unknown manifest provider: %s", cfg.Provider)
	}
}

func newBackend(ctx context.Context, cfg config.QueueConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Provider {
	case "rabbitmq":
		b := &rabbitBackend{cfg: rabbitmq.Config{URL: cfg.RabbitMQ.URL, Queue: cfg.RabbitMQ.Queue}, logger: logger}
		// Probe the broker so a bad URL fails at startup.
		probe, err := rabbitmq.Dial(b.cfg, logger)
		if err != nil {
			return nil, err
		}
		b.clients = append(b.clients, probe)
		logger.Info("connected to rabbitmq", zap.String("queue", cfg.RabbitMQ.Queue))
		return b, nil
	case "pubsub":
		client, err := gpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		logger.Info("connected to pubsub", zap.String("project", cfg.PubSub.ProjectID))
		return &pubsubBackend{client: client, cfg: cfg.PubSub, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown queue provider: %s", cfg.Provider)
	}
}

// rabbitBackend gives every consumer its own connection so that the
// prefetch of one is never shared with another.
type rabbitBackend struct {
	cfg    rabbitmq.Config
	logger *zap.Logger

	mu      sync.Mutex
	clients []*rabbitmq.Client
	probed  bool
}

func (b *rabbitBackend) take() (*rabbitmq.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.probed && len(b.clients) > 0 {
		b.probed = true
		return b.clients[0], nil
	}
	c, err := rabbitmq.Dial(b.cfg, b.logger)
	if err != nil {
		return nil, err
	}
	b.clients = append(b.clients, c)
	return c, nil
}

func (b *rabbitBackend) Publisher(context.Context) (pipeline.Publisher, error) {
	c, err := b.take()
	if err != nil {
		return nil, err
	}
	return nopClose{c}, nil
}

func (b *rabbitBackend) Consumer(_ context.Context, _ string) (pipeline.Consumer, error) {
	c, err := b.take()
	if err != nil {
		return nil, err
	}
	return nopClose{c}, nil
}

func (b *rabbitBackend) Close() error {
	b.mu.Lock()
	clients := b.clients
	b.clients = nil
	b.mu.Unlock()
	var errs []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// nopClose defers closing to the owning backend.
type nopClose struct {
	*rabbitmq.Client
}

func (nopClose) Close() error { return nil }

type pubsubBackend struct {
	client *gpubsub.Client
	cfg    config.PubSubConfig
	logger *zap.Logger
}

func (b *pubsubBackend) Publisher(ctx context.Context) (pipeline.Publisher, error) {
	return pubsubqueue.NewPublisher(ctx, b.client, b.cfg.TopicID)
}

func (b *pubsubBackend) Consumer(ctx context.Context, name string) (pipeline.Consumer, error) {
	return pubsubqueue.NewConsumer(ctx, b.client, b.cfg.SubscriptionID, b.logger.With(zap.String("worker", name)))
}

func (b *pubsubBackend) Close() error {
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
