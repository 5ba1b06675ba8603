// Package ranged downloads gzip-compressed byte ranges of remote archive
// objects over HTTP.
package ranged

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cc-text-pipeline/internal/metrics"
	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
)

// DefaultBaseURL is the public Common Crawl data endpoint.
const DefaultBaseURL = "https://data.commoncrawl.org"

var errDecompress = errors.New("decompress range")

// Limiter throttles outgoing requests.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls Fetcher behavior.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Fetcher implements pipeline.Fetcher with Range requests.
type Fetcher struct {
	client    *http.Client
	baseURL   string
	userAgent string
	retry     RetryPolicy
	limiter   Limiter
	recorder  metrics.Recorder
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(f *Fetcher) { f.retry = p }
}

// WithLimiter throttles requests through l.
func WithLimiter(l Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithRecorder reports fetch outcomes to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(f *Fetcher) { f.recorder = metrics.OrNop(r) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// New constructs a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	f := &Fetcher{
		client:    &http.Client{Timeout: timeout},
		baseURL:   base,
		userAgent: cfg.UserAgent,
		retry:     NoRetry{},
		recorder:  metrics.Nop{},
		logger:    zap.NewNop(),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves [offset, offset+length-1] of location and gunzips it.
func (f *Fetcher) Fetch(ctx context.Context, location string, offset, length int64) ([]byte, error) {
	target := f.resolve(location)
	if length <= 0 || offset < 0 {
		return nil, &pipeline.FetchError{URL: target, Err: fmt.Errorf("invalid range offset=%d length=%d", offset, length)}
	}

	start := time.Now()
	attempt := 0
	for {
		attempt++
		data, err := f.fetchOnce(ctx, target, offset, length)
		if err == nil {
			f.recorder.FetchObserved("ok", attempt, time.Since(start))
			return data, nil
		}
		if ctx.Err() != nil || !f.retry.ShouldRetry(err, attempt) {
			f.recorder.FetchObserved("error", attempt, time.Since(start))
			return nil, err
		}
		wait := f.retry.Backoff(attempt - 1)
		f.logger.Warn("ranged fetch failed, retrying",
			zap.String("url", target),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if serr := f.sleep(ctx, wait); serr != nil {
			f.recorder.FetchObserved("canceled", attempt, time.Since(start))
			return nil, &pipeline.FetchError{URL: target, Err: serr}
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, target string, offset, length int64) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, target); err != nil {
			return nil, &pipeline.FetchError{URL: target, Err: err}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &pipeline.FetchError{URL: target, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &pipeline.FetchError{URL: target, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &pipeline.FetchError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &pipeline.FetchError{URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	data, err := gunzip(body)
	if err != nil {
		return nil, &pipeline.FetchError{URL: target, Err: err}
	}
	return data, nil
}

func (f *Fetcher) resolve(location string) string {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location
	}
	return f.baseURL + "/" + strings.TrimLeft(location, "/")
}

func gunzip(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errDecompress, err)
	}
	defer zr.Close() //nolint:errcheck // reader over memory
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errDecompress, err)
	}
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
