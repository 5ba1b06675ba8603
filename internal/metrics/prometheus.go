package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements Recorder with Prometheus collectors registered on a
// caller supplied registry.
type Prometheus struct {
	gatherer prometheus.Gatherer

	candidatesTotal    *prometheus.CounterVec
	batchesPublished   prometheus.Counter
	batchSize          prometheus.Histogram
	batchesConsumed    *prometheus.CounterVec
	documentsAccepted  prometheus.Counter
	documentsRejected  *prometheus.CounterVec
	objectsFlushed     prometheus.Counter
	objectBytesTotal   prometheus.Counter
	objectDocuments    prometheus.Histogram
	fetchesTotal       *prometheus.CounterVec
	fetchAttempts      prometheus.Histogram
	fetchDuration      *prometheus.HistogramVec
	httpRequestsTotal  *prometheus.CounterVec
	httpRequestSeconds *prometheus.HistogramVec
}

// NewPrometheus registers the pipeline collectors on reg.
func NewPrometheus(reg *prometheus.Registry) *Prometheus {
	f := promauto.With(reg)
	return &Prometheus{
		gatherer: reg,
		candidatesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "batcher_documents_total",
			Help: "Index documents evaluated by the batcher, labeled by outcome.",
		}, []string{"outcome"}),
		batchesPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "batcher_batches_total",
			Help: "Number of batches published to the work queue.",
		}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "batcher_batch_size",
			Help:    "Number of candidates per published batch.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		batchesConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_batches_total",
			Help: "Number of batches consumed by workers, labeled by outcome.",
		}, []string{"outcome"}),
		documentsAccepted: f.NewCounter(prometheus.CounterOpts{
			Name: "worker_documents_accepted_total",
			Help: "Documents that passed every filter stage.",
		}),
		documentsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_documents_rejected_total",
			Help: "Documents dropped by the worker, labeled by stage.",
		}, []string{"stage"}),
		objectsFlushed: f.NewCounter(prometheus.CounterOpts{
			Name: "worker_objects_flushed_total",
			Help: "Columnar objects written to storage.",
		}),
		objectBytesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "worker_object_bytes_total",
			Help: "Bytes written to storage.",
		}),
		objectDocuments: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_object_documents",
			Help:    "Documents per flushed object.",
			Buckets: []float64{1, 5, 10, 20, 50, 100, 500},
		}),
		fetchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fetcher_requests_total",
			Help: "Ranged fetches, labeled by outcome.",
		}, []string{"outcome"}),
		fetchAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fetcher_attempts",
			Help:    "Attempts needed per ranged fetch.",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		}),
		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fetcher_duration_seconds",
			Help:    "Ranged fetch latency including retries.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"outcome"}),
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		}, []string{"method", "code"}),
		httpRequestSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
}

// CandidateEvaluated implements Recorder.
func (p *Prometheus) CandidateEvaluated(outcome string) {
	p.candidatesTotal.WithLabelValues(outcome).Inc()
}

// BatchPublished implements Recorder.
func (p *Prometheus) BatchPublished(size int) {
	p.batchesPublished.Inc()
	p.batchSize.Observe(float64(size))
}

// BatchConsumed implements Recorder.
func (p *Prometheus) BatchConsumed(outcome string) {
	p.batchesConsumed.WithLabelValues(outcome).Inc()
}

// DocumentAccepted implements Recorder.
func (p *Prometheus) DocumentAccepted() {
	p.documentsAccepted.Inc()
}

// DocumentRejected implements Recorder.
func (p *Prometheus) DocumentRejected(stage string) {
	p.documentsRejected.WithLabelValues(stage).Inc()
}

// ObjectFlushed implements Recorder.
func (p *Prometheus) ObjectFlushed(documents int, bytes int) {
	p.objectsFlushed.Inc()
	p.objectDocuments.Observe(float64(documents))
	if bytes > 0 {
		p.objectBytesTotal.Add(float64(bytes))
	}
}

// FetchObserved implements Recorder.
func (p *Prometheus) FetchObserved(outcome string, attempts int, d time.Duration) {
	p.fetchesTotal.WithLabelValues(outcome).Inc()
	p.fetchAttempts.Observe(float64(attempts))
	p.fetchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveHTTPRequest records one request served by the metrics server.
func (p *Prometheus) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	p.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	p.httpRequestSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns an http.Handler exposing the registry.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
