package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	t.Parallel()

	p := NewPrometheus(prometheus.NewRegistry())

	p.CandidateEvaluated(CandidatePassed)
	p.CandidateEvaluated(CandidatePassed)
	p.CandidateEvaluated(CandidateNon200)
	p.BatchPublished(2)
	p.BatchConsumed(BatchAcked)
	p.DocumentAccepted()
	p.DocumentRejected("language")
	p.DocumentRejected("language")
	p.ObjectFlushed(3, 1024)
	p.FetchObserved("ok", 2, 150*time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(p.candidatesTotal.WithLabelValues(CandidatePassed)))
	require.Equal(t, 1.0, testutil.ToFloat64(p.candidatesTotal.WithLabelValues(CandidateNon200)))
	require.Equal(t, 1.0, testutil.ToFloat64(p.batchesPublished))
	require.Equal(t, 1.0, testutil.ToFloat64(p.batchesConsumed.WithLabelValues(BatchAcked)))
	require.Equal(t, 1.0, testutil.ToFloat64(p.documentsAccepted))
	require.Equal(t, 2.0, testutil.ToFloat64(p.documentsRejected.WithLabelValues("language")))
	require.Equal(t, 1.0, testutil.ToFloat64(p.objectsFlushed))
	require.Equal(t, 1024.0, testutil.ToFloat64(p.objectBytesTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(p.fetchesTotal.WithLabelValues("ok")))
}

func TestOrNop(t *testing.T) {
	t.Parallel()

	require.Equal(t, Nop{}, OrNop(nil))
	p := NewPrometheus(prometheus.NewRegistry())
	require.Same(t, p, OrNop(p))
}

func TestRouterServesMetricsAndHealth(t *testing.T) {
	t.Parallel()

	p := NewPrometheus(prometheus.NewRegistry())
	p.BatchPublished(5)

	ts := httptest.NewServer(NewRouter(p))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(body), "batcher_batches_total 1"))

	resp, err = http.Get(ts.URL + "/missing")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.Equal(t, 1.0, testutil.ToFloat64(p.httpRequestsTotal.WithLabelValues(http.MethodGet, "404")))
}
