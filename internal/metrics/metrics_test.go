package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRun(t *testing.T) {
	m := New()
	m.ObserveRun(ResultSuccess, 2*time.Second)
	m.ObserveRun(ResultSuccess, time.Second)
	m.ObserveRun(ResultFailure, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(ResultFailure)))
}

func TestObserveSnapshot(t *testing.T) {
	m := New()
	at := time.Unix(1714550400, 0)
	m.ObserveSnapshot(3, 1, 2, -4.5, at)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.articles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues(CollaboratorExtractor)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.failures.WithLabelValues(CollaboratorClassifier)))
	assert.Equal(t, -4.5, testutil.ToFloat64(m.score))
	assert.Equal(t, 1714550400.0, testutil.ToFloat64(m.lastRefresh))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun(ResultSuccess, time.Second)
		m.ObserveSnapshot(1, 0, 0, 1, time.Now())
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRun(ResultSuccess, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `marketpulse_pipeline_runs_total{result="success"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
