// Package metrics exposes prometheus collectors for aggregation runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketpulse"

// Run results.
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultCancelled = "cancelled"
)

// Collaborator labels.
const (
	CollaboratorExtractor  = "extractor"
	CollaboratorClassifier = "classifier"
)

// Metrics holds the collectors and the registry they are registered on.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	articles    prometheus.Counter
	failures    *prometheus.CounterVec
	score       prometheus.Gauge
	lastRefresh prometheus.Gauge
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Aggregation runs by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Wall time of aggregation runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		articles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_processed_total",
			Help:      "Articles scored by aggregation runs.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_failures_total",
			Help:      "Per-article extractor and classifier failures absorbed with defaults.",
		}, []string{"collaborator"}),
		score: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "market_score",
			Help:      "Total market score of the published snapshot.",
		}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last published snapshot.",
		}),
	}
	m.registry.MustRegister(
		m.runs, m.runDuration, m.articles, m.failures, m.score, m.lastRefresh,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

// ObserveSnapshot records a published snapshot.
func (m *Metrics) ObserveSnapshot(articles, extractionFailures, classificationFailures int, total float64, at time.Time) {
	if m == nil {
		return
	}
	m.articles.Add(float64(articles))
	m.failures.WithLabelValues(CollaboratorExtractor).Add(float64(extractionFailures))
	m.failures.WithLabelValues(CollaboratorClassifier).Add(float64(classificationFailures))
	m.score.Set(total)
	m.lastRefresh.Set(float64(at.Unix()))
}
