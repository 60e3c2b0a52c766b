// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	DocsConsumedTotal   prometheus.Counter
	DocsRejectedTotal   *prometheus.CounterVec
	TokensConsumedTotal prometheus.Counter
	SegmentFlushesTotal *prometheus.CounterVec
	CorpusBufferedDocs  prometheus.Gauge
	CorpusSegments      prometheus.Gauge
	CorpusVocabTerms    prometheus.Gauge

	TrainerIterationsTotal prometheus.Counter
	TrainerLogLikelihood   prometheus.Gauge

	TopicQueriesTotal   *prometheus.CounterVec
	TopicQueryLatency   *prometheus.HistogramVec
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DocsConsumedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "corpus_docs_consumed_total",
				Help: "Total documents consumed from the ingest topic.",
			},
		),
		DocsRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_docs_rejected_total",
				Help: "Total documents rejected before corpus building, by reason.",
			},
			[]string{"reason"},
		),
		TokensConsumedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "corpus_tokens_consumed_total",
				Help: "Total analyzed tokens added to the corpus buffer.",
			},
		),
		SegmentFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_segment_flushes_total",
				Help: "Total segment flush operations by status.",
			},
			[]string{"status"},
		),
		CorpusBufferedDocs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_buffered_docs",
				Help: "Documents currently buffered awaiting a segment flush.",
			},
		),
		CorpusSegments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_segments",
				Help: "Segment files in the corpus directory.",
			},
		),
		CorpusVocabTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_vocabulary_terms",
				Help: "Distinct terms in the shared vocabulary.",
			},
		),
		TrainerIterationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trainer_iterations_total",
				Help: "Total completed Gibbs sweeps across training runs.",
			},
		),
		TrainerLogLikelihood: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trainer_log_likelihood",
				Help: "Log-likelihood after the most recent completed sweep.",
			},
		),
		TopicQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topic_queries_total",
				Help: "Total topic model queries by result type (hit, miss, error).",
			},
			[]string{"result_type"},
		),
		TopicQueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "topic_query_latency_seconds",
				Help:    "Topic model query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DocsConsumedTotal,
		m.DocsRejectedTotal,
		m.TokensConsumedTotal,
		m.SegmentFlushesTotal,
		m.CorpusBufferedDocs,
		m.CorpusSegments,
		m.CorpusVocabTerms,
		m.TrainerIterationsTotal,
		m.TrainerLogLikelihood,
		m.TopicQueriesTotal,
		m.TopicQueryLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
