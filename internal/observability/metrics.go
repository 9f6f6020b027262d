package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for ingest and question counters.
const (
	OutcomeIndexed  = "indexed"
	OutcomeReused   = "reused"
	OutcomeFailed   = "failed"
	OutcomeAnswered = "answered"
	OutcomeFallback = "fallback"
)

// ServiceMetrics contains all metrics exported by the service. Collectors
// live on a private registry so tests can create instances freely without
// duplicate-registration panics.
type ServiceMetrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ingestion metrics
	IngestsTotal       *prometheus.CounterVec
	IngestDuration     prometheus.Histogram
	ChunksIndexedTotal prometheus.Counter

	// QA metrics
	QuestionsTotal    *prometheus.CounterVec
	RetrievalDuration prometheus.Histogram

	// LLM metrics
	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	LLMTokensTotal     *prometheus.CounterVec
}

// NewServiceMetrics creates service metrics on a fresh registry.
func NewServiceMetrics() *ServiceMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &ServiceMetrics{
		registry: reg,

		// HTTP
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docqa_http_requests_total",
			Help: "Total HTTP requests by path, method and status.",
		}, []string{"path", "method", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docqa_http_request_duration_seconds",
			Help:    "HTTP request duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),

		// Ingestion
		IngestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docqa_ingests_total",
			Help: "Document ingestions by outcome.",
		}, []string{"outcome"}),
		IngestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docqa_ingest_duration_seconds",
			Help:    "End-to-end document ingestion duration.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ChunksIndexedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "docqa_chunks_indexed_total",
			Help: "Total chunks written to the vector store.",
		}),

		// QA
		QuestionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docqa_questions_total",
			Help: "Questions processed by outcome.",
		}, []string{"outcome"}),
		RetrievalDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docqa_retrieval_duration_seconds",
			Help:    "Vector store query duration.",
			Buckets: prometheus.DefBuckets,
		}),

		// LLM
		LLMRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docqa_llm_requests_total",
			Help: "LLM API requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docqa_llm_request_duration_seconds",
			Help:    "LLM request duration.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		LLMTokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docqa_llm_tokens_total",
			Help: "Tokens consumed by provider and direction.",
		}, []string{"provider", "direction"}),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *ServiceMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *ServiceMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records one served HTTP request.
func (m *ServiceMetrics) RecordHTTPRequest(path, method string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordIngest records a document ingestion.
func (m *ServiceMetrics) RecordIngest(outcome string, duration time.Duration, chunks int) {
	m.IngestsTotal.WithLabelValues(outcome).Inc()
	m.IngestDuration.Observe(duration.Seconds())
	if chunks > 0 {
		m.ChunksIndexedTotal.Add(float64(chunks))
	}
}

// RecordQuestion records one processed question.
func (m *ServiceMetrics) RecordQuestion(outcome string, retrievalDuration time.Duration) {
	m.QuestionsTotal.WithLabelValues(outcome).Inc()
	m.RetrievalDuration.Observe(retrievalDuration.Seconds())
}

// RecordLLMRequest records an LLM request.
func (m *ServiceMetrics) RecordLLMRequest(provider string, duration time.Duration, inputTokens, outputTokens int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.LLMRequestsTotal.WithLabelValues(provider, outcome).Inc()
	m.LLMRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if inputTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

// Global metrics instance
var globalMetrics *ServiceMetrics
var metricsOnce sync.Once

// Metrics returns the global metrics instance.
func Metrics() *ServiceMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewServiceMetrics()
	})
	return globalMetrics
}
