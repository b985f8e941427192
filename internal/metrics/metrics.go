// Package metrics owns the prometheus collectors for chat turns, SQL safety
// rejections, generation, execution, introspection and HTTP traffic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chatTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webdbchat_chat_turns_total",
			Help: "Total number of chat turns by outcome.",
		},
		[]string{"outcome"},
	)
	validationRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webdbchat_validation_rejections_total",
			Help: "Total number of generated statements rejected by the SQL validator.",
		},
		[]string{"reason"},
	)
	generationLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webdbchat_generation_latency_ms",
			Help:    "LLM generation latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
		[]string{"provider"},
	)
	generationRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webdbchat_generation_retries_total",
			Help: "Total number of retried generation attempts.",
		},
		[]string{"provider"},
	)
	executedRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webdbchat_executed_rows_total",
			Help: "Total number of rows returned by executed statements.",
		},
		[]string{"engine"},
	)
	truncatedResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webdbchat_truncated_results_total",
			Help: "Total number of result sets cut at the row limit.",
		},
		[]string{"engine"},
	)
	introspectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webdbchat_schema_introspections_total",
			Help: "Total number of schema introspections by outcome.",
		},
		[]string{"engine", "outcome"},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webdbchat_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webdbchat_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		chatTurnsTotal,
		validationRejectionsTotal,
		generationLatencyMs,
		generationRetriesTotal,
		executedRowsTotal,
		truncatedResultsTotal,
		introspectionsTotal,
		httpRequestsTotal,
		httpRequestDurationSeconds,
	)
}

func ObserveTurn(outcome string) {
	chatTurnsTotal.WithLabelValues(outcome).Inc()
}

func ObserveRejection(reason string) {
	validationRejectionsTotal.WithLabelValues(reason).Inc()
}

func ObserveGeneration(provider string, elapsed time.Duration) {
	generationLatencyMs.WithLabelValues(provider).Observe(float64(elapsed.Milliseconds()))
}

func IncrementGenerationRetry(provider string) {
	generationRetriesTotal.WithLabelValues(provider).Inc()
}

// ObserveExecution records the row count of one executed statement.
func ObserveExecution(engine string, rows int, truncated bool) {
	if rows > 0 {
		executedRowsTotal.WithLabelValues(engine).Add(float64(rows))
	}
	if truncated {
		truncatedResultsTotal.WithLabelValues(engine).Inc()
	}
}

func ObserveIntrospection(engine, outcome string) {
	introspectionsTotal.WithLabelValues(engine, outcome).Inc()
}

func ObserveHTTPRequest(method, path, status string, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, path, status).Observe(elapsed.Seconds())
}
