// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track HTTP request patterns and performance
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestSize measures HTTP request body size in bytes
	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize measures HTTP response body size in bytes
	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// ActiveConnections tracks the number of active HTTP connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)
)

// Provider metrics track the resilience layer around upstream survey providers
var (
	// ProviderCallsTotal counts primary provider calls by outcome
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_calls_total",
			Help: "Total number of provider calls",
		},
		[]string{"provider", "result"}, // result: success, failure, rejected
	)

	// ProviderCallDuration measures successful provider call latency
	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_duration_seconds",
			Help:    "Provider call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		},
		[]string{"provider"},
	)

	// CircuitState exposes the breaker state per provider (0=closed, 1=half-open, 2=open)
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provider_circuit_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)

	// CircuitTransitionsTotal counts breaker state transitions
	CircuitTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_circuit_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"provider", "from", "to"},
	)

	// RetryAttemptsTotal counts retries scheduled after a failed attempt
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retries scheduled",
		},
		[]string{"operation"},
	)

	// FallbackResolutionsTotal counts which fallback level answered
	FallbackResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_resolutions_total",
			Help: "Total number of fallback chain resolutions by level",
		},
		[]string{"provider", "level"}, // level: primary, custom, cache, alternative, degraded
	)

	// HealthProbesTotal counts background health probes
	HealthProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_probe_total",
			Help: "Total number of provider health probes",
		},
		[]string{"provider", "result"},
	)

	// AggregationDuration measures a full fan-out across providers
	AggregationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offer_aggregation_duration_seconds",
			Help:    "Time taken to aggregate offers across providers",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"source"}, // source: cache, fanout
	)

	// OffersReturned observes the number of offers returned per aggregation
	OffersReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "offers_returned",
			Help:    "Number of offers returned per aggregation",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	// MatchScore observes computed match scores
	MatchScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "offer_match_score",
			Help:    "Distribution of offer match scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)
)

// Cache metrics track the response cache
var (
	// CacheRequestsTotal counts cache lookups by result
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offer_cache_requests_total",
			Help: "Total number of response cache lookups",
		},
		[]string{"result"}, // result: hit, miss, expired
	)

	// CacheEntries tracks the number of entries held by the cache
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offer_cache_entries",
			Help: "Number of entries in the response cache",
		},
	)

	// CacheEvictionsTotal counts expired entries removed by reads or sweeps
	CacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offer_cache_evictions_total",
			Help: "Total number of expired cache entries evicted",
		},
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordHTTPRequest records an HTTP request with its metadata
func RecordHTTPRequest(method, path, status string, duration time.Duration, requestSize, responseSize int) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())

	if requestSize > 0 {
		HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	}
	if responseSize > 0 {
		HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}

// RecordOperationDuration records the duration of a named operation
func RecordOperationDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
