package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinia_analyses_total",
			Help: "Total number of analysis requests served",
		},
		[]string{"source"},
	)

	analysisCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinia_analysis_cache_hits_total",
			Help: "Total number of analyses served from the fingerprint cache",
		},
	)

	aiCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinia_ai_calls_total",
			Help: "Total number of real model calls by outcome",
		},
		[]string{"outcome"},
	)

	aiCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clinia_ai_call_duration_seconds",
			Help:    "Real model call duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinia_rate_limit_rejections_total",
			Help: "Total number of model calls rejected by admission control",
		},
	)

	breakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clinia_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	persistenceFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinia_persistence_failures_total",
			Help: "Total number of non-fatal result store failures",
		},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordAnalysis records a completed analysis by response source
func RecordAnalysis(source string) {
	analysesTotal.WithLabelValues(source).Inc()
}

// RecordCacheHit records an analysis served from the fingerprint cache
func RecordCacheHit() {
	analysisCacheHits.Inc()
}

// RecordAICall records a real model call and its outcome
func RecordAICall(outcome string, duration time.Duration) {
	aiCallsTotal.WithLabelValues(outcome).Inc()
	aiCallDuration.Observe(duration.Seconds())
}

// RecordRateLimitRejection records an admission-control rejection
func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

// RecordBreakerState records the current circuit breaker state
func RecordBreakerState(state int) {
	breakerState.Set(float64(state))
}

// RecordPersistenceFailure records a non-fatal result store failure
func RecordPersistenceFailure() {
	persistenceFailures.Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
