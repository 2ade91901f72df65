package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visa_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "visa_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visa_login_attempts_total",
		Help: "Authentication attempts by outcome",
	}, []string{"result"})

	lockouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visa_account_lockouts_total",
		Help: "Number of times an account crossed the lockout threshold",
	})

	allocationAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "visa_number_allocation_attempts",
		Help:    "Attempts needed to allocate a visa number",
		Buckets: []float64{1, 2, 3, 5, 10},
	}, []string{"result"})

	ledgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visa_ledger_operations_total",
		Help: "Candidate ledger operations by kind and result",
	}, []string{"operation", "result"})

	renderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "visa_render_duration_seconds",
		Help:    "Duration of artifact rendering attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	renderQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visa_render_requests_total",
		Help: "Render requests emitted by source and result",
	}, []string{"source", "result"})

	publicLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visa_public_lookups_total",
		Help: "Public track and download lookups by kind and result",
	}, []string{"kind", "result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveLogin counts an authentication attempt.
func ObserveLogin(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

// ObserveLockout counts an account lock.
func ObserveLockout() {
	lockouts.Inc()
}

// ObserveAllocation records how many attempts an allocation took.
func ObserveAllocation(result string, attempts int) {
	allocationAttempts.WithLabelValues(result).Observe(float64(attempts))
}

// ObserveLedger counts a ledger operation.
func ObserveLedger(operation string, err error) {
	ledgerOperations.WithLabelValues(operation, resultLabel(err)).Inc()
}

// ObserveRender records one rendering attempt.
func ObserveRender(result string, duration time.Duration) {
	renderDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveRenderQueued counts a render request emission.
func ObserveRenderQueued(source string, err error) {
	renderQueued.WithLabelValues(source, resultLabel(err)).Inc()
}

// ObservePublicLookup counts a public lookup.
func ObservePublicLookup(kind string, err error) {
	publicLookups.WithLabelValues(kind, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
