package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request metrics
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brain_requests_total",
		Help: "Total number of brain requests processed",
	}, []string{"application", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "brain_request_duration_seconds",
		Help:    "Duration of brain request processing",
		Buckets: prometheus.DefBuckets,
	}, []string{"application"})

	// Provider metrics
	providerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "brain_provider_request_duration_seconds",
		Help:    "Duration of provider calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "status"})

	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brain_provider_requests_total",
		Help: "Total number of provider calls",
	}, []string{"provider", "status"})

	// Security metrics
	securityEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brain_security_events_total",
		Help: "Total number of security events",
	}, []string{"event_type"})

	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brain_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	})

	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "brain_active_sessions",
		Help: "Number of active sessions",
	})

	sessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brain_sessions_created_total",
		Help: "Total number of sessions created",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRequest records a processed request
func (m *Metrics) RecordRequest(application, status string, duration time.Duration) {
	requestsTotal.WithLabelValues(application, status).Inc()
	requestDuration.WithLabelValues(application).Observe(duration.Seconds())
}

// RecordProviderRequest records a provider call
func (m *Metrics) RecordProviderRequest(provider, status string, duration time.Duration) {
	providerRequestDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
	providerRequestsTotal.WithLabelValues(provider, status).Inc()
}

// RecordSecurityEvent records a security event by type
func (m *Metrics) RecordSecurityEvent(eventType string) {
	securityEvents.WithLabelValues(eventType).Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded() {
	rateLimitExceeded.Inc()
}

// RecordSessionCreated records a created session
func (m *Metrics) RecordSessionCreated() {
	sessionsCreated.Inc()
}

// SetActiveSessions sets the number of active sessions
func (m *Metrics) SetActiveSessions(count float64) {
	activeSessions.Set(count)
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
