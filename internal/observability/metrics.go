package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	recommendations *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	autoDispatch    *prometheus.CounterVec
	retrains        *prometheus.CounterVec
	retrainDuration prometheus.Histogram
}

// NewMetrics registers collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_http_requests_total",
			Help: "HTTP requests by path, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_http_errors_total",
			Help: "HTTP errors by path, method and error code.",
		}, []string{"path", "method", "code"}),
		recommendations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_recommendations_total",
			Help: "Recommendation requests by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_fallbacks_total",
			Help: "Times a strategy degraded to the workload fallback.",
		}, []string{"strategy", "reason"}),
		autoDispatch: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_auto_dispatch_total",
			Help: "Auto-dispatch attempts by result.",
		}, []string{"result"}),
		retrains: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_model_retrains_total",
			Help: "Model retrain attempts by outcome.",
		}, []string{"outcome"}),
		retrainDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_model_retrain_duration_seconds",
			Help:    "Duration of model retrains that ran.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
}

// RecordRequest counts an HTTP request.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError counts an HTTP error response.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordRecommendation counts a recommendation by the strategy that produced it.
func (m *Metrics) RecordRecommendation(strategy, outcome string) {
	if m == nil {
		return
	}
	m.recommendations.WithLabelValues(strategy, outcome).Inc()
}

// RecordFallback counts a degradation to the workload strategy.
func (m *Metrics) RecordFallback(strategy, reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(strategy, reason).Inc()
}

// RecordAutoDispatch counts an auto-dispatch attempt.
func (m *Metrics) RecordAutoDispatch(result string) {
	if m == nil {
		return
	}
	m.autoDispatch.WithLabelValues(result).Inc()
}

// RecordRetrain counts a retrain outcome; duration is observed only when non-zero.
func (m *Metrics) RecordRetrain(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.retrains.WithLabelValues(outcome).Inc()
	if duration > 0 {
		m.retrainDuration.Observe(duration.Seconds())
	}
}
