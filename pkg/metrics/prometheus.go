package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records escrow lifecycle metrics on its own registry
type Collector struct {
	registry           *prometheus.Registry
	transitions        *prometheus.CounterVec
	riskScores         prometheus.Histogram
	fallbacks          *prometheus.CounterVec
	assessmentDuration prometheus.Histogram
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// NewCollector creates a collector with Go runtime and process metrics registered
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_transitions_total",
			Help: "Escrow lifecycle operations by action and result",
		}, []string{"action", "result"}),
		riskScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "escrow_risk_score",
			Help:    "Distribution of recorded risk scores",
			Buckets: []float64{0, 30, 70, 100},
		}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_assessment_fallbacks_total",
			Help: "Transactions routed to manual review because no assessment was recorded",
		}, []string{"reason"}),
		assessmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "escrow_assessment_duration_seconds",
			Help:    "Time taken by the risk assessor",
			Buckets: prometheus.DefBuckets,
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "escrow_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// ObserveTransition counts one engine operation
func (c *Collector) ObserveTransition(action, result string) {
	c.transitions.WithLabelValues(action, result).Inc()
}

// ObserveRiskScore records a recorded risk score
func (c *Collector) ObserveRiskScore(score int) {
	c.riskScores.Observe(float64(score))
}

// ObserveFallback counts a manual review fallback. Free-text reasons are
// folded into a fixed label set.
func (c *Collector) ObserveFallback(reason string) {
	c.fallbacks.WithLabelValues(fallbackLabel(reason)).Inc()
}

func fallbackLabel(reason string) string {
	r := strings.ToLower(reason)
	switch {
	case strings.Contains(r, "timed out"), r == "timeout":
		return "timeout"
	case strings.Contains(r, "not configured"):
		return "not_configured"
	case strings.Contains(r, "invalid"):
		return "invalid_result"
	default:
		return "unavailable"
	}
}

// ObserveAssessmentDuration records how long the assessor took
func (c *Collector) ObserveAssessmentDuration(d time.Duration) {
	c.assessmentDuration.Observe(d.Seconds())
}

// ObserveHTTPRequest records one served request
func (c *Collector) ObserveHTTPRequest(route, method, code string, d time.Duration) {
	c.httpRequests.WithLabelValues(route, method, code).Inc()
	c.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
