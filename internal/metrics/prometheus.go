// Package metrics provides Prometheus metrics for the discovery service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInFlight        prometheus.Gauge

	routeLookupsTotal *prometheus.CounterVec
	linkAttemptsTotal *prometheus.CounterVec
	retriesScheduled  prometheus.Counter
	unreachableEvents prometheus.Counter

	knownNodes     prometheus.Gauge
	activeServices prometheus.Gauge
}

var globalMetrics *Metrics

// NewMetrics creates and registers the metrics. Registration happens once
// per process; later calls return the same instance.
func NewMetrics() *Metrics {
	if globalMetrics != nil {
		return globalMetrics
	}

	globalMetrics = &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "discovery_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		httpInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "discovery_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
		routeLookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_route_lookups_total",
				Help: "Total number of provider lookups",
			},
			[]string{"outcome"},
		),
		linkAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_link_attempts_total",
				Help: "Total number of node link attempts",
			},
			[]string{"outcome"},
		),
		retriesScheduled: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "discovery_link_retries_scheduled_total",
				Help: "Total number of link retries scheduled",
			},
		),
		unreachableEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "discovery_node_unreachable_events_total",
				Help: "Total number of node unreachability notifications handled",
			},
		),
		knownNodes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "discovery_known_nodes",
				Help: "Number of nodes currently registered in the directory",
			},
		),
		activeServices: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "discovery_active_services",
				Help: "Number of services with at least one provider",
			},
		),
	}
	return globalMetrics
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncInFlight increments the in-flight request gauge.
func (m *Metrics) IncInFlight() { m.httpInFlight.Inc() }

// DecInFlight decrements the in-flight request gauge.
func (m *Metrics) DecInFlight() { m.httpInFlight.Dec() }

// RecordRouteLookup records a provider lookup by outcome ("hit" or
// "no_servers").
func (m *Metrics) RecordRouteLookup(outcome string) {
	m.routeLookupsTotal.WithLabelValues(outcome).Inc()
}

// RecordLinkAttempt records a link attempt by outcome.
func (m *Metrics) RecordLinkAttempt(outcome string) {
	m.linkAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordRetryScheduled records one scheduled link retry.
func (m *Metrics) RecordRetryScheduled() { m.retriesScheduled.Inc() }

// RecordUnreachable records one handled unreachability notification.
func (m *Metrics) RecordUnreachable() { m.unreachableEvents.Inc() }

// SetDirectorySize updates the node and service gauges.
func (m *Metrics) SetDirectorySize(nodes, services int) {
	m.knownNodes.Set(float64(nodes))
	m.activeServices.Set(float64(services))
}
