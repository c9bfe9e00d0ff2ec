package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for blockgraph
type Metrics struct {
	// Workflow metrics
	operationsTotal     *prometheus.CounterVec
	connectionsRejected prometheus.Counter
	referencesRewritten *prometheus.CounterVec
	layoutDuration      prometheus.Histogram
	graphNodes          prometheus.Gauge

	// Draft metrics
	draftSyncs     *prometheus.CounterVec
	draftConflicts prometheus.Counter

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance registered on its own registry,
// together with the Go runtime and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockgraph_operations_total",
				Help: "Total number of workflow operations by name",
			},
			[]string{"operation"},
		),

		connectionsRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blockgraph_connections_rejected_total",
				Help: "Total number of connections refused by the capability table",
			},
		),

		referencesRewritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockgraph_references_rewritten_total",
				Help: "Total number of blocks rewritten by variable rename or removal",
			},
			[]string{"operation"},
		),

		layoutDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "blockgraph_layout_duration_seconds",
				Help:    "Auto layout duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
		),

		graphNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "blockgraph_graph_nodes",
				Help: "Number of nodes in the last loaded graph",
			},
		),

		draftSyncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockgraph_draft_syncs_total",
				Help: "Total number of draft sync attempts by status",
			},
			[]string{"status"},
		),

		draftConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blockgraph_draft_conflicts_total",
				Help: "Total number of draft saves rejected for a stale hash",
			},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockgraph_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blockgraph_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.operationsTotal,
		m.connectionsRejected,
		m.referencesRewritten,
		m.layoutDuration,
		m.graphNodes,
		m.draftSyncs,
		m.draftConflicts,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordOperation counts one workflow operation.
func (m *Metrics) RecordOperation(operation string) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation).Inc()
}

// RecordConnectionRejected counts a refused connection.
func (m *Metrics) RecordConnectionRejected() {
	if m == nil {
		return
	}
	m.connectionsRejected.Inc()
}

// RecordReferencesRewritten counts blocks rewritten by a rename or removal.
func (m *Metrics) RecordReferencesRewritten(operation string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.referencesRewritten.WithLabelValues(operation).Add(float64(n))
}

// ObserveLayout records the duration of one auto layout pass.
func (m *Metrics) ObserveLayout(d time.Duration) {
	if m == nil {
		return
	}
	m.layoutDuration.Observe(d.Seconds())
}

// SetGraphNodes updates the node count gauge.
func (m *Metrics) SetGraphNodes(n int) {
	if m == nil {
		return
	}
	m.graphNodes.Set(float64(n))
}

// RecordDraftSync counts a draft sync attempt.
func (m *Metrics) RecordDraftSync(status string) {
	if m == nil {
		return
	}
	m.draftSyncs.WithLabelValues(status).Inc()
}

// RecordDraftConflict counts a save rejected for a stale hash.
func (m *Metrics) RecordDraftConflict() {
	if m == nil {
		return
	}
	m.draftConflicts.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
