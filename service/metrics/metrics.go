package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Wallet sync metrics
	refreshTotal    *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	fetchTotal      *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	refreshInFlight prometheus.Gauge
	invalidations   prometheus.Counter

	// Normalization metrics
	recordsNormalized prometheus.Counter
	recordsRejected   prometheus.Counter

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		refreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_refresh_total",
				Help: "Total number of wallet refresh calls by outcome",
			},
			[]string{"outcome", "forced"},
		),
		refreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wallet_refresh_duration_seconds",
				Help:    "Duration of wallet refreshes that issued network calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"outcome"},
		),
		fetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_fetch_total",
				Help: "Total number of remote wallet API fetches by data kind and status",
			},
			[]string{"kind", "status"},
		),
		fetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wallet_fetch_duration_seconds",
				Help:    "Duration of remote wallet API fetches in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"kind"},
		),
		refreshInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wallet_refresh_in_flight",
				Help: "1 while a wallet refresh is fetching, 0 otherwise",
			},
		),
		invalidations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wallet_invalidations_total",
				Help: "Total number of wallet state invalidations (sign-outs)",
			},
		),

		recordsNormalized: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wallet_records_normalized_total",
				Help: "Total number of transaction records accepted by the normalizer",
			},
		),
		recordsRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wallet_records_rejected_total",
				Help: "Total number of malformed transaction records dropped by the normalizer",
			},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Wallet sync metric helpers

// RecordRefresh records the outcome of a Refresh call.
func (m *Metrics) RecordRefresh(outcome string, forced bool) {
	f := "false"
	if forced {
		f = "true"
	}
	m.refreshTotal.WithLabelValues(outcome, f).Inc()
}

// RecordRefreshDuration records how long a fetching refresh took.
func (m *Metrics) RecordRefreshDuration(outcome string, duration float64) {
	m.refreshDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordFetch records one remote fetch (kind is "balance", "transactions" or "transaction").
func (m *Metrics) RecordFetch(kind string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.fetchTotal.WithLabelValues(kind, status).Inc()
	m.fetchDuration.WithLabelValues(kind).Observe(duration)
}

// SetRefreshInFlight toggles the in-flight gauge.
func (m *Metrics) SetRefreshInFlight(inFlight bool) {
	if inFlight {
		m.refreshInFlight.Set(1)
		return
	}
	m.refreshInFlight.Set(0)
}

// RecordInvalidation records a state invalidation.
func (m *Metrics) RecordInvalidation() {
	m.invalidations.Inc()
}

// Normalization metric helpers

// RecordRecordsNormalized records accepted transaction records.
func (m *Metrics) RecordRecordsNormalized(count int) {
	m.recordsNormalized.Add(float64(count))
}

// RecordRecordsRejected records dropped transaction records.
func (m *Metrics) RecordRecordsRejected(count int) {
	m.recordsRejected.Add(float64(count))
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
