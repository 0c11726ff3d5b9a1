package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Auth coordinator metrics
	AuthOperations    *prometheus.CounterVec
	AuthOpDuration    *prometheus.HistogramVec
	SingleFlightJoins *prometheus.CounterVec
	DebounceHits      prometheus.Counter
	SessionEvents     *prometheus.CounterVec
	Authenticated     prometheus.Gauge

	// Workspace metrics
	WorkspaceSwitches *prometheus.CounterVec
	RegistrySyncs     *prometheus.CounterVec
	WorkspacesKnown   prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlab_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatlab_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		AuthOperations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlab_auth_operations_total",
				Help: "Coordinator operations by kind and outcome",
			},
			[]string{"operation", "outcome"},
		),
		AuthOpDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatlab_auth_operation_duration_seconds",
				Help:    "Coordinator operation duration in seconds",
				Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 10, 30},
			},
			[]string{"operation"},
		),
		SingleFlightJoins: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlab_auth_single_flight_joins_total",
				Help: "Callers that joined an in-flight operation instead of starting one",
			},
			[]string{"operation"},
		),
		DebounceHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chatlab_auth_debounce_hits_total",
				Help: "Restoration checks short-circuited by the debounce window",
			},
		),
		SessionEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlab_session_events_total",
				Help: "Session events emitted to subscribers",
			},
			[]string{"kind"},
		),
		Authenticated: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatlab_session_authenticated",
				Help: "1 when the coordinator reports an authenticated session",
			},
		),

		WorkspaceSwitches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlab_workspace_switches_total",
				Help: "Workspace switch attempts by outcome",
			},
			[]string{"outcome"},
		),
		RegistrySyncs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlab_workspace_registry_syncs_total",
				Help: "Remote registry sync attempts by outcome",
			},
			[]string{"outcome"},
		),
		WorkspacesKnown: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatlab_workspaces_known",
				Help: "Number of workspaces in the local registry",
			},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatlab_ws_connections",
				Help: "Active WebSocket connections",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatlab_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}
}

// RecordHTTPRequest records metrics for an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAuthOperation records a completed coordinator operation
func (m *Metrics) RecordAuthOperation(operation, outcome string, duration time.Duration) {
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
	m.AuthOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSingleFlightJoin records a caller that shared an in-flight result
func (m *Metrics) RecordSingleFlightJoin(operation string) {
	m.SingleFlightJoins.WithLabelValues(operation).Inc()
}

// RecordDebounceHit records a debounce short-circuit
func (m *Metrics) RecordDebounceHit() {
	m.DebounceHits.Inc()
}

// RecordSessionEvent records an emitted session event
func (m *Metrics) RecordSessionEvent(kind string) {
	m.SessionEvents.WithLabelValues(kind).Inc()
}

// SetAuthenticated updates the authenticated-session gauge
func (m *Metrics) SetAuthenticated(authenticated bool) {
	if authenticated {
		m.Authenticated.Set(1)
	} else {
		m.Authenticated.Set(0)
	}
}

// RecordWorkspaceSwitch records a workspace switch attempt
func (m *Metrics) RecordWorkspaceSwitch(outcome string) {
	m.WorkspaceSwitches.WithLabelValues(outcome).Inc()
}

// RecordRegistrySync records a remote registry sync attempt
func (m *Metrics) RecordRegistrySync(outcome string) {
	m.RegistrySyncs.WithLabelValues(outcome).Inc()
}

// UpdateUptime refreshes the uptime gauge
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
