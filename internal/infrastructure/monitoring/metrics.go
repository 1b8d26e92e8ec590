package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Direction labels for traffic metrics.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsTotal    prometheus.Counter
	SessionsEnded    *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	SpawnFailures    *prometheus.CounterVec
	Resizes          prometheus.Counter
	TerminalBytes    *prometheus.CounterVec
	WriteErrors      prometheus.Counter
	ControlFallbacks prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the health endpoint.
type Snapshot struct {
	ActiveSessions int64 `json:"active_sessions"`
	TotalSessions  int64 `json:"total_sessions"`
	SpawnFailures  int64 `json:"spawn_failures"`
}

// NewMetrics creates a new metrics collector registered on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webterm_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webterm_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "webterm_sessions_active",
				Help: "Number of live terminal sessions",
			},
		),
		SessionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webterm_sessions_total",
				Help: "Total number of terminal sessions started",
			},
		),
		SessionsEnded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webterm_sessions_ended_total",
				Help: "Total number of terminal sessions ended, by reason",
			},
			[]string{"reason"},
		),
		SessionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webterm_session_duration_seconds",
				Help:    "Terminal session lifetime in seconds",
				Buckets: []float64{1, 10, 60, 300, 900, 3600, 14400, 86400},
			},
		),
		SpawnFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webterm_spawn_failures_total",
				Help: "Total number of sessions that failed to start a shell",
			},
			[]string{"cause"},
		),
		Resizes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webterm_resizes_total",
				Help: "Total number of applied resize control messages",
			},
		),
		TerminalBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webterm_terminal_bytes_total",
				Help: "Terminal bytes moved between connections and processes",
			},
			[]string{"direction"},
		),
		WriteErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webterm_pty_write_errors_total",
				Help: "Total number of failed writes to a pty",
			},
		),
		ControlFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webterm_control_fallbacks_total",
				Help: "Text frames that looked like control messages but were forwarded as input",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "webterm_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webterm_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "webterm_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
	}

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SessionStarted records a session whose shell is running.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()

	m.mu.Lock()
	m.snapshot.ActiveSessions++
	m.snapshot.TotalSessions++
	m.mu.Unlock()
}

// SessionEnded records the end of a started session.
func (m *Metrics) SessionEnded(reason string, lifetime time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsEnded.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(lifetime.Seconds())

	m.mu.Lock()
	m.snapshot.ActiveSessions--
	m.mu.Unlock()
}

// RecordSpawnFailure records a session that could not start its shell.
func (m *Metrics) RecordSpawnFailure(cause string) {
	if m == nil {
		return
	}
	m.SpawnFailures.WithLabelValues(cause).Inc()

	m.mu.Lock()
	m.snapshot.SpawnFailures++
	m.mu.Unlock()
}

// RecordResize records an applied resize.
func (m *Metrics) RecordResize() {
	if m == nil {
		return
	}
	m.Resizes.Inc()
}

// AddTerminalBytes records n terminal bytes moved in direction.
func (m *Metrics) AddTerminalBytes(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TerminalBytes.WithLabelValues(direction).Add(float64(n))
}

// RecordWriteError records a failed pty write.
func (m *Metrics) RecordWriteError() {
	if m == nil {
		return
	}
	m.WriteErrors.Inc()
}

// RecordControlFallback records a malformed control frame forwarded as input.
func (m *Metrics) RecordControlFallback() {
	if m == nil {
		return
	}
	m.ControlFallbacks.Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	if m == nil {
		return
	}
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// Snapshot returns the current session counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
