package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSessionLifecycleMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded("disconnect", 3*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SessionsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsEnded.WithLabelValues("disconnect")))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.ActiveSessions)
	assert.Equal(t, int64(2), snap.TotalSessions)
}

func TestTrafficMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.AddTerminalBytes(DirectionOut, 10)
	m.AddTerminalBytes(DirectionOut, 5)
	m.AddTerminalBytes(DirectionIn, 0)
	m.RecordResize()
	m.RecordSpawnFailure("spawn")
	m.RecordWSMessage(DirectionIn, "text")

	assert.Equal(t, float64(15), testutil.ToFloat64(m.TerminalBytes.WithLabelValues(DirectionOut)))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.TerminalBytes.WithLabelValues(DirectionIn)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Resizes))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SpawnFailures.WithLabelValues("spawn")))
	assert.Equal(t, int64(1), m.Snapshot().SpawnFailures)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionStarted()
		m.SessionEnded("exit", time.Second)
		m.RecordResize()
		m.AddTerminalBytes(DirectionIn, 4)
		m.RecordWSMessage(DirectionOut, "binary")
		m.UpdateUptime()
	})
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestIndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	router.GET("/metrics", gin.WrapH(Handler(reg, m)))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/ping", "200")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "webterm_http_requests_total")
	assert.Contains(t, w.Body.String(), "webterm_uptime_seconds")
}
