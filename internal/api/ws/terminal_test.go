//go:build !windows

package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/webterm/internal/infrastructure/config"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webterm/internal/pty"
	"github.com/GriffinCanCode/webterm/internal/session"
)

const waitFor = 10 * time.Second

func testTerminalConfig() config.TerminalConfig {
	cfg := config.Default().Terminal
	cfg.Shell = "/bin/sh"
	cfg.PollInterval = 20 * time.Millisecond
	cfg.GracePeriod = 200 * time.Millisecond
	return cfg
}

func newTestServer(t *testing.T, h *Handler) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", h.HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil collects binary output until it contains want.
func readUntil(t *testing.T, conn *websocket.Conn, want string) string {
	t.Helper()
	var out strings.Builder
	deadline := time.Now().Add(waitFor)
	for !strings.Contains(out.String(), want) {
		require.NoError(t, conn.SetReadDeadline(deadline))
		mt, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q, got %q", want, out.String())
		assert.Equal(t, websocket.BinaryMessage, mt)
		out.Write(data)
	}
	return out.String()
}

// readClose drains output until the server closes the connection.
func readClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		return closeErr
	}
}

func sendInput(t *testing.T, conn *websocket.Conn, s string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(s)))
}

func sendResize(t *testing.T, conn *websocket.Conn, size pty.Size) {
	t.Helper()
	msg, err := session.EncodeResize(size)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))
}

func TestPrimingPrintsConnected(t *testing.T) {
	url := newTestServer(t, NewHandler(testTerminalConfig(), []string{"*"}, zap.NewNop()))
	conn := dial(t, url)

	readUntil(t, conn, "CONNECTED\r\n")
}

func TestResizeReachesShell(t *testing.T) {
	url := newTestServer(t, NewHandler(testTerminalConfig(), []string{"*"}, zap.NewNop()))
	conn := dial(t, url)
	readUntil(t, conn, "CONNECTED\r\n")

	sendResize(t, conn, pty.Size{Cols: 80, Rows: 24})
	sendInput(t, conn, "stty size\n")

	readUntil(t, conn, "24 80")
}

func TestTextKeystrokesReachShell(t *testing.T) {
	url := newTestServer(t, NewHandler(testTerminalConfig(), []string{"*"}, zap.NewNop()))
	conn := dial(t, url)
	readUntil(t, conn, "CONNECTED\r\n")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("echo text-$((40+2))\n")))
	readUntil(t, conn, "text-42")
}

func TestExitClosesConnection(t *testing.T) {
	url := newTestServer(t, NewHandler(testTerminalConfig(), []string{"*"}, zap.NewNop()))
	conn := dial(t, url)
	readUntil(t, conn, "CONNECTED\r\n")

	sendInput(t, conn, "exit\n")

	closeErr := readClose(t, conn)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "shell exited", closeErr.Text)
}

func TestDisconnectKillsShell(t *testing.T) {
	h := NewHandler(testTerminalConfig(), []string{"*"}, zap.NewNop())
	url := newTestServer(t, h)
	conn := dial(t, url)
	readUntil(t, conn, "CONNECTED\r\n")

	ids := h.Sessions().IDs()
	require.Len(t, ids, 1)
	sess, ok := h.Sessions().Get(ids[0])
	require.True(t, ok)
	pid := sess.Process().Pid()
	require.Positive(t, pid)

	// Drop the transport without a close handshake.
	require.NoError(t, conn.UnderlyingConn().Close())

	require.Eventually(t, func() bool { return h.Sessions().Len() == 0 }, waitFor, 10*time.Millisecond)
	assert.False(t, sess.Process().Alive())
	assert.Error(t, unix.Kill(pid, 0), "shell must be gone and reaped")
}

func TestIndependentSessions(t *testing.T) {
	url := newTestServer(t, NewHandler(testTerminalConfig(), []string{"*"}, zap.NewNop()))
	a := dial(t, url)
	b := dial(t, url)
	readUntil(t, a, "CONNECTED\r\n")
	readUntil(t, b, "CONNECTED\r\n")

	sendResize(t, a, pty.Size{Cols: 80, Rows: 24})
	sendInput(t, a, "stty size\n")
	readUntil(t, a, "24 80")

	sendInput(t, b, "stty size\n")
	readUntil(t, b, "32 120")

	sendInput(t, a, "exit\n")
	assert.Equal(t, websocket.CloseNormalClosure, readClose(t, a).Code)

	sendInput(t, b, "echo still-$((1+1))\n")
	readUntil(t, b, "still-2")
}

func TestSpawnFailureClosesWithInternalError(t *testing.T) {
	cfg := testTerminalConfig()
	cfg.Shell = "/nonexistent/shell"
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	h := NewHandler(cfg, []string{"*"}, zap.NewNop()).WithMetrics(metrics)
	url := newTestServer(t, h)

	conn := dial(t, url)
	closeErr := readClose(t, conn)

	assert.Equal(t, websocket.CloseInternalServerErr, closeErr.Code)
	assert.Contains(t, closeErr.Text, "resolve shell")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SpawnFailures.WithLabelValues("resolution")))
	require.Eventually(t, func() bool { return h.Sessions().Len() == 0 }, waitFor, 10*time.Millisecond)
}

func TestForeignOriginRejected(t *testing.T) {
	url := newTestServer(t, NewHandler(testTerminalConfig(), []string{"https://ok.example"}, zap.NewNop()))

	header := http.Header{"Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": {"https://ok.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestShutdownEndsSessions(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	h := NewHandler(testTerminalConfig(), []string{"*"}, zap.NewNop()).WithMetrics(metrics)
	url := newTestServer(t, h)
	conn := dial(t, url)
	readUntil(t, conn, "CONNECTED\r\n")

	shutdownErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		shutdownErr <- h.Shutdown(ctx)
	}()

	assert.Equal(t, websocket.CloseGoingAway, readClose(t, conn).Code)
	require.NoError(t, <-shutdownErr)
	assert.Equal(t, 0, h.Sessions().Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SessionsEnded.WithLabelValues(session.ReasonShutdown)))

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestKillTimeoutFollowsGracePeriod(t *testing.T) {
	cfg := testTerminalConfig()
	h := NewHandler(cfg, []string{"*"}, zap.NewNop())
	opts := make(chan pty.Options, 1)
	h.newProcess = func(o pty.Options) pty.Process {
		opts <- o
		return pty.New(o)
	}
	conn := dial(t, newTestServer(t, h))
	readUntil(t, conn, "CONNECTED\r\n")

	got := <-opts
	assert.Equal(t, cfg.GracePeriod, got.KillTimeout)
	assert.Equal(t, cfg.PollInterval, got.PollInterval)
}
