package ws

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webterm/internal/api/middleware"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/config"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webterm/internal/pty"
	"github.com/GriffinCanCode/webterm/internal/session"
	"github.com/GriffinCanCode/webterm/internal/shared/id"
)

const (
	closeWriteWait = time.Second
	// maxCloseReason is the payload limit of a close frame minus the code.
	maxCloseReason = 123
)

// Handler manages terminal WebSocket connections
type Handler struct {
	cfg      config.TerminalConfig
	log      *zap.Logger
	metrics  *monitoring.Metrics
	sessions *session.Registry
	resolver *pty.Resolver
	upgrader websocket.Upgrader
	env      []string
	goos     string

	newProcess func(pty.Options) pty.Process

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// NewHandler creates a new terminal handler. Upgrades are accepted from the
// listed origins; see middleware.OriginAllowed.
func NewHandler(cfg config.TerminalConfig, origins []string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	h := &Handler{
		cfg:        cfg,
		log:        log,
		sessions:   session.NewRegistry(),
		resolver:   pty.DefaultResolver(),
		env:        pty.BuildEnv(os.Environ(), cfg.EnvDefaults()),
		goos:       runtime.GOOS,
		newProcess: pty.New,
		ctx:        ctx,
		cancel:     cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: max(cfg.ReadBuffer, 4096),
		CheckOrigin: func(r *http.Request) bool {
			return middleware.OriginAllowed(origins, r.Header.Get("Origin"), r.Host)
		},
	}
	return h
}

// WithMetrics attaches a metrics collector.
func (h *Handler) WithMetrics(m *monitoring.Metrics) *Handler {
	h.metrics = m
	return h
}

// WithResolver replaces the shell resolver.
func (h *Handler) WithResolver(r *pty.Resolver) *Handler {
	h.resolver = r
	return h
}

// Sessions returns the registry of live sessions.
func (h *Handler) Sessions() *session.Registry {
	return h.sessions
}

// HandleConnection upgrades the request and runs one session on it.
func (h *Handler) HandleConnection(c *gin.Context) {
	if !h.acquire() {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": "server shutting down",
		})
		return
	}
	defer h.wg.Done()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn("WebSocket upgrade failed",
			zap.String("client_ip", c.ClientIP()),
			zap.Error(err),
		)
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	h.serve(conn, c.ClientIP())
}

func (h *Handler) serve(conn *websocket.Conn, clientIP string) {
	sid := id.NewSessionID()
	log := h.log.With(zap.String("session_id", sid.String()))

	proc := h.newProcess(pty.Options{
		Env:          h.env,
		PollInterval: h.cfg.PollInterval,
		KillTimeout:  h.cfg.GracePeriod,
		Logger:       log,
	})
	sess := session.New(sid, conn, proc, session.Config{
		Shell:       h.cfg.ShellArgv(),
		Size:        pty.Size{Cols: h.cfg.Cols, Rows: h.cfg.Rows},
		GracePeriod: h.cfg.GracePeriod,
		ReadBuffer:  h.cfg.ReadBuffer,
	}, h.log).WithMetrics(h.metrics).WithResolver(h.resolver)

	h.sessions.Add(sess)
	defer h.sessions.Remove(sid)

	log.Info("Client connected", zap.String("client_ip", clientIP))

	if err := sess.Start(); err != nil {
		log.Error("Failed to start session", zap.Error(err))
		reject(conn, err)
		sess.Close()
		return
	}

	if h.cfg.Prime {
		if err := sess.Prime(session.PrimeSequence(h.goos)); err != nil {
			log.Warn("Failed to prime shell", zap.Error(err))
		}
	}

	err := sess.Run(h.ctx)
	log.Info("Client disconnected",
		zap.String("reason", session.Reason(err)),
		zap.NamedError("cause", err),
	)
}

// reject closes a connection whose session could not start.
func reject(conn *websocket.Conn, cause error) {
	reason := cause.Error()
	if len(reason) > maxCloseReason {
		reason = strings.ToValidUTF8(reason[:maxCloseReason], "")
	}
	msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
}

func (h *Handler) acquire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.wg.Add(1)
	return true
}

// Wait blocks until every session has ended.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// Shutdown refuses new connections, ends live sessions with a going-away
// close frame and waits for them to be torn down or ctx to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	for _, sid := range h.sessions.IDs() {
		if sess, ok := h.sessions.Get(sid); ok {
			h.log.Info("Ending session",
				zap.String("session_id", sid.String()),
				zap.Int("pid", sess.Process().Pid()),
			)
		}
	}
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
