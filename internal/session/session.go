package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webterm/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webterm/internal/pty"
	"github.com/GriffinCanCode/webterm/internal/shared/id"
)

const (
	defaultGracePeriod  = 250 * time.Millisecond
	defaultReadBuffer   = 4096
	defaultWriteTimeout = 10 * time.Second

	reapInterval = 10 * time.Millisecond
)

// End reasons reported to metrics and logs.
const (
	ReasonExit       = "exit"
	ReasonDisconnect = "disconnect"
	ReasonShutdown   = "shutdown"
	ReasonError      = "error"
	ReasonClosed     = "closed"
)

// Conn is the part of a WebSocket connection a session uses.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Config tunes a session.
type Config struct {
	// Shell overrides shell resolution when non-empty.
	Shell []string
	// Size is the initial terminal size.
	Size pty.Size
	// GracePeriod bounds both the wait for a terminated shell and the wait
	// for a client to answer the close frame.
	GracePeriod time.Duration
	// ReadBuffer is the largest chunk sent in one binary frame.
	ReadBuffer   int
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Size.IsZero() {
		c.Size = pty.DefaultSize
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = defaultGracePeriod
	}
	if c.ReadBuffer <= 0 {
		c.ReadBuffer = defaultReadBuffer
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	return c
}

// Session is one shell attached to one connection.
type Session struct {
	ID id.SessionID

	conn     Conn
	proc     pty.Process
	resolver *pty.Resolver
	cfg      Config
	log      *zap.Logger
	metrics  *monitoring.Metrics

	mu        sync.Mutex
	started   time.Time
	endErr    error
	closeOnce sync.Once
}

// New creates a session over conn that will run its shell in proc.
func New(sid id.SessionID, conn Conn, proc pty.Process, cfg Config, log *zap.Logger) *Session {
	return &Session{
		ID:       sid,
		conn:     conn,
		proc:     proc,
		resolver: pty.DefaultResolver(),
		cfg:      cfg.withDefaults(),
		log:      logging.ForSession(log, sid.String()),
	}
}

// WithMetrics attaches a metrics collector.
func (s *Session) WithMetrics(m *monitoring.Metrics) *Session {
	s.metrics = m
	return s
}

// WithResolver replaces the shell resolver.
func (s *Session) WithResolver(r *pty.Resolver) *Session {
	s.resolver = r
	return s
}

// Process returns the session's pty process.
func (s *Session) Process() pty.Process {
	return s.proc
}

// Start resolves the shell and spawns it. On failure the caller still owns
// the session and must Close it.
func (s *Session) Start() error {
	argv, err := s.resolver.ResolveArgv(s.cfg.Shell)
	if err != nil {
		s.metrics.RecordSpawnFailure("resolution")
		return fmt.Errorf("resolve shell: %w", err)
	}

	if err := s.proc.Start(argv, s.cfg.Size); err != nil {
		s.metrics.RecordSpawnFailure("spawn")
		return err
	}

	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()
	s.metrics.SessionStarted()

	size := s.proc.Size()
	s.log.Info("Session started",
		zap.Int("pid", s.proc.Pid()),
		zap.Strings("argv", argv),
		zap.Int("cols", size.Cols),
		zap.Int("rows", size.Rows),
	)
	return nil
}

// Prime writes seq to the shell.
func (s *Session) Prime(seq []byte) error {
	if _, err := s.proc.Write(seq); err != nil {
		return fmt.Errorf("prime shell: %w", err)
	}
	return nil
}

// Run pumps data until the shell exits, the client disconnects or ctx is
// cancelled, then tears the session down. The returned error says which:
// ErrProcessExited, ErrDisconnected or the context's error.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	err := s.pump(ctx)
	s.mu.Lock()
	s.endErr = err
	s.mu.Unlock()
	return err
}

// Close terminates the shell, waits up to the grace period for it to go,
// then releases it. Releasing escalates to SIGKILL and waits the process's
// KillTimeout after each signal, so a shell that ignores signals holds Close
// for the grace period plus twice the KillTimeout. Safe to call more than
// once and on sessions that never started.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.proc.Terminate()

		deadline := time.Now().Add(s.cfg.GracePeriod)
		for s.proc.Alive() && time.Now().Before(deadline) {
			time.Sleep(reapInterval)
		}
		if err := s.proc.Close(); err != nil {
			s.log.Warn("Failed to release pty process", zap.Error(err))
		}

		s.mu.Lock()
		started, endErr := s.started, s.endErr
		s.mu.Unlock()
		if started.IsZero() {
			return
		}

		reason := Reason(endErr)
		lifetime := time.Since(started)
		s.metrics.SessionEnded(reason, lifetime)
		s.log.Info("Session closed",
			zap.String("reason", reason),
			zap.Duration("duration", lifetime),
		)
	})
}

// Reason maps the error returned by Run to an end reason.
func Reason(err error) string {
	switch {
	case err == nil:
		return ReasonClosed
	case errors.Is(err, ErrProcessExited):
		return ReasonExit
	case errors.Is(err, ErrDisconnected):
		return ReasonDisconnect
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonShutdown
	default:
		return ReasonError
	}
}
