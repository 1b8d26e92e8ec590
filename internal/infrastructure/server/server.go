package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webterm/internal/api/middleware"
	"github.com/GriffinCanCode/webterm/internal/api/ws"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/config"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webterm/web"
)

const readHeaderTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	terminal *ws.Handler
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
	registry *prometheus.Registry
	started  time.Time
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger.Info("Initializing webterm server",
		zap.String("addr", cfg.Server.Addr()),
		zap.Strings("shell_override", cfg.Terminal.ShellArgv()),
		zap.Int("cols", cfg.Terminal.Cols),
		zap.Int("rows", cfg.Terminal.Rows),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	static, err := staticFiles(cfg.Static.Dir)
	if err != nil {
		return nil, err
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Logger))
	router.Use(monitoring.Middleware(metrics))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.Server.AllowedOrigins
	router.Use(middleware.CORS(corsCfg))

	terminal := ws.NewHandler(cfg.Terminal, cfg.Server.AllowedOrigins, logger.Logger).WithMetrics(metrics)

	s := &Server{
		router:   router,
		terminal: terminal,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		registry: registry,
		started:  time.Now(),
	}

	wsHandlers := []gin.HandlerFunc{terminal.HandleConnection}
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limit := middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		})
		wsHandlers = append([]gin.HandlerFunc{limit}, wsHandlers...)
	}

	router.GET("/", s.root)
	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(monitoring.Handler(registry, metrics)))
	app := gin.WrapH(gzhttp.GzipHandler(http.StripPrefix("/app", http.FileServer(http.FS(static)))))
	router.GET("/app/*filepath", app)
	router.HEAD("/app/*filepath", app)
	router.GET("/ws", wsHandlers...)

	s.http = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

// staticFiles returns dir when set, otherwise the embedded client.
func staticFiles(dir string) (fs.FS, error) {
	if dir == "" {
		return web.Static(), nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("static dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("static dir %s is not a directory", dir)
	}
	return os.DirFS(dir), nil
}

func (s *Server) root(c *gin.Context) {
	c.Redirect(http.StatusTemporaryRedirect, "/app/")
}

func (s *Server) health(c *gin.Context) {
	body, err := sonic.Marshal(HealthResponse{
		Status:   "ok",
		Sessions: s.terminal.Sessions().Len(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	})
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address and serves until Shutdown.
func (s *Server) Run() error {
	l, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(l)
}

// Serve serves on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", l.Addr().String()))
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, ends every session and waits for
// them until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...",
		zap.Int("sessions", s.terminal.Sessions().Len()),
	)

	// Hijacked WebSocket connections are invisible to http.Server.Shutdown.
	termErr := s.terminal.Shutdown(ctx)
	httpErr := s.http.Shutdown(ctx)

	_ = s.logger.Sync()
	return errors.Join(termErr, httpErr)
}
