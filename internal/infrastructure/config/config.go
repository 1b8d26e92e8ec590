package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Terminal  TerminalConfig
	Static    StaticConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// AllowedOrigins gates both CORS and the WebSocket upgrade.
	AllowedOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// TerminalConfig holds settings for spawned shells and their sessions.
type TerminalConfig struct {
	// Shell overrides shell resolution, split on whitespace.
	Shell        string        `envconfig:"TERMINAL_SHELL"`
	Cols         int           `envconfig:"TERMINAL_COLS" default:"120"`
	Rows         int           `envconfig:"TERMINAL_ROWS" default:"32"`
	Term         string        `envconfig:"TERMINAL_TERM" default:"xterm-256color"`
	ColorTerm    string        `envconfig:"TERMINAL_COLORTERM" default:"truecolor"`
	Locale       string        `envconfig:"TERMINAL_LOCALE" default:"C.UTF-8"`
	PollInterval time.Duration `envconfig:"TERMINAL_POLL_INTERVAL" default:"50ms"`
	GracePeriod  time.Duration `envconfig:"TERMINAL_GRACE_PERIOD" default:"250ms"`
	ReadBuffer   int           `envconfig:"TERMINAL_READ_BUFFER" default:"4096"`
	Prime        bool          `envconfig:"TERMINAL_PRIME" default:"true"`
}

// ShellArgv returns the configured shell override as argv, or nil.
func (t TerminalConfig) ShellArgv() []string {
	fields := strings.Fields(t.Shell)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// EnvDefaults returns the variables handed to shells when the server
// environment lacks them.
func (t TerminalConfig) EnvDefaults() map[string]string {
	return map[string]string{
		"TERM":      t.Term,
		"COLORTERM": t.ColorTerm,
		"LANG":      t.Locale,
		"LC_ALL":    t.Locale,
	}
}

// StaticConfig holds the client UI location.
type StaticConfig struct {
	// Dir serves the UI from disk instead of the embedded copy.
	Dir string `envconfig:"STATIC_DIR"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"10"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"20"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no session could run with.
func (c *Config) Validate() error {
	switch {
	case c.Terminal.Cols <= 0 || c.Terminal.Rows <= 0:
		return fmt.Errorf("invalid terminal size %dx%d", c.Terminal.Cols, c.Terminal.Rows)
	case c.Terminal.PollInterval <= 0:
		return fmt.Errorf("invalid poll interval %s", c.Terminal.PollInterval)
	case c.Terminal.GracePeriod < 0:
		return fmt.Errorf("invalid grace period %s", c.Terminal.GracePeriod)
	case c.Terminal.ReadBuffer <= 0:
		return fmt.Errorf("invalid read buffer %d", c.Terminal.ReadBuffer)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8000",
			Host:           "0.0.0.0",
			AllowedOrigins: []string{"*"},
		},
		Terminal: TerminalConfig{
			Cols:         120,
			Rows:         32,
			Term:         "xterm-256color",
			ColorTerm:    "truecolor",
			Locale:       "C.UTF-8",
			PollInterval: 50 * time.Millisecond,
			GracePeriod:  250 * time.Millisecond,
			ReadBuffer:   4096,
			Prime:        true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
			Enabled:           true,
		},
	}
}
