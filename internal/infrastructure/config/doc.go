// Package config provides 12-factor configuration management for webterm.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Terminal: shell override, default size, shell environment, pump timing
//   - Static: on-disk override of the embedded UI served under /app
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting of session upgrades
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		return err
//	}
//	fmt.Printf("Server running on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - PORT, HOST, CORS_ORIGINS
//   - TERMINAL_SHELL, TERMINAL_COLS, TERMINAL_ROWS, TERMINAL_TERM,
//     TERMINAL_COLORTERM, TERMINAL_LOCALE, TERMINAL_POLL_INTERVAL,
//     TERMINAL_GRACE_PERIOD, TERMINAL_READ_BUFFER, TERMINAL_PRIME
//   - STATIC_DIR
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
