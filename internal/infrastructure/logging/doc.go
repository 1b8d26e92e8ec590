// Package logging provides structured logging using uber/zap.
//
// Two output modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a plain *zap.Logger and scope it per session with
// ForSession, so every line a session emits carries its id. Frame-level
// traffic is logged at debug only.
//
// Example Usage:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	log := logging.ForSession(logger.Logger, id)
//	log.Info("Session started", zap.Int("pid", pid))
package logging
