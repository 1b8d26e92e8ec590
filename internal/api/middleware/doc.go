// Package middleware provides the HTTP middleware in front of the session
// endpoint.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting of session upgrades
//   - RequestID: Prefixed ULID per request, echoed in X-Request-ID
//   - Logger: zap request logging
//
// OriginAllowed applies the CORS origin list to WebSocket upgrades, which
// browsers do not subject to CORS.
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.Logger(log))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.GET("/ws", middleware.RateLimit(middleware.RateLimitConfig{RequestsPerSecond: 10, Burst: 20}), handler)
package middleware
