/*
Package monitoring provides metrics collection for terminal sessions.

# Overview

This package implements Prometheus-based metrics for the terminal bridge,
tracking HTTP requests, WebSocket traffic, session lifecycle and pty I/O.
Collectors are registered on an injected registry so that independent
servers (and tests) never collide on the global default registry.

# Features

- HTTP request metrics (latency, throughput, size)
- Session lifecycle metrics (active, started, ended by reason, duration)
- Spawn failure counts by cause
- Terminal byte counts per direction
- WebSocket message counts per direction and frame type
- Resize counts
- Uptime

All recording methods are safe on a nil *Metrics, which records nothing.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(monitoring.Handler(reg)))

	metrics.SessionStarted()
	defer metrics.SessionEnded("disconnect", time.Since(start))
*/
package monitoring
