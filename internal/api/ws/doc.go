// Package ws provides the WebSocket endpoint that attaches browsers to
// shells.
//
// Each connection gets its own session: a freshly spawned login shell on a
// pseudo-terminal, streamed both ways until either side goes away.
//
// Frames (Client → Server):
//   - binary: raw terminal input
//   - text: {"type":"resize","cols":N,"rows":M}, or raw terminal input
//
// Frames (Server → Client):
//   - binary: raw terminal output, one frame per read
//   - close 1000: the shell exited
//   - close 1001: the server is shutting down
//   - close 1011: the shell could not be started; the reason carries the error
//
// Example Usage:
//
//	handler := ws.NewHandler(cfg.Terminal, cfg.Server.AllowedOrigins, logger).WithMetrics(metrics)
//	router.GET("/ws", handler.HandleConnection)
//	defer handler.Shutdown(ctx)
package ws
