package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/webterm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webterm/internal/pty"
)

const (
	msgBinary = "binary"
	msgText   = "text"
)

// pump runs the outbound loop, the inbound loop and the closer, and returns
// the cause that ended the first of them once all three have finished.
func (s *Session) pump(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	var (
		once  sync.Once
		first error
	)
	end := func(err error) error {
		once.Do(func() { first = err })
		return err
	}

	g.Go(func() error { return end(s.outbound(gctx)) })
	g.Go(func() error { return end(s.inbound()) })
	g.Go(func() error {
		<-gctx.Done()
		once.Do(func() { first = ctx.Err() })
		s.sendClose(first)
		return nil
	})

	// The first cause decides the end reason. A client echoing our close
	// frame can make inbound fail before outbound notices cancellation.
	_ = g.Wait()
	if first == nil {
		return ctx.Err()
	}
	return first
}

// outbound forwards pty output. Liveness is probed whenever a read comes
// back empty, so output buffered before an exit is still delivered.
func (s *Session) outbound(ctx context.Context) error {
	buf := make([]byte, s.cfg.ReadBuffer)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := s.proc.Read(buf)
		if err != nil {
			if errors.Is(err, pty.ErrChannelClosed) {
				return ErrProcessExited
			}
			return fmt.Errorf("read pty: %w", err)
		}
		if n == 0 {
			if !s.proc.Alive() {
				return ErrProcessExited
			}
			continue
		}

		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := s.conn.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
			return fmt.Errorf("%w: %w", ErrDisconnected, err)
		}
		s.metrics.AddTerminalBytes(monitoring.DirectionOut, n)
		s.metrics.RecordWSMessage(monitoring.DirectionOut, msgBinary)
	}
}

// inbound applies client frames in receipt order.
func (s *Session) inbound() error {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDisconnected, err)
		}

		switch mt {
		case websocket.BinaryMessage:
			s.metrics.RecordWSMessage(monitoring.DirectionIn, msgBinary)
			err = s.input(data)
		case websocket.TextMessage:
			s.metrics.RecordWSMessage(monitoring.DirectionIn, msgText)
			err = s.text(data)
		}
		if err != nil {
			return err
		}
	}
}

// text applies a resize control message or forwards the frame as input.
func (s *Session) text(data []byte) error {
	ctl, err := ParseControl(data)
	if err != nil {
		if looksLikeObject(data) {
			s.metrics.RecordControlFallback()
			s.log.Debug("Forwarding text frame as input", zap.Error(err))
		}
		return s.input(data)
	}

	s.proc.Resize(ctl.Size())
	s.metrics.RecordResize()

	size := s.proc.Size()
	s.log.Debug("Resized terminal", zap.Int("cols", size.Cols), zap.Int("rows", size.Rows))
	return nil
}

// input writes to the shell. A closed channel ends the session; other
// write failures are reported and the frame is dropped.
func (s *Session) input(data []byte) error {
	n, err := s.proc.Write(data)
	s.metrics.AddTerminalBytes(monitoring.DirectionIn, n)
	if err == nil {
		return nil
	}
	if errors.Is(err, pty.ErrChannelClosed) {
		return ErrProcessExited
	}

	s.metrics.RecordWriteError()
	s.log.Warn("Failed to write to pty",
		zap.Int("bytes", len(data)),
		zap.Int("written", n),
		zap.Error(err),
	)
	return nil
}

// sendClose tells the client the session is over and bounds how long the
// inbound loop waits for its reply.
func (s *Session) sendClose(cause error) {
	code, text := websocket.CloseNormalClosure, ""
	switch {
	case errors.Is(cause, ErrProcessExited):
		text = "shell exited"
	case errors.Is(cause, ErrDisconnected):
	case errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
		code, text = websocket.CloseGoingAway, "server shutting down"
	case cause != nil:
		code, text = websocket.CloseInternalServerErr, "internal error"
	}

	msg := websocket.FormatCloseMessage(code, text)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		s.log.Debug("Failed to send close frame", zap.Error(err))
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.GracePeriod))
}
