//go:build !windows

package server

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/webterm/internal/infrastructure/config"
)

func TestServeAndShutdown(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Terminal.Shell = "/bin/sh"
		cfg.Terminal.GracePeriod = 200 * time.Millisecond
	})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- s.Serve(l) }()

	base := "http://" + l.Addr().String()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+l.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var out strings.Builder
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	for !strings.Contains(out.String(), "CONNECTED\r\n") {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		out.Write(data)
	}

	health, err := Probe(context.Background(), base+"/health", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, health.Sessions)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, <-served)

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
			break
		}
	}
}
