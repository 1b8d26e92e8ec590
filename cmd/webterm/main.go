// Command webterm serves a browser terminal backed by real pseudo-terminals.
//
// Usage:
//
//	# Serve on :8000 (the default command)
//	webterm serve --port 8000
//
//	# Same bridge, attached to the current terminal
//	webterm local --login
//
//	# Wait for a running server to become healthy
//	webterm probe --timeout 30s
//
// Signals:
//   - SIGINT, SIGTERM: close every session, then exit
package main

import (
	"os"

	"github.com/GriffinCanCode/webterm/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
