package cmd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/GriffinCanCode/webterm/internal/infrastructure/server"
	"github.com/spf13/cobra"
)

var (
	probeURL     string
	probeTimeout time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Wait until a server reports healthy",
	Long: `Poll a server's /health endpoint until it answers, retrying connection
failures and server errors until the timeout. Exits non-zero if the server
never becomes healthy.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeURL, "url", "", "health URL (default: http://127.0.0.1:$PORT/health)")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 30*time.Second, "how long to keep trying")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	url := probeURL
	if url == "" {
		url = "http://" + net.JoinHostPort("127.0.0.1", cfg.Server.Port) + "/health"
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
	defer cancel()

	health, err := server.Probe(ctx, url, logger.Logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %d active sessions, up %s\n",
		url, health.Status, health.Sessions, health.Uptime)
	return nil
}
