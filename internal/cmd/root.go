package cmd

import (
	"fmt"

	"github.com/GriffinCanCode/webterm/internal/infrastructure/config"
	"github.com/GriffinCanCode/webterm/internal/infrastructure/logging"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	devLogs  bool
)

var rootCmd = &cobra.Command{
	Use:   "webterm",
	Short: "Browser terminal backed by a real pty",
	Long: `webterm serves an xterm.js page and bridges each WebSocket connection
to its own shell running on a pseudo-terminal.

Without a subcommand it runs the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&devLogs, "dev", false, "human-readable development logs (overrides LOG_DEV)")
	addServeFlags(rootCmd)
}

// loadConfig reads the environment and applies any flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		if _, err := logging.ParseLevel(logLevel); err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("dev") {
		cfg.Logging.Development = devLogs
	}
	if f := flags.Lookup("port"); f != nil && f.Changed {
		cfg.Server.Port = servePort
	}
	if f := flags.Lookup("host"); f != nil && f.Changed {
		cfg.Server.Host = serveHost
	}
	return cfg, nil
}

// newLogger writes to stderr so command output on stdout stays clean.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	lc := logging.DefaultConfig()
	if cfg.Logging.Development {
		lc = logging.DevelopmentConfig()
	}
	lc.Level = cfg.Logging.Level
	lc.OutputPaths = []string{"stderr"}
	return logging.New(lc)
}
