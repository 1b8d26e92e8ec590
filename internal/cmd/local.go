package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/GriffinCanCode/webterm/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webterm/internal/pty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const sizePollInterval = 250 * time.Millisecond

var (
	localShell   string
	localLogin   bool
	localClean   bool
	localCommand string
)

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Run a shell on a pty in this terminal, without a browser",
	Long: `Attach the current terminal to a shell running on a fresh pty, the same
way the server does for a browser. Useful for checking shell resolution and
environment defaults.`,
	Args: cobra.NoArgs,
	RunE: runLocal,
}

func init() {
	localCmd.Flags().StringVar(&localShell, "shell", "", "shell to run (default: resolved like the server)")
	localCmd.Flags().BoolVar(&localLogin, "login", false, "start a login shell (-l)")
	localCmd.Flags().BoolVar(&localClean, "clean", true, "skip user rc files")
	localCmd.Flags().StringVarP(&localCommand, "command", "c", "", "run a command instead of an interactive shell")
	rootCmd.AddCommand(localCmd)
}

func runLocal(cmd *cobra.Command, args []string) error {
	stdin := int(os.Stdin.Fd())
	if !term.IsTerminal(stdin) {
		return errors.New("local requires an interactive terminal on stdin")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Logs would interleave with the shell's output.
	logger := logging.NewNop()
	if cmd.Flags().Changed("log-level") {
		if logger, err = newLogger(cfg); err != nil {
			return err
		}
	}

	argv := localArgv(pty.DefaultResolver())
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}

	proc := pty.New(pty.Options{
		Env:          pty.BuildEnv(os.Environ(), cfg.Terminal.EnvDefaults()),
		Dir:          cwd,
		PollInterval: cfg.Terminal.PollInterval,
		Logger:       logger.Logger,
	})
	if err := proc.Start(argv, terminalSize(stdin)); err != nil {
		return err
	}
	defer proc.Close()

	state, err := term.MakeRaw(stdin)
	if err != nil {
		return fmt.Errorf("failed to enter raw mode: %w", err)
	}
	defer func() { _ = term.Restore(stdin, state) }()

	go copyInput(proc, os.Stdin, logger.Logger)
	attach(proc, cmd.OutOrStdout(), stdin, cfg.Terminal.ReadBuffer)
	return nil
}

// localArgv picks the shell from --shell or the resolver and applies the
// start-up flags.
func localArgv(r *pty.Resolver) []string {
	shell := localShell
	if shell == "" {
		shell = r.Resolve()[0]
	}
	return pty.ShellArgs(shell, pty.ShellFlags{
		Login:   localLogin,
		Clean:   localClean,
		Command: localCommand,
	})
}

func terminalSize(fd int) pty.Size {
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return pty.DefaultSize
	}
	return pty.Size{Cols: cols, Rows: rows}.Merge(pty.DefaultSize)
}

// attach copies output to w until the child exits, following changes in
// the controlling terminal's size.
func attach(proc pty.Process, w io.Writer, fd, bufSize int) {
	buf := make([]byte, bufSize)
	last := proc.Size()
	lastCheck := time.Now()
	for {
		n, err := proc.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			continue
		}
		if err != nil || !proc.Alive() {
			return
		}
		if time.Since(lastCheck) >= sizePollInterval {
			lastCheck = time.Now()
			if size := terminalSize(fd); size != last {
				proc.Resize(size)
				last = size
			}
		}
	}
}

func copyInput(proc pty.Process, r io.Reader, log *zap.Logger) {
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := proc.Write(buf[:n]); werr != nil {
				if errors.Is(werr, pty.ErrChannelClosed) {
					return
				}
				log.Debug("Failed to forward input", zap.Error(werr))
			}
		}
		if err != nil {
			return
		}
	}
}
