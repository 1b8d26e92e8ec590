package pty

import (
	"os"
	"time"

	"go.uber.org/zap"
)

const (
	// MaxDimension is the largest column or row count a terminal accepts.
	MaxDimension = 65535

	defaultPollInterval = 50 * time.Millisecond
	defaultKillTimeout  = 2 * time.Second
)

// DefaultSize is used when neither the caller nor a previous resize supplied
// a dimension.
var DefaultSize = Size{Cols: 120, Rows: 32}

// State is the lifecycle state of a Process.
type State int

const (
	StateUnspawned State = iota
	StateRunning
	StateTerminated
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateUnspawned:
		return "unspawned"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Size is a terminal window size in character cells.
type Size struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// Merge returns s with every non-positive dimension replaced by the one in
// prev, falling back to 1, and every dimension capped at MaxDimension.
func (s Size) Merge(prev Size) Size {
	return Size{
		Cols: pickDimension(s.Cols, prev.Cols),
		Rows: pickDimension(s.Rows, prev.Rows),
	}
}

// IsZero reports whether no dimension is set.
func (s Size) IsZero() bool {
	return s.Cols <= 0 && s.Rows <= 0
}

func pickDimension(v, prev int) int {
	if v <= 0 {
		v = prev
	}
	if v <= 0 {
		v = 1
	}
	if v > MaxDimension {
		v = MaxDimension
	}
	return v
}

// Process is a child process attached to a pseudo-terminal.
//
// Write and Read may be called concurrently with each other (one writer,
// one reader). Close must not race with Read or Write.
type Process interface {
	// Start spawns argv attached to a new pseudo-terminal of the given size.
	// Failures are *SpawnError.
	Start(argv []string, size Size) error

	// Write forwards raw bytes to the child's input.
	Write(p []byte) (int, error)

	// Read returns available output, waiting at most the poll interval.
	// It returns (0, nil) when nothing is ready.
	Read(p []byte) (int, error)

	// Resize updates the terminal size. Before Start the size is kept and
	// applied at spawn. Failures are logged, not returned.
	Resize(size Size)

	// Terminate asks the child to exit. Safe to call repeatedly.
	Terminate()

	// Alive reports whether the child is still running, reaping it if it
	// has exited.
	Alive() bool

	// Close terminates the child if needed, waits a bounded time for it to
	// exit and releases the channel. Safe to call repeatedly.
	Close() error

	Size() Size
	Pid() int
	State() State
	Argv() []string
}

// Options configures a Process.
type Options struct {
	// Env is the complete child environment. Nil inherits os.Environ().
	Env []string

	// Dir is the working directory. Empty means the user's home directory
	// when it can be resolved, otherwise the inherited directory.
	Dir string

	// PollInterval bounds how long Read waits for output.
	PollInterval time.Duration

	// KillTimeout bounds how long Close waits after each signal.
	KillTimeout time.Duration

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.KillTimeout <= 0 {
		o.KillTimeout = defaultKillTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// New returns an unspawned Process for the current platform.
func New(opts Options) Process {
	return newProcess(opts.withDefaults())
}

// workingDir resolves the directory a child starts in. Resolution failures
// leave the inherited directory in place.
func workingDir(dir string) string {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = home
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return ""
	}
	return dir
}

func copyArgv(argv []string) []string {
	out := make([]string, len(argv))
	copy(out, argv)
	return out
}
