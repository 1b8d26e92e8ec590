package pty

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrResolution reports that no viable shell could be found.
	ErrResolution = errors.New("no viable shell found")

	// ErrSpawn is matched by every *SpawnError.
	ErrSpawn = errors.New("spawn failed")

	// ErrChannelClosed reports I/O against a process that is not running.
	ErrChannelClosed = errors.New("pty channel closed")

	errAlreadyStarted = errors.New("process already started")
	errEmptyArgv      = errors.New("empty argv")
)

// SpawnError describes a failure to start the child process.
type SpawnError struct {
	Argv []string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", strings.Join(e.Argv, " "), e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrSpawn) match any SpawnError.
func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }
