// Package pty owns pseudo-terminal backed child processes.
//
// A Process is one interactive program (usually a login shell) attached to a
// pseudo-terminal. The package hides the two structurally different platform
// facilities behind a single interface:
//   - POSIX: a pty pair from creack/pty, readiness via poll(2), reaping via
//     wait4(2) with WNOHANG
//   - Windows: a ConPTY pseudo console with anonymous pipes, readiness via
//     PeekNamedPipe
//
// Lifecycle:
//
//	Unspawned --Start--> Running --exit/Terminate--> Terminated
//
// There is no transition back. The I/O channel is only usable while the
// process is Running; Read and Write report ErrChannelClosed afterwards.
//
// Read never blocks longer than Options.PollInterval and returns (0, nil)
// when no output is ready, so a caller can interleave it with other work.
//
// The package also resolves the default interactive shell for the host
// (see Resolver) and builds the explicit environment handed to children
// (see BuildEnv) so that no process-wide environment is mutated.
//
// Example Usage:
//
//	proc := pty.New(pty.Options{Env: pty.BuildEnv(os.Environ(), map[string]string{"TERM": "xterm-256color"})})
//	argv, _ := pty.DefaultResolver().ResolveArgv(nil)
//	if err := proc.Start(argv, pty.Size{Cols: 120, Rows: 32}); err != nil {
//		return err
//	}
//	defer proc.Close()
package pty
