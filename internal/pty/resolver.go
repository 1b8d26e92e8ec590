package pty

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Well-known shell locations, in search order.
const (
	WindowsPowerShell = `C:\Windows\System32\WindowsPowerShell\v1.0\powershell.exe`
	WindowsCmd        = "cmd.exe"
	TermuxBash        = "/data/data/com.termux/files/usr/bin/bash"
	PosixBash         = "/bin/bash"
	PosixSh           = "/bin/sh"
)

// Resolver chooses the default interactive program. Its lookups are
// injectable so the search order can be exercised on any host.
type Resolver struct {
	GOOS     string
	Getenv   func(string) string
	Exists   func(string) bool
	LookPath func(string) (string, error)
}

// DefaultResolver resolves against the real environment and filesystem.
func DefaultResolver() *Resolver {
	return &Resolver{
		GOOS:     runtime.GOOS,
		Getenv:   os.Getenv,
		Exists:   fileExists,
		LookPath: exec.LookPath,
	}
}

// Resolve returns the argv of the default interactive shell. It never fails:
// on POSIX the last candidate is assumed present, and on Windows a missing
// command processor surfaces when the process is spawned.
func (r *Resolver) Resolve() []string {
	if r.GOOS == "windows" {
		if comspec := r.Getenv("COMSPEC"); comspec != "" && r.Exists(comspec) {
			return []string{comspec}
		}
		if r.Exists(WindowsPowerShell) {
			return []string{WindowsPowerShell, "-NoLogo"}
		}
		return []string{WindowsCmd}
	}

	if shell := r.Getenv("SHELL"); shell != "" && r.Exists(shell) {
		return []string{shell}
	}
	for _, candidate := range []string{TermuxBash, PosixBash} {
		if r.Exists(candidate) {
			return []string{candidate}
		}
	}
	return []string{PosixSh}
}

// ResolveArgv honours an explicit override before falling back to Resolve.
// An override whose program cannot be found is ErrResolution.
func (r *Resolver) ResolveArgv(override []string) ([]string, error) {
	if len(override) == 0 || strings.TrimSpace(override[0]) == "" {
		return r.Resolve(), nil
	}

	program := override[0]
	if r.Exists(program) {
		return copyArgv(override), nil
	}
	if r.LookPath != nil {
		if _, err := r.LookPath(program); err == nil {
			return copyArgv(override), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrResolution, program)
}

// ShellFlags selects how ShellArgs starts an interactive shell.
type ShellFlags struct {
	// Login starts a login shell (-l).
	Login bool
	// Clean skips user rc files.
	Clean bool
	// Command runs a single command for shells without interactive flags.
	Command string
}

// ShellArgs builds the argv for starting shell interactively.
func ShellArgs(shell string, flags ShellFlags) []string {
	args := []string{shell}
	if flags.Login {
		args = append(args, "-l")
	}

	name := strings.TrimSuffix(filepath.Base(shell), ".exe")
	switch {
	case name == "bash" && flags.Clean:
		return append(args, "--noprofile", "--norc", "-i")
	case name == "zsh" && flags.Clean:
		return append(args, "-f", "-i")
	case flags.Clean:
		return append(args, "-i")
	case name == "bash", name == "zsh":
		return append(args, "-i")
	case flags.Command != "":
		return append(args, "-c", flags.Command)
	}
	return args
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
