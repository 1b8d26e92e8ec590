//go:build !windows

package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const reapInterval = 10 * time.Millisecond

// unixProcess drives a child through a pty master. All channel I/O and
// resizing go through the raw non-blocking descriptor; the *os.File is kept
// only to close it.
type unixProcess struct {
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	state    State
	argv     []string
	size     Size
	cmd      *exec.Cmd
	ptmx     *os.File
	fd       int
	pid      int
	exitCode int
	closed   bool
}

func newProcess(opts Options) Process {
	return &unixProcess{
		opts:     opts,
		log:      opts.Logger,
		fd:       -1,
		exitCode: -1,
	}
}

func (p *unixProcess) Start(argv []string, size Size) error {
	if len(argv) == 0 {
		return &SpawnError{Argv: argv, Err: errEmptyArgv}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateUnspawned || p.closed {
		return &SpawnError{Argv: argv, Err: errAlreadyStarted}
	}

	// A resize that arrived before spawn is newer than the caller's size.
	if !p.size.IsZero() {
		size = p.size.Merge(size)
	}
	size = size.Merge(DefaultSize)

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return &SpawnError{Argv: argv, Err: err}
	}

	cmd := exec.Command(path, argv[1:]...)
	cmd.Args[0] = argv[0]
	cmd.Env = p.opts.Env
	cmd.Dir = workingDir(p.opts.Dir)

	// StartWithSize uses fork+exec from the Go runtime: a failed exec is
	// reported here and the child never runs any of our code.
	ptmx, err := pty.StartWithSize(cmd, winsize(size))
	if err != nil {
		return &SpawnError{Argv: argv, Err: err}
	}

	// Fd switches the file to blocking mode; flip it back for poll-driven I/O.
	fd := int(ptmx.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		p.log.Warn("Failed to set pty non-blocking", zap.Error(err))
	}

	p.argv = copyArgv(argv)
	p.size = size
	p.cmd = cmd
	p.ptmx = ptmx
	p.fd = fd
	p.pid = cmd.Process.Pid
	p.state = StateRunning

	p.log.Info("Spawned pty process",
		zap.Int("pid", p.pid),
		zap.Strings("argv", p.argv),
		zap.String("dir", cmd.Dir),
		zap.Int("cols", size.Cols),
		zap.Int("rows", size.Rows),
	)
	return nil
}

// channel returns the descriptor while the process is running.
func (p *unixProcess) channel() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning || p.closed {
		return -1, false
	}
	return p.fd, true
}

func (p *unixProcess) Write(b []byte) (int, error) {
	fd, ok := p.channel()
	if !ok {
		return 0, ErrChannelClosed
	}

	deadline := time.Now().Add(p.opts.KillTimeout)
	written := 0
	for written < len(b) {
		n, err := unix.Write(fd, b[written:])
		if n > 0 {
			written += n
		}
		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			if time.Now().After(deadline) {
				return written, fmt.Errorf("pty write: %w", os.ErrDeadlineExceeded)
			}
			waitReady(fd, unix.POLLOUT, p.opts.PollInterval)
		case errors.Is(err, unix.EIO), errors.Is(err, unix.EBADF):
			return written, fmt.Errorf("pty write: %w", ErrChannelClosed)
		default:
			return written, fmt.Errorf("pty write: %w", err)
		}
	}
	return written, nil
}

func (p *unixProcess) Read(b []byte) (int, error) {
	fd, ok := p.channel()
	if !ok {
		return 0, ErrChannelClosed
	}
	if len(b) == 0 {
		return 0, nil
	}

	ready, hangup := waitReady(fd, unix.POLLIN, p.opts.PollInterval)
	if !ready && !hangup {
		return 0, nil
	}

	n, err := unix.Read(fd, b)
	if n > 0 {
		return n, nil
	}
	// EAGAIN, EIO once the slave side is gone, or a device poll(2) cannot
	// watch. None of these are fatal; the liveness probe decides.
	if hangup || err != nil {
		time.Sleep(p.opts.PollInterval)
	}
	return 0, nil
}

// waitReady polls fd for events. hangup also covers descriptors poll(2)
// refuses to watch, so the caller attempts the I/O directly.
func waitReady(fd int, events int16, wait time.Duration) (ready, hangup bool) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	n, err := unix.Poll(fds, int(wait/time.Millisecond))
	if err != nil || n == 0 {
		return false, false
	}
	revents := fds[0].Revents
	return revents&events != 0, revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0
}

func (p *unixProcess) Resize(size Size) {
	p.mu.Lock()
	defer p.mu.Unlock()

	size = size.Merge(p.size.Merge(DefaultSize))
	p.size = size

	if p.state != StateRunning || p.closed {
		return
	}
	ws := &unix.Winsize{Col: uint16(size.Cols), Row: uint16(size.Rows)}
	if err := unix.IoctlSetWinsize(p.fd, unix.TIOCSWINSZ, ws); err != nil {
		p.log.Warn("Failed to resize pty",
			zap.Int("pid", p.pid),
			zap.Int("cols", size.Cols),
			zap.Int("rows", size.Rows),
			zap.Error(err),
		)
	}
}

// Terminate sends SIGHUP, the signal a shell expects when its terminal goes
// away, followed by SIGTERM.
func (p *unixProcess) Terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signalLocked(unix.SIGHUP, unix.SIGTERM)
}

func (p *unixProcess) signalLocked(sigs ...unix.Signal) {
	if p.state != StateRunning || !p.pollLocked() {
		return
	}
	for _, sig := range sigs {
		if err := unix.Kill(p.pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
			p.log.Debug("Failed to signal pty process",
				zap.Int("pid", p.pid),
				zap.Stringer("signal", sig),
				zap.Error(err),
			)
		}
	}
}

func (p *unixProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning {
		return false
	}
	return p.pollLocked()
}

// pollLocked reaps the child without blocking. It reports whether the child
// is still running.
func (p *unixProcess) pollLocked() bool {
	var status unix.WaitStatus
	wpid, err := unix.Wait4(p.pid, &status, unix.WNOHANG, nil)
	switch {
	case errors.Is(err, unix.EINTR):
		return true
	case err != nil:
		// ECHILD: no such child any more.
		p.markExitedLocked(-1)
		return false
	case wpid == 0:
		return true
	}
	p.markExitedLocked(status.ExitStatus())
	return false
}

func (p *unixProcess) markExitedLocked(code int) {
	if p.state == StateTerminated {
		return
	}
	p.state = StateTerminated
	p.exitCode = code
	p.log.Info("Pty process exited", zap.Int("pid", p.pid), zap.Int("exit_code", code))
}

// waitExit polls Alive until the child is gone or timeout elapses.
func (p *unixProcess) waitExit(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !p.Alive() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(reapInterval)
	}
}

func (p *unixProcess) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.state == StateUnspawned {
		p.state = StateTerminated
		p.mu.Unlock()
		return nil
	}
	p.signalLocked(unix.SIGHUP, unix.SIGTERM)
	p.mu.Unlock()

	if !p.waitExit(p.opts.KillTimeout) {
		p.mu.Lock()
		p.signalLocked(unix.SIGKILL)
		p.mu.Unlock()

		if !p.waitExit(p.opts.KillTimeout) {
			pid := p.pid
			p.log.Warn("Pty process did not exit after SIGKILL", zap.Int("pid", pid))
			p.mu.Lock()
			p.markExitedLocked(-1)
			p.mu.Unlock()
			go func() {
				var status unix.WaitStatus
				_, _ = unix.Wait4(pid, &status, 0, nil)
			}()
		}
	}

	err := p.ptmx.Close()
	_ = p.cmd.Process.Release()
	if err != nil {
		return fmt.Errorf("close pty: %w", err)
	}
	return nil
}

func (p *unixProcess) Size() Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

func (p *unixProcess) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *unixProcess) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *unixProcess) Argv() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyArgv(p.argv)
}

func winsize(size Size) *pty.Winsize {
	return &pty.Winsize{Cols: uint16(size.Cols), Rows: uint16(size.Rows)}
}
