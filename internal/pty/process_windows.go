//go:build windows

package pty

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
	"unicode/utf16"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

const readSleep = 10 * time.Millisecond

var procPeekNamedPipe = windows.NewLazySystemDLL("kernel32.dll").NewProc("PeekNamedPipe")

// conptyProcess drives a child attached to a Windows pseudo console. Pipe
// I/O uses raw handles because the runtime's overlapped I/O layer does not
// work with anonymous pipes.
type conptyProcess struct {
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	state   State
	argv    []string
	size    Size
	console windows.Handle
	in      windows.Handle // write end, child input
	out     windows.Handle // read end, child output
	process windows.Handle
	pid     int
	closed  bool
}

func newProcess(opts Options) Process {
	return &conptyProcess{opts: opts, log: opts.Logger}
}

func coord(size Size) windows.Coord {
	return windows.Coord{X: int16(min(size.Cols, 32767)), Y: int16(min(size.Rows, 32767))}
}

func (p *conptyProcess) Start(argv []string, size Size) error {
	if len(argv) == 0 {
		return &SpawnError{Argv: argv, Err: errEmptyArgv}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateUnspawned || p.closed {
		return &SpawnError{Argv: argv, Err: errAlreadyStarted}
	}
	if !p.size.IsZero() {
		size = p.size.Merge(size)
	}
	size = size.Merge(DefaultSize)

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return &SpawnError{Argv: argv, Err: err}
	}

	var inRead, inWrite, outRead, outWrite windows.Handle
	if err := windows.CreatePipe(&inRead, &inWrite, nil, 0); err != nil {
		return &SpawnError{Argv: argv, Err: fmt.Errorf("create input pipe: %w", err)}
	}
	if err := windows.CreatePipe(&outRead, &outWrite, nil, 0); err != nil {
		closeHandles(inRead, inWrite)
		return &SpawnError{Argv: argv, Err: fmt.Errorf("create output pipe: %w", err)}
	}

	var console windows.Handle
	if err := windows.CreatePseudoConsole(coord(size), inRead, outWrite, 0, &console); err != nil {
		closeHandles(inRead, inWrite, outRead, outWrite)
		return &SpawnError{Argv: argv, Err: fmt.Errorf("create pseudo console: %w", err)}
	}
	// The console holds its own references to the child-side ends.
	closeHandles(inRead, outWrite)

	pi, err := startAttached(console, path, argv, p.opts)
	if err != nil {
		windows.ClosePseudoConsole(console)
		closeHandles(inWrite, outRead)
		return &SpawnError{Argv: argv, Err: err}
	}

	p.argv = copyArgv(argv)
	p.size = size
	p.console = console
	p.in = inWrite
	p.out = outRead
	p.process = pi.Process
	p.pid = int(pi.ProcessId)
	p.state = StateRunning

	p.log.Info("Spawned pty process",
		zap.Int("pid", p.pid),
		zap.Strings("argv", p.argv),
		zap.Int("cols", size.Cols),
		zap.Int("rows", size.Rows),
	)
	return nil
}

func startAttached(console windows.Handle, path string, argv []string, opts Options) (*windows.ProcessInformation, error) {
	attrs, err := windows.NewProcThreadAttributeList(1)
	if err != nil {
		return nil, fmt.Errorf("attribute list: %w", err)
	}
	defer attrs.Delete()

	// The attribute value is the console handle itself, not a pointer to it.
	if err := attrs.Update(windows.PROC_THREAD_ATTRIBUTE_PSEUDOCONSOLE, unsafe.Pointer(console), unsafe.Sizeof(console)); err != nil {
		return nil, fmt.Errorf("attach pseudo console: %w", err)
	}

	si := &windows.StartupInfoEx{ProcThreadAttributeList: attrs.List()}
	si.Cb = uint32(unsafe.Sizeof(*si))

	args := append([]string{path}, argv[1:]...)
	cmdLine, err := windows.UTF16PtrFromString(windows.ComposeCommandLine(args))
	if err != nil {
		return nil, err
	}

	var dir *uint16
	if opts.Dir != "" {
		if dir, err = windows.UTF16PtrFromString(opts.Dir); err != nil {
			return nil, err
		}
	}

	flags := uint32(windows.EXTENDED_STARTUPINFO_PRESENT | windows.CREATE_UNICODE_ENVIRONMENT)
	pi := &windows.ProcessInformation{}
	if err := windows.CreateProcess(nil, cmdLine, nil, nil, false, flags, environmentBlock(opts.Env), dir, &si.StartupInfo, pi); err != nil {
		return nil, fmt.Errorf("create process: %w", err)
	}
	closeHandles(pi.Thread)
	return pi, nil
}

// environmentBlock encodes env as a double-NUL terminated UTF-16 block.
func environmentBlock(env []string) *uint16 {
	if len(env) == 0 {
		return nil
	}
	var block []uint16
	for _, kv := range env {
		if strings.IndexByte(kv, 0) >= 0 {
			continue
		}
		block = append(block, utf16.Encode([]rune(kv))...)
		block = append(block, 0)
	}
	block = append(block, 0)
	return &block[0]
}

func (p *conptyProcess) handles() (in, out windows.Handle, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning || p.closed {
		return 0, 0, false
	}
	return p.in, p.out, true
}

func (p *conptyProcess) Write(b []byte) (int, error) {
	in, _, ok := p.handles()
	if !ok {
		return 0, ErrChannelClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	var n uint32
	if err := windows.WriteFile(in, b, &n, nil); err != nil {
		if errors.Is(err, windows.ERROR_BROKEN_PIPE) || errors.Is(err, windows.ERROR_NO_DATA) {
			return int(n), fmt.Errorf("pty write: %w", ErrChannelClosed)
		}
		return int(n), fmt.Errorf("pty write: %w", err)
	}
	return int(n), nil
}

// Read polls the output pipe with PeekNamedPipe so no thread ever blocks in
// ReadFile with nothing to read.
func (p *conptyProcess) Read(b []byte) (int, error) {
	_, out, ok := p.handles()
	if !ok {
		return 0, ErrChannelClosed
	}
	if len(b) == 0 {
		return 0, nil
	}

	deadline := time.Now().Add(p.opts.PollInterval)
	for {
		avail, err := peekAvailable(out)
		if err == nil && avail > 0 {
			want := min(uint32(len(b)), avail)
			var n uint32
			if err := windows.ReadFile(out, b[:want], &n, nil); err != nil {
				return 0, nil
			}
			return int(n), nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}
		time.Sleep(min(readSleep, remaining))
	}
}

func peekAvailable(h windows.Handle) (uint32, error) {
	var avail uint32
	r1, _, err := procPeekNamedPipe.Call(uintptr(h), 0, 0, 0, uintptr(unsafe.Pointer(&avail)), 0)
	if r1 == 0 {
		return 0, err
	}
	return avail, nil
}

func (p *conptyProcess) Resize(size Size) {
	p.mu.Lock()
	defer p.mu.Unlock()

	size = size.Merge(p.size.Merge(DefaultSize))
	p.size = size

	if p.state != StateRunning || p.closed {
		return
	}
	if err := windows.ResizePseudoConsole(p.console, coord(size)); err != nil {
		p.log.Warn("Failed to resize pseudo console",
			zap.Int("pid", p.pid),
			zap.Int("cols", size.Cols),
			zap.Int("rows", size.Rows),
			zap.Error(err),
		)
	}
}

func (p *conptyProcess) Terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning || !p.pollLocked() {
		return
	}
	if err := windows.TerminateProcess(p.process, 1); err != nil {
		p.log.Debug("Failed to terminate pty process", zap.Int("pid", p.pid), zap.Error(err))
	}
}

func (p *conptyProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning {
		return false
	}
	return p.pollLocked()
}

func (p *conptyProcess) pollLocked() bool {
	event, err := windows.WaitForSingleObject(p.process, 0)
	if err == nil && event != windows.WAIT_OBJECT_0 {
		return true
	}
	var code uint32
	_ = windows.GetExitCodeProcess(p.process, &code)
	p.state = StateTerminated
	p.log.Info("Pty process exited", zap.Int("pid", p.pid), zap.Uint32("exit_code", code))
	return false
}

func (p *conptyProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.state == StateUnspawned {
		p.state = StateTerminated
		return nil
	}

	// Closing the console tells attached clients their console is gone.
	windows.ClosePseudoConsole(p.console)
	if p.state == StateRunning && p.pollLocked() {
		_ = windows.TerminateProcess(p.process, 1)
		timeout := uint32(p.opts.KillTimeout / time.Millisecond)
		if event, _ := windows.WaitForSingleObject(p.process, timeout); event != windows.WAIT_OBJECT_0 {
			p.log.Warn("Pty process did not exit after terminate", zap.Int("pid", p.pid))
		}
		p.state = StateTerminated
	}

	closeHandles(p.in, p.out, p.process)
	return nil
}

func (p *conptyProcess) Size() Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

func (p *conptyProcess) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *conptyProcess) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *conptyProcess) Argv() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyArgv(p.argv)
}

func closeHandles(handles ...windows.Handle) {
	for _, h := range handles {
		if h != 0 && h != windows.InvalidHandle {
			_ = windows.CloseHandle(h)
		}
	}
}
