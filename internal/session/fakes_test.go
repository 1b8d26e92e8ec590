package session

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GriffinCanCode/webterm/internal/pty"
)

// fakeProcess is an in-memory pty.Process.
type fakeProcess struct {
	mu         sync.Mutex
	state      pty.State
	argv       []string
	size       pty.Size
	writes     [][]byte
	output     chan []byte
	alive      bool
	lingers    bool // ignores Terminate
	terminated int
	closed     int
	startErr   error
	writeErr   error
	poll       time.Duration
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{output: make(chan []byte, 64), poll: 5 * time.Millisecond}
}

func (p *fakeProcess) Start(argv []string, size pty.Size) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	if p.state != pty.StateUnspawned {
		return &pty.SpawnError{Argv: argv, Err: errors.New("already started")}
	}
	if !p.size.IsZero() {
		size = p.size.Merge(size)
	}
	p.argv = argv
	p.size = size.Merge(pty.DefaultSize)
	p.state = pty.StateRunning
	p.alive = true
	return nil
}

func (p *fakeProcess) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != pty.StateRunning {
		return 0, pty.ErrChannelClosed
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakeProcess) Read(b []byte) (int, error) {
	p.mu.Lock()
	running := p.state == pty.StateRunning
	p.mu.Unlock()
	if !running {
		return 0, pty.ErrChannelClosed
	}
	select {
	case chunk := <-p.output:
		return copy(b, chunk), nil
	case <-time.After(p.poll):
		return 0, nil
	}
}

func (p *fakeProcess) Resize(size pty.Size) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.size = size.Merge(p.size.Merge(pty.DefaultSize))
}

func (p *fakeProcess) Terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated++
	if !p.lingers {
		p.alive = false
	}
}

func (p *fakeProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != pty.StateRunning {
		return false
	}
	if !p.alive {
		p.state = pty.StateTerminated
	}
	return p.alive
}

func (p *fakeProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	p.alive = false
	p.state = pty.StateTerminated
	return nil
}

func (p *fakeProcess) exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = false
}

func (p *fakeProcess) input() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []byte
	for _, w := range p.writes {
		out = append(out, w...)
	}
	return string(out)
}

func (p *fakeProcess) writeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

func (p *fakeProcess) counts() (terminated, closed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated, p.closed
}

func (p *fakeProcess) Size() pty.Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

func (p *fakeProcess) Pid() int { return 4242 }

func (p *fakeProcess) State() pty.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakeProcess) Argv() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.argv
}

type frame struct {
	mt   int
	data []byte
}

var errReadTimeout = errors.New("i/o timeout")

// fakeConn is an in-memory Conn. Frames sent by the client go through in;
// closing in simulates the client going away.
type fakeConn struct {
	in  chan frame
	out chan frame

	mu           sync.Mutex
	closeFrames  [][]byte
	readDeadline time.Time
	echoClose    bool
	inClosed     bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan frame, 64), out: make(chan frame, 256)}
}

func (c *fakeConn) send(mt int, data string) {
	c.in <- frame{mt: mt, data: []byte(data)}
}

func (c *fakeConn) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inClosed {
		c.inClosed = true
		close(c.in)
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	for {
		select {
		case f, ok := <-c.in:
			if !ok {
				return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
			}
			return f.mt, f.data, nil
		case <-time.After(2 * time.Millisecond):
			c.mu.Lock()
			deadline := c.readDeadline
			c.mu.Unlock()
			if !deadline.IsZero() && time.Now().After(deadline) {
				return 0, nil, errReadTimeout
			}
		}
	}
}

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	c.out <- frame{mt: mt, data: append([]byte(nil), data...)}
	return nil
}

func (c *fakeConn) WriteControl(mt int, data []byte, _ time.Time) error {
	if mt != websocket.CloseMessage {
		return nil
	}
	c.mu.Lock()
	c.closeFrames = append(c.closeFrames, append([]byte(nil), data...))
	echo := c.echoClose
	c.mu.Unlock()
	if echo {
		c.disconnect()
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) closes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeFrames
}
