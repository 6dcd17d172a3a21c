package pty

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"
)

// fakeConn is an in-memory PTY. Output is queued with push; hangup makes
// Read return EOF once the queue is drained.
type fakeConn struct {
	out      chan []byte
	pending  []byte
	readErrs chan error

	hangup    chan struct{}
	hangOnce  sync.Once
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	written   bytes.Buffer
	echo      bool
	chunk     int
	writeErr  error
	resizeErr error
	sizes     []Size
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		out:      make(chan []byte, 1024),
		readErrs: make(chan error, 16),
		hangup:   make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) push(s string) { c.out <- []byte(s) }

func (c *fakeConn) fail(err error) { c.readErrs <- err }

func (c *fakeConn) hang() { c.hangOnce.Do(func() { close(c.hangup) }) }

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) deliver(p, b []byte) int {
	n := copy(p, b)
	c.pending = b[n:]
	return n
}

func (c *fakeConn) Read(p []byte) (int, error) {
	if len(c.pending) > 0 {
		return c.deliver(p, c.pending), nil
	}
	select {
	case b := <-c.out:
		return c.deliver(p, b), nil
	default:
	}
	select {
	case err := <-c.readErrs:
		return 0, err
	default:
	}
	select {
	case b := <-c.out:
		return c.deliver(p, b), nil
	case err := <-c.readErrs:
		return 0, err
	case <-c.closed:
		return 0, os.ErrClosed
	case <-c.hangup:
		select {
		case b := <-c.out:
			return c.deliver(p, b), nil
		default:
			return 0, io.EOF
		}
	}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	if c.chunk > 0 && len(p) > c.chunk {
		p = p[:c.chunk]
	}
	c.written.Write(p)
	if c.echo {
		c.out <- append([]byte{}, p...)
	}
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Resize(size Size) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resizeErr != nil {
		return c.resizeErr
	}
	c.sizes = append(c.sizes, size)
	return nil
}

func (c *fakeConn) writtenString() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.String()
}

type fakeProcess struct {
	pid    int
	code   int
	done   chan struct{}
	once   sync.Once
	killMu sync.Mutex
	killed bool
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, done: make(chan struct{})}
}

func (p *fakeProcess) exit(code int) {
	p.once.Do(func() {
		p.code = code
		close(p.done)
	})
}

func (p *fakeProcess) wasKilled() bool {
	p.killMu.Lock()
	defer p.killMu.Unlock()
	return p.killed
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Kill() error {
	p.killMu.Lock()
	p.killed = true
	p.killMu.Unlock()
	p.exit(-1)
	return nil
}

func (p *fakeProcess) Wait() (int, error) {
	<-p.done
	return p.code, nil
}

type fakeStarter struct {
	mu    sync.Mutex
	err   error
	setup func(*fakeConn)
	cmds  []*exec.Cmd
	sizes []Size
	conns []*fakeConn
	procs []*fakeProcess
}

func (s *fakeStarter) Start(cmd *exec.Cmd, size Size) (Conn, Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, nil, s.err
	}
	conn := newFakeConn()
	if s.setup != nil {
		s.setup(conn)
	}
	// Well above any real pid so /proc lookups miss.
	proc := newFakeProcess(4_194_400 + len(s.procs))
	s.cmds = append(s.cmds, cmd)
	s.sizes = append(s.sizes, size)
	s.conns = append(s.conns, conn)
	s.procs = append(s.procs, proc)
	return conn, proc, nil
}

func (s *fakeStarter) last() (*fakeConn, *fakeProcess, *exec.Cmd) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.conns) - 1
	return s.conns[i], s.procs[i], s.cmds[i]
}

type countingRecorder struct {
	mu      sync.Mutex
	started int
	ended   map[EndReason]int
	read    int
	written int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ended: make(map[EndReason]int)}
}

func (r *countingRecorder) TerminalStarted() {
	r.mu.Lock()
	r.started++
	r.mu.Unlock()
}

func (r *countingRecorder) TerminalEnded(reason EndReason) {
	r.mu.Lock()
	r.ended[reason]++
	r.mu.Unlock()
}

func (r *countingRecorder) BytesRead(n int) {
	r.mu.Lock()
	r.read += n
	r.mu.Unlock()
}

func (r *countingRecorder) BytesWritten(n int) {
	r.mu.Lock()
	r.written += n
	r.mu.Unlock()
}

func (r *countingRecorder) endedCount(reason EndReason) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended[reason]
}

func fixedResolver() ShellResolver {
	return ShellResolver{
		GOOS:   "linux",
		Exists: func(p string) bool { return p == "/bin/bash" },
		Getenv: func(string) string { return "" },
	}
}

func newTestManager(t *testing.T, capacity int, opts ...Option) (*Manager, chan Event, *fakeStarter) {
	t.Helper()
	events := make(chan Event, capacity)
	starter := &fakeStarter{}
	base := []Option{
		WithStarter(starter),
		WithResolver(fixedResolver()),
		WithConfig(Config{ExitGrace: 50 * time.Millisecond}),
	}
	m := NewManager(events, append(base, opts...)...)
	return m, events, starter
}

// collect reads events until stop returns true or the timeout passes.
func collect(t *testing.T, events <-chan Event, timeout time.Duration, stop func([]Event) bool) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(timeout)
	for {
		if stop != nil && stop(got) {
			return got
		}
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-deadline:
			return got
		}
	}
}

func untilFinal(evs []Event) bool {
	return len(evs) > 0 && evs[len(evs)-1].Final()
}

func outputOf(evs []Event) string {
	var b bytes.Buffer
	for _, ev := range evs {
		if ev.Type == EventOutput {
			b.Write(ev.Data)
		}
	}
	return b.String()
}

func finalEvents(evs []Event) int {
	n := 0
	for _, ev := range evs {
		if ev.Final() {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")
