package pty

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Session is one live terminal: a child shell attached to a PTY.
type Session struct {
	id        string
	shell     string
	args      []string
	cwd       string
	env       map[string]string
	createdAt time.Time

	conn Conn
	proc Process

	// writeMu serializes writers so concurrent writes never interleave.
	writeMu sync.Mutex

	// mu guards size and serializes resizes.
	mu   sync.Mutex
	size Size

	history *lineHistory
	replay  *replayBuffer

	shutdown     chan struct{}
	shutdownOnce sync.Once
	releaseOnce  sync.Once

	// ended is set by whichever of Close or the reader first moves the
	// session to the terminated state. Only the winner reports the end.
	ended atomic.Bool

	exited   chan struct{}
	exitCode int
	waitErr  error
}

func (s *Session) ID() string { return s.id }

// Done is closed once the session has been asked to shut down.
func (s *Session) Done() <-chan struct{} { return s.shutdown }

// Exited is closed once the child process has been reaped.
func (s *Session) Exited() <-chan struct{} { return s.exited }

func (s *Session) running() bool {
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

// waitLoop reaps the child and publishes its exit code.
func (s *Session) waitLoop() {
	code, err := s.proc.Wait()
	s.exitCode = code
	s.waitErr = err
	close(s.exited)
}

// exitStatus waits up to grace for the child to be reaped. It returns nil
// when the process is still running or its status is unknown.
func (s *Session) exitStatus(grace time.Duration) *int {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-s.exited:
	case <-timer.C:
		return nil
	}
	if s.exitCode < 0 {
		return nil
	}
	code := s.exitCode
	return &code
}

func (s *Session) stop() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// release tears down the child and the PTY. It is safe to call from both
// Close and the reader; only the first call does the work.
func (s *Session) release(grace time.Duration) {
	s.releaseOnce.Do(func() {
		s.stop()
		if s.running() {
			_ = s.proc.Kill()
		}
		timer := time.NewTimer(grace)
		select {
		case <-s.exited:
		case <-timer.C:
		}
		timer.Stop()
		_ = s.conn.Close()
	})
}

// write delivers all of data under the session write lock.
func (s *Session) write(data []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	total := 0
	for total < len(data) {
		n, err := s.conn.Write(data[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	s.history.record(data)
	return total, nil
}

func (s *Session) resize(size Size) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.Resize(size); err != nil {
		return err
	}
	s.size = size
	return nil
}

func (s *Session) currentSize() Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}
