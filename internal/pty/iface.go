package pty

import (
	"io"
	"os/exec"
)

// Conn is the controlling side of an allocated PTY. Reads return the
// child's output; writes are delivered as the child's input.
type Conn interface {
	io.ReadWriteCloser
	Resize(size Size) error
}

// Process is the child shell attached to a PTY.
type Process interface {
	Pid() int
	Kill() error
	// Wait blocks until the process exits and returns its exit code.
	Wait() (int, error)
}

// Starter allocates a PTY of the given size and starts cmd on its
// subordinate side.
type Starter interface {
	Start(cmd *exec.Cmd, size Size) (Conn, Process, error)
}

// EndReason says how a terminal reached the terminated state.
type EndReason string

const (
	EndClosed EndReason = "close"
	EndExited EndReason = "exit"
	EndFailed EndReason = "error"
)

// Recorder receives lifecycle and throughput notifications from a Manager.
type Recorder interface {
	TerminalStarted()
	TerminalEnded(reason EndReason)
	BytesRead(n int)
	BytesWritten(n int)
}

type nopRecorder struct{}

func (nopRecorder) TerminalStarted()        {}
func (nopRecorder) TerminalEnded(EndReason) {}
func (nopRecorder) BytesRead(int)           {}
func (nopRecorder) BytesWritten(int)        {}
