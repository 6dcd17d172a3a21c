package pty

import (
	"errors"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// NewStarter returns the Starter backed by the host's PTY driver.
func NewStarter() Starter {
	return ptyStarter{}
}

type ptyStarter struct{}

func (ptyStarter) Start(cmd *exec.Cmd, size Size) (Conn, Process, error) {
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
	if err != nil {
		return nil, nil, err
	}
	return &ptmxConn{File: ptmx}, &cmdProcess{cmd: cmd}, nil
}

type ptmxConn struct {
	*os.File
}

func (c *ptmxConn) Resize(size Size) error {
	return pty.Setsize(c.File, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
}

type cmdProcess struct {
	cmd *exec.Cmd
}

func (p *cmdProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *cmdProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Wait reaps the child. A child killed by a signal has no exit code and
// reports -1 with the wait error.
func (p *cmdProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if ps := p.cmd.ProcessState; ps != nil && ps.Exited() {
		return ps.ExitCode(), nil
	}
	if err == nil {
		err = errors.New("process did not exit normally")
	}
	return -1, err
}
