package pty

import (
	"errors"
	"io"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const retryDelay = 10 * time.Millisecond

// readLoop pumps a session's output onto the event channel until the PTY
// reports EOF, a non-transient error occurs or the session is closed.
func (m *Manager) readLoop(s *Session) {
	defer m.wg.Done()

	buf := make([]byte, m.cfg.ReadBufferSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.replay.append(data)
			m.recorder.BytesRead(n)
			if !m.emit(s, Event{Type: EventOutput, TerminalID: s.id, Data: data}) {
				return
			}
		}

		switch {
		case err == nil && n == 0:
			m.finish(s, EndExited, Event{Type: EventExit, TerminalID: s.id, ExitCode: s.exitStatus(m.cfg.ExitGrace)})
			return
		case err == nil:
			continue
		case isEOF(err):
			m.finish(s, EndExited, Event{Type: EventExit, TerminalID: s.id, ExitCode: s.exitStatus(m.cfg.ExitGrace)})
			return
		case isTransient(err):
			select {
			case <-s.shutdown:
				return
			case <-time.After(retryDelay):
			}
		default:
			m.logger.Warn("terminal read failed", zap.String("terminal_id", s.id), zap.Error(err))
			m.finish(s, EndFailed, Event{Type: EventError, TerminalID: s.id, Message: err.Error()})
			return
		}
	}
}

// emit blocks until ev is accepted by the channel or the session shuts down.
func (m *Manager) emit(s *Session, ev Event) bool {
	select {
	case <-s.shutdown:
		return false
	default:
	}
	select {
	case m.events <- ev:
		return true
	case <-s.shutdown:
		return false
	}
}

// finish moves s to the terminated state from the reader side. When Close
// already did so nothing is emitted.
func (m *Manager) finish(s *Session, reason EndReason, ev Event) {
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	m.registry.Remove(s.id)
	m.recorder.TerminalEnded(reason)

	fields := []zap.Field{zap.String("terminal_id", s.id)}
	if ev.ExitCode != nil {
		fields = append(fields, zap.Int("exit_code", *ev.ExitCode))
	}
	m.logger.Info("terminal exited", fields...)

	// The terminal event goes out before release fires shutdown, so a
	// blocked send is not abandoned.
	select {
	case m.events <- ev:
	case <-m.closing:
	}
	s.release(m.cfg.ExitGrace)
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.EIO) ||
		errors.Is(err, os.ErrClosed)
}

func isTransient(err error) bool {
	return errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EWOULDBLOCK) ||
		errors.Is(err, syscall.EINTR) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}
