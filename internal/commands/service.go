// Package commands is the application boundary of the terminal manager:
// every transport calls it, and it keeps the terminal records in step with
// the live sessions.
package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/peterje/forge/internal/models"
	"github.com/peterje/forge/internal/pty"
)

// TerminalStore records terminal lifecycles.
type TerminalStore interface {
	CreateTerminal(ctx context.Context, t models.Terminal) error
	EndTerminal(ctx context.Context, id string, exitCode *int, at time.Time) error
}

// Manager is the subset of *pty.Manager the service drives.
type Manager interface {
	Create(ctx context.Context, opts pty.Options) (string, error)
	Write(id string, data []byte) error
	Resize(id string, size pty.Size) error
	Close(id string) error
	Info(id string) (pty.Info, error)
	List() []pty.Info
	History(id string) ([]string, error)
	Cwd(id string) (string, error)
	Replay(id string) ([]byte, error)
}

type Service struct {
	manager Manager
	store   TerminalStore
	logger  *zap.Logger
}

// NewService wires the manager to an optional store.
func NewService(manager Manager, store TerminalStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{manager: manager, store: store, logger: logger}
}

func (s *Service) CreateTerminal(ctx context.Context, opts pty.Options) (string, error) {
	id, err := s.manager.Create(ctx, opts)
	if err != nil {
		return "", err
	}
	if s.store == nil {
		return id, nil
	}

	rec := models.Terminal{ID: id, Status: models.StatusRunning, CreatedAt: time.Now()}
	if info, err := s.manager.Info(id); err == nil {
		rec.Shell = info.Shell
		rec.Cwd = info.Cwd
		rec.CreatedAt = info.CreatedAt
		pid := info.Pid
		rec.PID = &pid
	}
	if err := s.store.CreateTerminal(ctx, rec); err != nil {
		s.logger.Warn("failed to record terminal", zap.String("terminal_id", id), zap.Error(err))
	}
	return id, nil
}

func (s *Service) WriteToTerminal(id string, data []byte) error {
	return s.manager.Write(id, data)
}

func (s *Service) ResizeTerminal(id string, size pty.Size) error {
	return s.manager.Resize(id, size)
}

func (s *Service) CloseTerminal(ctx context.Context, id string) error {
	if err := s.manager.Close(id); err != nil {
		return err
	}
	s.endRecord(ctx, id, nil)
	return nil
}

// TerminalEnded updates the record of a terminal whose final event was
// just delivered.
func (s *Service) TerminalEnded(ctx context.Context, ev pty.Event) {
	if !ev.Final() {
		return
	}
	s.endRecord(ctx, ev.TerminalID, ev.ExitCode)
}

func (s *Service) endRecord(ctx context.Context, id string, exitCode *int) {
	if s.store == nil {
		return
	}
	if err := s.store.EndTerminal(ctx, id, exitCode, time.Now()); err != nil {
		s.logger.Warn("failed to update terminal record", zap.String("terminal_id", id), zap.Error(err))
	}
}

func (s *Service) TerminalInfo(id string) (pty.Info, error) { return s.manager.Info(id) }

func (s *Service) ListTerminals() []pty.Info { return s.manager.List() }

func (s *Service) TerminalHistory(id string) ([]string, error) { return s.manager.History(id) }

func (s *Service) TerminalCwd(id string) (string, error) { return s.manager.Cwd(id) }

func (s *Service) TerminalReplay(id string) ([]byte, error) { return s.manager.Replay(id) }

// Error codes shared by the REST and websocket transports.
const (
	CodeNotFound   = "not_found"
	CodeInvalid    = "invalid_request"
	CodeSetup      = "setup_failed"
	CodeIO         = "io_failed"
	CodeUnknown    = "internal"
	CodeBadRequest = "bad_request"
)

// Classify maps a manager error to a transport code and HTTP status.
func Classify(err error) (string, int) {
	switch {
	case errors.Is(err, pty.ErrNotFound):
		return CodeNotFound, http.StatusNotFound
	case errors.Is(err, pty.ErrInvalidSize):
		return CodeInvalid, http.StatusBadRequest
	case errors.Is(err, pty.ErrSetup):
		return CodeSetup, http.StatusInternalServerError
	case errors.Is(err, pty.ErrIO):
		return CodeIO, http.StatusInternalServerError
	default:
		return CodeUnknown, http.StatusInternalServerError
	}
}
