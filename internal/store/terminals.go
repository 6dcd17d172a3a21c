package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/peterje/forge/internal/models"
)

const terminalColumns = `id, shell, cwd, status, pid, exit_code, created_at, ended_at`

// CreateTerminal records a newly started terminal.
func (s *Store) CreateTerminal(ctx context.Context, t models.Terminal) error {
	if t.Status == "" {
		t.Status = models.StatusRunning
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO terminals (`+terminalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Shell, t.Cwd, t.Status, nullInt(t.PID), nullInt(t.ExitCode), t.CreatedAt.UTC(), nullTime(t.EndedAt))
	if err != nil {
		return fmt.Errorf("insert terminal %s: %w", t.ID, err)
	}
	return nil
}

// EndTerminal marks a running terminal stopped. It is a no-op for a
// terminal that is already stopped, so the close and exit paths may both
// call it.
func (s *Store) EndTerminal(ctx context.Context, id string, exitCode *int, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE terminals SET status = ?, exit_code = ?, ended_at = ?
		WHERE id = ? AND status = ?`,
		models.StatusStopped, nullInt(exitCode), at.UTC(), id, models.StatusRunning)
	if err != nil {
		return fmt.Errorf("end terminal %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("terminal record stopped", zap.String("terminal_id", id))
	}
	return nil
}

func (s *Store) GetTerminal(ctx context.Context, id string) (models.Terminal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+terminalColumns+` FROM terminals WHERE id = ?`, id)
	t, err := scanTerminal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Terminal{}, fmt.Errorf("terminal %s: %w", id, ErrNotFound)
	}
	return t, err
}

// ListTerminals returns terminal records, newest first. A limit of zero or
// less returns every row.
func (s *Store) ListTerminals(ctx context.Context, limit int) ([]models.Terminal, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+terminalColumns+` FROM terminals
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list terminals: %w", err)
	}
	defer rows.Close()

	terminals := []models.Terminal{}
	for rows.Next() {
		t, err := scanTerminal(rows)
		if err != nil {
			return nil, err
		}
		terminals = append(terminals, t)
	}
	return terminals, rows.Err()
}

// MarkStaleStopped stops every record left running by a previous process.
// No PTY survives a restart, so all of them are stale.
func (s *Store) MarkStaleStopped(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE terminals SET status = ?, ended_at = ? WHERE status = ?`,
		models.StatusStopped, time.Now().UTC(), models.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("mark stale terminals: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("cleaned up stale terminals", zap.Int64("count", n))
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTerminal(sc scanner) (models.Terminal, error) {
	var (
		t        models.Terminal
		pid      sql.NullInt64
		exitCode sql.NullInt64
		endedAt  sql.NullTime
	)
	if err := sc.Scan(&t.ID, &t.Shell, &t.Cwd, &t.Status, &pid, &exitCode, &t.CreatedAt, &endedAt); err != nil {
		return models.Terminal{}, err
	}
	t.PID = intPtr(pid)
	t.ExitCode = intPtr(exitCode)
	if endedAt.Valid {
		at := endedAt.Time
		t.EndedAt = &at
	}
	return t, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
