package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/peterje/forge/internal/models"
)

// SaveEditorSession inserts or replaces an editor session. A zero
// CreatedAt keeps the stored creation time, or uses now for a new row.
func (s *Store) SaveEditorSession(ctx context.Context, es models.EditorSession) error {
	if es.ID == "" {
		return errors.New("editor session id is required")
	}
	files := es.Files
	if files == nil {
		files = []string{}
	}
	encoded, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("encode editor session files: %w", err)
	}

	now := time.Now().UTC()
	created := es.CreatedAt.UTC()
	if es.CreatedAt.IsZero() {
		created = now
	}
	accessed := es.LastAccessed.UTC()
	if es.LastAccessed.IsZero() {
		accessed = now
	}

	var active sql.NullString
	if es.ActiveFile != nil {
		active = sql.NullString{String: *es.ActiveFile, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO editor_sessions (id, files, active_file, created_at, last_accessed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			files = excluded.files,
			active_file = excluded.active_file,
			last_accessed = excluded.last_accessed`,
		es.ID, string(encoded), active, created, accessed)
	if err != nil {
		return fmt.Errorf("save editor session %s: %w", es.ID, err)
	}
	return nil
}

func (s *Store) LoadEditorSession(ctx context.Context, id string) (models.EditorSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, files, active_file, created_at, last_accessed
		FROM editor_sessions WHERE id = ?`, id)
	es, err := scanEditorSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EditorSession{}, fmt.Errorf("editor session %s: %w", id, ErrNotFound)
	}
	return es, err
}

// ListEditorSessions returns every editor session, most recently accessed first.
func (s *Store) ListEditorSessions(ctx context.Context) ([]models.EditorSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, files, active_file, created_at, last_accessed
		FROM editor_sessions ORDER BY last_accessed DESC`)
	if err != nil {
		return nil, fmt.Errorf("list editor sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.EditorSession{}
	for rows.Next() {
		es, err := scanEditorSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, es)
	}
	return sessions, rows.Err()
}

func scanEditorSession(sc scanner) (models.EditorSession, error) {
	var (
		es     models.EditorSession
		files  string
		active sql.NullString
	)
	if err := sc.Scan(&es.ID, &files, &active, &es.CreatedAt, &es.LastAccessed); err != nil {
		return models.EditorSession{}, err
	}
	if err := json.Unmarshal([]byte(files), &es.Files); err != nil {
		return models.EditorSession{}, fmt.Errorf("decode editor session %s files: %w", es.ID, err)
	}
	if active.Valid {
		f := active.String
		es.ActiveFile = &f
	}
	return es, nil
}
