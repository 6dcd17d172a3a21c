package models

import "time"

// Terminal status values stored in the terminals table.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// Terminal is the persisted record of a terminal. Live state comes from the
// pty manager; this row outlives the process.
type Terminal struct {
	ID        string     `json:"id"`
	Shell     string     `json:"shell"`
	Cwd       string     `json:"cwd"`
	Status    string     `json:"status"`
	PID       *int       `json:"pid"`
	ExitCode  *int       `json:"exit_code"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at"`
}

// EditorSession is the set of files an editor UI had open.
type EditorSession struct {
	ID           string    `json:"id"`
	Files        []string  `json:"files"`
	ActiveFile   *string   `json:"active_file"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

type FileMetadata struct {
	Name         string     `json:"name"`
	Path         string     `json:"path"`
	IsDirectory  bool       `json:"is_directory"`
	Size         *int64     `json:"size"`
	ModifiedDate *time.Time `json:"modified_date"`
	Readonly     bool       `json:"readonly"`
	Permissions  string     `json:"permissions"`
	ParentPath   *string    `json:"parent_path"`
	MimeType     string     `json:"mime_type,omitempty"`
}

// File change types reported by the watcher.
const (
	ChangeCreated  = "created"
	ChangeModified = "modified"
	ChangeDeleted  = "deleted"
)

type FileChange struct {
	Path       string `json:"path"`
	ChangeType string `json:"change_type"`
	Timestamp  int64  `json:"timestamp"`
}

type ShellStatus struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

type HealthResponse struct {
	Status       string        `json:"status"`
	DefaultShell string        `json:"default_shell"`
	Shells       []ShellStatus `json:"shells"`
	Terminals    int           `json:"terminals"`
}
