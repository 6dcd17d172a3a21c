package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterje/forge/internal/commands"
	"github.com/peterje/forge/internal/files"
	"github.com/peterje/forge/internal/models"
	"github.com/peterje/forge/internal/pty"
	"github.com/peterje/forge/internal/store"
)

type stubManager struct {
	mu      sync.Mutex
	next    int
	live    map[string]pty.Info
	written map[string]string
	sizes   map[string]pty.Size
}

func newStubManager() *stubManager {
	return &stubManager{
		live:    map[string]pty.Info{},
		written: map[string]string{},
		sizes:   map[string]pty.Size{},
	}
}

func (m *stubManager) lookup(id string) (pty.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.live[id]
	if !ok {
		return pty.Info{}, fmt.Errorf("%w: %s", pty.ErrNotFound, id)
	}
	return info, nil
}

func (m *stubManager) Create(_ context.Context, opts pty.Options) (string, error) {
	if opts.Shell == "/missing" {
		return "", fmt.Errorf("%w: start /missing", pty.ErrSetup)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := fmt.Sprintf("term-%d", m.next)
	shell := opts.Shell
	if shell == "" {
		shell = "/bin/bash"
	}
	m.live[id] = pty.Info{TerminalID: id, Shell: shell, Cwd: "/tmp", Pid: 100 + m.next, CreatedAt: time.Now(), IsRunning: true}
	return id, nil
}

func (m *stubManager) Write(id string, data []byte) error {
	if _, err := m.lookup(id); err != nil {
		return err
	}
	m.mu.Lock()
	m.written[id] += string(data)
	m.mu.Unlock()
	return nil
}

func (m *stubManager) Resize(id string, size pty.Size) error {
	if size.Rows == 0 || size.Cols == 0 {
		return fmt.Errorf("%w: %dx%d", pty.ErrInvalidSize, size.Rows, size.Cols)
	}
	if _, err := m.lookup(id); err != nil {
		return err
	}
	m.mu.Lock()
	m.sizes[id] = size
	m.mu.Unlock()
	return nil
}

func (m *stubManager) Close(id string) error {
	if _, err := m.lookup(id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.live, id)
	m.mu.Unlock()
	return nil
}

func (m *stubManager) Info(id string) (pty.Info, error) { return m.lookup(id) }

func (m *stubManager) List() []pty.Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pty.Info
	for _, info := range m.live {
		out = append(out, info)
	}
	return out
}

func (m *stubManager) History(id string) ([]string, error) {
	if _, err := m.lookup(id); err != nil {
		return nil, err
	}
	return []string{"ls", "pwd"}, nil
}

func (m *stubManager) Cwd(id string) (string, error) {
	info, err := m.lookup(id)
	return info.Cwd, err
}

func (m *stubManager) Replay(id string) ([]byte, error) {
	if _, err := m.lookup(id); err != nil {
		return nil, err
	}
	return []byte("$ ls\r\n"), nil
}

type testAPI struct {
	router  *gin.Engine
	manager *stubManager
	store   *store.Store
	watcher *files.Watcher
	changes chan models.FileChange
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(filepath.Join(t.TempDir(), "forge.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	a := &testAPI{
		router:  gin.New(),
		manager: newStubManager(),
		store:   st,
		changes: make(chan models.FileChange, 8),
	}
	a.watcher, err = files.NewWatcher(0, func(c models.FileChange) { a.changes <- c }, nil)
	require.NoError(t, err)

	svc := commands.NewService(a.manager, st, nil)
	resolver := pty.ShellResolver{
		GOOS:   "linux",
		Exists: func(p string) bool { return p == "/bin/bash" },
		Getenv: func(string) string { return "" },
	}

	r := a.router.Group("/api")
	r.GET("/health", NewHealthHandler(resolver, svc).HandleHealth)
	NewTerminalsHandler(svc, st).Register(r)
	NewFilesHandler(files.NewService(nil), a.watcher).Register(r)
	NewEditorHandler(st).Register(r)
	return a
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createTerminal(t *testing.T, a *testAPI) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/terminals", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[map[string]string](t, w)["terminal_id"]
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	createTerminal(t, a)

	w := a.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.HealthResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "/bin/bash", resp.DefaultShell)
	assert.Equal(t, 1, resp.Terminals)
	require.NotEmpty(t, resp.Shells)
	assert.Equal(t, models.ShellStatus{Path: "/bin/bash", Exists: true}, resp.Shells[0])
}

func TestTerminalLifecycle(t *testing.T) {
	a := newTestAPI(t)
	id := createTerminal(t, a)
	assert.Equal(t, "term-1", id)

	w := a.do(t, http.MethodPost, "/api/terminals/"+id+"/input", map[string]string{"data": "echo hello\n"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodPost, "/api/terminals/"+id+"/resize", pty.Size{Rows: 50, Cols: 120})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodGet, "/api/terminals/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode[pty.Info](t, w).TerminalID)

	w = a.do(t, http.MethodGet, "/api/terminals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]pty.Info](t, w), 1)

	rec, err := a.store.GetTerminal(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, rec.Status)
	assert.Equal(t, "/bin/bash", rec.Shell)

	w = a.do(t, http.MethodDelete, "/api/terminals/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodDelete, "/api/terminals/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, commands.CodeNotFound, decode[ErrorResponse](t, w).Code)

	a.manager.mu.Lock()
	assert.Equal(t, "echo hello\n", a.manager.written[id])
	assert.Equal(t, pty.Size{Rows: 50, Cols: 120}, a.manager.sizes[id])
	a.manager.mu.Unlock()

	w = a.do(t, http.MethodGet, "/api/terminal-records/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.Terminal](t, w)
	assert.Equal(t, models.StatusStopped, got.Status)
	assert.NotNil(t, got.EndedAt)
}

func TestTerminalQueries(t *testing.T) {
	a := newTestAPI(t)
	id := createTerminal(t, a)

	w := a.do(t, http.MethodGet, "/api/terminals/"+id+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"terminal_id":"term-1","history":["ls","pwd"]}`, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/terminals/"+id+"/cwd", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"terminal_id":"term-1","cwd":"/tmp"}`, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/terminals/"+id+"/replay", nil)
	require.Equal(t, http.StatusOK, w.Code)
	replay := decode[struct {
		Data []byte `json:"data"`
	}](t, w)
	assert.Equal(t, "$ ls\r\n", string(replay.Data))
}

func TestTerminalErrors(t *testing.T) {
	a := newTestAPI(t)
	id := createTerminal(t, a)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown input", http.MethodPost, "/api/terminals/nope/input", map[string]string{"data": "x"}, http.StatusNotFound, commands.CodeNotFound},
		{"unknown resize", http.MethodPost, "/api/terminals/nope/resize", pty.Size{Rows: 1, Cols: 1}, http.StatusNotFound, commands.CodeNotFound},
		{"zero size", http.MethodPost, "/api/terminals/" + id + "/resize", pty.Size{}, http.StatusBadRequest, commands.CodeInvalid},
		{"unknown info", http.MethodGet, "/api/terminals/nope", nil, http.StatusNotFound, commands.CodeNotFound},
		{"unknown history", http.MethodGet, "/api/terminals/nope/history", nil, http.StatusNotFound, commands.CodeNotFound},
		{"setup failure", http.MethodPost, "/api/terminals", pty.Options{Shell: "/missing"}, http.StatusInternalServerError, commands.CodeSetup},
		{"unknown record", http.MethodGet, "/api/terminal-records/nope", nil, http.StatusNotFound, commands.CodeNotFound},
		{"bad limit", http.MethodGet, "/api/terminal-records?limit=x", nil, http.StatusBadRequest, commands.CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestCreateRejectsBadJSON(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/terminals", bytes.NewBufferString("{nope"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTerminalRecordsList(t *testing.T) {
	a := newTestAPI(t)
	createTerminal(t, a)
	createTerminal(t, a)

	w := a.do(t, http.MethodGet, "/api/terminal-records?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Terminal](t, w), 1)

	w = a.do(t, http.MethodGet, "/api/terminal-records", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Terminal](t, w), 2)
}

func filesPath(route, p string) string {
	return "/api/files/" + route + "?path=" + url.QueryEscape(p)
}

func TestFileOperations(t *testing.T) {
	a := newTestAPI(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "src", "main.go")

	w := a.do(t, http.MethodPut, "/api/files/content", map[string]string{"path": file, "content": "package main\n"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, filesPath("content", file), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "package main\n", decode[map[string]string](t, w)["content"])

	w = a.do(t, http.MethodGet, filesPath("exists", file), nil)
	assert.JSONEq(t, fmt.Sprintf(`{"path":%q,"exists":true}`, file), w.Body.String())

	w = a.do(t, http.MethodGet, filesPath("metadata", file), nil)
	require.Equal(t, http.StatusOK, w.Code)
	md := decode[models.FileMetadata](t, w)
	assert.Equal(t, "main.go", md.Name)
	assert.False(t, md.IsDirectory)

	w = a.do(t, http.MethodGet, filesPath("list", filepath.Join(dir, "src")), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.FileMetadata](t, w), 1)

	w = a.do(t, http.MethodGet, filesPath("glob", dir)+"&pattern="+url.QueryEscape("**/*.go"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"src/main.go"}, decode[map[string]any](t, w)["matches"])

	copyTo := filepath.Join(dir, "copy.go")
	w = a.do(t, http.MethodPost, "/api/files/copy", map[string]string{"from": file, "to": copyTo})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/files/copy", map[string]string{"from": file, "to": copyTo})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeConflict, decode[ErrorResponse](t, w).Code)

	renamed := filepath.Join(dir, "renamed.go")
	w = a.do(t, http.MethodPost, "/api/files/rename", map[string]string{"from": copyTo, "to": renamed})
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.NoFileExists(t, copyTo)
	assert.FileExists(t, renamed)

	w = a.do(t, http.MethodDelete, "/api/files?path="+url.QueryEscape(renamed), nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.NoFileExists(t, renamed)
}

func TestFileBackupRestore(t *testing.T) {
	a := newTestAPI(t)
	file := filepath.Join(t.TempDir(), "notes.txt")

	w := a.do(t, http.MethodPost, "/api/files", map[string]string{"path": file, "content": "v1"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.do(t, http.MethodPost, "/api/files/backup", map[string]string{"path": file})
	require.Equal(t, http.StatusCreated, w.Code)
	backup := decode[map[string]string](t, w)["backup"]
	assert.FileExists(t, backup)

	require.NoError(t, os.WriteFile(file, []byte("v2"), 0o644))

	w = a.do(t, http.MethodPost, "/api/files/restore", map[string]string{"backup": backup, "original": file})
	require.Equal(t, http.StatusNoContent, w.Code)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestFileErrors(t *testing.T) {
	a := newTestAPI(t)
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.txt")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"read missing", http.MethodGet, filesPath("content", missing), nil, http.StatusNotFound},
		{"no path", http.MethodGet, "/api/files/content", nil, http.StatusBadRequest},
		{"list missing", http.MethodGet, filesPath("list", missing), nil, http.StatusNotFound},
		{"bad glob", http.MethodGet, filesPath("glob", dir) + "&pattern=" + url.QueryEscape("[a-"), nil, http.StatusBadRequest},
		{"glob no pattern", http.MethodGet, filesPath("glob", dir), nil, http.StatusBadRequest},
		{"write no path", http.MethodPut, "/api/files/content", map[string]string{"content": "x"}, http.StatusBadRequest},
		{"copy dir", http.MethodPost, "/api/files/copy", map[string]string{"from": dir, "to": filepath.Join(dir, "x", "y")}, http.StatusBadRequest},
		{"watch missing", http.MethodPost, "/api/files/watch", map[string]string{"path": missing}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestWatchRoutes(t *testing.T) {
	a := newTestAPI(t)
	file := filepath.Join(t.TempDir(), "watched.txt")
	require.NoError(t, os.WriteFile(file, []byte("a"), 0o644))

	w := a.do(t, http.MethodPost, "/api/files/watch", map[string]string{"path": file})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/files/watch", nil)
	assert.JSONEq(t, fmt.Sprintf(`{"paths":[%q]}`, file), w.Body.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.watcher.Run(ctx)

	require.NoError(t, os.Remove(file))
	select {
	case change := <-a.changes:
		assert.Equal(t, file, change.Path)
		assert.Equal(t, models.ChangeDeleted, change.ChangeType)
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}

	w = a.do(t, http.MethodDelete, filesPath("watch", file), nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, a.watcher.Watched())
}

func TestEditorSessions(t *testing.T) {
	a := newTestAPI(t)
	active := "/src/main.go"

	w := a.do(t, http.MethodPut, "/api/editor-sessions/s1", models.EditorSession{
		Files:      []string{"/src/main.go", "/src/util.go"},
		ActiveFile: &active,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	saved := decode[models.EditorSession](t, w)
	assert.Equal(t, "s1", saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())

	w = a.do(t, http.MethodGet, "/api/editor-sessions/s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.EditorSession](t, w)
	assert.Equal(t, []string{"/src/main.go", "/src/util.go"}, got.Files)
	require.NotNil(t, got.ActiveFile)
	assert.Equal(t, active, *got.ActiveFile)

	w = a.do(t, http.MethodGet, "/api/editor-sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.EditorSession](t, w), 1)

	w = a.do(t, http.MethodGet, "/api/editor-sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
