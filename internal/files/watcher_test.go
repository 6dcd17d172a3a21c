package files

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterje/forge/internal/models"
)

type changeLog struct {
	mu      sync.Mutex
	changes []models.FileChange
}

func (l *changeLog) add(c models.FileChange) {
	l.mu.Lock()
	l.changes = append(l.changes, c)
	l.mu.Unlock()
}

func (l *changeLog) snapshot() []models.FileChange {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.FileChange(nil), l.changes...)
}

// last returns the most recent change reported for path.
func (l *changeLog) last(path string) (models.FileChange, bool) {
	changes := l.snapshot()
	for i := len(changes) - 1; i >= 0; i-- {
		if changes[i].Path == path {
			return changes[i], true
		}
	}
	return models.FileChange{}, false
}

func (l *changeLog) count(path string) int {
	n := 0
	for _, c := range l.snapshot() {
		if c.Path == path {
			n++
		}
	}
	return n
}

func runWatcher(t *testing.T, debounce time.Duration) (*Watcher, *changeLog) {
	t.Helper()
	log := &changeLog{}
	w, err := NewWatcher(debounce, log.add, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, log
}

func waitFor(t *testing.T, log *changeLog, path, kind string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		c, ok := log.last(path)
		return ok && c.ChangeType == kind
	}, 2*time.Second, 10*time.Millisecond, "no %s change for %s", kind, path)
}

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func TestWatcherReportsChanges(t *testing.T) {
	path := filepath.Join(tempDir(t), "watched.txt")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))

	w, log := runWatcher(t, 100*time.Millisecond)
	require.NoError(t, w.Watch(path))
	assert.Equal(t, []string{path}, w.Watched())

	require.NoError(t, os.WriteFile(path, []byte("three"), 0o644))
	waitFor(t, log, path, models.ChangeModified)

	require.NoError(t, os.Remove(path))
	waitFor(t, log, path, models.ChangeDeleted)

	require.NoError(t, os.WriteFile(path, []byte("again"), 0o644))
	waitFor(t, log, path, models.ChangeCreated)

	c, _ := log.last(path)
	assert.NotZero(t, c.Timestamp)
}

func TestWatcherReportsRenameAway(t *testing.T) {
	dir := tempDir(t)
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	w, log := runWatcher(t, 0)
	require.NoError(t, w.Watch(path))

	require.NoError(t, os.Rename(path, filepath.Join(dir, "b.txt")))
	waitFor(t, log, path, models.ChangeDeleted)
}

func TestWatcherIgnoresOtherPaths(t *testing.T) {
	dir := tempDir(t)
	watched := filepath.Join(dir, "watched.txt")
	sibling := filepath.Join(dir, "sibling.txt")
	require.NoError(t, os.WriteFile(watched, nil, 0o644))
	require.NoError(t, os.WriteFile(sibling, nil, 0o644))

	w, log := runWatcher(t, 0)
	require.NoError(t, w.Watch(watched))

	require.NoError(t, os.WriteFile(sibling, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(watched, []byte("x"), 0o644))
	waitFor(t, log, watched, models.ChangeModified)
	assert.Zero(t, log.count(sibling))
}

func TestWatcherUnwatch(t *testing.T) {
	dir := tempDir(t)
	first := filepath.Join(dir, "first.txt")
	second := filepath.Join(dir, "second.txt")
	require.NoError(t, os.WriteFile(first, nil, 0o644))
	require.NoError(t, os.WriteFile(second, nil, 0o644))

	w, log := runWatcher(t, 0)
	require.NoError(t, w.Watch(first))
	require.NoError(t, w.Watch(second))
	require.NoError(t, w.Watch(first))
	assert.Len(t, w.Watched(), 2)

	w.Unwatch(first)
	w.Unwatch(filepath.Join(dir, "never-watched"))
	assert.Equal(t, []string{second}, w.Watched())

	// The shared directory stays watched for second.
	require.NoError(t, os.WriteFile(first, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("x"), 0o644))
	waitFor(t, log, second, models.ChangeModified)
	assert.Zero(t, log.count(first))
}

func TestWatcherDebounceCoalesces(t *testing.T) {
	path := filepath.Join(tempDir(t), "new.txt")
	w, log := runWatcher(t, 100*time.Millisecond)

	// Watch needs an existing path; start from a deleted one.
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	require.NoError(t, w.Watch(path))
	require.NoError(t, os.Remove(path))
	waitFor(t, log, path, models.ChangeDeleted)
	before := log.count(path)

	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.WriteString("line\n")
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	waitFor(t, log, path, models.ChangeCreated)
	assert.Equal(t, before+1, log.count(path))
}

func TestWatcherRequiresExistingPath(t *testing.T) {
	w, err := NewWatcher(0, func(models.FileChange) {}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, w.Watch(filepath.Join(t.TempDir(), "missing")), ErrNotExist)
}

func TestWatcherRunStopsWithContext(t *testing.T) {
	w, err := NewWatcher(0, func(models.FileChange) {}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
