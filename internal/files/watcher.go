package files

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/peterje/forge/internal/models"
)

// Watcher reports creations, modifications and deletions of individual
// paths through a callback. Each path is observed through its parent
// directory so renames and deletes of the path itself are seen.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	notify   func(models.FileChange)
	logger   *zap.Logger

	mu      sync.Mutex
	paths   map[string]bool
	dirs    map[string]int
	pending map[string]*pendingChange
	stopped bool
}

type pendingChange struct {
	kind  string
	timer *time.Timer
}

// NewWatcher returns a Watcher that coalesces the events of a path arriving
// within debounce of each other. A zero debounce reports every event.
func NewWatcher(debounce time.Duration, notify func(models.FileChange), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Watcher{
		fsw:      fsw,
		debounce: debounce,
		notify:   notify,
		logger:   logger,
		paths:    make(map[string]bool),
		dirs:     make(map[string]int),
		pending:  make(map[string]*pendingChange),
	}, nil
}

// Watch starts reporting changes of path. The path must exist.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("watch %s: %w", path, ErrNotExist)
		}
		return fmt.Errorf("watch %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.paths[abs] {
		return nil
	}
	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
	w.dirs[dir]++
	w.paths[abs] = true
	w.logger.Debug("watching path", zap.String("path", abs))
	return nil
}

// Unwatch stops reporting changes of path. Unknown paths are ignored.
func (w *Watcher) Unwatch(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.paths[abs] {
		return
	}
	delete(w.paths, abs)
	if p, ok := w.pending[abs]; ok {
		p.timer.Stop()
		delete(w.pending, abs)
	}

	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] > 0 {
		return
	}
	delete(w.dirs, dir)
	if err := w.fsw.Remove(dir); err != nil {
		w.logger.Debug("unwatch directory", zap.String("dir", dir), zap.Error(err))
	}
}

func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.paths))
	for p := range w.paths {
		out = append(out, p)
	}
	return out
}

// Run delivers changes until ctx is done, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) close() {
	w.mu.Lock()
	w.stopped = true
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	if err := w.fsw.Close(); err != nil {
		w.logger.Debug("close file watcher", zap.Error(err))
	}
}

// changeKind maps an fsnotify operation to a change type. Chmod alone is
// not reported.
func changeKind(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return models.ChangeDeleted
	case op.Has(fsnotify.Create):
		return models.ChangeCreated
	case op.Has(fsnotify.Write):
		return models.ChangeModified
	default:
		return ""
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	kind := changeKind(ev.Op)
	if kind == "" {
		return
	}
	path := filepath.Clean(ev.Name)

	w.mu.Lock()
	if w.stopped || !w.paths[path] {
		w.mu.Unlock()
		return
	}
	if w.debounce <= 0 {
		w.mu.Unlock()
		w.deliver(path, kind)
		return
	}
	if p, ok := w.pending[path]; ok {
		// A write right after a create is still a creation.
		if !(p.kind == models.ChangeCreated && kind == models.ChangeModified) {
			p.kind = kind
		}
		p.timer.Reset(w.debounce)
		w.mu.Unlock()
		return
	}
	w.pending[path] = &pendingChange{
		kind:  kind,
		timer: time.AfterFunc(w.debounce, func() { w.fire(path) }),
	}
	w.mu.Unlock()
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if !ok || w.stopped {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()
	w.deliver(path, p.kind)
}

func (w *Watcher) deliver(path, kind string) {
	w.notify(models.FileChange{
		Path:       path,
		ChangeType: kind,
		Timestamp:  time.Now().Unix(),
	})
}
