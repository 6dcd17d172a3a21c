package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/peterje/forge/internal/models"
)

var (
	ErrNotExist     = errors.New("path does not exist")
	ErrExist        = errors.New("destination already exists")
	ErrNotDirectory = errors.New("path is not a directory")
	ErrIsDirectory  = errors.New("path is a directory")
)

// Service reads and edits files on the host for editor UIs.
type Service struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger, now: time.Now}
}

func (s *Service) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapPathErr("read", path, err)
	}
	return data, nil
}

// Write replaces the file at path, creating parent directories as needed.
func (s *Service) Write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directories for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return wrapPathErr("write", path, err)
	}
	return nil
}

func (s *Service) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Create is Write for new files; empty content creates an empty file.
func (s *Service) Create(path string, data []byte) error {
	return s.Write(path, data)
}

// Delete removes a file or a whole directory tree.
func (s *Service) Delete(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return wrapPathErr("delete", path, err)
	}
	if info.IsDir() {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		return wrapPathErr("delete", path, err)
	}
	s.logger.Debug("deleted path", zap.String("path", path))
	return nil
}

// Rename moves from to to. It refuses to overwrite an existing destination.
func (s *Service) Rename(from, to string) error {
	if err := s.checkMove(from, to); err != nil {
		return err
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s: %w", from, err)
	}
	return nil
}

// Copy copies a regular file. Directories are refused.
func (s *Service) Copy(from, to string) error {
	if err := s.checkMove(from, to); err != nil {
		return err
	}
	info, err := os.Stat(from)
	if err != nil {
		return wrapPathErr("copy", from, err)
	}
	if info.IsDir() {
		return fmt.Errorf("copy %s: %w", from, ErrIsDirectory)
	}
	return copyFile(from, to, info.Mode().Perm())
}

func (s *Service) checkMove(from, to string) error {
	if _, err := os.Lstat(from); err != nil {
		return wrapPathErr("source", from, err)
	}
	if _, err := os.Lstat(to); err == nil {
		return fmt.Errorf("%s: %w", to, ErrExist)
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("create directories for %s: %w", to, err)
	}
	return nil
}

// Backup copies path to <path>.backup.<unix seconds> and returns the copy's path.
func (s *Service) Backup(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", wrapPathErr("backup", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("backup %s: %w", path, ErrIsDirectory)
	}
	backup := fmt.Sprintf("%s.backup.%d", path, s.now().Unix())
	if err := copyFile(path, backup, info.Mode().Perm()); err != nil {
		return "", err
	}
	s.logger.Info("created backup", zap.String("path", path), zap.String("backup", backup))
	return backup, nil
}

// Restore copies backup over original.
func (s *Service) Restore(backup, original string) error {
	info, err := os.Stat(backup)
	if err != nil {
		return wrapPathErr("restore", backup, err)
	}
	return copyFile(backup, original, info.Mode().Perm())
}

func (s *Service) Metadata(path string) (models.FileMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.FileMetadata{}, wrapPathErr("stat", path, err)
	}
	return metadataFor(path, info), nil
}

// List returns the entries of dir sorted by path. Entries that vanish while
// listing are skipped.
func (s *Service) List(dir string) ([]models.FileMetadata, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, wrapPathErr("list", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("list %s: %w", dir, ErrNotDirectory)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, wrapPathErr("list", dir, err)
	}
	out := make([]models.FileMetadata, 0, len(entries))
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if md, err := s.Metadata(p); err == nil {
			out = append(out, md)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Glob returns the paths under dir matching a doublestar pattern such as
// "**/*.go", relative to dir.
func (s *Service) Glob(dir, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}
	matches, err := doublestar.FilepathGlob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if rel, err := filepath.Rel(dir, m); err == nil {
			out = append(out, filepath.ToSlash(rel))
		}
	}
	sort.Strings(out)
	return out, nil
}

func metadataFor(path string, info os.FileInfo) models.FileMetadata {
	md := models.FileMetadata{
		Name:        filepath.Base(path),
		Path:        path,
		IsDirectory: info.IsDir(),
		Readonly:    info.Mode().Perm()&0o222 == 0,
		Permissions: fmt.Sprintf("%o", info.Mode().Perm()),
	}
	size := info.Size()
	md.Size = &size
	mod := info.ModTime()
	md.ModifiedDate = &mod
	if parent := filepath.Dir(path); parent != path {
		md.ParentPath = &parent
	}
	if info.Mode().IsRegular() {
		if mt, err := mimetype.DetectFile(path); err == nil {
			md.MimeType = mt.String()
		}
	}
	return md
}

func copyFile(from, to string, perm os.FileMode) error {
	src, err := os.Open(from)
	if err != nil {
		return wrapPathErr("copy", from, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("copy to %s: %w", to, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy to %s: %w", to, err)
	}
	return dst.Close()
}

func wrapPathErr(op, path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s %s: %w", op, path, ErrNotExist)
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}
