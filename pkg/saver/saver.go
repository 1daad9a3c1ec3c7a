// Package saver places finished payloads in the download directory, the
// way a browser's save-as does: an existing file is never overwritten, a
// taken name gets a " (N)" suffix instead.
package saver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// lockName is the lock target guarding name selection in the directory.
const lockName = ".dsget"

// maxAttempts bounds the " (N)" suffix search.
const maxAttempts = 10000

// Saver moves files into a directory under collision-free names.
// Mutable
type Saver struct {
	dir string
	mu  sync.Mutex
}

// New returns a Saver writing into dir. The directory is created on the
// first save.
func New(dir string) *Saver {
	return &Saver{dir: dir}
}

// Dir returns the target directory.
func (s *Saver) Dir() string { return s.dir }

// Save moves src into the directory as name, or as the first free
// "base (N).ext" variant, and returns the resulting path. src is consumed:
// on success it no longer exists.
func (s *Saver) Save(ctx context.Context, src, name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	// Concurrent saves in this process are serialized by mu; the lock file
	// covers other processes.
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := Lock(ctx, filepath.Join(s.dir, lockName))
	if err != nil {
		return "", err
	}
	defer unlock()

	dst, err := s.uniquePath(name)
	if err != nil {
		return "", err
	}
	if err := move(src, dst); err != nil {
		return "", err
	}
	slog.Debug("Saved", "path", dst)
	return dst, nil
}

func (s *Saver) uniquePath(name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		// ".csv" style names keep the whole name as base
		base, ext = name, ""
	}

	for i := 0; i < maxAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
		}
		p := filepath.Join(s.dir, candidate)
		if _, err := os.Lstat(p); errors.Is(err, fs.ErrNotExist) {
			return p, nil
		} else if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", p, err)
		}
	}
	return "", fmt.Errorf("no free name for %q in %s", name, s.dir)
}

// move renames src to dst, copying when they are on different devices.
func move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		// Spool files are private; saved files are not.
		return os.Chmod(dst, 0644)
	}
	slog.Debug("Rename failed, copying", "src", src, "dst", dst, "error", err)

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	in.Close()
	return os.Remove(src)
}
