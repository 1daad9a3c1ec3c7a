// Package disk reports and reclaims the local storage used by dsget.
package disk

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dsget/pkg/blob"
)

// Info returns the usage of each storage location and their total.
// Saved downloads are listed but are never touched by Clean.
func (m *manager) Info() ([]Usage, int64) {
	locations := []struct{ label, path string }{
		{"Staging", m.cfg.GetStagingDir()},
		{"State", m.cfg.GetStateDir()},
		{"Downloads", m.cfg.GetDownloadDir()},
	}
	var total int64
	var stats []Usage
	for _, l := range locations {
		size, count := DirSize(l.path)
		total += size
		stats = append(stats, Usage{
			Label: l.label,
			Size:  size,
			Items: count,
			Path:  l.path,
		})
	}
	return stats, total
}

// Clean removes staged payloads and temporary files left behind by
// interrupted runs. Files younger than minAge are kept since another dsget
// process may still be writing them. It returns the removed paths and the
// bytes freed.
func (m *manager) Clean(minAge time.Duration) ([]string, int64, error) {
	var removed []string
	var freed int64
	var errs []error

	sweep := func(dir string, match func(name string) bool) {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			errs = append(errs, err)
			return
		}
		for _, e := range entries {
			if e.IsDir() || !match(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if time.Since(info.ModTime()) < minAge {
				continue
			}
			p := filepath.Join(dir, e.Name())
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
				continue
			}
			slog.Info("Cleaning", "path", p)
			removed = append(removed, p)
			freed += info.Size()
		}
	}

	sweep(m.cfg.GetStagingDir(), func(name string) bool {
		if !strings.HasSuffix(name, blob.Ext) {
			return false
		}
		return m.blobs == nil || !m.blobs.IsLive(name)
	})
	sweep(m.cfg.GetStateDir(), func(name string) bool {
		return strings.HasSuffix(name, ".tmp")
	})

	return removed, freed, errors.Join(errs...)
}
