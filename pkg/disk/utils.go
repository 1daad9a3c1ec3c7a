package disk

import (
	"io/fs"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// DirSize calculates the total size and file count of a directory.
// A missing directory is empty.
func DirSize(path string) (int64, int) {
	var size int64
	var count int
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size += info.Size()
		count++
		return nil
	})
	return size, count
}

// FormatSize converts bytes to a human-readable string.
func FormatSize(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}
