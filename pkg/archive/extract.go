// Package archive unpacks downloaded archives next to the saved file.
package archive

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// supported lists archive suffixes, longest first so ".tar.gz" wins over ".gz".
var supported = []string{".tar.gz", ".tar.zst", ".tgz", ".tzst", ".tar", ".zip"}

// SupportedExtensions returns the archive suffixes Extract understands.
func SupportedExtensions() []string {
	return append([]string(nil), supported...)
}

// Ext returns the archive suffix of name, or "" if it is not an archive.
func Ext(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range supported {
		if strings.HasSuffix(lower, ext) && len(name) > len(ext) {
			return ext
		}
	}
	return ""
}

// IsSupported reports whether name looks like an archive Extract can open.
func IsSupported(name string) bool {
	return Ext(name) != ""
}

// ExtractBeside unpacks the archive at src into a new directory named after
// it ("data.zip" into "data", or "data (1)" when taken) and returns that
// directory.
func ExtractBeside(src string) (string, error) {
	ext := Ext(src)
	if ext == "" {
		return "", fmt.Errorf("unsupported archive format: %s", filepath.Base(src))
	}
	base := src[:len(src)-len(ext)]

	dest := base
	for i := 1; ; i++ {
		err := os.Mkdir(dest, 0755)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to create %s: %w", dest, err)
		}
		dest = fmt.Sprintf("%s (%d)", base, i)
	}

	if err := Extract(src, dest); err != nil {
		os.RemoveAll(dest)
		return "", err
	}
	return dest, nil
}

// Extract unpacks the archive at src into dest. Only regular files and
// directories are created; links and devices are skipped.
func Extract(src string, dest string) error {
	ext := Ext(src)
	if ext == ".zip" {
		return extractZip(src, dest)
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	switch ext {
	case ".tar.gz", ".tgz":
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzr.Close()
		r = gzr
	case ".tar.zst", ".tzst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	case ".tar":
	default:
		return fmt.Errorf("unsupported archive format: %s", filepath.Base(src))
	}

	return extractTar(r, dest)
}

func extractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		err := extractEntry(f.Name, f.FileInfo(), dest, f.Open)
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("illegal file path in archive: %s", header.Name)
		}
		if err != nil {
			return fmt.Errorf("failed to read tar header: %w", err)
		}

		err = extractEntry(header.Name, header.FileInfo(), dest, func() (io.ReadCloser, error) {
			return io.NopCloser(tr), nil
		})
		if err != nil {
			return err
		}
	}
}

// extractEntry writes one archive member below dest.
func extractEntry(name string, info fs.FileInfo, dest string, open func() (io.ReadCloser, error)) error {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return fmt.Errorf("illegal file path in archive: %s", name)
	}
	target := filepath.Join(dest, filepath.FromSlash(name))

	switch {
	case info.IsDir():
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", target, err)
		}
		return nil
	case !info.Mode().IsRegular():
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", target, err)
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()|0600)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}
	defer f.Close()

	rc, err := open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", name, err)
	}
	defer rc.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return fmt.Errorf("failed to write file %s: %w", target, err)
	}
	return f.Close()
}
