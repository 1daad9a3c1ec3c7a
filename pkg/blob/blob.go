// Package blob keeps the table of temporary object references used while a
// payload travels from the network to its final location. Each Object is
// addressed by a "blob:<uuid>" URL and backed by a spool file in the staging
// directory; revoking the URL releases the file.
package blob

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	// Scheme prefixes every object URL.
	Scheme = "blob:"
	// Ext is the extension of spool files in the staging directory.
	Ext = ".blob"
)

// Object is a temporary, writable payload reference.
// Mutable
type Object struct {
	URL  string
	path string
	f    *os.File
	size int64
}

// Write appends to the spool file.
func (o *Object) Write(p []byte) (int, error) {
	if o.f == nil {
		return 0, fmt.Errorf("%s: %w", o.URL, fs.ErrClosed)
	}
	n, err := o.f.Write(p)
	o.size += int64(n)
	return n, err
}

// Close finishes writing. The object stays addressable until revoked.
func (o *Object) Close() error {
	if o.f == nil {
		return nil
	}
	err := o.f.Close()
	o.f = nil
	return err
}

// Path returns the spool file backing the object.
func (o *Object) Path() string { return o.path }

// Size returns the number of bytes written so far.
func (o *Object) Size() int64 { return o.size }

// Open returns a reader over the object's content.
func (o *Object) Open() (io.ReadCloser, error) {
	return os.Open(o.path)
}

// Store is the object-reference table. It is safe for concurrent use.
// Mutable
type Store struct {
	dir     string
	mu      sync.Mutex
	objects map[string]*Object
}

// NewStore creates a Store spooling into dir. The directory is created on
// first use.
func NewStore(dir string) *Store {
	return &Store{
		dir:     dir,
		objects: make(map[string]*Object),
	}
}

// Dir returns the staging directory.
func (s *Store) Dir() string { return s.dir }

// Create allocates a new object and registers its URL.
func (s *Store) Create() (*Object, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}

	id := uuid.NewString()
	p := filepath.Join(s.dir, id+Ext)
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob: %w", err)
	}

	o := &Object{URL: Scheme + id, path: p, f: f}
	s.mu.Lock()
	s.objects[o.URL] = o
	s.mu.Unlock()

	slog.Debug("Created blob", "url", o.URL, "path", p)
	return o, nil
}

// Lookup returns the live object registered under url.
func (s *Store) Lookup(url string) (*Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[url]
	return o, ok
}

// Revoke releases the object registered under url and removes its spool
// file. Revoking an unknown or already revoked URL is a no-op, and a spool
// file that was moved away by a save is not an error.
func (s *Store) Revoke(url string) error {
	s.mu.Lock()
	o, ok := s.objects[url]
	delete(s.objects, url)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	closeErr := o.Close()
	if err := os.Remove(o.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove blob %s: %w", url, err)
	}
	slog.Debug("Revoked blob", "url", url)
	return closeErr
}

// Len returns the number of live objects.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// IsLive reports whether the spool file name belongs to a live object.
func (s *Store) IsLive(name string) bool {
	if !strings.HasSuffix(name, Ext) {
		return false
	}
	_, ok := s.Lookup(Scheme + strings.TrimSuffix(name, Ext))
	return ok
}
