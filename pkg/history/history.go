// Package history records completed downloads in a JSON file under the
// state directory. Every change re-reads the file under a lock and replaces
// it atomically, so several dsget processes can share one history.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"dsget/pkg/saver"
)

const formatVersion = 1

// Entry describes one saved download.
type Entry struct {
	ResourcePath string    `json:"resource_path"`
	URL          string    `json:"url"`
	Path         string    `json:"path"`
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	Time         time.Time `json:"time"`
}

type document struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// History is a handle on a history file. It is safe for concurrent use.
// Mutable
type History struct {
	file string
	mu   sync.Mutex
	opts options
}

// Open returns a History backed by file. Nothing is read until first use
// and a missing file reads as empty.
func Open(file string, opts ...Option) *History {
	h := &History{
		file: file,
		opts: options{
			maxEntries: 1000,
			fileMode:   0644,
			indent:     "  ",
		},
	}
	for _, opt := range opts {
		opt(&h.opts)
	}
	return h
}

// File returns the path of the history file.
func (h *History) File() string { return h.file }

// Append records e.
func (h *History) Append(ctx context.Context, e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	return h.modify(ctx, func(doc *document) {
		doc.Entries = append(doc.Entries, e)
		if n := h.opts.maxEntries; n > 0 && len(doc.Entries) > n {
			doc.Entries = slices.Clone(doc.Entries[len(doc.Entries)-n:])
		}
	})
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns everything.
func (h *History) List(limit int) ([]Entry, error) {
	h.mu.Lock()
	doc, err := h.load()
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}

	entries := slices.Clone(doc.Entries)
	slices.Reverse(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Clear removes every entry.
func (h *History) Clear(ctx context.Context) error {
	return h.modify(ctx, func(doc *document) {
		doc.Entries = nil
	})
}

func (h *History) modify(ctx context.Context, fn func(*document)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(h.file), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	unlock, err := saver.Lock(ctx, h.file)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := h.load()
	if err != nil {
		return err
	}
	fn(doc)
	return h.save(doc)
}

// load must be called with mu held.
func (h *History) load() (*document, error) {
	data, err := os.ReadFile(h.file)
	if errors.Is(err, fs.ErrNotExist) {
		return &document{Version: formatVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse history %s: %w", h.file, err)
	}
	if doc.Version > formatVersion {
		return nil, fmt.Errorf("history %s has unsupported version %d", h.file, doc.Version)
	}
	doc.Version = formatVersion
	return &doc, nil
}

// save writes doc atomically: temp file first, then rename.
func (h *History) save(doc *document) error {
	var data []byte
	var err error
	if h.opts.indent != "" {
		data, err = json.MarshalIndent(doc, "", h.opts.indent)
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	tempFile := h.file + ".tmp"
	if err := os.WriteFile(tempFile, data, h.opts.fileMode); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, h.file); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
