package disk

import (
	"dsget/pkg/blob"
	"dsget/pkg/config"
)

// manager defines the internal state for managing dsget's local storage.
type manager struct {
	cfg   config.ReadOnly
	blobs *blob.Store
}

// Manager is a pointer to the internal manager implementation.
type Manager = *manager

// NewManager creates a disk manager. blobs tells which staged payloads
// belong to downloads still running in this process; it may be nil.
func NewManager(cfg config.ReadOnly, blobs *blob.Store) Manager {
	return &manager{cfg: cfg, blobs: blobs}
}

// Usage represents disk usage information for a specific category of data.
type Usage struct {
	Label string
	Size  int64
	Items int
	Path  string
}
