package history

import "os"

// Option is a functional option for configuring a History.
type Option func(*options)

type options struct {
	maxEntries int
	fileMode   os.FileMode
	indent     string
}

// WithMaxEntries caps how many entries are kept; the oldest are dropped
// first. Zero keeps everything. Default is 1000.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		o.maxEntries = n
	}
}

// WithFileMode sets the file permissions of the history file.
// Default is 0644.
func WithFileMode(mode os.FileMode) Option {
	return func(o *options) {
		o.fileMode = mode
	}
}

// WithCompactJSON writes the file without indentation.
func WithCompactJSON() Option {
	return func(o *options) {
		o.indent = ""
	}
}
