// Package downloader provides a modular system for retrieving remote resources.
// It supports multiple schemes (HTTP, HTTPS, file) and reports progress via the display package.
package downloader

import (
	"context"
	"io"
	"net/http"
	"time"

	"dsget/pkg/display"
)

// Response describes a completed retrieval.
type Response struct {
	// URL is the final URL after redirects.
	URL string
	// StatusCode is the HTTP status, or 200 for non-HTTP schemes.
	StatusCode int
	// Header holds the response headers; lookups are case-insensitive.
	Header http.Header
	// Size is the number of decoded payload bytes written.
	Size int64
}

// Downloader manages the retrieval of resources from various URIs.
type Downloader interface {
	// Download retrieves the resource at the specified URI and writes it to w.
	// It uses the provided display Task (which may be nil) to report progress.
	// Failures are returned as *TransportError.
	Download(ctx context.Context, uri string, w io.Writer, task display.Task) (*Response, error)
}

// SchemeHandler defines the interface for handling specific URI schemes (e.g., "http://").
type SchemeHandler interface {
	// Download executes the download for a URI supported by this handler.
	Download(ctx context.Context, uri string, w io.Writer, task display.Task) (*Response, error)
	// Schemes returns the list of URI schemes (e.g., ["http", "https"]) this handler can process.
	Schemes() []string
}

// Options configures the HTTP handler.
type Options struct {
	// Client performs the requests. A client with a cookie jar is created when nil.
	Client *http.Client
	// Token is sent as a bearer token when not empty.
	Token string
	// ExtraHeaders are added to every request.
	ExtraHeaders map[string]string
	// InactivityTimeout aborts a download when no data arrives for this long.
	// Zero disables the watchdog.
	InactivityTimeout time.Duration
}
