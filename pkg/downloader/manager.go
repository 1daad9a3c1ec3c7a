package downloader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"dsget/pkg/display"
)

// Mutable
type manager struct {
	handlers map[string]SchemeHandler
}

// NewDefaultDownloader returns a Downloader for http, https and file URIs
// with default options.
func NewDefaultDownloader() Downloader {
	return NewDownloader(Options{})
}

// NewDownloader returns a Downloader for http, https and file URIs.
func NewDownloader(opts Options) Downloader {
	m := &manager{
		handlers: make(map[string]SchemeHandler),
	}
	m.Register(NewHTTPHandler(opts))
	m.Register(NewFileHandler())
	return m
}

func (m *manager) Register(h SchemeHandler) {
	for _, scheme := range h.Schemes() {
		m.handlers[scheme] = h
	}
}

func (m *manager) Download(ctx context.Context, uri string, w io.Writer, task display.Task) (*Response, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, &TransportError{URL: uri, Err: fmt.Errorf("invalid uri: %w", err)}
	}

	scheme := strings.ToLower(u.Scheme)
	handler, ok := m.handlers[scheme]
	if !ok {
		return nil, &TransportError{URL: uri, Err: fmt.Errorf("unsupported scheme: %q", scheme)}
	}

	return handler.Download(ctx, uri, w, task)
}
