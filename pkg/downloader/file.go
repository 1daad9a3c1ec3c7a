package downloader

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dsget/pkg/display"
)

// Immutable
type fileHandler struct{}

// NewFileHandler returns the handler for file URIs. It answers like a
// server would, with Content-Length and a Content-Disposition naming the
// source file.
func NewFileHandler() SchemeHandler {
	return &fileHandler{}
}

func (h *fileHandler) Schemes() []string {
	return []string{"file"}
}

func (h *fileHandler) Download(ctx context.Context, uri string, w io.Writer, task display.Task) (*Response, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, &TransportError{URL: uri, Err: err}
	}
	path := filepath.FromSlash(u.Path)

	f, err := os.Open(path)
	if err != nil {
		return nil, &TransportError{URL: uri, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &TransportError{URL: uri, Err: err}
	}
	if info.IsDir() {
		return nil, &TransportError{URL: uri, Err: fmt.Errorf("%s is a directory", path)}
	}

	pr := &progressReader{
		r:     &contextReader{ctx: ctx, r: f},
		task:  task,
		total: info.Size(),
		start: time.Now(),
		kick:  func() {},
	}
	n, err := io.Copy(w, pr)
	if err != nil {
		return nil, &TransportError{URL: uri, Err: err}
	}

	header := make(http.Header)
	header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filepath.Base(path)}))
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		header.Set("Content-Type", ct)
	}

	return &Response{
		URL:        uri,
		StatusCode: http.StatusOK,
		Header:     header,
		Size:       n,
	}, nil
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
