package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"dsget/pkg/display"

	"github.com/dustin/go-humanize"
	"golang.org/x/net/publicsuffix"
)

// errorBodyLimit caps how much of a failed response is read for its message.
const errorBodyLimit = 64 << 10

// Immutable
type httpHandler struct {
	client  *http.Client
	token   string
	headers map[string]string
	timeout time.Duration
}

// NewHTTPHandler returns the handler for http and https URIs.
func NewHTTPHandler(opts Options) SchemeHandler {
	client := opts.Client
	if client == nil {
		// publicsuffix.List never makes cookiejar.New fail
		jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		client = &http.Client{
			Jar:     jar,
			Timeout: 0, // Handled by context and watchdog
		}
	}
	return &httpHandler{
		client:  client,
		token:   opts.Token,
		headers: opts.ExtraHeaders,
		timeout: opts.InactivityTimeout,
	}
}

func (h *httpHandler) Schemes() []string {
	return []string{"http", "https"}
}

func (h *httpHandler) Download(ctx context.Context, uri string, w io.Writer, task display.Task) (*Response, error) {
	ctx, wd := newWatchdog(ctx, h.timeout)
	defer wd.Cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, &TransportError{URL: uri, Err: err}
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	// Setting Accept-Encoding ourselves turns off the transport's implicit gzip handling.
	req.Header.Set("Accept-Encoding", acceptEncoding)

	slog.Debug("Requesting", "url", uri)
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: uri, Err: cause(ctx, err)}
	}
	defer resp.Body.Close()

	finalURL := uri
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		if decoded, err := decodeAll(resp.Header.Get("Content-Encoding"), body); err == nil {
			body = decoded
		}
		return nil, &TransportError{
			URL:        finalURL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    extractMessage(resp.Header.Get("Content-Type"), body),
		}
	}

	pr := &progressReader{
		r:     resp.Body,
		task:  task,
		total: resp.ContentLength,
		start: time.Now(),
		kick:  wd.Kick,
	}
	body, err := newDecoder(resp.Header.Get("Content-Encoding"), pr)
	if err != nil {
		return nil, &TransportError{URL: finalURL, StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
	}
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		return nil, &TransportError{URL: finalURL, StatusCode: resp.StatusCode, Status: resp.Status, Err: cause(ctx, err)}
	}

	slog.Debug("Downloaded", "url", finalURL, "bytes", n)
	return &Response{
		URL:        finalURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Size:       n,
	}, nil
}

// cause prefers the reason the context was cancelled over the generic
// error the transport reports for it.
func cause(ctx context.Context, err error) error {
	if c := context.Cause(ctx); c != nil && !errors.Is(err, c) {
		return fmt.Errorf("%w: %w", c, err)
	}
	return err
}

func decodeAll(encoding string, data []byte) ([]byte, error) {
	rc, err := newDecoder(encoding, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Mutable
type progressReader struct {
	r     io.Reader
	task  display.Task
	total int64
	read  int64
	start time.Time
	kick  func()
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.kick()
		pr.report()
	}
	return n, err
}

func (pr *progressReader) report() {
	if pr.task == nil {
		return
	}
	if pr.total > 0 {
		percent := int((float64(pr.read) / float64(pr.total)) * 100)
		elapsed := time.Since(pr.start).Seconds()
		var speed float64
		if elapsed > 0 {
			speed = float64(pr.read) / elapsed
		}
		msg := fmt.Sprintf("%s / %s (%s/s)",
			humanize.Bytes(uint64(pr.read)),
			humanize.Bytes(uint64(pr.total)),
			humanize.Bytes(uint64(speed)))
		pr.task.Progress(percent, msg)
	} else {
		pr.task.Progress(0, fmt.Sprintf("%s downloaded", humanize.Bytes(uint64(pr.read))))
	}
}
