// Package download turns a server-relative resource path into a saved
// file. The payload is fetched into a temporary blob, named after the
// server's Content-Disposition (or the caller's fallback), moved into the
// download directory, and reported to the user exactly once.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dsget/pkg/blob"
	"dsget/pkg/display"
	"dsget/pkg/disposition"
	"dsget/pkg/downloader"
	"dsget/pkg/history"
	"dsget/pkg/opener"

	"github.com/dustin/go-humanize"
)

// URLResolver builds absolute request URLs from server-relative paths.
type URLResolver interface {
	ResolveURL(resourcePath string) string
}

// Saver places a finished payload under a user-visible name and returns
// where it ended up.
type Saver interface {
	Save(ctx context.Context, src, name string) (string, error)
}

// Recorder keeps track of completed downloads.
type Recorder interface {
	Append(ctx context.Context, e history.Entry) error
}

// Request names one resource to download.
type Request struct {
	ResourcePath string
	FallbackName string
}

// Result describes a saved download.
type Result struct {
	ResourcePath string
	URL          string
	Path         string
	Filename     string
	Size         int64
}

// Options wires a FileDownloader to its collaborators. History and Opener
// may be nil.
type Options struct {
	Transport downloader.Downloader
	URLs      URLResolver
	Blobs     *blob.Store
	Saver     Saver
	Display   display.Display
	History   Recorder
	Opener    opener.Opener
}

// FileDownloader downloads resources into files. It is safe for concurrent
// use.
// Immutable
type FileDownloader struct {
	transport downloader.Downloader
	urls      URLResolver
	blobs     *blob.Store
	saver     Saver
	disp      display.Display
	history   Recorder
	opener    opener.Opener
}

// New returns a FileDownloader using opts.
func New(opts Options) *FileDownloader {
	return &FileDownloader{
		transport: opts.Transport,
		urls:      opts.URLs,
		blobs:     opts.Blobs,
		saver:     opts.Saver,
		disp:      opts.Display,
		history:   opts.History,
		opener:    opts.Opener,
	}
}

// Download fetches resourcePath and saves it under the name the server
// suggests, or fallbackName when it suggests none. The outcome is shown as
// one notification; on failure the returned error is a
// *DownloadFailedError and nothing is left in the download directory.
func (d *FileDownloader) Download(ctx context.Context, resourcePath, fallbackName string) (*Result, error) {
	uri := d.urls.ResolveURL(resourcePath)
	label := fallbackName
	if label == "" {
		label = resourcePath
	}

	task := d.disp.StartTask(label)
	res, err := d.fetchAndSave(ctx, task, resourcePath, fallbackName, uri)
	task.Done()

	if err != nil {
		slog.Debug("Download failed", "path", resourcePath, "url", uri, "error", err)
		d.disp.Notify(display.LevelFailure, fmt.Sprintf("Download of %s failed: %s", label, summarize(err)))
		return nil, &DownloadFailedError{ResourcePath: resourcePath, Err: err}
	}

	d.disp.Notify(display.LevelSuccess, fmt.Sprintf("Saved %s (%s)", res.Filename, humanize.Bytes(uint64(res.Size))))
	d.record(ctx, res)
	return res, nil
}

// fetchAndSave owns the blob: it is revoked on every return path.
func (d *FileDownloader) fetchAndSave(ctx context.Context, task display.Task, resourcePath, fallbackName, uri string) (*Result, error) {
	obj, err := d.blobs.Create()
	if err != nil {
		return nil, fmt.Errorf("failed to materialize payload: %w", err)
	}
	defer func() {
		if err := d.blobs.Revoke(obj.URL); err != nil {
			slog.Warn("Failed to release blob", "url", obj.URL, "error", err)
		}
	}()

	task.SetStage("Download", uri)
	resp, err := d.transport.Download(ctx, uri, obj, task)
	if err != nil {
		return nil, err
	}
	if err := obj.Close(); err != nil {
		return nil, fmt.Errorf("failed to materialize payload: %w", err)
	}

	name := disposition.Resolve(resp.Header.Get("Content-Disposition"), fallbackName)
	if err := context.Cause(ctx); err != nil {
		return nil, err
	}

	task.SetStage("Save", name)
	saved, err := d.saver.Save(ctx, obj.Path(), name)
	if err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", name, err)
	}
	task.Log(fmt.Sprintf("Saved to %s", saved))

	return &Result{
		ResourcePath: resourcePath,
		URL:          resp.URL,
		Path:         saved,
		Filename:     name,
		Size:         obj.Size(),
	}, nil
}

func (d *FileDownloader) record(ctx context.Context, res *Result) {
	if d.history == nil {
		return
	}
	err := d.history.Append(context.WithoutCancel(ctx), history.Entry{
		ResourcePath: res.ResourcePath,
		URL:          res.URL,
		Path:         res.Path,
		Filename:     res.Filename,
		Size:         res.Size,
		Time:         time.Now(),
	})
	if err != nil {
		slog.Warn("Failed to record download", "path", res.Path, "error", err)
	}
}

// DownloadByLink hands the resource's absolute URL to the host's URL
// handler and returns. Nothing is checked, named, or reported.
func (d *FileDownloader) DownloadByLink(resourcePath string) {
	if d.opener == nil {
		return
	}
	uri := d.urls.ResolveURL(resourcePath)
	if err := d.opener.Open(uri); err != nil {
		slog.Debug("Open failed", "url", uri, "error", err)
	}
}
