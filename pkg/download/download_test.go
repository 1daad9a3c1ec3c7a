package download

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dsget/pkg/blob"
	"dsget/pkg/config"
	"dsget/pkg/display"
	"dsget/pkg/downloader"
	"dsget/pkg/history"
	"dsget/pkg/saver"
)

type notification struct {
	level display.Level
	msg   string
}

// mockDisplay records notifications.
type mockDisplay struct {
	mu    sync.Mutex
	notes []notification
}

func (m *mockDisplay) Notify(level display.Level, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, notification{level, msg})
}
func (m *mockDisplay) StartTask(name string) display.Task { return &mockTask{} }
func (m *mockDisplay) Log(msg string)                      {}
func (m *mockDisplay) Print(msg string)                    {}
func (m *mockDisplay) SetVerbose(v bool)                   {}
func (m *mockDisplay) Close()                              {}

func (m *mockDisplay) count(level display.Level) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, note := range m.notes {
		if note.level == level {
			n++
		}
	}
	return n
}

type mockTask struct{}

func (m *mockTask) Log(msg string)                       {}
func (m *mockTask) SetStage(name string, target string)  {}
func (m *mockTask) Progress(percent int, message string) {}
func (m *mockTask) Done()                                {}

// fakeTransport answers every request with a fixed response.
type fakeTransport struct {
	mu     sync.Mutex
	uris   []string
	body   string
	header http.Header
	err    error
	delay  time.Duration
}

func (f *fakeTransport) Download(ctx context.Context, uri string, w io.Writer, task display.Task) (*downloader.Response, error) {
	f.mu.Lock()
	f.uris = append(f.uris, uri)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		io.WriteString(w, "partial")
		return nil, f.err
	}
	n, err := io.WriteString(w, f.body)
	if err != nil {
		return nil, err
	}
	return &downloader.Response{URL: uri, StatusCode: http.StatusOK, Header: f.header, Size: int64(n)}, nil
}

type failingSaver struct{ err error }

func (f *failingSaver) Save(ctx context.Context, src, name string) (string, error) {
	return "", f.err
}

type fakeOpener struct {
	urls []string
	err  error
}

func (f *fakeOpener) Open(url string) error {
	f.urls = append(f.urls, url)
	return f.err
}

type env struct {
	cfg     config.ReadOnly
	blobs   *blob.Store
	disp    *mockDisplay
	history *history.History
	opener  *fakeOpener
}

func newEnv(t *testing.T, baseURL string) *env {
	t.Helper()
	root := t.TempDir()
	c := config.New()
	w := c.Checkout()
	w.SetBaseURL(baseURL)
	w.SetAPIPrefix("/api")
	w.SetCacheDir(filepath.Join(root, "cache"))
	w.SetStateDir(filepath.Join(root, "state"))
	w.SetDownloadDir(filepath.Join(root, "Downloads"))
	c.Freeze()

	return &env{
		cfg:     c,
		blobs:   blob.NewStore(c.GetStagingDir()),
		disp:    &mockDisplay{},
		history: history.Open(c.GetHistoryFile()),
		opener:  &fakeOpener{},
	}
}

func (e *env) downloader(transport downloader.Downloader) *FileDownloader {
	return e.downloaderWithSaver(transport, saver.New(e.cfg.GetDownloadDir()))
}

func (e *env) downloaderWithSaver(transport downloader.Downloader, s Saver) *FileDownloader {
	return New(Options{
		Transport: transport,
		URLs:      e.cfg,
		Blobs:     e.blobs,
		Saver:     s,
		Display:   e.disp,
		History:   e.history,
		Opener:    e.opener,
	})
}

func (e *env) assertNoBlobs(t *testing.T) {
	t.Helper()
	if e.blobs.Len() != 0 {
		t.Errorf("expected no live blobs, got %d", e.blobs.Len())
	}
	matches, _ := filepath.Glob(filepath.Join(e.cfg.GetStagingDir(), "*"+blob.Ext))
	if len(matches) != 0 {
		t.Errorf("expected no spool files, got %v", matches)
	}
}

func (e *env) savedFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.cfg.GetDownloadDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestDownloadEndToEnd(t *testing.T) {
	e := newEnv(t, "")
	transport := &fakeTransport{
		body:   "a,b\n1,2",
		header: http.Header{"Content-Disposition": {`attachment; filename="data.csv"`}},
	}

	res, err := e.downloader(transport).Download(context.Background(), "/datasets/1/download", "fallback.csv")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	if len(transport.uris) != 1 || transport.uris[0] != "/api/datasets/1/download" {
		t.Errorf("unexpected request URIs %v", transport.uris)
	}
	if res.Filename != "data.csv" {
		t.Errorf("expected data.csv, got %s", res.Filename)
	}
	data, err := os.ReadFile(filepath.Join(e.cfg.GetDownloadDir(), "data.csv"))
	if err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	if string(data) != "a,b\n1,2" {
		t.Errorf("unexpected content %q", data)
	}
	if res.Path != filepath.Join(e.cfg.GetDownloadDir(), "data.csv") || res.Size != 7 {
		t.Errorf("unexpected result %+v", res)
	}

	if e.disp.count(display.LevelSuccess) != 1 || e.disp.count(display.LevelFailure) != 0 {
		t.Errorf("expected exactly one success notification, got %+v", e.disp.notes)
	}
	if !strings.Contains(e.disp.notes[0].msg, "data.csv") {
		t.Errorf("notification should name the file: %q", e.disp.notes[0].msg)
	}
	e.assertNoBlobs(t)

	entries, err := e.history.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ResourcePath != "/datasets/1/download" || entries[0].Filename != "data.csv" {
		t.Errorf("unexpected history %+v", entries)
	}
}

func TestDownloadNetworkFailure(t *testing.T) {
	e := newEnv(t, "")
	netErr := &downloader.TransportError{URL: "/api/datasets/1/download", Err: errors.New("connection refused")}
	transport := &fakeTransport{err: netErr}

	res, err := e.downloader(transport).Download(context.Background(), "/datasets/1/download", "data.csv")
	if err == nil {
		t.Fatal("expected error")
	}
	if res != nil {
		t.Errorf("expected no result, got %+v", res)
	}
	if !errors.Is(err, ErrDownloadFailed) {
		t.Errorf("expected ErrDownloadFailed, got %v", err)
	}
	var te *downloader.TransportError
	if !errors.As(err, &te) || te != netErr {
		t.Errorf("expected the transport error to be preserved, got %v", err)
	}
	var dfe *DownloadFailedError
	if !errors.As(err, &dfe) || dfe.ResourcePath != "/datasets/1/download" {
		t.Errorf("expected *DownloadFailedError, got %T", err)
	}

	if e.disp.count(display.LevelFailure) != 1 || len(e.disp.notes) != 1 {
		t.Errorf("expected exactly one failure notification, got %+v", e.disp.notes)
	}
	if !strings.Contains(e.disp.notes[0].msg, "connection refused") {
		t.Errorf("unexpected failure message %q", e.disp.notes[0].msg)
	}
	if files := e.savedFiles(t); len(files) != 0 {
		t.Errorf("expected nothing saved, got %v", files)
	}
	e.assertNoBlobs(t)

	entries, _ := e.history.List(0)
	if len(entries) != 0 {
		t.Errorf("failed download must not be recorded: %+v", entries)
	}
}

func TestDownloadFallbackName(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		fallback string
		expected string
	}{
		{"absent header", "", "fallback.csv", "fallback.csv"},
		{"inline without name", "inline", "fallback.csv", "fallback.csv"},
		{"extended form", `attachment; filename="plain.csv"; filename*=UTF-8''%E6%B5%8B%E8%AF%95.csv`, "fallback.csv", "测试.csv"},
		{"path in header", `attachment; filename="../../etc/passwd"`, "fallback.csv", "passwd"},
		{"unusable everywhere", `attachment; filename=".."`, "", "download"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, "")
			header := http.Header{}
			if tt.header != "" {
				header.Set("Content-Disposition", tt.header)
			}
			res, err := e.downloader(&fakeTransport{body: "x", header: header}).Download(context.Background(), "/f", tt.fallback)
			if err != nil {
				t.Fatalf("Download failed: %v", err)
			}
			if res.Filename != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, res.Filename)
			}
			if _, err := os.Stat(filepath.Join(e.cfg.GetDownloadDir(), tt.expected)); err != nil {
				t.Errorf("expected saved file: %v", err)
			}
		})
	}
}

func TestDownloadNeverOverwrites(t *testing.T) {
	e := newEnv(t, "")
	header := http.Header{"Content-Disposition": {"attachment; filename=report.csv"}}
	d := e.downloader(&fakeTransport{body: "x", header: header})

	for i := 0; i < 2; i++ {
		if _, err := d.Download(context.Background(), "/r", "r.csv"); err != nil {
			t.Fatal(err)
		}
	}
	files := e.savedFiles(t)
	if len(files) != 2 || files[0] != "report (1).csv" || files[1] != "report.csv" {
		t.Errorf("unexpected files %v", files)
	}
}

func TestDownloadSaveFailure(t *testing.T) {
	e := newEnv(t, "")
	boom := errors.New("disk full")
	d := e.downloaderWithSaver(&fakeTransport{body: "x", header: http.Header{}}, &failingSaver{err: boom})

	_, err := d.Download(context.Background(), "/f", "f.csv")
	if !errors.Is(err, boom) || !errors.Is(err, ErrDownloadFailed) {
		t.Errorf("expected save error wrapped as DownloadFailed, got %v", err)
	}
	if e.disp.count(display.LevelFailure) != 1 || len(e.disp.notes) != 1 {
		t.Errorf("expected exactly one failure notification, got %+v", e.disp.notes)
	}
	e.assertNoBlobs(t)
}

func TestDownloadCancelled(t *testing.T) {
	e := newEnv(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport := &fakeTransport{err: &downloader.TransportError{URL: "/api/f", Err: context.Canceled}}
	_, err := e.downloader(transport).Download(ctx, "/f", "f.csv")
	if !errors.Is(err, ErrDownloadFailed) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation surfaced as DownloadFailed, got %v", err)
	}
	if e.disp.count(display.LevelFailure) != 1 {
		t.Errorf("expected one failure notification, got %+v", e.disp.notes)
	}
	if !strings.Contains(e.disp.notes[0].msg, "cancelled") {
		t.Errorf("unexpected message %q", e.disp.notes[0].msg)
	}
	e.assertNoBlobs(t)
}

func TestDownloadCancelledAfterFetch(t *testing.T) {
	e := newEnv(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The transport ignores ctx; the save must still not happen.
	_, err := e.downloader(&fakeTransport{body: "x", header: http.Header{}}).Download(ctx, "/f", "f.csv")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if files := e.savedFiles(t); len(files) != 0 {
		t.Errorf("expected nothing saved, got %v", files)
	}
	e.assertNoBlobs(t)
}

func TestDownloadOverHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/datasets/1/download":
			w.Header().Set("Content-Disposition", `attachment; filename*=UTF-8''%E6%B5%8B%E8%AF%95.csv`)
			w.Write([]byte("a,b\n1,2"))
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"Dataset not found"}`))
		}
	}))
	defer ts.Close()

	e := newEnv(t, ts.URL+"/")
	d := e.downloader(downloader.NewDefaultDownloader())

	res, err := d.Download(context.Background(), "datasets/1/download", "dataset.csv")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if res.Filename != "测试.csv" || res.URL != ts.URL+"/api/datasets/1/download" {
		t.Errorf("unexpected result %+v", res)
	}

	_, err = d.Download(context.Background(), "/datasets/2/download", "dataset.csv")
	var te *downloader.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 TransportError, got %v", err)
	}
	if e.disp.count(display.LevelSuccess) != 1 || e.disp.count(display.LevelFailure) != 1 {
		t.Errorf("expected one notification per download, got %+v", e.disp.notes)
	}
	if !strings.Contains(e.disp.notes[1].msg, "Dataset not found") {
		t.Errorf("expected server message in notification, got %q", e.disp.notes[1].msg)
	}
	e.assertNoBlobs(t)
}

func TestDownloadWithConsoleDisplay(t *testing.T) {
	e := newEnv(t, "")
	var buf bytes.Buffer
	d := New(Options{
		Transport: &fakeTransport{body: "a,b\n1,2", header: http.Header{}},
		URLs:      e.cfg,
		Blobs:     e.blobs,
		Saver:     saver.New(e.cfg.GetDownloadDir()),
		Display:   display.NewWriterDisplay(&buf),
	})

	if _, err := d.Download(context.Background(), "/f", "f.csv"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Saved f.csv (7 B)") {
		t.Errorf("unexpected console output %q", buf.String())
	}
}

func TestDownloadByLink(t *testing.T) {
	e := newEnv(t, "https://ts.example.com")
	d := e.downloader(&fakeTransport{})

	d.DownloadByLink("/datasets/1/download")
	if len(e.opener.urls) != 1 || e.opener.urls[0] != "https://ts.example.com/api/datasets/1/download" {
		t.Errorf("unexpected opened URLs %v", e.opener.urls)
	}

	e.opener.err = errors.New("no handler")
	d.DownloadByLink("/datasets/2/download")
	if len(e.disp.notes) != 0 {
		t.Errorf("DownloadByLink must not notify, got %+v", e.disp.notes)
	}
	e.assertNoBlobs(t)
}

// limitTransport tracks how many downloads run at once.
type limitTransport struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (l *limitTransport) Download(ctx context.Context, uri string, w io.Writer, task display.Task) (*downloader.Response, error) {
	n := l.inFlight.Add(1)
	defer l.inFlight.Add(-1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(50 * time.Millisecond)

	if strings.HasSuffix(uri, "/missing") {
		return nil, &downloader.TransportError{URL: uri, StatusCode: 404, Status: "404 Not Found"}
	}
	io.WriteString(w, uri)
	return &downloader.Response{URL: uri, StatusCode: 200, Header: http.Header{}}, nil
}

func TestDownloadAll(t *testing.T) {
	e := newEnv(t, "")
	transport := &limitTransport{}
	d := e.downloader(transport)

	reqs := []Request{
		{"/a", "a.csv"},
		{"/missing", "m.csv"},
		{"/b", "b.csv"},
		{"/c", "c.csv"},
		{"/d", "a.csv"},
	}
	results, err := d.DownloadAll(context.Background(), reqs, 2)

	if !errors.Is(err, ErrDownloadFailed) {
		t.Errorf("expected joined DownloadFailed, got %v", err)
	}
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if results[1] != nil {
		t.Errorf("expected failed item to have no result")
	}
	for _, i := range []int{0, 2, 3, 4} {
		if results[i] == nil {
			t.Errorf("expected result for %s", reqs[i].ResourcePath)
		}
	}
	if p := transport.peak.Load(); p > 2 {
		t.Errorf("expected at most 2 downloads in flight, saw %d", p)
	}

	if e.disp.count(display.LevelSuccess) != 4 || e.disp.count(display.LevelFailure) != 1 {
		t.Errorf("expected one notification per item, got %+v", e.disp.notes)
	}
	if files := e.savedFiles(t); len(files) != 4 {
		t.Errorf("expected 4 saved files, got %v", files)
	}
	e.assertNoBlobs(t)
}

func TestDownloadAllSucceeds(t *testing.T) {
	e := newEnv(t, "")
	d := e.downloader(&fakeTransport{body: "x", header: http.Header{}})

	results, err := d.DownloadAll(context.Background(), []Request{{"/a", "a"}, {"/b", "b"}}, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if results[0].Filename != "a" || results[1].Filename != "b" {
		t.Errorf("unexpected results %+v %+v", results[0], results[1])
	}
}
