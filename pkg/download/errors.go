package download

import (
	"context"
	"errors"
	"fmt"

	"dsget/pkg/downloader"
)

// ErrDownloadFailed matches every error returned by a failed download.
var ErrDownloadFailed = errors.New("download failed")

// DownloadFailedError is returned once a failed download has been
// reported to the user. It matches ErrDownloadFailed and unwraps to the
// underlying cause, typically a *downloader.TransportError.
type DownloadFailedError struct {
	ResourcePath string
	Err          error
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("download %s failed: %v", e.ResourcePath, e.Err)
}

func (e *DownloadFailedError) Unwrap() []error {
	return []error{ErrDownloadFailed, e.Err}
}

// summarize turns a failure into the text shown in the notification.
func summarize(err error) string {
	var te *downloader.TransportError
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &te):
		return te.Summary()
	default:
		return err.Error()
	}
}
