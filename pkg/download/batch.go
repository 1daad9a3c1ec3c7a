package download

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// DownloadAll downloads reqs with at most limit in flight (no bound when
// limit <= 0). Each item behaves like Download and one failure does not stop
// the others. Results are in request order, nil where the item failed; the
// error joins every item's failure.
func (d *FileDownloader) DownloadAll(ctx context.Context, reqs []Request, limit int) ([]*Result, error) {
	results := make([]*Result, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, r := range reqs {
		g.Go(func() error {
			results[i], errs[i] = d.Download(ctx, r.ResourcePath, r.FallbackName)
			return nil
		})
	}
	g.Wait()

	return results, errors.Join(errs...)
}
