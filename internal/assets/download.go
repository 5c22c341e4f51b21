package assets

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// HTTPDoer is the part of *http.Client the bootstrapper uses.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var defaultClient HTTPDoer = http.DefaultClient

// download fetches url into path. The body lands in a temporary file first so
// a failed transfer never leaves a truncated font behind.
func (b *Bootstrapper) download(ctx context.Context, url, path string) (int64, error) {
	if b.opts.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.DownloadTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "build request")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, errors.Errorf("unexpected status %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, errors.WithStack(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return 0, errors.WithStack(err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, errors.Wrap(err, "read response body")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, errors.WithStack(err)
	}
	return size, nil
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
