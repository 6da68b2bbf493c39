// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/evolution-gaming/govmaf/internal/logging"
	"github.com/sethvargo/go-retry"
)

// HTTPError is returned for non 2xx download responses.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// countingReader counts bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// download fetches cfg.URL and extracts it into dir. Server errors and
// interrupted transfers are retried with exponential backoff, every attempt
// starts from an empty dir.
func download(ctx context.Context, cfg Config, dir string) error {
	b := retry.WithMaxRetries(cfg.Retries, retry.NewExponential(cfg.RetryBase))

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			logging.Infof("Retrying download, attempt %d", attempt)
		}
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}

		err := downloadOnce(ctx, cfg, dir)
		var httpErr *HTTPError
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrUnsafePath), errors.Is(err, context.Canceled):
			return err
		case errors.As(err, &httpErr) && httpErr.StatusCode < 500:
			return err
		default:
			logging.Warnf("Download attempt %d failed: %s", attempt, err)
			return retry.RetryableError(err)
		}
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", cfg.URL, err)
	}
	return nil
}

func downloadOnce(ctx context.Context, cfg Config, dir string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return err
	}
	resp, err := cfg.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{URL: cfg.URL, StatusCode: resp.StatusCode}
	}

	body := &countingReader{r: resp.Body}
	if err := extract(body, dir); err != nil {
		return err
	}
	logging.Infof("Downloaded %s", humanize.IBytes(uint64(body.n)))
	return nil
}
