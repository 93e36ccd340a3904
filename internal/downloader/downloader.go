package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"

	"github.com/Martaccvlc/ImageResizingAPI/internal/fileops"
)

// sourceStorage stores a fetched image in the managed input directory.
type sourceStorage interface {
	SaveSource(filename string, src io.Reader) (string, error)
}

// Downloader fetches remote images to the managed input directory. Each
// fetch gets a collision-free filename while keeping the URL's extension.
type Downloader struct {
	client   *http.Client
	storage  sourceStorage
	strategy retry.Strategy
}

// New creates a Downloader with the given storage backend and retry strategy.
func New(storage sourceStorage, strategy retry.Strategy) *Downloader {
	return &Downloader{
		client:   &http.Client{Timeout: 30 * time.Second},
		storage:  storage,
		strategy: strategy,
	}
}

// Fetch downloads rawURL to the input directory and returns the absolute
// path of the stored file. Network errors and non-2xx responses are retried
// per the strategy before failing.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}

	filename := uuid.New().String() + fileops.Ext(u.Path)

	var path string
	err = retry.Do(func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if reqErr != nil {
			return fmt.Errorf("failed to build request: %w", reqErr)
		}

		resp, doErr := d.client.Do(req)
		if doErr != nil {
			return fmt.Errorf("download request failed: %w", doErr)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("download failed with status %d", resp.StatusCode)
		}

		dst, saveErr := d.storage.SaveSource(filename, resp.Body)
		if saveErr != nil {
			return saveErr
		}

		path = dst
		return nil
	}, d.strategy)
	if err != nil {
		return "", err
	}

	return path, nil
}
