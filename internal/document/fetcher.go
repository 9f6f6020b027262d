package document

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// DefaultMaxDocumentBytes caps how much of a document is downloaded. The
// limit keeps a mistyped or hostile URL from filling the temp volume.
const DefaultMaxDocumentBytes = 50 << 20

// Fetcher downloads documents over HTTP into temporary files.
type Fetcher struct {
	client   *http.Client
	logger   *slog.Logger
	maxBytes int64
}

// NewFetcher creates a fetcher with the given per-download timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		logger:   slog.Default(),
		maxBytes: DefaultMaxDocumentBytes,
	}
}

// FetchError reports a failed document download.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetch downloads the document at url into a temporary file and returns the
// file path plus a cleanup func that removes it. The caller must invoke
// cleanup once the file is no longer needed, regardless of downstream errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, func(), error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, &FetchError{URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", nil, &FetchError{URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	tmp, err := os.CreateTemp("", "docqa-*.pdf")
	if err != nil {
		return "", nil, &FetchError{URL: url, Err: err}
	}

	// One byte past the cap distinguishes an oversized body from an exact fit.
	written, err := io.Copy(tmp, io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, &FetchError{URL: url, Err: err}
	}
	if written > f.maxBytes {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, &FetchError{URL: url, Err: fmt.Errorf("document exceeds the %d byte limit", f.maxBytes)}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, &FetchError{URL: url, Err: err}
	}

	path := tmp.Name()
	f.logger.Info("document downloaded", "url", url, "path", path, "bytes", written)

	return path, func() { os.Remove(path) }, nil
}
