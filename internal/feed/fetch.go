package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"

	ncerr "gateslam/internal/errors"
)

// maxFeedSize caps the response body.  The full relay list is a few
// MiB; anything far larger is not a relay list and is rejected whole.
var maxFeedSize int64 = 64 << 20

// Fetcher downloads and decodes the relay list.
type Fetcher struct {
	URL    string
	Client *http.Client // nil → http.DefaultClient
}

// NewFetcher returns a Fetcher for url using client.
func NewFetcher(url string, client *http.Client) *Fetcher {
	return &Fetcher{URL: url, Client: client}
}

// Fetch retrieves the feed and decodes it.  Network failures and
// non-2xx statuses are *errors.NetworkError; decode failures are
// *errors.FeedFormatError.
func (f *Fetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	raw, err := f.fetchRaw(ctx)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

func (f *Fetcher) fetchRaw(ctx context.Context) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, ncerr.Wrap("fetch", f.URL, err)
	}
	req.Header.Set("User-Agent", "gateslam/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, ncerr.Wrap("fetch", f.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ncerr.NetworkError{
			Op:        "fetch",
			Addr:      f.URL,
			Err:       fmt.Errorf("HTTP %d", resp.StatusCode),
			Retryable: resp.StatusCode >= 500,
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize+1))
	if err != nil {
		return nil, ncerr.Wrap("fetch", f.URL, err)
	}
	if int64(len(raw)) > maxFeedSize {
		return nil, &ncerr.NetworkError{
			Op:   "fetch",
			Addr: f.URL,
			Err:  fmt.Errorf("response exceeds %d bytes", maxFeedSize),
		}
	}
	return raw, nil
}
