// Package downloader is the cache-first fetch layer (spec.md §4.3): it
// composes filecache.Cache with an HTTP client carrying the source's
// Referer header, and never retries internally — retry policy belongs to
// the caller (the DeliveryFSM).
package downloader

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/basket/pixivbot-go/internal/errs"
	"github.com/basket/pixivbot-go/internal/filecache"
)

const sourceReferer = "https://www.pixiv.net/"

// Downloader fetches image URLs, serving from cache when possible.
type Downloader struct {
	cache      *filecache.Cache
	httpClient *http.Client
}

// New builds a Downloader over cache using httpClient for cache misses.
func New(cache *filecache.Cache, httpClient *http.Client) *Downloader {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Downloader{cache: cache, httpClient: httpClient}
}

// Download returns the local path for url, fetching it on a cache miss.
func (d *Downloader) Download(ctx context.Context, url string) (string, error) {
	if path, ok := d.cache.Get(url); ok {
		return path, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errs.New(errs.Config, err, "could not download image")
	}
	req.Header.Set("Referer", sourceReferer)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", errs.New(errs.Transport, err, "could not download image")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", errs.New(errs.Upstream, errors.Errorf("GET %s: not found", url), "image no longer available")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", errs.New(errs.RateLimited, errors.Errorf("GET %s: rate limited", url), "could not download image")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errs.New(errs.Upstream, errors.Errorf("GET %s: unexpected status %d", url, resp.StatusCode), "could not download image")
	}

	path, err := d.cache.Put(url, resp.Body)
	if err != nil {
		return "", err
	}
	return path, nil
}

// Result is one position's outcome from DownloadAll.
type Result struct {
	Path string
	Err  error
}

// DownloadAll downloads each url in order, returning every position's
// outcome rather than stopping at the first error — the caller (DeliveryFSM)
// decides what partial success means for batching.
func (d *Downloader) DownloadAll(ctx context.Context, urls []string) []Result {
	out := make([]Result, len(urls))
	for i, u := range urls {
		path, err := d.Download(ctx, u)
		out[i] = Result{Path: path, Err: err}
	}
	return out
}
