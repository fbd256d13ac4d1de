// Package filecache is the content-addressed on-disk store (spec.md §4.2):
// downloads are keyed by URL, bucketed by hash prefix to bound directory
// fan-out, written atomically, and reclaimed by a background sweeper.
package filecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/basket/pixivbot-go/internal/bus"
	"github.com/basket/pixivbot-go/internal/errs"
)

// Cache is a rooted, hash-bucketed directory of downloaded files.
type Cache struct {
	root string
}

// New returns a Cache rooted at root. The directory is created lazily: New
// does not touch the filesystem so construction never fails.
func New(root string) *Cache {
	return &Cache{root: root}
}

func bucketAndSlug(url string) (bucket, slug string) {
	sum := sha256.Sum256([]byte(url))
	hexSum := hex.EncodeToString(sum[:])
	return hexSum[:2], hexSum
}

func extFor(url string) string {
	base := path.Base(url)
	if idx := strings.LastIndexByte(base, '.'); idx >= 0 && idx < len(base)-1 {
		ext := base[idx+1:]
		// Guard against a query string leaking into the extension.
		if q := strings.IndexByte(ext, '?'); q >= 0 {
			ext = ext[:q]
		}
		if ext != "" {
			return ext
		}
	}
	return "bin"
}

func (c *Cache) pathFor(url string) string {
	bucket, slug := bucketAndSlug(url)
	return filepath.Join(c.root, bucket, slug+"."+extFor(url))
}

// Get returns the path for url iff the file already exists, bumping its
// mtime so the GC sweeper treats it as recently accessed.
func (c *Cache) Get(url string) (string, bool) {
	path := c.pathFor(url)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	now := time.Now()
	_ = os.Chtimes(path, now, now)
	return path, true
}

// Put writes bytes for url atomically: a temp file in the bucket directory,
// then a rename into place. Concurrent Puts for the same URL race on the
// rename, not the write, so neither can observe a partial file.
func (c *Cache) Put(url string, r io.Reader) (string, error) {
	bucket, _ := bucketAndSlug(url)
	dir := filepath.Join(c.root, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errs.Wrap(errs.Db, err, "create cache bucket", "could not store file")
	}

	tmp := filepath.Join(dir, ".tmp-"+uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", errs.Wrap(errs.Db, err, "create temp file", "could not store file")
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", errs.Wrap(errs.Transport, err, "write temp file", "could not store file")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", errs.Wrap(errs.Db, err, "close temp file", "could not store file")
	}

	final := c.pathFor(url)
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", errs.Wrap(errs.Db, err, "rename into cache", "could not store file")
	}
	return final, nil
}

// RunGCForever sweeps every bucket once every 24 hours, unlinking regular
// files whose mtime is older than retention. Runs until ctx is canceled.
// Per-file and per-directory errors are logged, never propagated — GC is a
// best-effort background activity that must not affect the download path.
func (c *Cache) RunGCForever(ctx context.Context, retention time.Duration, logger *slog.Logger, b *bus.Bus) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(retention, logger, b)
		}
	}
}

func (c *Cache) sweep(retention time.Duration, logger *slog.Logger, b *bus.Bus) {
	start := time.Now()
	cutoff := start.Add(-retention)
	var scanned, removed, errCount int

	entries, err := os.ReadDir(c.root)
	if err != nil {
		logger.Warn("cache gc: could not read cache root", "error", err)
		return
	}

	for _, bucket := range entries {
		if !bucket.IsDir() {
			continue
		}
		bucketPath := filepath.Join(c.root, bucket.Name())
		files, err := os.ReadDir(bucketPath)
		if err != nil {
			logger.Warn("cache gc: could not read bucket", "bucket", bucket.Name(), "error", err)
			errCount++
			continue
		}
		for _, f := range files {
			scanned++
			info, err := f.Info()
			if err != nil {
				logger.Warn("cache gc: could not stat file", "file", f.Name(), "error", err)
				errCount++
				continue
			}
			if !info.Mode().IsRegular() || strings.HasPrefix(f.Name(), ".tmp-") {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(bucketPath, f.Name())); err != nil {
					logger.Warn("cache gc: could not remove file", "file", f.Name(), "error", err)
					errCount++
					continue
				}
				removed++
			}
		}
	}

	logger.Info("cache gc sweep complete", "scanned", scanned, "removed", removed, "errors", errCount)
	if b != nil {
		b.Publish(bus.TopicCacheSwept, bus.CacheSweptEvent{
			Removed:  removed,
			Scanned:  scanned,
			Errors:   errCount,
			Duration: time.Since(start).Milliseconds(),
		})
	}
}
