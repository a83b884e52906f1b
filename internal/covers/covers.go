// Package covers downloads cover images for ingested works and keeps a
// bounded-width thumbnail next to each original. Cover failures are the
// caller's to log; nothing here is fatal to an ingest run.
package covers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"github.com/lepinkainen/stacks/internal/ratelimit"
)

const (
	defaultRatePerSecond = 2.0
	defaultThumbWidth    = 400
	defaultTimeout       = 30 * time.Second
)

// HTTPDoer is the minimal HTTP client surface the downloader needs.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Downloader fetches cover images into a directory, one pair of files per
// work: <workID>.jpg and <workID>_thumb.jpg.
type Downloader struct {
	dir         string
	httpClient  HTTPDoer
	rateLimiter *ratelimit.Limiter
	thumbWidth  int
	update      bool
}

// NewDownloader creates a downloader writing into dir.
func NewDownloader(dir string, opts ...Option) *Downloader {
	d := &Downloader{
		dir:         dir,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		rateLimiter: ratelimit.New("covers", defaultRatePerSecond),
		thumbWidth:  defaultThumbWidth,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Option is a functional option for configuring the Downloader.
type Option func(*Downloader)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c HTTPDoer) Option {
	return func(d *Downloader) {
		if c != nil {
			d.httpClient = c
		}
	}
}

// WithRateLimiter sets a custom rate limiter.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(d *Downloader) {
		if l != nil {
			d.rateLimiter = l
		}
	}
}

// WithThumbWidth sets the maximum thumbnail width in pixels.
func WithThumbWidth(width int) Option {
	return func(d *Downloader) {
		if width > 0 {
			d.thumbWidth = width
		}
	}
}

// WithUpdate forces re-downloading covers that already exist on disk.
func WithUpdate(update bool) Option {
	return func(d *Downloader) {
		d.update = update
	}
}

// Result reports where a work's cover files live.
type Result struct {
	Path       string
	ThumbPath  string
	Downloaded bool
}

// Download fetches the cover image for workID and writes the full image
// plus a thumbnail. An existing cover is left alone unless the downloader
// was built with WithUpdate(true). An empty imageURL is a no-op.
func (d *Downloader) Download(ctx context.Context, workID, imageURL string) (*Result, error) {
	if imageURL == "" {
		return nil, nil
	}

	result := &Result{
		Path:      filepath.Join(d.dir, workID+".jpg"),
		ThumbPath: filepath.Join(d.dir, workID+"_thumb.jpg"),
	}

	if fileExists(result.Path) && !d.update {
		slog.Debug("cover already exists, skipping download", "path", result.Path)
		return result, nil
	}

	if err := d.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d downloading cover from %s", resp.StatusCode, imageURL)
	}

	img, err := imaging.Decode(resp.Body, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, err
	}

	if err := imaging.Save(img, result.Path, imaging.JPEGQuality(85)); err != nil {
		return nil, err
	}

	thumb := img
	if img.Bounds().Dx() > d.thumbWidth {
		thumb = imaging.Resize(img, d.thumbWidth, 0, imaging.Lanczos)
	}
	if err := imaging.Save(thumb, result.ThumbPath, imaging.JPEGQuality(85)); err != nil {
		return nil, err
	}

	slog.Debug("downloaded cover", "work_id", workID, "path", result.Path)
	result.Downloaded = true

	return result, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
