package covers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"
)

// Size selects a cover image resolution on covers.openlibrary.org.
type Size string

const (
	SizeSmall  Size = "S"
	SizeMedium Size = "M"
	SizeLarge  Size = "L"
)

// Downloader fetches cover images and caches them on disk so repeat views
// never touch the network.
type Downloader struct {
	baseURL  string
	cacheDir string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewDownloader creates a cover downloader writing into cacheDir.
func NewDownloader(baseURL, cacheDir string, httpClient *http.Client, rps float64, burst int, logger *slog.Logger) *Downloader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		baseURL:  strings.TrimRight(baseURL, "/"),
		cacheDir: cacheDir,
		http:     httpClient,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		logger:   logger.With(slog.String("component", "covers.downloader")),
	}
}

// Fetch returns the path of the cached cover image for the given cover ID,
// downloading it first if necessary.
func (d *Downloader) Fetch(ctx context.Context, coverID int64, size Size) (string, error) {
	if coverID <= 0 {
		return "", fmt.Errorf("invalid cover id %d", coverID)
	}

	path := filepath.Join(d.cacheDir, fmt.Sprintf("%d-%s.jpg", coverID, size))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for rate limiter: %w", err)
	}

	u := fmt.Sprintf("%s/b/id/%d-%s.jpg", d.baseURL, coverID, size)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build cover request: %w", err)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download cover %d: %w", coverID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("cover %d not found", coverID)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cover server returned %d", resp.StatusCode)
	}

	if err := os.MkdirAll(d.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cover cache: %w", err)
	}

	// Write via a temp file so a failed download never leaves a truncated
	// image behind for the cache hit above to find.
	tmp, err := os.CreateTemp(d.cacheDir, "cover-*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write cover %d: %w", coverID, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move cover into cache: %w", err)
	}

	d.logger.InfoContext(ctx, "cover cached",
		slog.Int64("cover_id", coverID),
		slog.String("size", string(size)),
		slog.String("path", path))
	return path, nil
}
