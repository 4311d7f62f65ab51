package music

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/metrics"
	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/storage"
)

const (
	DefaultDownloadTimeout = 120 * time.Second
	defaultExtension       = ".mp3"
)

// FetcherConfig contains artifact download configuration
type FetcherConfig struct {
	// Timeout applies to each download separately.
	Timeout time.Duration
	// Parallelism caps concurrent downloads; 1 downloads sequentially.
	Parallelism int
}

// ArtifactResult is the outcome of retrieving one locator.
type ArtifactResult struct {
	Index int
	URL   string
	Path  string
	Bytes int
	Err   error
}

// OK reports whether the artifact was saved.
func (r ArtifactResult) OK() bool {
	return r.Err == nil && r.Path != ""
}

// Saved returns the locations of all artifacts that were saved, in locator order.
func Saved(results []ArtifactResult) []string {
	var paths []string
	for _, r := range results {
		if r.OK() {
			paths = append(paths, r.Path)
		}
	}
	return paths
}

// Fetcher downloads generated artifacts and hands them to a sink.
type Fetcher struct {
	config     FetcherConfig
	httpClient *http.Client
	sink       storage.Sink
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewFetcher creates an artifact fetcher writing through sink.
func NewFetcher(config FetcherConfig, sink storage.Sink, logger *slog.Logger, m *metrics.Metrics) *Fetcher {
	if config.Timeout <= 0 {
		config.Timeout = DefaultDownloadTimeout
	}

	if config.Parallelism <= 0 {
		config.Parallelism = 1
	}

	return &Fetcher{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		sink:       sink,
		logger:     logger,
		metrics:    m,
	}
}

// Fetch retrieves every locator and saves it under a name derived from baseName.
// A failed locator is logged and skipped; the others are still retrieved.
// Results are returned in locator order.
func (f *Fetcher) Fetch(ctx context.Context, urls []string, baseName string) []ArtifactResult {
	results := make([]ArtifactResult, len(urls))
	if len(urls) == 0 {
		f.logger.Warn("No audio URLs provided to download")
		return results
	}

	f.logger.Info("Starting artifact download",
		slog.Int("count", len(urls)),
		slog.String("base_name", baseName),
	)

	semaphore := make(chan struct{}, f.config.Parallelism)
	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(i int, u string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			results[i] = f.fetchOne(ctx, i, u, ArtifactName(baseName, u, i, len(urls)))
		}(i, u)
	}
	wg.Wait()

	saved := len(Saved(results))
	if saved == 0 {
		f.logger.Error("Failed to download any of the generated audio files", slog.Int("count", len(urls)))
	} else {
		f.logger.Info("Artifact download finished",
			slog.Int("saved", saved),
			slog.Int("failed", len(urls)-saved),
		)
	}

	return results
}

func (f *Fetcher) fetchOne(ctx context.Context, index int, locator, name string) ArtifactResult {
	result := ArtifactResult{Index: index, URL: locator}

	data, err := f.download(ctx, locator)
	if err == nil {
		result.Path, err = f.sink.Save(ctx, name, data)
	}

	if err != nil {
		result.Err = err
		f.metrics.RecordDownload(false, 0)
		f.logger.Warn("Failed to download audio file",
			slog.String("url", locator),
			slog.String("error", err.Error()),
		)
		return result
	}

	result.Bytes = len(data)
	f.metrics.RecordDownload(true, len(data))
	f.logger.Info("Music saved",
		slog.String("path", result.Path),
		slog.Int("bytes", len(data)),
	)
	return result
}

func (f *Fetcher) download(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

// ArtifactName returns "{base}{ext}" for a single locator and "{base}_{n}{ext}"
// (n starting at 1) when there are several.
func ArtifactName(baseName, locator string, index, total int) string {
	base := SanitizeName(baseName)
	ext := extensionOf(locator)
	if total > 1 {
		return fmt.Sprintf("%s_%d%s", base, index+1, ext)
	}
	return base + ext
}

// SanitizeName makes baseName safe to use as a single file name.
func SanitizeName(baseName string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(baseName))

	name = strings.Trim(name, ".")
	if name == "" {
		return "song"
	}
	return name
}

func extensionOf(locator string) string {
	u, err := url.Parse(locator)
	if err != nil {
		return defaultExtension
	}

	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) < 2 || len(ext) > 5 {
		return defaultExtension
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return defaultExtension
		}
	}
	return ext
}
