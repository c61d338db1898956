package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/artcache/internal/config"
	"github.com/phrazzld/artcache/internal/platform/logger"
	"github.com/phrazzld/artcache/internal/redact"
)

var (
	// ErrFetchFailed is returned when the origin could not deliver the object.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrTooLarge is returned when a body exceeds the configured size limit.
	ErrTooLarge = errors.New("object too large")

	// ErrInvalidLocator is returned for a locator that is neither an
	// absolute http(s) URL nor resolvable against the base URL.
	ErrInvalidLocator = errors.New("invalid locator")
)

// StatusError reports a non-2xx response from the origin.
type StatusError struct {
	StatusCode int
	Locator    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.Locator, e.StatusCode)
}

// Unwrap makes StatusError match ErrFetchFailed.
func (e *StatusError) Unwrap() error { return ErrFetchFailed }

// Fetcher performs HTTP GETs against the configured origin.
type Fetcher struct {
	client   *http.Client
	baseURL  *url.URL
	maxBytes int64
	logger   *slog.Logger
}

// New creates a Fetcher from configuration. If client is nil, a client with
// the configured timeout is used.
func New(cfg config.FetchConfig, client *http.Client, logger *slog.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	f := &Fetcher{
		client:   client,
		maxBytes: cfg.MaxBytes,
		logger:   logger.With(slog.String("component", "fetcher")),
	}
	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil || !isHTTP(base) {
			return nil, fmt.Errorf("%w: base URL %q", ErrInvalidLocator, redact.URL(cfg.BaseURL))
		}
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		f.baseURL = base
	}
	return f, nil
}

func isHTTP(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Resolve turns a locator into the URL that Fetch requests.
func (f *Fetcher) Resolve(locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidLocator)
	}

	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	if u.IsAbs() {
		if !isHTTP(u) {
			return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocator, u.Scheme)
		}
		return u.String(), nil
	}
	if f.baseURL == nil {
		return "", fmt.Errorf("%w: relative locator without base URL", ErrInvalidLocator)
	}
	return f.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(u.Path, "/"), RawQuery: u.RawQuery}).String(), nil
}

// Fetch downloads the object named by locator.
func (f *Fetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	log := logger.FromContextOrDefault(ctx, f.logger)

	target, err := f.Resolve(locator)
	if err != nil {
		return nil, err
	}
	safe := redact.URL(target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		log.Warn("fetch request failed",
			slog.String("url", safe),
			slog.String("error", redact.Error(err)))
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, safe, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("fetch returned non-success status",
			slog.String("url", safe),
			slog.Int("status", resp.StatusCode))
		return nil, &StatusError{StatusCode: resp.StatusCode, Locator: safe}
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: %s declares %d bytes", ErrTooLarge, safe, resp.ContentLength)
	}

	body := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrFetchFailed, safe, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, safe, f.maxBytes)
	}

	log.Debug("object fetched",
		slog.String("url", safe),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}
