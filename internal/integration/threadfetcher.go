package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/valter-silva-au/crmsync/pkg/models"
)

// maxThreadPageBytes caps how much of a thread page is read.
const maxThreadPageBytes = 8 << 20

// HTTPThreadFetcher downloads thread pages with the cookies of a persisted
// marketplace session.
type HTTPThreadFetcher struct {
	client    *http.Client
	loginPath string
	userAgent string
	maxBytes  int64
	logger    *slog.Logger
}

// NewHTTPThreadFetcher creates a fetcher whose cookie jar is seeded with
// session for the configured source base URL. logger may be nil.
func NewHTTPThreadFetcher(cfg models.SourceSettings, session models.SessionCookies, logger *slog.Logger) (*HTTPThreadFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		return nil, &models.ConfigurationError{Key: "source.base_url", Reason: fmt.Sprintf("%q is not an absolute URL", cfg.BaseURL)}
	}
	jar.SetCookies(base, session.HTTPCookies())

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HTTPThreadFetcher{
		client:    &http.Client{Jar: jar, Timeout: timeout},
		loginPath: loginPath,
		userAgent: cfg.UserAgent,
		maxBytes:  maxThreadPageBytes,
		logger:    logger,
	}, nil
}

// FetchThread returns the HTML of threadURL. A response that ends on the
// login page yields *models.SessionExpiredError.
func (f *HTTPThreadFetcher) FetchThread(ctx context.Context, threadURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, threadURL, nil)
	if err != nil {
		return "", fmt.Errorf("building thread request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching thread %s: %w", threadURL, err)
	}
	defer resp.Body.Close()

	final := resp.Request.URL
	f.logger.Debug("thread fetched", "url", threadURL, "final_url", final.String(), "status", resp.StatusCode)
	if IsLoginURL(final, f.loginPath) {
		return "", &models.SessionExpiredError{URL: final.String()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetching thread %s: HTTP %d", threadURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading thread %s: %w", threadURL, err)
	}
	if int64(len(body)) > f.maxBytes {
		return "", fmt.Errorf("reading thread %s: page exceeds %d bytes", threadURL, f.maxBytes)
	}
	return string(body), nil
}

// IsLoginURL reports whether u points at the marketplace login page.
func IsLoginURL(u *url.URL, loginPath string) bool {
	if u == nil || loginPath == "" {
		return false
	}
	return strings.Contains(strings.ToLower(u.Path), strings.ToLower(loginPath))
}
