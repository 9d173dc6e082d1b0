package integration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/valter-silva-au/crmsync/pkg/models"
)

// BrowserLoginConfig configures the interactive login flow.
type BrowserLoginConfig struct {
	BaseURL   string
	LoginPath string
	UserAgent string
	Headless  bool
	// Timeout bounds how long the user has to complete the login.
	Timeout time.Duration
	// PollInterval is how often the current page location is checked.
	PollInterval time.Duration
}

// BrowserLogin opens the marketplace login page in Chrome, waits for the
// user to sign in, and captures the session cookies.
type BrowserLogin struct {
	cfg BrowserLoginConfig
}

// NewBrowserLogin creates a BrowserLogin with defaults for unset durations.
func NewBrowserLogin(cfg BrowserLoginConfig) *BrowserLogin {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	return &BrowserLogin{cfg: cfg}
}

// LoginURL returns the page the browser is pointed at.
func (b *BrowserLogin) LoginURL() string {
	return strings.TrimRight(b.cfg.BaseURL, "/") + b.cfg.LoginPath
}

// CaptureSession drives the browser until the location leaves the login
// path, then returns the cookies set for the marketplace domain.
func (b *BrowserLogin) CaptureSession(ctx context.Context) (models.SessionCookies, error) {
	base, err := url.Parse(b.cfg.BaseURL)
	if err != nil || base.Host == "" {
		return models.SessionCookies{}, &models.ConfigurationError{Key: "source.base_url", Reason: fmt.Sprintf("%q is not an absolute URL", b.cfg.BaseURL)}
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("disable-gpu", b.cfg.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if b.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	if err := chromedp.Run(taskCtx, chromedp.Navigate(b.LoginURL())); err != nil {
		return models.SessionCookies{}, fmt.Errorf("opening login page: %w", err)
	}

	if err := b.waitForLogin(taskCtx); err != nil {
		return models.SessionCookies{}, err
	}

	var cookies []*network.Cookie
	err = chromedp.Run(taskCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithUrls([]string{base.String()}).Do(ctx)
		return err
	}))
	if err != nil {
		return models.SessionCookies{}, fmt.Errorf("reading browser cookies: %w", err)
	}

	session := sessionFromCDP(base.Hostname(), cookies, time.Now().UTC())
	if len(session.Cookies) == 0 {
		return models.SessionCookies{}, errors.New("login finished but no cookies were set for " + base.Hostname())
	}
	return session, nil
}

func (b *BrowserLogin) waitForLogin(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for login: %w", ctx.Err())
		case <-ticker.C:
		}

		var location string
		if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
			return fmt.Errorf("reading browser location: %w", err)
		}
		u, err := url.Parse(location)
		if err != nil {
			continue
		}
		if u.Scheme != "about" && !IsLoginURL(u, b.cfg.LoginPath) {
			return nil
		}
	}
}

// sessionFromCDP keeps the cookies that belong to host or its parent domains.
func sessionFromCDP(host string, cookies []*network.Cookie, now time.Time) models.SessionCookies {
	session := models.SessionCookies{Domain: host, CapturedAt: now}
	for _, c := range cookies {
		if c == nil || !cookieMatchesHost(c.Domain, host) {
			continue
		}
		var expires time.Time
		if !c.Session && c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			expires = time.Unix(int64(sec), int64(frac*1e9)).UTC()
		}
		session.Cookies = append(session.Cookies, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return session
}

func cookieMatchesHost(domain, host string) bool {
	domain = strings.TrimPrefix(strings.ToLower(domain), ".")
	host = strings.ToLower(host)
	return host == domain || strings.HasSuffix(host, "."+domain) || strings.HasSuffix(domain, "."+host)
}
