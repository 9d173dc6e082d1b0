package integration

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/crmsync/pkg/models"
)

func newMarketplace(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/msg/lv/thread/1.html", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("PHPSESSID")
		if err != nil || c.Value != "valid" {
			http.Redirect(w, r, "/lv/login/?next=/msg/lv/thread/1.html", http.StatusFound)
			return
		}
		if r.Header.Get("User-Agent") != "crmsync-test" {
			http.Error(w, "missing user agent", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`<div id="msg_thread">ok</div>`))
	})
	mux.HandleFunc("/lv/login/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<form>login</form>`))
	})
	mux.HandleFunc("/gone.html", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func sessionWith(value string) models.SessionCookies {
	return models.SessionCookies{
		Domain:     "127.0.0.1",
		CapturedAt: time.Now(),
		Cookies:    []models.Cookie{{Name: "PHPSESSID", Value: value, Path: "/"}},
	}
}

func newTestFetcher(t *testing.T, srv *httptest.Server, session models.SessionCookies) *HTTPThreadFetcher {
	t.Helper()
	f, err := NewHTTPThreadFetcher(models.SourceSettings{
		BaseURL:   srv.URL,
		LoginPath: "/login",
		UserAgent: "crmsync-test",
	}, session, nil)
	if err != nil {
		t.Fatalf("NewHTTPThreadFetcher: %v", err)
	}
	return f
}

func TestFetchThread_SendsSessionCookies(t *testing.T) {
	srv := newMarketplace(t)
	f := newTestFetcher(t, srv, sessionWith("valid"))

	page, err := f.FetchThread(context.Background(), srv.URL+"/msg/lv/thread/1.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(page, "msg_thread") {
		t.Errorf("unexpected page: %q", page)
	}
}

func TestFetchThread_LoginRedirectIsSessionExpired(t *testing.T) {
	srv := newMarketplace(t)
	f := newTestFetcher(t, srv, sessionWith("stale"))

	_, err := f.FetchThread(context.Background(), srv.URL+"/msg/lv/thread/1.html")

	var sessErr *models.SessionExpiredError
	if !errors.As(err, &sessErr) {
		t.Fatalf("expected *models.SessionExpiredError, got %v", err)
	}
	if !strings.Contains(sessErr.URL, "/lv/login/") {
		t.Errorf("URL = %q, want the login page", sessErr.URL)
	}
}

func TestFetchThread_NonSuccessStatus(t *testing.T) {
	srv := newMarketplace(t)
	f := newTestFetcher(t, srv, sessionWith("valid"))

	_, err := f.FetchThread(context.Background(), srv.URL+"/gone.html")
	if err == nil || !strings.Contains(err.Error(), "HTTP 410") {
		t.Fatalf("expected an HTTP 410 error, got %v", err)
	}
	var sessErr *models.SessionExpiredError
	if errors.As(err, &sessErr) {
		t.Error("a plain HTTP failure is not a session expiry")
	}
}

func TestFetchThread_OversizedPage(t *testing.T) {
	srv := newMarketplace(t)
	f := newTestFetcher(t, srv, sessionWith("valid"))

	page := `<div id="msg_thread">ok</div>`
	f.maxBytes = int64(len(page))
	if _, err := f.FetchThread(context.Background(), srv.URL+"/msg/lv/thread/1.html"); err != nil {
		t.Fatalf("a page of exactly the limit should be accepted: %v", err)
	}

	f.maxBytes = int64(len(page)) - 1
	_, err := f.FetchThread(context.Background(), srv.URL+"/msg/lv/thread/1.html")
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("expected a size error, got %v", err)
	}
}

func TestFetchThread_CanceledContext(t *testing.T) {
	srv := newMarketplace(t)
	f := newTestFetcher(t, srv, sessionWith("valid"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.FetchThread(ctx, srv.URL+"/msg/lv/thread/1.html"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewHTTPThreadFetcher_RejectsRelativeBaseURL(t *testing.T) {
	_, err := NewHTTPThreadFetcher(models.SourceSettings{BaseURL: "www.ss.lv"}, models.SessionCookies{}, nil)
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Key != "source.base_url" {
		t.Fatalf("expected a source.base_url configuration error, got %v", err)
	}
}

func TestIsLoginURL(t *testing.T) {
	tests := []struct {
		raw       string
		loginPath string
		want      bool
	}{
		{"https://www.ss.lv/lv/login/", "/login", true},
		{"https://www.ss.lv/LV/LOGIN/", "/login", true},
		{"https://www.ss.lv/msg/lv/thread/1.html", "/login", false},
		{"https://www.ss.lv/msg/?from=/login", "/login", false},
		{"https://www.ss.lv/lv/login/", "", false},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		if err != nil {
			t.Fatalf("parse %s: %v", tt.raw, err)
		}
		if got := IsLoginURL(u, tt.loginPath); got != tt.want {
			t.Errorf("IsLoginURL(%s, %q) = %v, want %v", tt.raw, tt.loginPath, got, tt.want)
		}
	}
	if IsLoginURL(nil, "/login") {
		t.Error("IsLoginURL(nil) should be false")
	}
}
