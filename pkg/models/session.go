package models

import (
	"net/http"
	"time"
)

// Cookie is one persisted browser cookie of an authenticated marketplace session.
type Cookie struct {
	Name     string    `json:"name" yaml:"name"`
	Value    string    `json:"value" yaml:"value"`
	Domain   string    `json:"domain" yaml:"domain"`
	Path     string    `json:"path" yaml:"path"`
	Expires  time.Time `json:"expires,omitempty" yaml:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty" yaml:"secure,omitempty"`
	HTTPOnly bool      `json:"http_only,omitempty" yaml:"http_only,omitempty"`
}

// SessionCookies is the session artifact produced by the browser login flow
// and consumed by the thread fetcher.
type SessionCookies struct {
	Domain     string    `json:"domain" yaml:"domain"`
	CapturedAt time.Time `json:"captured_at" yaml:"captured_at"`
	Cookies    []Cookie  `json:"cookies" yaml:"cookies"`
}

// HTTPCookies converts the stored cookies for use with a cookie jar.
func (s SessionCookies) HTTPCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return out
}
