package config

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://tours.example.com").
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.CookieDomain = sanitizeCookieDomain(h.CookieDomain)
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
}

// sanitizeCookieDomain drops domains a browser would reject: bare public suffixes
// such as "co.uk" and anything without a registrable domain.
func sanitizeCookieDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, ".")
	if d == "" || d == "localhost" {
		return d
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(d)
	if err != nil || etld1 == "" {
		return ""
	}
	return d
}
