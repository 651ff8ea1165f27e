package config

import (
	"strings"
	"time"
)

// BackendConfig describes the backend REST API reached through the gateway.
type BackendConfig struct {
	// BaseURL is the fixed origin every gateway call is resolved against.
	BaseURL string        `env:"BACKEND_BASE_URL" envDefault:"http://localhost:5000"`
	Timeout time.Duration `env:"BACKEND_TIMEOUT"  envDefault:"10s"`
}

// Sanitize applies guardrails to backend configuration values.
func (b *BackendConfig) Sanitize() {
	b.BaseURL = strings.TrimRight(strings.TrimSpace(b.BaseURL), "/")
	if b.Timeout <= 0 {
		b.Timeout = 10 * time.Second
	}
}

// RolesConfig controls the role resolver.
type RolesConfig struct {
	// LookupPath is the role-lookup endpoint; the email is passed as ?email=.
	LookupPath string `env:"ROLE_LOOKUP_PATH" envDefault:"/user-info"`
	// Expression is a JMESPath expression that extracts the role string from the payload.
	Expression string        `env:"ROLE_EXPRESSION" envDefault:"role"`
	StaleTime  time.Duration `env:"ROLE_STALE_TIME" envDefault:"5m"`
	CacheTime  time.Duration `env:"ROLE_CACHE_TIME" envDefault:"10m"`
}

// Sanitize applies guardrails to role resolver configuration values.
// CacheTime never drops below StaleTime.
func (r *RolesConfig) Sanitize() {
	r.LookupPath = sanitizePath(r.LookupPath, "/user-info")
	if strings.TrimSpace(r.Expression) == "" {
		r.Expression = "role"
	}
	if r.StaleTime <= 0 {
		r.StaleTime = 5 * time.Minute
	}
	if r.CacheTime < r.StaleTime {
		r.CacheTime = 2 * r.StaleTime
	}
}
