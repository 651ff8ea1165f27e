package config

import "time"

// SessionConfig controls the lifecycle of per-browser session stores.
type SessionConfig struct {
	// IdleTTL is how long an untouched session store stays alive before the reaper disposes it.
	IdleTTL time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
	// ReapInterval is how often the reaper scans for idle stores.
	ReapInterval time.Duration `env:"SESSION_REAP_INTERVAL" envDefault:"1m"`
	// CredentialTTL bounds how long a durable credential copy lives in Redis. Zero means no expiry.
	CredentialTTL time.Duration `env:"CREDENTIAL_TTL" envDefault:"1h"`
	// CookieName is the browser session cookie.
	CookieName string `env:"SESSION_COOKIE_NAME" envDefault:"tb_session"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.IdleTTL <= 0 {
		s.IdleTTL = 30 * time.Minute
	}
	if s.ReapInterval <= 0 {
		s.ReapInterval = time.Minute
	}
	if s.ReapInterval > s.IdleTTL {
		s.ReapInterval = s.IdleTTL
	}
	if s.CredentialTTL < 0 {
		s.CredentialTTL = 0
	}
	if s.CookieName == "" {
		s.CookieName = "tb_session"
	}
}

// GuardConfig controls route guard behavior.
type GuardConfig struct {
	// ResolveTimeout bounds how long a guarded request waits for a pending session before
	// a loading placeholder is rendered.
	ResolveTimeout time.Duration `env:"GUARD_RESOLVE_TIMEOUT" envDefault:"2s"`
}

// Sanitize clamps the resolve timeout to a sane window.
func (g *GuardConfig) Sanitize() {
	if g.ResolveTimeout < 0 {
		g.ResolveTimeout = 0
	}
	if g.ResolveTimeout > 30*time.Second {
		g.ResolveTimeout = 30 * time.Second
	}
}
