package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Identity provider and auth route configuration
//   - backend.go: Backend REST API and role lookup configuration
//   - http.go: HTTP server configuration
//   - observability.go: Metrics endpoint configuration
//   - redis.go: Credential Redis topology
//   - session.go: Browser session and route guard configuration
type AppConfig struct {
	// IsDev marks a development deployment. It is reported at startup.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Authentication configuration
	Auth AuthConfig

	// Redis holds durable per-session credential storage.
	Redis RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Backend REST API configuration
	Backend BackendConfig

	// Role resolver configuration
	Roles RolesConfig

	// Session store lifecycle configuration
	Session SessionConfig

	// Route guard configuration
	Guard GuardConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Auth.Sanitize()
	c.HTTP.Sanitize()
	c.Backend.Sanitize()
	c.Roles.Sanitize()
	c.Session.Sanitize()
	c.Guard.Sanitize()
	c.Observability.Sanitize()

	if !c.IsDev {
		c.IsDev = isDevNodeEnv(os.Getenv("NODE_ENV"))
	}
}

func isDevNodeEnv(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "development", "dev":
		return true
	}
	return false
}
