package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses the in-process dev identity directory (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"tourbook"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:"tourbook"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email offline_access"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	LogoutURL    string `env:"LOGOUT_URL"`
	// AccountURL is the provider's account-management endpoint used for registration
	// and profile updates. Leave empty when the provider does not offer one.
	AccountURL string `env:"ACCOUNT_URL"`
}

// DevAuthConfig controls the dev identity directory.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	// Secret signs dev credentials (HS256).
	Secret   string        `env:"SECRET"    envDefault:"tourbook-dev-secret"`
	Issuer   string        `env:"ISSUER"    envDefault:"tourbook-dev"`
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"15m"`
	// Users seeds the directory as "email:password:display name" entries separated by ';'.
	Users []string `env:"USERS" envDefault:"dev@example.com:password:Dev User" envSeparator:";"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which identity provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// LoginPath is the sign-in destination.
	LoginPath string `env:"LOGIN_PATH" envDefault:"/login"`

	// UnauthorizedPath is the generic "unauthorized" destination.
	UnauthorizedPath string `env:"UNAUTHORIZED_PATH" envDefault:"/unauthorized"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	a.LoginPath = sanitizePath(a.LoginPath, "/login")
	a.UnauthorizedPath = sanitizePath(a.UnauthorizedPath, "/unauthorized")
	a.OAuth.AccountURL = strings.TrimRight(strings.TrimSpace(a.OAuth.AccountURL), "/")
	if a.DevAuth.TokenTTL <= 0 {
		a.DevAuth.TokenTTL = 15 * time.Minute
	}
}

// sanitizePath forces a local absolute path.
func sanitizePath(p, fallback string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return fallback
	}
	return p
}
