package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/target/tourbook/config"
	"github.com/target/tourbook/internal/adapters/devauth"
	"github.com/target/tourbook/internal/adapters/oidc"
	"github.com/target/tourbook/internal/ports"
)

// ProviderConfig contains configuration for identity provider selection.
type ProviderConfig struct {
	Auth config.AuthConfig
	// HTTPClient is used for discovery, token and account calls in oauth mode.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// BuildIdentityProvider returns the identity provider for the configured auth mode.
//
//nolint:ireturn // callers only need the port.
func BuildIdentityProvider(ctx context.Context, cfg ProviderConfig) (ports.IdentityProvider, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		return buildDevAuthProvider(ctx, cfg.Auth.DevAuth, logger)
	case config.AuthModeOAuth, "":
		return buildOAuthProvider(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

func buildDevAuthProvider(ctx context.Context, cfg config.DevAuthConfig, logger *slog.Logger) (*devauth.Provider, error) {
	users, err := devauth.ParseUsers(cfg.Users)
	if err != nil {
		return nil, err
	}
	dir, err := devauth.NewDirectory(devauth.Config{
		Secret:   cfg.Secret,
		Issuer:   cfg.Issuer,
		TokenTTL: cfg.TokenTTL,
		Users:    users,
	})
	if err != nil {
		return nil, fmt.Errorf("build dev auth directory: %w", err)
	}
	logger.WarnContext(ctx, "dev auth enabled; do not use in production", "users", len(users), "issuer", cfg.Issuer)
	return devauth.NewProvider(dir), nil
}

func buildOAuthProvider(ctx context.Context, cfg ProviderConfig, logger *slog.Logger) (*oidc.Provider, error) {
	oc := cfg.Auth.OAuth
	prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
		ClientID:     oc.ClientID,
		ClientSecret: oc.ClientSecret,
		RedirectURL:  oc.RedirectURL,
		Scope:        oc.Scope,
		DiscoveryURL: oc.DiscoveryURL,
		AccountURL:   oc.AccountURL,
		HTTPClient:   cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("build oauth provider: %w", err)
	}
	logger.InfoContext(ctx, "oauth provider ready",
		"client_id", oc.ClientID,
		"account_api", oc.AccountURL != "",
	)
	return prov, nil
}
