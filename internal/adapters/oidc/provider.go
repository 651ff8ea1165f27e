package oidc

// Package oidc provides an OIDC/OAuth2 identity provider: one shared Provider that
// discovers the issuer, and one Client per application session holding that session's tokens.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/target/tourbook/internal/adapters/authstate"
	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/ports"
)

var _ ports.IdentityProvider = (*Provider)(nil)

// Provider holds the discovered issuer configuration shared by all clients.
type Provider struct {
	config     *oauth2.Config
	accountURL string
	httpClient *http.Client
	now        func() time.Time

	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	// AccountURL is the optional account-management API used by Register and UpdateProfile.
	AccountURL string
	HTTPClient *http.Client // Optional, defaults to a client with a 30s timeout
	Now        func() time.Time
}

// NewProvider discovers the issuer and creates a Provider.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	// The key set keeps this context for later JWKS fetches.
	ctx = context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       strings.Fields(config.Scope),
			Endpoint:     op.Endpoint(),
		},
		accountURL:   strings.TrimRight(config.AccountURL, "/"),
		httpClient:   httpClient,
		now:          now,
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: config.ClientID, Now: now}),
	}, nil
}

func (p *Provider) NewClient() ports.IdentityClient {
	return &Client{
		provider: p,
		state:    authstate.New(),
		pending:  make(map[string]string),
	}
}

func (p *Provider) ctx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// idClaims is the subset of standard ID token claims mapped into an Identity.
type idClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Nonce         string `json:"nonce"`
}

func (c idClaims) identity() domainauth.Identity {
	return domainauth.Identity{
		UID:           c.Subject,
		DisplayName:   c.Name,
		Email:         c.Email,
		PhotoURL:      c.Picture,
		EmailVerified: c.EmailVerified,
	}
}

// verified is the outcome of verifying a token response.
type verified struct {
	identity domainauth.Identity
	rawID    string
	expiry   time.Time
}

// verify checks the ID token in tok. expectedNonce is only enforced when non-empty.
func (p *Provider) verify(ctx context.Context, tok *oauth2.Token, expectedNonce string) (verified, error) {
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return verified{}, err
	}
	idTok, err := p.verifier.Verify(p.ctx(ctx), rawID)
	if err != nil {
		return verified{}, fmt.Errorf("verify id_token: %w", err)
	}
	var claims idClaims
	if err := idTok.Claims(&claims); err != nil {
		return verified{}, fmt.Errorf("parse id_token claims: %w", err)
	}
	if expectedNonce != "" && claims.Nonce != expectedNonce {
		return verified{}, errors.New("invalid nonce")
	}
	if claims.Email == "" && tok.AccessToken != "" {
		if err := p.fillFromUserInfo(ctx, tok.AccessToken, &claims); err != nil {
			return verified{}, err
		}
	}
	return verified{identity: claims.identity(), rawID: rawID, expiry: idTok.Expiry}, nil
}

func (p *Provider) fillFromUserInfo(ctx context.Context, accessToken string, c *idClaims) error {
	ui, err := p.oidcProvider.UserInfo(p.ctx(ctx), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return fmt.Errorf("get user info: %w", err)
	}
	var info idClaims
	if err := ui.Claims(&info); err != nil {
		return fmt.Errorf("decode user info: %w", err)
	}
	c.Email = firstNonEmpty(c.Email, info.Email, ui.Email)
	c.Name = firstNonEmpty(c.Name, info.Name)
	c.Picture = firstNonEmpty(c.Picture, info.Picture)
	c.EmailVerified = c.EmailVerified || ui.EmailVerified
	return nil
}

// mapTokenError converts a token endpoint failure into a provider error.
func mapTokenError(err error) *domainauth.ProviderError {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch {
		case re.ErrorCode == "invalid_grant":
			return &domainauth.ProviderError{Code: domainauth.CodeInvalidCredential, Message: "invalid email or password", Cause: err}
		case re.ErrorCode == "unsupported_grant_type" || re.ErrorCode == "unauthorized_client":
			return &domainauth.ProviderError{Code: domainauth.CodeOperationNotAllowed, Message: re.ErrorCode, Cause: err}
		case re.Response != nil && re.Response.StatusCode == http.StatusUnauthorized:
			return &domainauth.ProviderError{Code: domainauth.CodeInvalidCredential, Message: "invalid client or user credentials", Cause: err}
		}
		return &domainauth.ProviderError{Code: domainauth.CodeInternalError, Message: "token endpoint error", Cause: err}
	}
	return &domainauth.ProviderError{Code: domainauth.CodeNetworkRequestFailed, Message: "token endpoint unreachable", Cause: err}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	b := make([]byte, (length*3+3)/4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
