package oidc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/target/tourbook/internal/adapters/authstate"
	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/ports"
)

var _ ports.IdentityClient = (*Client)(nil)

// expiryLeeway treats a cached ID token this close to expiry as expired.
const expiryLeeway = 30 * time.Second

// Client is one application session's provider client.
type Client struct {
	provider *Provider
	state    *authstate.Broadcaster

	mu       sync.Mutex
	token    *oauth2.Token
	rawID    string
	idExpiry time.Time
	pending  map[string]string
}

// SignInWithPassword uses the resource owner password grant.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) error {
	tok, err := c.provider.config.PasswordCredentialsToken(c.provider.ctx(ctx), email, password)
	if err != nil {
		return mapTokenError(err)
	}
	v, err := c.provider.verify(ctx, tok, "")
	if err != nil {
		return &domainauth.ProviderError{Code: domainauth.CodeInvalidCredential, Message: "identity token rejected", Cause: err}
	}
	c.signIn(tok, v)
	return nil
}

// BeginFederated builds the provider authorization URL and remembers its state and nonce.
func (c *Client) BeginFederated(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}
	state, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	c.mu.Lock()
	c.pending[state] = nonce
	c.mu.Unlock()

	// redirect_uri must match the registered RedirectURL exactly, so it is not overridden.
	authURL := c.provider.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

// CompleteFederated exchanges the authorization code and signs in.
func (c *Client) CompleteFederated(ctx context.Context, in ports.ExchangeInput) error {
	if in.Code == "" {
		return domainauth.NewProviderError(domainauth.CodeInvalidCredential, "authorization code is required")
	}
	c.mu.Lock()
	nonce, ok := c.pending[in.State]
	delete(c.pending, in.State)
	c.mu.Unlock()
	if !ok || in.Nonce == "" || nonce != in.Nonce {
		return domainauth.NewProviderError(domainauth.CodeInvalidFederatedState, "unknown state or nonce")
	}

	tok, err := c.provider.config.Exchange(c.provider.ctx(ctx), in.Code)
	if err != nil {
		return mapTokenError(err)
	}
	v, err := c.provider.verify(ctx, tok, nonce)
	if err != nil {
		return &domainauth.ProviderError{Code: domainauth.CodeInvalidCredential, Message: "identity token rejected", Cause: err}
	}
	c.signIn(tok, v)
	return nil
}

// Register creates the account through the account-management API, then signs in with it.
func (c *Client) Register(ctx context.Context, email, password string) error {
	if err := c.provider.createAccount(ctx, email, password); err != nil {
		return err
	}
	return c.SignInWithPassword(ctx, email, password)
}

// UpdateProfile changes the account through the account-management API. The local identity
// is unchanged until the next auth-state change.
func (c *Client) UpdateProfile(ctx context.Context, update domainauth.ProfileUpdate) error {
	c.mu.Lock()
	var access string
	if c.token != nil {
		access = c.token.AccessToken
	}
	c.mu.Unlock()
	if c.state.Current() == nil || access == "" {
		return domainauth.NewProviderError(domainauth.CodeNoCurrentUser, "no user signed in")
	}
	return c.provider.updateProfile(ctx, access, update)
}

func (c *Client) SignOut(_ context.Context) error {
	c.mu.Lock()
	c.token = nil
	c.rawID = ""
	c.idExpiry = time.Time{}
	c.mu.Unlock()
	c.state.Publish(nil)
	return nil
}

func (c *Client) Subscribe() (<-chan domainauth.AuthEvent, func()) {
	return c.state.Subscribe()
}

// IDToken returns the raw ID token. A forced call always runs the refresh-token grant;
// an unforced call returns the cached token while it is valid.
func (c *Client) IDToken(ctx context.Context, forceRefresh bool) (string, error) {
	if c.state.Current() == nil {
		return "", domainauth.NewProviderError(domainauth.CodeNoCurrentUser, "no user signed in")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	fresh := c.rawID != "" && c.provider.now().Add(expiryLeeway).Before(c.idExpiry)
	if !forceRefresh && fresh {
		return c.rawID, nil
	}
	if c.token == nil || c.token.RefreshToken == "" {
		// Without a refresh token the sign-in token is all there is.
		if fresh {
			return c.rawID, nil
		}
		return "", domainauth.NewProviderError(domainauth.CodeInvalidCredential, "session expired and cannot be refreshed")
	}

	src := c.provider.config.TokenSource(c.provider.ctx(ctx), &oauth2.Token{RefreshToken: c.token.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", mapTokenError(err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = c.token.RefreshToken
	}
	if _, err := getIDTokenFromToken(tok); err != nil {
		// Some issuers omit id_token on refresh; keep the one from sign-in.
		c.token = tok
		if fresh {
			return c.rawID, nil
		}
		return "", domainauth.NewProviderError(domainauth.CodeInternalError, "refresh returned no id_token")
	}
	v, err := c.provider.verify(ctx, tok, "")
	if err != nil {
		return "", &domainauth.ProviderError{Code: domainauth.CodeInternalError, Message: "refreshed identity token rejected", Cause: err}
	}
	c.token = tok
	c.rawID = v.rawID
	c.idExpiry = v.expiry
	return c.rawID, nil
}

func (c *Client) signIn(tok *oauth2.Token, v verified) {
	c.mu.Lock()
	c.token = tok
	c.rawID = v.rawID
	c.idExpiry = v.expiry
	c.mu.Unlock()
	id := v.identity
	c.state.Publish(&id)
}
