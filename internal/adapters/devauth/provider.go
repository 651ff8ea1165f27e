package devauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"sync"

	"github.com/target/tourbook/internal/adapters/authstate"
	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/ports"
)

var (
	_ ports.IdentityProvider = (*Provider)(nil)
	_ ports.IdentityClient   = (*Client)(nil)
)

// Provider implements ports.IdentityProvider over a shared Directory.
type Provider struct {
	dir *Directory
	// CallbackPath receives the short-circuited federated flow.
	CallbackPath string
}

// NewProvider returns a provider whose clients share dir.
func NewProvider(dir *Directory) *Provider {
	return &Provider{dir: dir, CallbackPath: "/auth/callback"}
}

// Directory returns the shared directory.
func (p *Provider) Directory() *Directory { return p.dir }

func (p *Provider) NewClient() ports.IdentityClient {
	return &Client{
		dir:      p.dir,
		callback: p.CallbackPath,
		state:    authstate.New(),
		pending:  make(map[string]string),
	}
}

// Client is one application session's view of the directory.
type Client struct {
	dir      *Directory
	callback string
	state    *authstate.Broadcaster

	mu      sync.Mutex
	token   string
	pending map[string]string
}

func (c *Client) SignInWithPassword(_ context.Context, email, password string) error {
	id, err := c.dir.Authenticate(email, password)
	if err != nil {
		return err
	}
	c.signIn(id)
	return nil
}

// BeginFederated returns a local callback URL instead of a provider login page.
func (c *Client) BeginFederated(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	c.mu.Lock()
	c.pending[state] = nonce
	c.mu.Unlock()

	callback := c.callback
	if in.RedirectURL != "" {
		if u, err := url.Parse(in.RedirectURL); err == nil && u.Path != "" {
			callback = u.Path
		}
	}
	q := url.Values{"code": {"dev"}, "state": {state}}
	return callback + "?" + q.Encode(), state, nonce, nil
}

// CompleteFederated accepts any code for a state it issued and signs in as the directory's default user.
func (c *Client) CompleteFederated(_ context.Context, in ports.ExchangeInput) error {
	c.mu.Lock()
	nonce, ok := c.pending[in.State]
	delete(c.pending, in.State)
	c.mu.Unlock()
	if !ok || nonce != in.Nonce {
		return domainauth.NewProviderError(domainauth.CodeInvalidFederatedState, "unknown state or nonce")
	}
	id, ok := c.dir.Default()
	if !ok {
		return domainauth.NewProviderError(domainauth.CodeOperationNotAllowed, "no dev users configured")
	}
	c.signIn(id)
	return nil
}

func (c *Client) Register(_ context.Context, email, password string) error {
	id, err := c.dir.Register(email, password)
	if err != nil {
		return err
	}
	c.signIn(id)
	return nil
}

// UpdateProfile changes the directory entry; subscribers see it on the next auth-state change.
func (c *Client) UpdateProfile(_ context.Context, update domainauth.ProfileUpdate) error {
	current := c.state.Current()
	if current == nil {
		return domainauth.NewProviderError(domainauth.CodeNoCurrentUser, "no user signed in")
	}
	_, err := c.dir.Update(current.Email, update)
	return err
}

func (c *Client) SignOut(_ context.Context) error {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	c.state.Publish(nil)
	return nil
}

func (c *Client) Subscribe() (<-chan domainauth.AuthEvent, func()) {
	return c.state.Subscribe()
}

// IDToken issues a new credential when forced or when the cached one no longer verifies.
func (c *Client) IDToken(_ context.Context, forceRefresh bool) (string, error) {
	current := c.state.Current()
	if current == nil {
		return "", domainauth.NewProviderError(domainauth.CodeNoCurrentUser, "no user signed in")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !forceRefresh && c.token != "" {
		if _, err := c.dir.Verify(c.token); err == nil {
			return c.token, nil
		}
	}
	token, err := c.dir.Issue(*current)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

func (c *Client) signIn(id domainauth.Identity) {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	c.state.Publish(&id)
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	b := make([]byte, (n*3+3)/4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	return s[:n], nil
}
