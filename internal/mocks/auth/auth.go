package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/target/tourbook/internal/adapters/authstate"
	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityClient   = (*FakeIdentityClient)(nil)
	_ ports.IdentityProvider = (*FakeIdentityProvider)(nil)
	_ ports.Navigator        = (*RecordingNavigator)(nil)
)

type fakeAccount struct {
	password string
	identity domainauth.Identity
}

// FakeIdentityClient simulates one provider client with deterministic tokens and state/nonce values.
type FakeIdentityClient struct {
	// SignInHook runs before a password sign-in is evaluated. Tests use it to hold the call open.
	SignInHook func(ctx context.Context)
	// FederatedIdentity is signed in by CompleteFederated. Nil rejects the flow.
	FederatedIdentity *domainauth.Identity

	AuthURL string

	state *authstate.Broadcaster

	mu            sync.Mutex
	tokenErr      error
	accounts      map[string]*fakeAccount
	tokenSeq      int
	cachedToken   string
	forcedCalls   int
	cachedCalls   int
	beginCalls    int
	pendingStates map[string]string
}

// NewFakeIdentityClient creates a signed-out client.
func NewFakeIdentityClient() *FakeIdentityClient {
	return &FakeIdentityClient{
		AuthURL:       "https://fake-idp/auth",
		state:         authstate.New(),
		accounts:      make(map[string]*fakeAccount),
		pendingStates: make(map[string]string),
	}
}

// AddAccount registers an account the client accepts.
func (f *FakeIdentityClient) AddAccount(email, password string, id domainauth.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id.Email = email
	f.accounts[strings.ToLower(email)] = &fakeAccount{password: password, identity: id}
}

// Publish emits an arbitrary auth-state change, as the provider would on token rotation.
func (f *FakeIdentityClient) Publish(id *domainauth.Identity) {
	f.state.Publish(id)
}

func (f *FakeIdentityClient) SignInWithPassword(ctx context.Context, email, password string) error {
	if f.SignInHook != nil {
		f.SignInHook(ctx)
	}
	f.mu.Lock()
	acct, ok := f.accounts[strings.ToLower(email)]
	f.mu.Unlock()
	if !ok {
		return domainauth.NewProviderError(domainauth.CodeUserNotFound, "no account for "+email)
	}
	if acct.password != password {
		return domainauth.NewProviderError(domainauth.CodeInvalidCredential, "wrong password")
	}
	id := acct.identity
	f.state.Publish(&id)
	return nil
}

func (f *FakeIdentityClient) BeginFederated(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beginCalls++
	state := fmt.Sprintf("state-%d", f.beginCalls)
	nonce := fmt.Sprintf("nonce-%d", f.beginCalls)
	f.pendingStates[state] = nonce
	return f.AuthURL + "?state=" + state + "&redirect_uri=" + in.RedirectURL, state, nonce, nil
}

func (f *FakeIdentityClient) CompleteFederated(_ context.Context, in ports.ExchangeInput) error {
	f.mu.Lock()
	nonce, ok := f.pendingStates[in.State]
	delete(f.pendingStates, in.State)
	f.mu.Unlock()
	if !ok || nonce != in.Nonce {
		return domainauth.NewProviderError(domainauth.CodeInvalidFederatedState, "unknown state")
	}
	if f.FederatedIdentity == nil {
		return domainauth.NewProviderError(domainauth.CodePopupBlocked, "flow was not completed")
	}
	f.state.Publish(f.FederatedIdentity)
	return nil
}

func (f *FakeIdentityClient) Register(_ context.Context, email, password string) error {
	if !strings.Contains(email, "@") {
		return domainauth.NewProviderError(domainauth.CodeInvalidEmail, "malformed email")
	}
	if len(password) < 6 {
		return domainauth.NewProviderError(domainauth.CodeWeakPassword, "password should be at least 6 characters")
	}
	f.mu.Lock()
	key := strings.ToLower(email)
	if _, exists := f.accounts[key]; exists {
		f.mu.Unlock()
		return domainauth.NewProviderError(domainauth.CodeEmailAlreadyInUse, "email already registered")
	}
	id := domainauth.Identity{UID: "uid-" + key, Email: email}
	f.accounts[key] = &fakeAccount{password: password, identity: id}
	f.mu.Unlock()

	f.state.Publish(&id)
	return nil
}

// UpdateProfile changes the stored account only; observers see it on the next auth-state event.
func (f *FakeIdentityClient) UpdateProfile(_ context.Context, update domainauth.ProfileUpdate) error {
	current := f.state.Current()
	if current == nil {
		return domainauth.NewProviderError(domainauth.CodeNoCurrentUser, "no user signed in")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[strings.ToLower(current.Email)]
	if !ok {
		return domainauth.NewProviderError(domainauth.CodeUserNotFound, "account vanished")
	}
	if update.DisplayName != nil {
		acct.identity.DisplayName = *update.DisplayName
	}
	if update.PhotoURL != nil {
		acct.identity.PhotoURL = *update.PhotoURL
	}
	return nil
}

// Account returns the stored identity for email.
func (f *FakeIdentityClient) Account(email string) (domainauth.Identity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[strings.ToLower(email)]
	if !ok {
		return domainauth.Identity{}, false
	}
	return acct.identity, true
}

func (f *FakeIdentityClient) SignOut(_ context.Context) error {
	f.state.Publish(nil)
	return nil
}

func (f *FakeIdentityClient) Subscribe() (<-chan domainauth.AuthEvent, func()) {
	return f.state.Subscribe()
}

// IDToken mints "token-<n>" on a forced refresh and returns the cached token otherwise.
func (f *FakeIdentityClient) IDToken(_ context.Context, forceRefresh bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if forceRefresh {
		f.forcedCalls++
	} else {
		f.cachedCalls++
	}
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	if f.state.Current() == nil {
		return "", domainauth.NewProviderError(domainauth.CodeNoCurrentUser, "no user signed in")
	}
	if forceRefresh || f.cachedToken == "" {
		f.tokenSeq++
		f.cachedToken = fmt.Sprintf("token-%d", f.tokenSeq)
	}
	return f.cachedToken, nil
}

// SetTokenErr makes every later IDToken call fail with err. Nil restores normal behavior.
func (f *FakeIdentityClient) SetTokenErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenErr = err
}

// TokenCalls returns how many forced and cached IDToken calls were made.
func (f *FakeIdentityClient) TokenCalls() (forced, cached int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forcedCalls, f.cachedCalls
}

// Subscribers returns the number of live subscriptions.
func (f *FakeIdentityClient) Subscribers() int {
	return f.state.Subscribers()
}

// FakeIdentityProvider hands out fake clients and remembers them.
type FakeIdentityProvider struct {
	// Configure runs on every new client.
	Configure func(*FakeIdentityClient)

	mu      sync.Mutex
	clients []*FakeIdentityClient
}

func (p *FakeIdentityProvider) NewClient() ports.IdentityClient {
	c := NewFakeIdentityClient()
	if p.Configure != nil {
		p.Configure(c)
	}
	p.mu.Lock()
	p.clients = append(p.clients, c)
	p.mu.Unlock()
	return c
}

// Clients returns every client created so far.
func (p *FakeIdentityProvider) Clients() []*FakeIdentityClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*FakeIdentityClient, len(p.clients))
	copy(out, p.clients)
	return out
}

// RecordingNavigator records navigations in order.
type RecordingNavigator struct {
	mu    sync.Mutex
	calls []ports.Navigation
}

func (r *RecordingNavigator) Navigate(_ context.Context, nav ports.Navigation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, nav)
}

// Calls returns a copy of all recorded navigations.
func (r *RecordingNavigator) Calls() []ports.Navigation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ports.Navigation, len(r.calls))
	copy(out, r.calls)
	return out
}

// Last returns the most recent navigation.
func (r *RecordingNavigator) Last() (ports.Navigation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return ports.Navigation{}, false
	}
	return r.calls[len(r.calls)-1], true
}
