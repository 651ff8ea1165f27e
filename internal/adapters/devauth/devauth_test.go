package devauth

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/ports"
	"github.com/target/tourbook/internal/testutil"
)

func newDirectory(t *testing.T, now func() time.Time) *Directory {
	t.Helper()
	dir, err := NewDirectory(Config{
		Secret:   "test-secret",
		TokenTTL: time.Minute,
		Cost:     bcrypt.MinCost,
		Now:      now,
		Users: []User{
			{Email: "dev@example.com", Password: "password", DisplayName: "Dev User"},
			{Email: "admin@example.com", Password: "password"},
		},
	})
	require.NoError(t, err)
	return dir
}

func next(t *testing.T, ch <-chan domainauth.AuthEvent) domainauth.AuthEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no auth event")
		return domainauth.AuthEvent{}
	}
}

func TestParseUsers(t *testing.T) {
	users, err := ParseUsers([]string{"a@example.com:secret1:Ann Lee", " b@example.com:pw:with:colons ", "", "c@example.com:secret3"})
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, User{Email: "a@example.com", Password: "secret1", DisplayName: "Ann Lee"}, users[0])
	assert.Equal(t, "pw", users[1].Password)
	assert.Equal(t, "with:colons", users[1].DisplayName)
	assert.Empty(t, users[2].DisplayName)

	_, err = ParseUsers([]string{"missing-password"})
	assert.Error(t, err)
}

func TestNewDirectory_Validation(t *testing.T) {
	_, err := NewDirectory(Config{})
	assert.Error(t, err)

	_, err = NewDirectory(Config{Secret: "s", Cost: bcrypt.MinCost, Users: []User{{Email: "x@example.com", Password: "short"}}})
	assert.Equal(t, domainauth.CodeWeakPassword, domainauth.ProviderErrorCode(err))
}

func TestDirectory_Authenticate(t *testing.T) {
	dir := newDirectory(t, nil)

	id, err := dir.Authenticate("DEV@example.com", "password")
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", id.Email)
	assert.Equal(t, "Dev User", id.DisplayName)
	assert.NotEmpty(t, id.UID)

	_, err = dir.Authenticate("dev@example.com", "wrong")
	assert.Equal(t, domainauth.CodeInvalidCredential, domainauth.ProviderErrorCode(err))
	_, err = dir.Authenticate("ghost@example.com", "password")
	assert.Equal(t, domainauth.CodeUserNotFound, domainauth.ProviderErrorCode(err))
}

func TestDirectory_Register(t *testing.T) {
	dir := newDirectory(t, nil)
	tests := []struct {
		name     string
		email    string
		password string
		wantCode string
	}{
		{name: "ok", email: "new@example.com", password: "secret1"},
		{name: "duplicate", email: "Dev@example.com", password: "secret1", wantCode: domainauth.CodeEmailAlreadyInUse},
		{name: "weak", email: "weak@example.com", password: "123", wantCode: domainauth.CodeWeakPassword},
		{name: "malformed", email: "nobody", password: "secret1", wantCode: domainauth.CodeInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := dir.Register(tt.email, tt.password)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, domainauth.ProviderErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Empty(t, id.DisplayName)
			assert.Empty(t, id.PhotoURL)
		})
	}
}

func TestDirectory_IssueAndVerify(t *testing.T) {
	clock := testutil.NewManualClock(time.Now())
	dir := newDirectory(t, clock.Now)
	id, err := dir.Lookup("dev@example.com")
	require.NoError(t, err)

	token, err := dir.Issue(id)
	require.NoError(t, err)
	claims, err := dir.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id.UID, claims.Subject)
	assert.Equal(t, "dev@example.com", claims.Email)
	assert.Equal(t, "tourbook-dev", claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	other, err := NewDirectory(Config{Secret: "other-secret"})
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.Error(t, err)

	clock.Advance(2 * time.Minute)
	_, err = dir.Verify(token)
	assert.Equal(t, domainauth.CodeInvalidCredential, domainauth.ProviderErrorCode(err))
}

func TestClient_PasswordSignInAndTokens(t *testing.T) {
	clock := testutil.NewManualClock(time.Now())
	dir := newDirectory(t, clock.Now)
	client := NewProvider(dir).NewClient()
	ctx := context.Background()

	events, cancel := client.Subscribe()
	defer cancel()
	assert.Nil(t, next(t, events).Identity)

	_, err := client.IDToken(ctx, false)
	assert.Equal(t, domainauth.CodeNoCurrentUser, domainauth.ProviderErrorCode(err))

	require.NoError(t, client.SignInWithPassword(ctx, "dev@example.com", "password"))
	assert.Equal(t, "dev@example.com", next(t, events).Identity.Email)

	first, err := client.IDToken(ctx, true)
	require.NoError(t, err)
	cached, err := client.IDToken(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	forced, err := client.IDToken(ctx, true)
	require.NoError(t, err)
	assert.NotEqual(t, first, forced)

	clock.Advance(2 * time.Minute)
	renewed, err := client.IDToken(ctx, false)
	require.NoError(t, err)
	assert.NotEqual(t, forced, renewed)

	require.NoError(t, client.SignOut(ctx))
	assert.Nil(t, next(t, events).Identity)
}

func TestClient_FederatedShortcut(t *testing.T) {
	dir := newDirectory(t, nil)
	client := NewProvider(dir).NewClient()
	ctx := context.Background()
	events, cancel := client.Subscribe()
	defer cancel()
	next(t, events)

	authURL, state, nonce, err := client.BeginFederated(ctx, ports.BeginInput{RedirectURL: "http://localhost:8080/auth/callback"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(authURL, "/auth/callback?"))
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, state, u.Query().Get("state"))

	err = client.CompleteFederated(ctx, ports.ExchangeInput{Code: "dev", State: state, Nonce: "wrong"})
	assert.Equal(t, domainauth.CodeInvalidFederatedState, domainauth.ProviderErrorCode(err))

	// A state is single use.
	err = client.CompleteFederated(ctx, ports.ExchangeInput{Code: "dev", State: state, Nonce: nonce})
	assert.Equal(t, domainauth.CodeInvalidFederatedState, domainauth.ProviderErrorCode(err))

	_, state, nonce, err = client.BeginFederated(ctx, ports.BeginInput{})
	require.NoError(t, err)
	require.NoError(t, client.CompleteFederated(ctx, ports.ExchangeInput{Code: "dev", State: state, Nonce: nonce}))
	assert.Equal(t, "dev@example.com", next(t, events).Identity.Email)
}

func TestClient_RegisterAndUpdateProfile(t *testing.T) {
	dir := newDirectory(t, nil)
	client := NewProvider(dir).NewClient()
	ctx := context.Background()
	events, cancel := client.Subscribe()
	defer cancel()
	next(t, events)

	name := "Nomad"
	err := client.UpdateProfile(ctx, domainauth.ProfileUpdate{DisplayName: &name})
	assert.Equal(t, domainauth.CodeNoCurrentUser, domainauth.ProviderErrorCode(err))

	require.NoError(t, client.Register(ctx, "new@example.com", "secret1"))
	ev := next(t, events)
	assert.Equal(t, "new@example.com", ev.Identity.Email)
	assert.Empty(t, ev.Identity.DisplayName)

	require.NoError(t, client.UpdateProfile(ctx, domainauth.ProfileUpdate{DisplayName: &name}))
	stored, err := dir.Lookup("new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Nomad", stored.DisplayName)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestClients_AreIndependent(t *testing.T) {
	p := NewProvider(newDirectory(t, nil))
	a, b := p.NewClient(), p.NewClient()
	ctx := context.Background()
	require.NoError(t, a.SignInWithPassword(ctx, "dev@example.com", "password"))

	_, err := b.IDToken(ctx, true)
	assert.Equal(t, domainauth.CodeNoCurrentUser, domainauth.ProviderErrorCode(err))
}
