package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/tourbook/internal/adapters/credstore"
	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/gateway"
	mockauth "github.com/target/tourbook/internal/mocks/auth"
	"github.com/target/tourbook/internal/ports"
	"github.com/target/tourbook/internal/roles"
	"github.com/target/tourbook/internal/session"
	"github.com/target/tourbook/internal/testutil"
)

type managerFixture struct {
	manager  *SessionManager
	provider *mockauth.FakeIdentityProvider
	clock    *testutil.ManualClock
	nav      *mockauth.RecordingNavigator

	mu     sync.Mutex
	stores map[string]*credstore.MemoryStore
	auth   []string
}

func newManagerFixture(t *testing.T, role string) *managerFixture {
	t.Helper()
	f := &managerFixture{
		provider: &mockauth.FakeIdentityProvider{
			Configure: func(c *mockauth.FakeIdentityClient) {
				c.AddAccount("traveler@example.com", "secret1", domainauth.Identity{UID: "uid-traveler", DisplayName: "Traveler"})
			},
		},
		clock:  testutil.NewManualClock(testutil.TestTime()),
		nav:    &mockauth.RecordingNavigator{},
		stores: make(map[string]*credstore.MemoryStore),
	}

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"role":"` + role + `"}`))
	}))
	t.Cleanup(backend.Close)

	gw, err := gateway.New(gateway.Options{BaseURL: backend.URL, Navigator: f.nav, HTTPClient: backend.Client()})
	require.NoError(t, err)
	resolver, err := roles.New(roles.Options{})
	require.NoError(t, err)

	f.manager, err = NewSessionManager(SessionManagerOptions{
		Provider: f.provider,
		Credentials: func(id string) ports.CredentialStore {
			f.mu.Lock()
			defer f.mu.Unlock()
			s := credstore.NewMemoryStore()
			f.stores[id] = s
			return s
		},
		Gateway: gw,
		Roles:   resolver,
		IdleTTL: 10 * time.Minute,
		Now:     f.clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { f.manager.Close(context.Background()) })
	return f
}

func (f *managerFixture) store(id string) *credstore.MemoryStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stores[id]
}

func (f *managerFixture) authHeaders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.auth...)
}

func signIn(t *testing.T, s *Session) domainauth.Snapshot {
	t.Helper()
	require.NoError(t, s.SignInWithPassword(context.Background(), "traveler@example.com", "secret1"))
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return !snap.Loading && snap.Credential != ""
	}, 2*time.Second, 5*time.Millisecond)
	return s.Snapshot()
}

func TestNewSessionManager_Validation(t *testing.T) {
	_, err := NewSessionManager(SessionManagerOptions{})
	assert.Error(t, err)
}

func TestSessionManager_AcquireIsLazyAndStable(t *testing.T) {
	f := newManagerFixture(t, "customer")
	ctx := context.Background()
	id := f.manager.NewID()
	assert.True(t, ValidID(id))

	_, ok := f.manager.Lookup(id)
	assert.False(t, ok)

	s1, err := f.manager.Acquire(ctx, id)
	require.NoError(t, err)
	s2, err := f.manager.Acquire(ctx, id)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Len(t, f.provider.Clients(), 1)
	assert.Equal(t, 1, f.manager.Len())

	other, err := f.manager.Acquire(ctx, f.manager.NewID())
	require.NoError(t, err)
	assert.NotSame(t, s1, other)
	assert.Len(t, f.provider.Clients(), 2)
}

func TestSessionManager_AcquireRejectsBadIDs(t *testing.T) {
	f := newManagerFixture(t, "customer")
	_, err := f.manager.Acquire(context.Background(), "not-a-uuid")
	assert.Error(t, err)
	assert.Zero(t, f.manager.Len())
}

func TestSession_GatewayCarriesSessionCredential(t *testing.T) {
	f := newManagerFixture(t, "admin")
	ctx := context.Background()
	s, err := f.manager.Acquire(ctx, f.manager.NewID())
	require.NoError(t, err)

	snap := signIn(t, s)
	state := s.CurrentRole(ctx)
	assert.Equal(t, domainauth.RoleState{Role: domainauth.RoleAdmin, Resolved: true}, state)
	assert.Equal(t, []string{"Bearer " + snap.Credential}, f.authHeaders())

	stored, err := f.store(s.ID).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Credential, stored)
}

func TestSession_SessionsAreIsolated(t *testing.T) {
	f := newManagerFixture(t, "customer")
	ctx := context.Background()
	a, err := f.manager.Acquire(ctx, f.manager.NewID())
	require.NoError(t, err)
	b, err := f.manager.Acquire(ctx, f.manager.NewID())
	require.NoError(t, err)

	signIn(t, a)
	_, err = b.WaitResolved(ctx)
	require.NoError(t, err)
	assert.True(t, a.Snapshot().Authenticated())
	assert.False(t, b.Snapshot().Authenticated())
	assert.Empty(t, b.Credential())
}

func TestSessionManager_Open(t *testing.T) {
	f := newManagerFixture(t, "customer")
	s, err := f.manager.Open(context.Background())
	require.NoError(t, err)
	assert.True(t, ValidID(s.ID))
	got, ok := f.manager.Lookup(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestSessionManager_RotateMovesSessionToNewID(t *testing.T) {
	f := newManagerFixture(t, "customer")
	ctx := context.Background()
	s, err := f.manager.Open(ctx)
	require.NoError(t, err)
	snap := signIn(t, s)

	rotated, err := f.manager.Rotate(ctx, s.ID)
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, rotated.ID)
	assert.Same(t, s.Store, rotated.Store)
	assert.Equal(t, 1, f.manager.Len())

	_, ok := f.manager.Lookup(s.ID)
	assert.False(t, ok, "old id no longer resolves")
	_, ok = f.manager.Lookup(rotated.ID)
	assert.True(t, ok)

	assert.False(t, f.store(s.ID).Present())
	stored, err := f.store(rotated.ID).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Credential, stored)
	assert.True(t, rotated.Snapshot().Authenticated())

	// Later writes follow the new key.
	require.NoError(t, rotated.SignOut(ctx))
	require.Eventually(t, func() bool { return !f.store(rotated.ID).Present() }, 2*time.Second, 5*time.Millisecond)
}

func TestSessionManager_RotateUnknownID(t *testing.T) {
	f := newManagerFixture(t, "customer")
	_, err := f.manager.Rotate(context.Background(), f.manager.NewID())
	assert.Error(t, err)
	assert.Zero(t, f.manager.Len())
}

func TestSessionManager_RotateFailureDisposesSession(t *testing.T) {
	f := newManagerFixture(t, "customer")
	ctx := context.Background()
	s, err := f.manager.Open(ctx)
	require.NoError(t, err)
	signIn(t, s)
	f.store(s.ID).RemoveErr = errors.New("redis down")

	_, err = f.manager.Rotate(ctx, s.ID)
	require.Error(t, err)
	assert.Zero(t, f.manager.Len())
	assert.ErrorIs(t, s.SignOut(ctx), session.ErrDisposed)
}

func TestSessionManager_Reap(t *testing.T) {
	f := newManagerFixture(t, "customer")
	ctx := context.Background()
	idle, err := f.manager.Acquire(ctx, f.manager.NewID())
	require.NoError(t, err)
	signIn(t, idle)
	require.True(t, f.store(idle.ID).Present())

	f.clock.Advance(6 * time.Minute)
	active, err := f.manager.Acquire(ctx, f.manager.NewID())
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, f.manager.Reap(ctx))

	_, ok := f.manager.Lookup(idle.ID)
	assert.False(t, ok)
	_, ok = f.manager.Lookup(active.ID)
	assert.True(t, ok)
	assert.False(t, f.store(idle.ID).Present())
	assert.ErrorIs(t, idle.SignOut(ctx), session.ErrDisposed)
}

func TestSessionManager_Close(t *testing.T) {
	f := newManagerFixture(t, "customer")
	ctx := context.Background()
	s, err := f.manager.Acquire(ctx, f.manager.NewID())
	require.NoError(t, err)
	signIn(t, s)

	f.manager.Close(ctx)
	assert.Zero(t, f.manager.Len())
	assert.True(t, f.store(s.ID).Present())

	_, err = f.manager.Acquire(ctx, f.manager.NewID())
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestSessionReaper_Run(t *testing.T) {
	f := newManagerFixture(t, "customer")
	_, err := NewSessionReaper(SessionReaperOptions{Manager: f.manager})
	require.Error(t, err)

	r, err := NewSessionReaper(SessionReaperOptions{Manager: f.manager, Interval: 5 * time.Millisecond})
	require.NoError(t, err)

	_, err = f.manager.Acquire(context.Background(), f.manager.NewID())
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return f.manager.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
}
