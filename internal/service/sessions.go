package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/gateway"
	"github.com/target/tourbook/internal/observability/metrics"
	"github.com/target/tourbook/internal/ports"
	"github.com/target/tourbook/internal/roles"
	"github.com/target/tourbook/internal/session"
)

// ErrManagerClosed is returned by Acquire after Close.
var ErrManagerClosed = errors.New("session manager closed")

// CredentialStoreFactory returns the durable credential store for a browser session.
type CredentialStoreFactory func(sessionID string) ports.CredentialStore

// SessionManagerOptions groups dependencies for SessionManager.
type SessionManagerOptions struct {
	Provider    ports.IdentityProvider // Required
	Credentials CredentialStoreFactory // Required
	Gateway     *gateway.Client        // Required: template bound per session to that session's credential
	Roles       *roles.Resolver        // Required
	IdleTTL     time.Duration
	// StorageTimeout bounds durable credential calls.
	StorageTimeout time.Duration
	Now            func() time.Time
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// SessionManager maps browser session ids to Session Stores.
type SessionManager struct {
	provider       ports.IdentityProvider
	credentials    CredentialStoreFactory
	gateway        *gateway.Client
	roles          *roles.Resolver
	idleTTL        time.Duration
	storageTimeout time.Duration
	now            func() time.Time
	logger         *slog.Logger
	metrics        *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(opts SessionManagerOptions) (*SessionManager, error) {
	switch {
	case opts.Provider == nil:
		return nil, errors.New("identity provider is required")
	case opts.Credentials == nil:
		return nil, errors.New("credential store factory is required")
	case opts.Gateway == nil:
		return nil, errors.New("gateway is required")
	case opts.Roles == nil:
		return nil, errors.New("role resolver is required")
	}
	idle := opts.IdleTTL
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	timeout := opts.StorageTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		provider:       opts.Provider,
		credentials:    opts.Credentials,
		gateway:        opts.Gateway,
		roles:          opts.Roles,
		idleTTL:        idle,
		storageTimeout: timeout,
		now:            now,
		logger:         logger.With("component", "session_manager"),
		metrics:        opts.Metrics,
		sessions:       make(map[string]*Session),
	}, nil
}

// NewID returns a fresh browser session id.
func (m *SessionManager) NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id has the shape of an id returned by NewID.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Open creates a session under a fresh server-generated id.
func (m *SessionManager) Open(ctx context.Context) (*Session, error) {
	return m.Acquire(ctx, m.NewID())
}

// Acquire returns the session for id, creating and initializing it on first use.
func (m *SessionManager) Acquire(ctx context.Context, id string) (*Session, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("acquire session: invalid id %q", id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if s, ok := m.sessions[id]; ok {
		s.touch(m.now())
		return s, nil
	}

	durable := &sessionCredentials{store: m.credentials(id)}
	store, err := session.New(session.Options{
		Client:         m.provider.NewClient(),
		Credentials:    durable,
		Logger:         m.logger.With("session_id", shortID(id)),
		Metrics:        m.metrics,
		StorageTimeout: m.storageTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("init session store: %w", err)
	}
	s := &Session{
		ID:      id,
		Store:   store,
		gateway: m.gateway.WithCredentials(store),
		roles:   m.roles,
		durable: durable,
	}
	s.touch(m.now())
	m.sessions[id] = s
	m.metrics.SessionOpened()
	m.logger.DebugContext(ctx, "session opened", "session_id", shortID(id))
	return s, nil
}

// Rotate moves the session under id to a fresh id, carrying its durable credential along,
// and returns it. The old id stops resolving. If the credential cannot be moved the session
// is disposed.
func (m *SessionManager) Rotate(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	old, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("rotate session: unknown id %s", shortID(id))
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	next := m.NewID()
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.storageTimeout)
	defer cancel()
	if err := old.durable.moveTo(sctx, m.credentials(next)); err != nil {
		m.dispose(ctx, old, true)
		return nil, fmt.Errorf("rotate session: %w", err)
	}
	s := &Session{
		ID:      next,
		Store:   old.Store,
		gateway: old.gateway,
		roles:   old.roles,
		durable: old.durable,
	}
	s.touch(m.now())

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.dispose(ctx, s, false)
		return nil, ErrManagerClosed
	}
	m.sessions[next] = s
	m.mu.Unlock()
	m.logger.DebugContext(ctx, "session rotated", "from", shortID(id), "to", shortID(next))
	return s, nil
}

// Lookup returns a live session without creating one.
func (m *SessionManager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.touch(m.now())
	}
	return s, ok
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap disposes sessions idle for longer than the idle TTL and removes their durable credential.
// It returns the number of sessions disposed.
func (m *SessionManager) Reap(ctx context.Context) int {
	cutoff := m.now().Add(-m.idleTTL)
	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.lastSeen().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.dispose(ctx, s, true)
	}
	return len(idle)
}

// Close disposes every session. Durable credentials are left for their TTL so a restarted
// server sees the same keys.
func (m *SessionManager) Close(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		m.dispose(ctx, s, false)
	}
}

func (m *SessionManager) dispose(ctx context.Context, s *Session, removeDurable bool) {
	s.Dispose()
	m.metrics.SessionClosed()
	if !removeDurable {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.storageTimeout)
	defer cancel()
	if err := s.durable.Remove(rctx); err != nil {
		m.logger.WarnContext(ctx, "remove durable credential of idle session",
			"session_id", shortID(s.ID),
			"error", err,
		)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Session is one browser session: its Session Store, a gateway bound to the store's
// credential, and the shared Role Resolver.
type Session struct {
	ID string
	*session.Store

	gateway *gateway.Client
	roles   *roles.Resolver
	durable *sessionCredentials

	mu   sync.Mutex
	seen time.Time
}

// Gateway returns the gateway bound to this session's credential.
func (s *Session) Gateway() *gateway.Client { return s.gateway }

// Role resolves the role for snap through this session's gateway.
func (s *Session) Role(ctx context.Context, snap domainauth.Snapshot) domainauth.RoleState {
	return s.roles.Resolve(ctx, s.gateway, snap)
}

// CurrentRole resolves the role for the current snapshot.
func (s *Session) CurrentRole(ctx context.Context) domainauth.RoleState {
	return s.Role(ctx, s.Snapshot())
}

func (s *Session) touch(t time.Time) {
	s.mu.Lock()
	if t.After(s.seen) {
		s.seen = t
	}
	s.mu.Unlock()
}

func (s *Session) lastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen
}

// sessionCredentials is the durable credential store of the session's current id.
// Rotation swaps the underlying key without the Session Store noticing.
type sessionCredentials struct {
	mu    sync.Mutex
	store ports.CredentialStore
}

func (c *sessionCredentials) Load(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Load(ctx)
}

func (c *sessionCredentials) Save(ctx context.Context, credential string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Save(ctx, credential)
}

func (c *sessionCredentials) Remove(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Remove(ctx)
}

// moveTo copies the credential into next, removes it from the current key and switches to next.
func (c *sessionCredentials) moveTo(ctx context.Context, next ports.CredentialStore) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	credential, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	if credential != "" {
		if err := next.Save(ctx, credential); err != nil {
			return fmt.Errorf("save credential under new id: %w", err)
		}
	}
	if err := c.store.Remove(ctx); err != nil {
		_ = next.Remove(ctx)
		return fmt.Errorf("remove credential under old id: %w", err)
	}
	c.store = next
	return nil
}
