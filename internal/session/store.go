// Package session implements the Session Store: the single source of truth for who is
// signed in and which bearer credential represents them to the backend.
//
// A Store is bound to one provider client and one durable credential key. Init subscribes
// to the client's auth-state changes exactly once; a single observer goroutine processes
// the events in order, so the last event processed is the last write on both the memory
// and the durable copy of the credential. Dispose cancels the subscription and waits for
// the observer to exit.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/observability/metrics"
	"github.com/target/tourbook/internal/ports"
)

var (
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("session: already initialized")
	// ErrNotInitialized is returned by operations called before Init.
	ErrNotInitialized = errors.New("session: not initialized")
	// ErrDisposed is returned by every call made after Dispose.
	ErrDisposed = errors.New("session: disposed")
)

const defaultStorageTimeout = 5 * time.Second

type lifecycle int

const (
	stateNew lifecycle = iota
	stateRunning
	stateDisposed
)

// Options configures a Store.
type Options struct {
	Client      ports.IdentityClient
	Credentials ports.CredentialStore
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	// StorageTimeout bounds each provider token request and durable storage call made by the observer.
	StorageTimeout time.Duration
}

// Store holds the identity and credential of one application session.
type Store struct {
	client         ports.IdentityClient
	durable        ports.CredentialStore
	logger         *slog.Logger
	metrics        *metrics.Metrics
	storageTimeout time.Duration

	mu         sync.Mutex
	snap       domainauth.Snapshot
	state      lifecycle
	pendingOps int
	cancel     func()
	done       chan struct{}
	resolved   chan struct{}
	resolvedOK bool
	disposed   chan struct{}
	watchers   map[int]chan domainauth.Snapshot
	nextWatch  int
}

// New creates a Store in the loading state. Call Init to start observing the provider.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("session: identity client is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("session: credential store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.StorageTimeout
	if timeout <= 0 {
		timeout = defaultStorageTimeout
	}
	return &Store{
		client:         opts.Client,
		durable:        opts.Credentials,
		logger:         logger.With("component", "session_store"),
		metrics:        opts.Metrics,
		storageTimeout: timeout,
		snap:           domainauth.Snapshot{Loading: true},
		resolved:       make(chan struct{}),
		disposed:       make(chan struct{}),
		watchers:       make(map[int]chan domainauth.Snapshot),
	}, nil
}

// Init subscribes to the provider's auth-state changes. It may be called once.
func (s *Store) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateRunning:
		return ErrAlreadyInitialized
	case stateDisposed:
		return ErrDisposed
	}

	events, cancel := s.client.Subscribe()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = stateRunning
	go s.observe(events, s.done)
	return nil
}

// Dispose cancels the subscription, waits for the observer to exit and closes all watchers.
// It is idempotent.
func (s *Store) Dispose() {
	s.mu.Lock()
	if s.state == stateDisposed {
		s.mu.Unlock()
		return
	}
	wasRunning := s.state == stateRunning
	s.state = stateDisposed
	cancel, done := s.cancel, s.done
	close(s.disposed)
	s.mu.Unlock()

	if wasRunning {
		cancel()
		<-done
	}

	s.mu.Lock()
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
	s.mu.Unlock()
}

func (s *Store) observe(events <-chan domainauth.AuthEvent, done chan struct{}) {
	defer close(done)
	for ev := range events {
		s.handle(ev)
	}
}

// handle applies one auth-state change. Provider and storage failures are logged and
// folded into the committed state; they never stop the observer.
func (s *Store) handle(ev domainauth.AuthEvent) {
	if ev.Identity == nil {
		s.metrics.IncAuthEvent(metrics.EventSignedOut)
		s.removeDurable()
		s.commit(nil, "")
		return
	}

	s.metrics.IncAuthEvent(metrics.EventSignedIn)
	identity := ev.Identity.Clone()

	ctx, cancel := context.WithTimeout(context.Background(), s.storageTimeout)
	defer cancel()

	token, err := s.client.IDToken(ctx, true)
	if err != nil {
		s.metrics.IncTokenRefresh(metrics.ResultError)
		s.logger.WarnContext(ctx, "credential refresh failed",
			"uid", identity.UID,
			"error_code", domainauth.ProviderErrorCode(err),
			"error", err,
		)
		s.removeDurable()
		s.commit(identity, "")
		return
	}
	s.metrics.IncTokenRefresh(metrics.ResultSuccess)

	if err := s.durable.Save(ctx, token); err != nil {
		s.logger.ErrorContext(ctx, "persist credential failed",
			"uid", identity.UID,
			"error", err,
		)
		s.removeDurable()
		s.commit(identity, "")
		return
	}
	s.commit(identity, token)
}

func (s *Store) removeDurable() {
	ctx, cancel := context.WithTimeout(context.Background(), s.storageTimeout)
	defer cancel()
	if err := s.durable.Remove(ctx); err != nil {
		s.logger.ErrorContext(ctx, "remove durable credential failed", "error", err)
	}
}

// commit publishes the result of one processed event.
func (s *Store) commit(identity *domainauth.Identity, credential string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Identity = identity
	s.snap.Credential = credential
	s.snap.Generation++
	s.snap.Loading = s.pendingOps > 0
	if !s.resolvedOK {
		s.resolvedOK = true
		close(s.resolved)
	}
	s.broadcastLocked()
}

// beginOp marks the store loading while a sign-in style operation is pending.
// It returns the generation observed at the start.
func (s *Store) beginOp() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateNew:
		return 0, ErrNotInitialized
	case stateDisposed:
		return 0, ErrDisposed
	}
	s.pendingOps++
	if !s.snap.Loading {
		s.snap.Loading = true
		s.broadcastLocked()
	}
	return s.snap.Generation, nil
}

// endOp settles the loading flag after an operation returns.
// A failed operation clears loading at once. A successful one clears it only if its
// auth-state event was already processed; otherwise that event clears it.
func (s *Store) endOp(startGen uint64, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingOps--
	if s.pendingOps > 0 || !s.resolvedOK {
		return
	}
	if failed || s.snap.Generation > startGen {
		if s.snap.Loading {
			s.snap.Loading = false
			s.broadcastLocked()
		}
	}
}

func (s *Store) checkRunning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateNew:
		return ErrNotInitialized
	case stateDisposed:
		return ErrDisposed
	}
	return nil
}

// SignInWithPassword signs in with email and password. The store is loading while the call is pending.
func (s *Store) SignInWithPassword(ctx context.Context, email, password string) error {
	gen, err := s.beginOp()
	if err != nil {
		return err
	}
	err = s.client.SignInWithPassword(ctx, email, password)
	s.endOp(gen, err != nil)
	if err != nil {
		return domainauth.AsProviderError(err)
	}
	return nil
}

// BeginFederatedSignIn starts the federated flow and returns where the user must be sent.
func (s *Store) BeginFederatedSignIn(ctx context.Context, redirectURL string) (authURL, state, nonce string, err error) {
	if err := s.checkRunning(); err != nil {
		return "", "", "", err
	}
	authURL, state, nonce, err = s.client.BeginFederated(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return "", "", "", domainauth.AsProviderError(err)
	}
	return authURL, state, nonce, nil
}

// CompleteFederatedSignIn finishes the federated flow. The store is loading while the call is pending.
func (s *Store) CompleteFederatedSignIn(ctx context.Context, in ports.ExchangeInput) error {
	gen, err := s.beginOp()
	if err != nil {
		return err
	}
	err = s.client.CompleteFederated(ctx, in)
	s.endOp(gen, err != nil)
	if err != nil {
		return domainauth.AsProviderError(err)
	}
	return nil
}

// RegisterWithPassword creates a new identity. Display name and photo stay empty;
// callers follow up with UpdateProfile.
func (s *Store) RegisterWithPassword(ctx context.Context, email, password string) error {
	gen, err := s.beginOp()
	if err != nil {
		return err
	}
	err = s.client.Register(ctx, email, password)
	s.endOp(gen, err != nil)
	if err != nil {
		return domainauth.AsProviderError(err)
	}
	return nil
}

// UpdateProfile changes the provider's profile fields. The local identity is unchanged
// until the next auth-state event.
func (s *Store) UpdateProfile(ctx context.Context, update domainauth.ProfileUpdate) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	if update.Empty() {
		return nil
	}
	if err := s.client.UpdateProfile(ctx, update); err != nil {
		return domainauth.AsProviderError(err)
	}
	return nil
}

// SignOut ends the provider session. The observer then clears identity, credential and durable storage.
// The store is loading until the sign-out event is processed.
func (s *Store) SignOut(ctx context.Context) error {
	gen, err := s.beginOp()
	if err != nil {
		return err
	}
	err = s.client.SignOut(ctx)
	s.endOp(gen, err != nil)
	if err != nil {
		return domainauth.AsProviderError(err)
	}
	return nil
}

// Snapshot returns the current state.
func (s *Store) Snapshot() domainauth.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Identity returns the current identity, or nil.
func (s *Store) Identity() *domainauth.Identity {
	return s.Snapshot().Identity
}

// Credential returns the in-memory bearer credential, or "".
func (s *Store) Credential() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Credential
}

// Loading reports whether the store has not resolved yet or a sign-in is pending.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Loading
}

// WaitResolved blocks until the first auth-state event has been processed and returns
// the snapshot at that point or later.
func (s *Store) WaitResolved(ctx context.Context) (domainauth.Snapshot, error) {
	select {
	case <-s.resolved:
		return s.Snapshot(), nil
	case <-s.disposed:
		return domainauth.Snapshot{}, ErrDisposed
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// Watch streams snapshots, starting with the current one. Slow readers only see the newest
// snapshot. cancel stops the stream and closes the channel.
func (s *Store) Watch() (<-chan domainauth.Snapshot, func()) {
	ch := make(chan domainauth.Snapshot, 1)
	s.mu.Lock()
	if s.state == stateDisposed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = ch
	ch <- s.copyLocked()
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if w, ok := s.watchers[id]; ok {
				close(w)
				delete(s.watchers, id)
			}
		})
	}
	return ch, cancel
}

func (s *Store) copyLocked() domainauth.Snapshot {
	snap := s.snap
	snap.Identity = s.snap.Identity.Clone()
	return snap
}

func (s *Store) broadcastLocked() {
	for _, ch := range s.watchers {
		snap := s.copyLocked()
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
