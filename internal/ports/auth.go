package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/session and internal/service.

import (
	"context"

	domainauth "github.com/target/tourbook/internal/domain/auth"
)

// BeginInput carries inputs for initiating a federated sign-in flow.
type BeginInput struct {
	RedirectURL string
}

// ExchangeInput groups parameters for completing a federated sign-in.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// IdentityClient is a provider client bound to a single application session.
// It owns that session's current user and notifies subscribers of every auth-state change.
type IdentityClient interface {
	// SignInWithPassword authenticates with email and password.
	SignInWithPassword(ctx context.Context, email, password string) error

	// BeginFederated starts the federated flow and returns the provider auth URL, an opaque state, and a nonce.
	BeginFederated(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// CompleteFederated finishes the federated flow and signs the user in.
	CompleteFederated(ctx context.Context, in ExchangeInput) error

	// Register creates a new identity. Display name and photo are not populated.
	Register(ctx context.Context, email, password string) error

	// UpdateProfile mutates the current identity's profile fields.
	UpdateProfile(ctx context.Context, update domainauth.ProfileUpdate) error

	// SignOut ends the provider session.
	SignOut(ctx context.Context) error

	// Subscribe delivers the current auth state immediately and then every change in order.
	// cancel releases the subscription and closes the channel.
	Subscribe() (events <-chan domainauth.AuthEvent, cancel func())

	// IDToken returns a bearer credential for the current user.
	// forceRefresh bypasses any cached token.
	IDToken(ctx context.Context, forceRefresh bool) (string, error)
}

// IdentityProvider creates provider clients, one per application session.
type IdentityProvider interface {
	NewClient() IdentityClient
}

// CredentialStore is durable client storage for the latest bearer credential.
// Each implementation is bound to exactly one well-known key.
type CredentialStore interface {
	// Load returns the stored credential, or "" when the key is absent.
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, credential string) error
	Remove(ctx context.Context) error
}

// Navigation describes a client-side navigation.
type Navigation struct {
	To string
	// From is the attempted location carried as state so a sign-in flow can return to it.
	From string
	// Replace means the navigation replaces history (no back-navigation into the denied page).
	Replace bool
}

// Navigator performs client-side navigation.
type Navigator interface {
	Navigate(ctx context.Context, nav Navigation)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, nav Navigation)

func (f NavigatorFunc) Navigate(ctx context.Context, nav Navigation) { f(ctx, nav) }
