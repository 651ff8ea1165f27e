package testutil

import (
	"strings"

	domainauth "github.com/target/tourbook/internal/domain/auth"
)

// IdentityBuilder provides a fluent interface for building identities for testing.
type IdentityBuilder struct {
	id *domainauth.Identity
}

// NewIdentity creates a new IdentityBuilder with sensible defaults.
func NewIdentity() *IdentityBuilder {
	return &IdentityBuilder{
		id: &domainauth.Identity{
			UID:           "uid-traveler",
			DisplayName:   "Traveler",
			Email:         "traveler@example.com",
			EmailVerified: true,
		},
	}
}

// WithEmail sets the email and derives the UID from it.
func (b *IdentityBuilder) WithEmail(email string) *IdentityBuilder {
	b.id.Email = email
	b.id.UID = "uid-" + strings.SplitN(email, "@", 2)[0]
	return b
}

// WithDisplayName sets the display name.
func (b *IdentityBuilder) WithDisplayName(name string) *IdentityBuilder {
	b.id.DisplayName = name
	return b
}

// WithPhotoURL sets the avatar URL.
func (b *IdentityBuilder) WithPhotoURL(u string) *IdentityBuilder {
	b.id.PhotoURL = u
	return b
}

// Build returns a copy of the identity.
func (b *IdentityBuilder) Build() *domainauth.Identity {
	return b.id.Clone()
}

// SignedIn returns a resolved snapshot for the identity.
func (b *IdentityBuilder) SignedIn(credential string) domainauth.Snapshot {
	return domainauth.Snapshot{Identity: b.Build(), Credential: credential, Generation: 1}
}

// SignedOut returns a resolved snapshot with no identity.
func SignedOut() domainauth.Snapshot {
	return domainauth.Snapshot{Generation: 1}
}

// LoadingSnapshot returns the initial unresolved snapshot.
func LoadingSnapshot() domainauth.Snapshot {
	return domainauth.Snapshot{Loading: true}
}
