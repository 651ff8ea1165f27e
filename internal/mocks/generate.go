// Package mocks provides mock implementations for testing tourbook.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the auth ports.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockCredentialStore(ctrl)
//	store.EXPECT().Save(gomock.Any(), "token-1").Return(nil)
package mocks

// Generate mock for IdentityClient interface from internal/ports package.
// This creates MockIdentityClient with methods for all IdentityClient interface methods:
// SignInWithPassword, BeginFederated, CompleteFederated, Register, UpdateProfile, SignOut, Subscribe, IDToken
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=identity_client_mock.go github.com/target/tourbook/internal/ports IdentityClient

// Generate mock for CredentialStore interface from internal/ports package.
// This creates MockCredentialStore with methods for all CredentialStore interface methods:
// Load, Save, Remove
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credential_store_mock.go github.com/target/tourbook/internal/ports CredentialStore

// Generate mock for Navigator interface from internal/ports package.
// This creates MockNavigator with methods for all Navigator interface methods:
// Navigate
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=navigator_mock.go github.com/target/tourbook/internal/ports Navigator
