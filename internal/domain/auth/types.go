package auth

// Package auth contains domain-level types for identities, credentials and authorization decisions.
// It is pure and free of framework/adapter concerns.

import (
	"errors"
	"fmt"
	"strings"
)

// Role represents a coarse authorization label derived from the backend.
// Keep string form for easy persistence and JSON.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// ParseRole maps a backend role string to a Role.
// Anything other than an explicit "admin" is the least-privileged role.
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleCustomer
}

// Satisfies reports whether r grants at least the capability of required.
// Hierarchy: customer < admin.
func (r Role) Satisfies(required Role) bool {
	rank := map[Role]int{
		RoleCustomer: 1,
		RoleAdmin:    2,
	}
	have, ok := rank[r]
	if !ok {
		return false
	}
	need, ok := rank[required]
	if !ok {
		return false
	}
	return have >= need
}

// RoleState is the role resolver's view of the current identity.
// Until Resolved is true the role must be treated as unknown and grants nothing.
type RoleState struct {
	Role     Role `json:"role"`
	Resolved bool `json:"resolved"`
}

// Grants reports whether the state is resolved and its role satisfies required.
func (s RoleState) Grants(required Role) bool {
	return s.Resolved && s.Role.Satisfies(required)
}

// Identity represents the signed-in end user as reported by the identity provider.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UID           string `json:"uid"`
	DisplayName   string `json:"display_name"`
	Email         string `json:"email"`
	PhotoURL      string `json:"photo_url"`
	EmailVerified bool   `json:"email_verified"`
}

// HasEmail reports whether the identity carries a usable email.
func (i *Identity) HasEmail() bool {
	return i != nil && strings.TrimSpace(i.Email) != ""
}

// Clone returns a copy so observers cannot mutate store state.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	cp := *i
	return &cp
}

// AuthEvent is a single auth-state change emitted by the provider.
// A nil Identity means no user is signed in.
type AuthEvent struct {
	Identity *Identity
}

// Snapshot is the reactive view of the session store.
type Snapshot struct {
	Identity   *Identity
	Credential string
	Loading    bool
	// Generation counts processed auth-state events.
	Generation uint64
}

// Authenticated reports whether the snapshot holds an identity with an email.
func (s Snapshot) Authenticated() bool {
	return !s.Loading && s.Identity.HasEmail()
}

// ProfileUpdate carries optional profile mutations. Nil fields are left unchanged.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name,omitempty"`
	PhotoURL    *string `json:"photo_url,omitempty"`
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.DisplayName == nil && p.PhotoURL == nil
}

// DecisionKind enumerates route guard outcomes.
type DecisionKind string

const (
	DecisionPending              DecisionKind = "pending"
	DecisionAllow                DecisionKind = "allow"
	DecisionRedirectToLogin      DecisionKind = "redirect_to_login"
	DecisionRedirectUnauthorized DecisionKind = "redirect_unauthorized"
)

// Decision is the route guard outcome for a single navigation attempt.
// To is the redirect destination; From is the attempted path carried as state.
type Decision struct {
	Kind DecisionKind
	To   string
	From string
}

// Provider error codes surfaced to callers of session operations.
const (
	CodeInvalidCredential     = "auth/invalid-credential"
	CodeUserNotFound          = "auth/user-not-found"
	CodeEmailAlreadyInUse     = "auth/email-already-in-use"
	CodeWeakPassword          = "auth/weak-password"
	CodeInvalidEmail          = "auth/invalid-email"
	CodePopupBlocked          = "auth/popup-blocked"
	CodeNetworkRequestFailed  = "auth/network-request-failed"
	CodeOperationNotAllowed   = "auth/operation-not-allowed"
	CodeNoCurrentUser         = "auth/no-current-user"
	CodeInvalidFederatedState = "auth/invalid-federated-state"
	CodeInternalError         = "auth/internal-error"
)

// ProviderError is a rejected outcome from the identity provider.
type ProviderError struct {
	Code    string
	Message string
	Cause   error
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError builds a ProviderError without a cause.
func NewProviderError(code, message string) *ProviderError {
	return &ProviderError{Code: code, Message: message}
}

// AsProviderError returns err as a *ProviderError. Errors the provider did not classify
// are reported as auth/internal-error with err as the cause.
func AsProviderError(err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Code: CodeInternalError, Message: err.Error(), Cause: err}
}

// ProviderErrorCode returns the provider code carried by err, or "" when err is not a ProviderError.
func ProviderErrorCode(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
