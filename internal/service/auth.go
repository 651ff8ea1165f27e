package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	domainauth "github.com/target/tourbook/internal/domain/auth"
	apperrors "github.com/target/tourbook/internal/errors"
	"github.com/target/tourbook/internal/ports"
)

// Authenticator is the slice of a Session Store the sign-in flows drive.
type Authenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) error
	BeginFederatedSignIn(ctx context.Context, redirectURL string) (authURL, state, nonce string, err error)
	CompleteFederatedSignIn(ctx context.Context, in ports.ExchangeInput) error
	RegisterWithPassword(ctx context.Context, email, password string) error
	UpdateProfile(ctx context.Context, update domainauth.ProfileUpdate) error
	SignOut(ctx context.Context) error
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	// CallbackURL is where the provider returns after federated sign-in.
	CallbackURL string
	Logger      *slog.Logger
}

// AuthService validates sign-in input and drives a session's auth flows.
type AuthService struct {
	callbackURL string
	logger      *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		callbackURL: opts.CallbackURL,
		logger:      logger.With("component", "auth_service"),
	}
}

// BeginLoginResult contains the result of beginning a federated login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
	// From is the sanitized page to return to after sign-in.
	From string
}

// BeginLogin starts federated sign-in for a session.
func (s *AuthService) BeginLogin(ctx context.Context, a Authenticator, from string) (*BeginLoginResult, error) {
	if s.callbackURL == "" {
		return nil, errors.New("callback URL is not configured")
	}
	authURL, state, nonce, err := a.BeginFederatedSignIn(ctx, s.callbackURL)
	if err != nil {
		return nil, fmt.Errorf("begin federated sign-in: %w", err)
	}
	return &BeginLoginResult{
		AuthURL: authURL,
		State:   state,
		Nonce:   nonce,
		From:    SafeRedirect(from),
	}, nil
}

// CompleteLoginInput groups parameters for completing a federated login flow.
type CompleteLoginInput struct {
	Code  string
	State string
	// ExpectedState is the state issued by BeginLogin, carried by the browser in a cookie.
	ExpectedState string
	Nonce         string
}

// CompleteLogin finishes federated sign-in for a session.
func (s *AuthService) CompleteLogin(ctx context.Context, a Authenticator, input CompleteLoginInput) error {
	if input.Code == "" {
		return domainauth.NewProviderError(domainauth.CodeInvalidCredential, "authorization code is required")
	}
	if input.State == "" || input.State != input.ExpectedState {
		return domainauth.NewProviderError(domainauth.CodeInvalidFederatedState, "invalid or missing state parameter")
	}
	if input.Nonce == "" {
		return domainauth.NewProviderError(domainauth.CodeInvalidFederatedState, "missing nonce parameter")
	}
	err := a.CompleteFederatedSignIn(ctx, ports.ExchangeInput{
		Code:  input.Code,
		State: input.State,
		Nonce: input.Nonce,
	})
	if err != nil {
		return fmt.Errorf("complete federated sign-in: %w", err)
	}
	return nil
}

// Credentials are an email and password pair from a sign-in or registration form.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c Credentials) normalized() Credentials {
	c.Email = strings.TrimSpace(c.Email)
	return c
}

func (c Credentials) validate() error {
	if c.Email == "" || !strings.Contains(c.Email, "@") {
		return domainauth.NewProviderError(domainauth.CodeInvalidEmail, "a valid email is required")
	}
	if c.Password == "" {
		return domainauth.NewProviderError(domainauth.CodeInvalidCredential, "password is required")
	}
	return nil
}

// Login signs a session in with email and password.
func (s *AuthService) Login(ctx context.Context, a Authenticator, creds Credentials) error {
	creds = creds.normalized()
	if err := creds.validate(); err != nil {
		return err
	}
	if err := a.SignInWithPassword(ctx, creds.Email, creds.Password); err != nil {
		s.logger.InfoContext(ctx, "password sign-in rejected", "code", domainauth.ProviderErrorCode(err))
		return fmt.Errorf("sign in: %w", err)
	}
	return nil
}

// Register creates an account and signs the session in as it.
func (s *AuthService) Register(ctx context.Context, a Authenticator, creds Credentials) error {
	creds = creds.normalized()
	if err := creds.validate(); err != nil {
		return err
	}
	if err := a.RegisterWithPassword(ctx, creds.Email, creds.Password); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// UpdateProfile changes the signed-in identity's display name or photo.
func (s *AuthService) UpdateProfile(ctx context.Context, a Authenticator, update domainauth.ProfileUpdate) error {
	if update.PhotoURL != nil && *update.PhotoURL != "" {
		u, err := url.Parse(*update.PhotoURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return apperrors.Validation("photo URL must be an absolute http(s) URL")
		}
	}
	if err := a.UpdateProfile(ctx, update); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// Logout signs the session out.
func (s *AuthService) Logout(ctx context.Context, a Authenticator) error {
	if err := a.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// SafeRedirect keeps redirects same-origin: it returns candidate when it is a relative path
// starting with "/", and "/" otherwise.
func SafeRedirect(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(candidate, "//") {
		return "/"
	}
	return candidate
}
