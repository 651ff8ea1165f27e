// Package devauth is an in-process identity provider for local development and tests.
//
// A Directory holds bcrypt-hashed accounts and issues short-lived HS256 credentials.
// Provider hands out one Client per application session; the federated flow
// short-circuits to the local callback.
package devauth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/target/tourbook/internal/domain/auth"
)

const minPasswordLength = 6

// Claims are the credential claims.
type Claims struct {
	Email       string `json:"email"`
	DisplayName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// User seeds one account.
type User struct {
	Email       string
	Password    string
	DisplayName string
}

// ParseUsers parses "email:password:display name" entries. The display name is optional.
func ParseUsers(entries []string) ([]User, error) {
	users := make([]User, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("dev auth: invalid user entry %q (want email:password[:name])", entry)
		}
		u := User{Email: strings.TrimSpace(parts[0]), Password: parts[1]}
		if len(parts) == 3 {
			u.DisplayName = strings.TrimSpace(parts[2])
		}
		users = append(users, u)
	}
	return users, nil
}

// Config controls the directory.
type Config struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration // default 15m when zero
	Users    []User
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
	Now  func() time.Time
}

type account struct {
	hash     []byte
	identity domainauth.Identity
}

// Directory is the shared account store and credential issuer.
type Directory struct {
	secret []byte
	issuer string
	ttl    time.Duration
	cost   int
	now    func() time.Time

	mu       sync.RWMutex
	accounts map[string]*account
	order    []string
}

// NewDirectory validates cfg and seeds the configured users.
func NewDirectory(cfg Config) (*Directory, error) {
	if cfg.Secret == "" {
		return nil, errors.New("dev auth: secret is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	cost := cfg.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "tourbook-dev"
	}
	d := &Directory{
		secret:   []byte(cfg.Secret),
		issuer:   issuer,
		ttl:      ttl,
		cost:     cost,
		now:      now,
		accounts: make(map[string]*account),
	}
	for _, u := range cfg.Users {
		if _, err := d.add(u.Email, u.Password, u.DisplayName); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func key(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (d *Directory) add(email, password, displayName string) (domainauth.Identity, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return domainauth.Identity{}, domainauth.NewProviderError(domainauth.CodeInvalidEmail, "malformed email")
	}
	if len(password) < minPasswordLength {
		return domainauth.Identity{}, domainauth.NewProviderError(domainauth.CodeWeakPassword,
			fmt.Sprintf("password should be at least %d characters", minPasswordLength))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return domainauth.Identity{}, domainauth.NewProviderError(domainauth.CodeWeakPassword, "password is too long")
		}
		return domainauth.Identity{}, fmt.Errorf("hash password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	k := key(email)
	if _, exists := d.accounts[k]; exists {
		return domainauth.Identity{}, domainauth.NewProviderError(domainauth.CodeEmailAlreadyInUse, "email already registered")
	}
	id := domainauth.Identity{
		UID:           uuid.NewSHA1(uuid.NameSpaceURL, []byte("tourbook:"+k)).String(),
		Email:         email,
		DisplayName:   displayName,
		EmailVerified: true,
	}
	d.accounts[k] = &account{hash: hash, identity: id}
	d.order = append(d.order, k)
	return id, nil
}

// Register creates an account without a display name or photo.
func (d *Directory) Register(email, password string) (domainauth.Identity, error) {
	id, err := d.add(email, password, "")
	if err != nil {
		return domainauth.Identity{}, err
	}
	return id, nil
}

// Authenticate checks email and password.
func (d *Directory) Authenticate(email, password string) (domainauth.Identity, error) {
	d.mu.RLock()
	acct, ok := d.accounts[key(email)]
	d.mu.RUnlock()
	if !ok {
		return domainauth.Identity{}, domainauth.NewProviderError(domainauth.CodeUserNotFound, "no account for "+email)
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return domainauth.Identity{}, domainauth.NewProviderError(domainauth.CodeInvalidCredential, "wrong password")
	}
	return d.Lookup(email)
}

// Lookup returns the stored identity for email.
func (d *Directory) Lookup(email string) (domainauth.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acct, ok := d.accounts[key(email)]
	if !ok {
		return domainauth.Identity{}, domainauth.NewProviderError(domainauth.CodeUserNotFound, "no account for "+email)
	}
	return acct.identity, nil
}

// Default returns the first seeded identity. The federated shortcut signs in as it.
func (d *Directory) Default() (domainauth.Identity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.order) == 0 {
		return domainauth.Identity{}, false
	}
	return d.accounts[d.order[0]].identity, true
}

// Update applies a profile change to the stored identity and returns the result.
func (d *Directory) Update(email string, update domainauth.ProfileUpdate) (domainauth.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	acct, ok := d.accounts[key(email)]
	if !ok {
		return domainauth.Identity{}, domainauth.NewProviderError(domainauth.CodeUserNotFound, "no account for "+email)
	}
	if update.DisplayName != nil {
		acct.identity.DisplayName = *update.DisplayName
	}
	if update.PhotoURL != nil {
		acct.identity.PhotoURL = *update.PhotoURL
	}
	return acct.identity, nil
}

// Issue signs a credential for id.
func (d *Directory) Issue(id domainauth.Identity) (string, error) {
	now := d.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:       id.Email,
		DisplayName: id.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UID,
			Issuer:    d.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d.ttl)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(d.secret)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a credential issued by this directory.
func (d *Directory) Verify(credential string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return d.secret, nil
	}, jwt.WithIssuer(d.issuer), jwt.WithTimeFunc(d.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domainauth.NewProviderError(domainauth.CodeInvalidCredential, "credential has expired")
		}
		return nil, domainauth.NewProviderError(domainauth.CodeInvalidCredential, "invalid credential")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, domainauth.NewProviderError(domainauth.CodeInvalidCredential, "invalid credential claims")
	}
	return claims, nil
}
