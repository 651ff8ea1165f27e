// Package roles maps a signed-in identity to a coarse role by asking the backend.
package roles

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jmespath-community/go-jmespath"

	"github.com/target/tourbook/internal/adapters/navigation"
	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/gateway"
	"github.com/target/tourbook/internal/observability/metrics"
	"github.com/target/tourbook/internal/querycache"
)

// fallbackExpression is tried when the configured expression finds nothing, for backends
// that wrap the payload in an envelope.
const fallbackExpression = "data.role"

// Options configures a Resolver.
type Options struct {
	// LookupPath is the role-lookup endpoint; the email is sent as ?email=.
	LookupPath string
	// Expression is a JMESPath expression selecting the role string.
	Expression string
	StaleTime  time.Duration
	CacheTime  time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Resolver resolves and caches roles by email. One Resolver is shared by all sessions;
// each lookup goes through the caller's own gateway so it carries that caller's credential.
type Resolver struct {
	lookupPath  string
	expressions []string
	cache       *querycache.Cache[domainauth.Role]
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// New validates the expression and builds a Resolver.
func New(opts Options) (*Resolver, error) {
	expr := strings.TrimSpace(opts.Expression)
	if expr == "" {
		expr = "role"
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return nil, fmt.Errorf("roles: invalid expression %q: %w", expr, err)
	}
	exprs := []string{expr}
	if expr != fallbackExpression {
		exprs = append(exprs, fallbackExpression)
	}
	path := opts.LookupPath
	if path == "" {
		path = "/user-info"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "role_resolver")
	return &Resolver{
		lookupPath:  path,
		expressions: exprs,
		cache: querycache.New[domainauth.Role](querycache.Options{
			StaleTime: opts.StaleTime,
			CacheTime: opts.CacheTime,
			Now:       opts.Now,
			Logger:    logger,
			Detach:    navigation.Detach,
		}),
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Resolve returns the role for the snapshot's identity. While the session is loading or has
// no identity with an email it performs no fetch and reports an unresolved state.
// Lookup failures resolve to customer and are not cached.
func (r *Resolver) Resolve(ctx context.Context, gw *gateway.Client, snap domainauth.Snapshot) domainauth.RoleState {
	if snap.Loading || !snap.Identity.HasEmail() {
		return domainauth.RoleState{}
	}
	email := normalize(snap.Identity.Email)

	role, src, err := r.cache.Get(ctx, email, r.fetcher(gw))
	if err != nil {
		r.logger.InfoContext(ctx, "role lookup failed; defaulting to customer", "error", err)
		r.metrics.IncRoleResolution(metrics.RoleSourceDefault, string(domainauth.RoleCustomer))
		return domainauth.RoleState{Role: domainauth.RoleCustomer, Resolved: true}
	}
	source := metrics.RoleSourceCache
	if src == querycache.SourceFetch {
		source = metrics.RoleSourceFetch
	}
	r.metrics.IncRoleResolution(source, string(role))
	return domainauth.RoleState{Role: role, Resolved: true}
}

// Invalidate forgets the cached role for email.
func (r *Resolver) Invalidate(email string) {
	r.cache.Invalidate(normalize(email))
}

// Refetch looks the role up now, bypassing the cache.
func (r *Resolver) Refetch(ctx context.Context, gw *gateway.Client, email string) domainauth.RoleState {
	key := normalize(email)
	if key == "" {
		return domainauth.RoleState{}
	}
	role, err := r.cache.Refetch(ctx, key, r.fetcher(gw))
	if err != nil {
		r.metrics.IncRoleResolution(metrics.RoleSourceDefault, string(domainauth.RoleCustomer))
		return domainauth.RoleState{Role: domainauth.RoleCustomer, Resolved: true}
	}
	r.metrics.IncRoleResolution(metrics.RoleSourceFetch, string(role))
	return domainauth.RoleState{Role: role, Resolved: true}
}

// RunJanitor evicts expired roles until ctx is done.
func (r *Resolver) RunJanitor(ctx context.Context, interval time.Duration) {
	r.cache.RunJanitor(ctx, interval)
}

func (r *Resolver) fetcher(gw *gateway.Client) querycache.Fetcher[domainauth.Role] {
	return func(ctx context.Context, email string) (domainauth.Role, error) {
		res := gateway.Get[any](ctx, gw, r.lookupPath, url.Values{"email": {email}})
		payload, ok := res.Value()
		if !ok {
			return "", res.Err()
		}
		return r.extract(payload), nil
	}
}

// extract applies the expressions in order; anything but an explicit "admin" is customer.
func (r *Resolver) extract(payload any) domainauth.Role {
	if payload == nil {
		return domainauth.RoleCustomer
	}
	for _, expr := range r.expressions {
		v, err := jmespath.Search(expr, payload)
		if err != nil {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			return domainauth.ParseRole(s)
		}
	}
	return domainauth.RoleCustomer
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
