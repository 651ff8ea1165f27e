package guard

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/target/tourbook/internal/adapters/navigation"
	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/observability/metrics"
	"github.com/target/tourbook/internal/ports"
)

// DefaultResolveTimeout bounds how long a request waits for a loading session.
const DefaultResolveTimeout = 2 * time.Second

// retryAfterSeconds is advertised on the loading placeholder.
const retryAfterSeconds = 1

// Options configures Middleware.
type Options struct {
	// Subject returns the session for a request, or nil when the request has none.
	Subject        func(*http.Request) Subject
	ResolveTimeout time.Duration
	Paths          Paths
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// Middleware guards HTTP routes.
type Middleware struct {
	subject func(*http.Request) Subject
	timeout time.Duration
	paths   Paths
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewMiddleware builds a Middleware. A nil Subject func treats every request as signed out.
func NewMiddleware(opts Options) *Middleware {
	subject := opts.Subject
	if subject == nil {
		subject = func(*http.Request) Subject { return nil }
	}
	timeout := opts.ResolveTimeout
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		subject: subject,
		timeout: timeout,
		paths:   opts.Paths.withDefaults(),
		logger:  logger.With("component", "route_guard"),
		metrics: opts.Metrics,
	}
}

// RequireIdentity lets the request through only for a signed-in identity with an email.
func (m *Middleware) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.RequestURI()
		sub := m.subject(r)
		if sub == nil {
			m.apply(w, r, m.paths.Evaluate(domainauth.Snapshot{}, path), next)
			return
		}
		snap := Settle(r.Context(), sub, m.timeout)
		m.apply(w, r, m.paths.Evaluate(snap, path), next)
	})
}

// RequireRole lets the request through only when the session's resolved role satisfies required.
func (m *Middleware) RequireRole(required domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.RequestURI()
			sub := m.subject(r)
			if sub == nil {
				m.apply(w, r, m.paths.Evaluate(domainauth.Snapshot{}, path), next)
				return
			}
			snap := Settle(r.Context(), sub, m.timeout)
			var role domainauth.RoleState
			if snap.Authenticated() {
				ctx, cancel := context.WithTimeout(r.Context(), m.timeout)
				role = sub.Role(ctx, snap)
				cancel()
			}
			m.apply(w, r, m.paths.EvaluateRole(snap, role, required, path), next)
		})
	}
}

func (m *Middleware) apply(w http.ResponseWriter, r *http.Request, d domainauth.Decision, next http.Handler) {
	m.metrics.IncGuardDecision(string(d.Kind))
	switch d.Kind {
	case domainauth.DecisionAllow:
		next.ServeHTTP(w, r)
	case domainauth.DecisionPending:
		m.logger.DebugContext(r.Context(), "session still resolving", "path", r.URL.Path)
		writePending(w, r)
	default:
		navigatorFor(w, r).Navigate(r.Context(), ports.Navigation{To: d.To, From: d.From, Replace: true})
	}
}

// navigatorFor prefers the navigator already bound to the request so the handler's
// guarded writer sees the redirect.
func navigatorFor(w http.ResponseWriter, r *http.Request) ports.Navigator {
	if nav, ok := navigation.FromContext(r.Context()); ok {
		return nav
	}
	return navigation.NewResponse(w, r)
}

const pendingHTML = `<!doctype html>
<html><head><meta charset="utf-8"><title>Loading</title></head>
<body><p>Checking your session&hellip;</p></body></html>
`

func writePending(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Cache-Control", "no-store")
	h.Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	h.Set("Refresh", strconv.Itoa(retryAfterSeconds))
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		h.Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"loading"}` + "\n"))
		return
	}
	h.Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(pendingHTML))
}
