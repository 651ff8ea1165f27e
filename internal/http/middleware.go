package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/target/tourbook/internal/adapters/navigation"
	"github.com/target/tourbook/internal/service"
)

// DefaultSessionCookie names the browser session cookie when none is configured.
const DefaultSessionCookie = "tb_session"

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			}
			if loc := ww.Header().Get("Location"); loc != "" && ww.status >= 300 && ww.status < 400 {
				attrs = append(attrs, slog.String("location", loc))
			}
			logger.InfoContext(r.Context(), "http", attrs...)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *respWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.ErrorContext(r.Context(), "panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// BindNavigator binds a navigator to each response. The first navigation during the request
// (route guard or gateway) becomes a redirect and later handler writes are dropped.
func BindNavigator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nav := navigation.NewResponse(w, r)
		ctx := navigation.WithNavigator(r.Context(), nav)
		next.ServeHTTP(nav.Writer(), r.WithContext(ctx))
	})
}

// SessionOptions configures the Sessions middleware.
type SessionOptions struct {
	Manager      *service.SessionManager
	CookieName   string
	CookieDomain string
	Logger       *slog.Logger
}

type sessionKey struct{}

// Sessions resolves the browser session cookie to a live session. Ids the manager does not
// know are never adopted: the request gets a session under a fresh server-generated id.
func Sessions(opts SessionOptions) func(http.Handler) http.Handler {
	cookie := sessionCookie{name: opts.CookieName, domain: opts.CookieDomain}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sess *service.Session
			if c, err := r.Cookie(cookie.cookieName()); err == nil && service.ValidID(c.Value) {
				sess, _ = opts.Manager.Lookup(c.Value)
			}
			if sess == nil {
				var err error
				sess, err = opts.Manager.Open(r.Context())
				if err != nil {
					logger.ErrorContext(r.Context(), "open session failed", "error", err)
					WriteError(w, ErrorParams{
						Code:    http.StatusServiceUnavailable,
						ErrCode: "session_unavailable",
						Err:     errors.New("session unavailable"),
					})
					return
				}
				cookie.set(w, r, sess.ID)
			}
			ctx := context.WithValue(r.Context(), sessionKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionCookie writes the browser session cookie.
type sessionCookie struct {
	name   string
	domain string
}

func (c sessionCookie) cookieName() string {
	if c.name == "" {
		return DefaultSessionCookie
	}
	return c.name
}

func (c sessionCookie) set(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName(),
		Value:    id,
		Path:     "/",
		Domain:   c.domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionFromContext returns the browser session bound by Sessions.
func SessionFromContext(ctx context.Context) (*service.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*service.Session)
	return s, ok && s != nil
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
