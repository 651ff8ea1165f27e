// Package httpx is the web server surface: routing, middleware, and handlers for sign-in,
// guarded pages, and the backend resources they show.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/guard"
	"github.com/target/tourbook/internal/observability/metrics"
	"github.com/target/tourbook/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Sessions *service.SessionManager
	Auth     *service.AuthService
	Bookings *service.BookingService

	Paths          guard.Paths
	ResolveTimeout time.Duration
	CookieName     string
	CookieDomain   string

	// MetricsHandler serves MetricsPath. Nil disables the route.
	MetricsHandler http.Handler
	MetricsPath    string
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) (http.Handler, error) {
	if services.Sessions == nil || services.Auth == nil || services.Bookings == nil {
		return nil, errors.New("sessions, auth and booking services are required")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	paths := services.Paths
	if paths.Login == "" {
		paths.Login = guard.DefaultLoginPath
	}
	if paths.Unauthorized == "" {
		paths.Unauthorized = guard.DefaultUnauthorizedPath
	}
	timeout := services.ResolveTimeout
	if timeout <= 0 {
		timeout = guard.DefaultResolveTimeout
	}

	pages, err := NewPages(logger)
	if err != nil {
		return nil, err
	}
	routeGuard := guard.NewMiddleware(guard.Options{
		Subject:        sessionSubject,
		ResolveTimeout: timeout,
		Paths:          paths,
		Logger:         logger,
		Metrics:        services.Metrics,
	})
	authHandlers := &AuthHandlers{
		Svc:           services.Auth,
		Sessions:      services.Sessions,
		Pages:         pages,
		Paths:         paths,
		CookieName:    services.CookieName,
		CookieDomain:  services.CookieDomain,
		SettleTimeout: timeout,
		Logger:        logger,
	}
	bookingHandlers := &BookingHandlers{Svc: services.Bookings, Pages: pages, Logger: logger}

	r := chi.NewRouter()
	r.Use(Recover(logger), Logging(logger), BindNavigator)

	health := healthHandler(services.Sessions.Len)
	r.Get("/healthz", health)
	r.Head("/healthz", health)
	if services.MetricsHandler != nil {
		path := services.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, services.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(CSRFProtection(CSRFConfig{CookieDomain: services.CookieDomain}))
		r.Use(Sessions(SessionOptions{
			Manager:      services.Sessions,
			CookieName:   services.CookieName,
			CookieDomain: services.CookieDomain,
			Logger:       logger,
		}))

		r.Get(paths.Login, authHandlers.LoginPage)
		r.Post(paths.Login, authHandlers.Login)
		r.Get("/login/federated", authHandlers.LoginFederated)
		r.Get("/auth/callback", authHandlers.Callback)
		r.Post("/register", authHandlers.Register)
		r.Post("/logout", authHandlers.Logout)
		r.Get(paths.Unauthorized, authHandlers.Unauthorized)
		r.Get("/auth/status", authHandlers.Status)
		r.Get("/", func(w http.ResponseWriter, r *http.Request) { navigate(w, r, "/dashboard") })

		r.Group(func(r chi.Router) {
			r.Use(routeGuard.RequireIdentity)
			r.Get("/package_details/{id}", bookingHandlers.PackageDetails)
			r.Get("/dashboard", bookingHandlers.Dashboard)
			r.Get("/bookings", bookingHandlers.ListBookings)
			r.Post("/bookings", bookingHandlers.CreateBooking)
			r.Delete("/bookings/{id}", bookingHandlers.CancelBooking)
			r.Post("/profile", authHandlers.Profile)
		})

		r.Group(func(r chi.Router) {
			r.Use(routeGuard.RequireRole(domainauth.RoleAdmin))
			r.Get("/admin/users", bookingHandlers.ListUsers)
			r.Post("/admin/users/{email}/promote", bookingHandlers.PromoteUser)
		})
	})

	return r, nil
}

// sessionSubject hands the route guard the request's session.
func sessionSubject(r *http.Request) guard.Subject {
	if sess, ok := SessionFromContext(r.Context()); ok {
		return sess
	}
	return nil
}
