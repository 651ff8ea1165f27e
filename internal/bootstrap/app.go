package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/tourbook/config"
	"github.com/target/tourbook/internal/adapters/navigation"
	redisadapter "github.com/target/tourbook/internal/adapters/redis"
	"github.com/target/tourbook/internal/gateway"
	"github.com/target/tourbook/internal/guard"
	httpx "github.com/target/tourbook/internal/http"
	"github.com/target/tourbook/internal/observability/metrics"
	"github.com/target/tourbook/internal/ports"
	"github.com/target/tourbook/internal/roles"
	"github.com/target/tourbook/internal/service"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
	minJanitorTick    = time.Second
)

// AppOptions groups dependencies for NewApp.
type AppOptions struct {
	Config   config.AppConfig
	Provider ports.IdentityProvider // Required
	// Redis backs durable credential storage. Ignored when Credentials is set.
	Redis       redis.UniversalClient
	Credentials service.CredentialStoreFactory
	// Registry receives the collectors; a fresh registry is created when nil.
	Registry *prometheus.Registry
	// BackendClient overrides the backend HTTP client (tests).
	BackendClient *http.Client
	Logger        *slog.Logger
}

// App is the wired tourbook server.
type App struct {
	cfg      config.AppConfig
	handler  http.Handler
	sessions *service.SessionManager
	reaper   *service.SessionReaper
	roles    *roles.Resolver
	logger   *slog.Logger
}

// NewApp wires the gateway, role resolver, session manager, services and router.
func NewApp(opts AppOptions) (*App, error) {
	if opts.Provider == nil {
		return nil, errors.New("identity provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config

	creds, err := credentialFactory(opts, cfg)
	if err != nil {
		return nil, err
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m := metrics.New(reg)

	backendClient := opts.BackendClient
	if backendClient == nil {
		backendClient = &http.Client{Timeout: cfg.Backend.Timeout}
	}
	gw, err := gateway.New(gateway.Options{
		BaseURL:          cfg.Backend.BaseURL,
		Navigator:        navigation.Contextual{},
		LoginPath:        cfg.Auth.LoginPath,
		UnauthorizedPath: cfg.Auth.UnauthorizedPath,
		HTTPClient:       backendClient,
		Logger:           logger,
		Metrics:          m,
	})
	if err != nil {
		return nil, fmt.Errorf("build gateway: %w", err)
	}

	resolver, err := roles.New(roles.Options{
		LookupPath: cfg.Roles.LookupPath,
		Expression: cfg.Roles.Expression,
		StaleTime:  cfg.Roles.StaleTime,
		CacheTime:  cfg.Roles.CacheTime,
		Logger:     logger,
		Metrics:    m,
	})
	if err != nil {
		return nil, fmt.Errorf("build role resolver: %w", err)
	}

	sessions, err := service.NewSessionManager(service.SessionManagerOptions{
		Provider:    opts.Provider,
		Credentials: creds,
		Gateway:     gw,
		Roles:       resolver,
		IdleTTL:     cfg.Session.IdleTTL,
		Logger:      logger,
		Metrics:     m,
	})
	if err != nil {
		return nil, fmt.Errorf("build session manager: %w", err)
	}
	reaper, err := service.NewSessionReaper(service.SessionReaperOptions{
		Manager:  sessions,
		Interval: cfg.Session.ReapInterval,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build session reaper: %w", err)
	}
	bookings, err := service.NewBookingService(service.BookingServiceOptions{Roles: resolver, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("build booking service: %w", err)
	}

	routerServices := httpx.RouterServices{
		Sessions: sessions,
		Auth: service.NewAuthService(service.AuthServiceOptions{
			CallbackURL: callbackURL(cfg),
			Logger:      logger,
		}),
		Bookings: bookings,
		Paths: guard.Paths{
			Login:        cfg.Auth.LoginPath,
			Unauthorized: cfg.Auth.UnauthorizedPath,
		},
		ResolveTimeout: cfg.Guard.ResolveTimeout,
		CookieName:     cfg.Session.CookieName,
		CookieDomain:   cfg.HTTP.CookieDomain,
		Metrics:        m,
		Logger:         logger,
	}
	if cfg.Observability.MetricsEnabled {
		routerServices.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		routerServices.MetricsPath = cfg.Observability.MetricsPath
	}
	handler, err := httpx.NewRouter(routerServices)
	if err != nil {
		sessions.Close(context.Background())
		return nil, fmt.Errorf("build router: %w", err)
	}

	return &App{
		cfg:      cfg,
		handler:  handler,
		sessions: sessions,
		reaper:   reaper,
		roles:    resolver,
		logger:   logger,
	}, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.HTTP.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln together with the session reaper and the role cache janitor.
// When ctx is cancelled the server drains, every session is disposed, and Serve returns nil.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(a.logger.Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.InfoContext(gctx, "starting HTTP server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.reaper.Run(gctx)
	})
	g.Go(func() error {
		a.roles.RunJanitor(gctx, janitorInterval(a.cfg.Roles.CacheTime))
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down services...")
		return a.shutdown(server)
	})
	return g.Wait()
}

func (a *App) shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	a.sessions.Close(ctx)
	a.logger.InfoContext(ctx, "shutdown complete")
	return errors.Join(errs...)
}

func credentialFactory(opts AppOptions, cfg config.AppConfig) (service.CredentialStoreFactory, error) {
	if opts.Credentials != nil {
		return opts.Credentials, nil
	}
	if opts.Redis == nil {
		return nil, errors.New("redis client or credential store factory is required")
	}
	stores := redisadapter.NewCredentialStores(opts.Redis, cfg.Redis.KeyPrefix, cfg.Session.CredentialTTL)
	return func(sessionID string) ports.CredentialStore { return stores.For(sessionID) }, nil
}

// callbackURL is where the provider returns after federated sign-in.
func callbackURL(cfg config.AppConfig) string {
	if cfg.Auth.Mode == config.AuthModeMock || cfg.Auth.OAuth.RedirectURL == "" {
		return cfg.HTTP.BaseURL + "/auth/callback"
	}
	return cfg.Auth.OAuth.RedirectURL
}

func janitorInterval(cacheTime time.Duration) time.Duration {
	if d := cacheTime / 2; d > minJanitorTick {
		return d
	}
	return minJanitorTick
}
