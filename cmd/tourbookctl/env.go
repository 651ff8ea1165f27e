package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/target/tourbook/config"
	"github.com/target/tourbook/internal/adapters/credstore"
	"github.com/target/tourbook/internal/adapters/navigation"
	"github.com/target/tourbook/internal/bootstrap"
	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/gateway"
	"github.com/target/tourbook/internal/guard"
	"github.com/target/tourbook/internal/ports"
	"github.com/target/tourbook/internal/roles"
	"github.com/target/tourbook/internal/session"
)

type globalFlags struct {
	credentialFile string
	email          string
	password       string
	verbose        bool
}

// screens maps site paths to the command that shows the same screen.
var screens = map[string]string{
	"/login":        "tourbookctl login",
	"/unauthorized": "tourbookctl whoami",
	"/dashboard":    "tourbookctl get /dashboard",
}

// cliEnv is the process-wide session: one Session Store, its gateway and the role resolver.
type cliEnv struct {
	cfg     config.AppConfig
	store   *session.Store
	creds   *credstore.FileStore
	gateway *gateway.Client
	roles   *roles.Resolver
	nav     *navigation.CLI
	paths   guard.Paths
	out     io.Writer
	logger  *slog.Logger
}

// Role satisfies guard.Subject.
func (e *cliEnv) Role(ctx context.Context, snap domainauth.Snapshot) domainauth.RoleState {
	return e.roles.Resolve(ctx, e.gateway, snap)
}

func (e *cliEnv) Snapshot() domainauth.Snapshot { return e.store.Snapshot() }

func (e *cliEnv) Watch() (<-chan domainauth.Snapshot, func()) { return e.store.Watch() }

// settle waits for a pending sign-in or sign-out to be reflected in the snapshot.
func (e *cliEnv) settle(ctx context.Context) domainauth.Snapshot {
	return guard.Settle(ctx, e, e.cfg.Guard.ResolveTimeout)
}

// envHolder opens the session lazily so --help and flag errors never touch the provider.
type envHolder struct {
	opts  rootOptions
	flags *globalFlags

	mu  sync.Mutex
	env *cliEnv
}

func (h *envHolder) get(ctx context.Context) (*cliEnv, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.env != nil {
		return h.env, nil
	}
	env, err := openEnv(ctx, h.opts, h.flags)
	if err != nil {
		return nil, err
	}
	h.env = env
	return env, nil
}

func (h *envHolder) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.env != nil {
		h.env.store.Dispose()
		h.env = nil
	}
}

func openEnv(ctx context.Context, opts rootOptions, flags *globalFlags) (*cliEnv, error) {
	level := slog.LevelWarn
	if flags.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(opts.Err, &slog.HandlerOptions{Level: level}))

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return nil, err
	}

	provider := opts.Provider
	if provider == nil {
		provider, err = bootstrap.BuildIdentityProvider(ctx, bootstrap.ProviderConfig{
			Auth:       cfg.Auth,
			HTTPClient: &http.Client{Timeout: cfg.Backend.Timeout},
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
	}

	path := flags.credentialFile
	if path == "" {
		if path, err = credstore.DefaultFilePath(); err != nil {
			return nil, err
		}
	}
	creds := credstore.NewFileStore(path)

	store, err := session.New(session.Options{
		Client:      provider.NewClient(),
		Credentials: creds,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}

	nav := navigation.NewCLI(opts.Out, screens)
	gw, err := gateway.New(gateway.Options{
		BaseURL:          cfg.Backend.BaseURL,
		Credentials:      store,
		Navigator:        nav,
		LoginPath:        cfg.Auth.LoginPath,
		UnauthorizedPath: cfg.Auth.UnauthorizedPath,
		HTTPClient:       &http.Client{Timeout: cfg.Backend.Timeout},
		Logger:           logger,
	})
	if err != nil {
		store.Dispose()
		return nil, err
	}
	resolver, err := roles.New(roles.Options{
		LookupPath: cfg.Roles.LookupPath,
		Expression: cfg.Roles.Expression,
		StaleTime:  cfg.Roles.StaleTime,
		CacheTime:  cfg.Roles.CacheTime,
		Logger:     logger,
	})
	if err != nil {
		store.Dispose()
		return nil, err
	}

	env := &cliEnv{
		cfg:     cfg,
		store:   store,
		creds:   creds,
		gateway: gw,
		roles:   resolver,
		nav:     nav,
		paths:   guard.Paths{Login: cfg.Auth.LoginPath, Unauthorized: cfg.Auth.UnauthorizedPath},
		out:     opts.Out,
		logger:  logger,
	}
	if _, err := store.WaitResolved(ctx); err != nil {
		store.Dispose()
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	return env, nil
}

// ensureSignedIn signs in with the --email/--password flags when the session has no user.
func (e *cliEnv) ensureSignedIn(ctx context.Context, flags *globalFlags) (domainauth.Snapshot, error) {
	snap := e.settle(ctx)
	if snap.Authenticated() || flags.email == "" || flags.password == "" {
		return snap, nil
	}
	if err := e.store.SignInWithPassword(ctx, flags.email, flags.password); err != nil {
		return snap, err
	}
	return e.settle(ctx), nil
}

// require runs the guard for path and navigates when the user may not continue.
func (e *cliEnv) require(ctx context.Context, snap domainauth.Snapshot, required domainauth.Role, path string) (bool, error) {
	var d domainauth.Decision
	if required == "" {
		d = e.paths.Evaluate(snap, path)
	} else {
		d = e.paths.EvaluateRole(snap, e.Role(ctx, snap), required, path)
	}
	switch d.Kind {
	case domainauth.DecisionAllow:
		return true, nil
	case domainauth.DecisionPending:
		return false, errors.New("session is still loading; try again")
	default:
		e.nav.Navigate(ctx, ports.Navigation{To: d.To, From: d.From, Replace: true})
		return false, nil
	}
}
