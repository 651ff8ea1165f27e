package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/domain/booking"
	apperrors "github.com/target/tourbook/internal/errors"
	"github.com/target/tourbook/internal/gateway"
)

// RoleInvalidator forgets cached roles.
type RoleInvalidator interface {
	Invalidate(email string)
}

// BookingServiceOptions groups dependencies for BookingService.
type BookingServiceOptions struct {
	Roles  RoleInvalidator // Required: promotion invalidates the promoted user's cached role
	Logger *slog.Logger
}

// BookingService reads and writes backend resources through a session's gateway.
// Every call takes the caller's gateway so the request carries the caller's credential.
type BookingService struct {
	roles  RoleInvalidator
	logger *slog.Logger
}

// NewBookingService constructs a BookingService.
func NewBookingService(opts BookingServiceOptions) (*BookingService, error) {
	if opts.Roles == nil {
		return nil, errors.New("role invalidator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingService{roles: opts.Roles, logger: logger.With("component", "booking_service")}, nil
}

// ListPackages returns the package catalogue.
func (s *BookingService) ListPackages(ctx context.Context, gw *gateway.Client) gateway.Result[[]booking.Package] {
	return gateway.Unwrap(gateway.Get[gateway.Envelope[[]booking.Package]](ctx, gw, "/packages", nil))
}

// GetPackage returns one package.
func (s *BookingService) GetPackage(ctx context.Context, gw *gateway.Client, id string) gateway.Result[booking.Package] {
	if strings.TrimSpace(id) == "" {
		return gateway.Fail[booking.Package](apperrors.Validation("package id is required"))
	}
	return gateway.Unwrap(gateway.Get[gateway.Envelope[booking.Package]](ctx, gw, "/packages/"+url.PathEscape(id), nil))
}

// ListBookings returns the bookings of email.
func (s *BookingService) ListBookings(ctx context.Context, gw *gateway.Client, email string) gateway.Result[[]booking.Booking] {
	return gateway.Unwrap(gateway.Get[gateway.Envelope[[]booking.Booking]](ctx, gw, "/bookings", url.Values{"email": {email}}))
}

// CreateBooking books a package.
func (s *BookingService) CreateBooking(ctx context.Context, gw *gateway.Client, req booking.BookingRequest) gateway.Result[booking.Booking] {
	if err := req.Validate(); err != nil {
		return gateway.Fail[booking.Booking](apperrors.Validation(err.Error()))
	}
	return gateway.Unwrap(gateway.Post[gateway.Envelope[booking.Booking]](ctx, gw, "/bookings", req))
}

// CancelBooking deletes a booking.
func (s *BookingService) CancelBooking(ctx context.Context, gw *gateway.Client, id string) gateway.Result[struct{}] {
	if strings.TrimSpace(id) == "" {
		return gateway.Fail[struct{}](apperrors.Validation("booking id is required"))
	}
	return gateway.Delete[struct{}](ctx, gw, "/bookings/"+url.PathEscape(id))
}

// ListUsers returns all backend users. The backend answers 403 for non-admins.
func (s *BookingService) ListUsers(ctx context.Context, gw *gateway.Client) gateway.Result[[]booking.User] {
	return gateway.Unwrap(gateway.Get[gateway.Envelope[[]booking.User]](ctx, gw, "/users", nil))
}

// ListTransactions returns payment records. Admin only.
func (s *BookingService) ListTransactions(ctx context.Context, gw *gateway.Client) gateway.Result[[]booking.Transaction] {
	return gateway.Unwrap(gateway.Get[gateway.Envelope[[]booking.Transaction]](ctx, gw, "/transactions", nil))
}

// PromoteUser grants email the admin role and forgets its cached role.
func (s *BookingService) PromoteUser(ctx context.Context, gw *gateway.Client, email string) gateway.Result[booking.User] {
	email = strings.TrimSpace(email)
	if email == "" {
		return gateway.Fail[booking.User](apperrors.Validation("email is required"))
	}
	res := gateway.Unwrap(gateway.Patch[gateway.Envelope[booking.User]](ctx, gw,
		"/users/"+url.PathEscape(email)+"/role", map[string]string{"role": string(domainauth.RoleAdmin)}))
	if res.OK() {
		s.roles.Invalidate(email)
		s.logger.InfoContext(ctx, "user promoted", "email", email)
	}
	return res
}

// Dashboard assembles the dashboard for role. Admins also get user and transaction data.
// The calls run concurrently; the first failure wins.
func (s *BookingService) Dashboard(ctx context.Context, gw *gateway.Client, email string, role domainauth.Role) gateway.Result[booking.DashboardSummary] {
	var (
		mu  sync.Mutex
		out = booking.DashboardSummary{Role: role}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res := s.ListPackages(gctx, gw)
		v, ok := res.Value()
		if !ok {
			return res.Err()
		}
		mu.Lock()
		out.Packages = len(v)
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		res := s.ListBookings(gctx, gw, email)
		v, ok := res.Value()
		if !ok {
			return res.Err()
		}
		mu.Lock()
		out.Bookings = v
		mu.Unlock()
		return nil
	})
	if role == domainauth.RoleAdmin {
		g.Go(func() error {
			res := s.ListUsers(gctx, gw)
			v, ok := res.Value()
			if !ok {
				return res.Err()
			}
			mu.Lock()
			out.Users = len(v)
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			res := s.ListTransactions(gctx, gw)
			v, ok := res.Value()
			if !ok {
				return res.Err()
			}
			mu.Lock()
			out.Transactions = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return gateway.Fail[booking.DashboardSummary](appErr)
		}
		return gateway.Fail[booking.DashboardSummary](apperrors.Wrap(err, apperrors.ErrCodeInternal, "load dashboard"))
	}
	return gateway.Ok(out)
}
