package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/domain/booking"
	apperrors "github.com/target/tourbook/internal/errors"
	"github.com/target/tourbook/internal/gateway"
	mockauth "github.com/target/tourbook/internal/mocks/auth"
)

type recordingInvalidator struct {
	mu     sync.Mutex
	emails []string
}

func (r *recordingInvalidator) Invalidate(email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, email)
}

func envelope(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

// fakeBackend serves the resource endpoints. Non-admin callers get 403 on admin resources.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	isAdmin := func(req *http.Request) bool { return req.Header.Get("Authorization") == "Bearer admin-token" }
	r.Get("/packages", func(w http.ResponseWriter, _ *http.Request) {
		envelope(w, []booking.Package{{ID: "p1", Title: "Lisbon"}, {ID: "p2", Title: "Kyoto"}})
	})
	r.Get("/packages/{id}", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "id") != "p1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		envelope(w, booking.Package{ID: "p1", Title: "Lisbon", Nights: 4})
	})
	r.Get("/bookings", func(w http.ResponseWriter, req *http.Request) {
		envelope(w, []booking.Booking{{ID: "b1", PackageID: "p1", Email: req.URL.Query().Get("email"), Travelers: 2}})
	})
	r.Post("/bookings", func(w http.ResponseWriter, req *http.Request) {
		var in booking.BookingRequest
		_ = json.NewDecoder(req.Body).Decode(&in)
		w.WriteHeader(http.StatusCreated)
		envelope(w, booking.Booking{ID: "b2", PackageID: in.PackageID, Email: in.Email, Travelers: in.Travelers, Status: booking.StatusPending})
	})
	r.Delete("/bookings/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/users", func(w http.ResponseWriter, req *http.Request) {
		if !isAdmin(req) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		envelope(w, []booking.User{{Email: "a@example.com"}, {Email: "b@example.com"}, {Email: "c@example.com"}})
	})
	r.Get("/transactions", func(w http.ResponseWriter, req *http.Request) {
		if !isAdmin(req) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		envelope(w, []booking.Transaction{{ID: "t1", BookingID: "b1", Amount: 1200}})
	})
	r.Patch("/users/{email}/role", func(w http.ResponseWriter, req *http.Request) {
		if !isAdmin(req) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		envelope(w, booking.User{Email: chi.URLParam(req, "email"), Role: domainauth.RoleAdmin})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newBookingFixture(t *testing.T, token string) (*BookingService, *gateway.Client, *mockauth.RecordingNavigator, *recordingInvalidator) {
	t.Helper()
	srv := fakeBackend(t)
	nav := &mockauth.RecordingNavigator{}
	gw, err := gateway.New(gateway.Options{
		BaseURL:     srv.URL,
		Navigator:   nav,
		HTTPClient:  srv.Client(),
		Credentials: gateway.CredentialFunc(func() string { return token }),
	})
	require.NoError(t, err)
	inv := &recordingInvalidator{}
	svc, err := NewBookingService(BookingServiceOptions{Roles: inv})
	require.NoError(t, err)
	return svc, gw, nav, inv
}

func TestNewBookingService_RequiresInvalidator(t *testing.T) {
	_, err := NewBookingService(BookingServiceOptions{})
	assert.Error(t, err)
}

func TestBookingService_Packages(t *testing.T) {
	svc, gw, _, _ := newBookingFixture(t, "customer-token")
	ctx := context.Background()

	list, ok := svc.ListPackages(ctx, gw).Value()
	require.True(t, ok)
	assert.Len(t, list, 2)

	pkg, ok := svc.GetPackage(ctx, gw, "p1").Value()
	require.True(t, ok)
	assert.Equal(t, 4, pkg.Nights)

	res := svc.GetPackage(ctx, gw, "missing")
	assert.False(t, res.OK())
	assert.Equal(t, 404, apperrors.GetStatus(res.Err()))

	res = svc.GetPackage(ctx, gw, " ")
	assert.True(t, apperrors.IsValidation(res.Err()))
}

func TestBookingService_Bookings(t *testing.T) {
	svc, gw, _, _ := newBookingFixture(t, "customer-token")
	ctx := context.Background()

	list, ok := svc.ListBookings(ctx, gw, "traveler@example.com").Value()
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "traveler@example.com", list[0].Email)

	created, ok := svc.CreateBooking(ctx, gw, booking.BookingRequest{PackageID: "p1", Email: "traveler@example.com", Travelers: 3}).Value()
	require.True(t, ok)
	assert.Equal(t, 3, created.Travelers)
	assert.Equal(t, booking.StatusPending, created.Status)

	bad := svc.CreateBooking(ctx, gw, booking.BookingRequest{PackageID: "p1", Email: "traveler@example.com"})
	assert.True(t, apperrors.IsValidation(bad.Err()))

	assert.True(t, svc.CancelBooking(ctx, gw, "b1").OK())
	assert.True(t, apperrors.IsValidation(svc.CancelBooking(ctx, gw, "").Err()))
}

func TestBookingService_PromoteUser(t *testing.T) {
	t.Run("admin promotes and invalidates", func(t *testing.T) {
		svc, gw, nav, inv := newBookingFixture(t, "admin-token")
		user, ok := svc.PromoteUser(context.Background(), gw, "b@example.com").Value()
		require.True(t, ok)
		assert.Equal(t, domainauth.RoleAdmin, user.Role)
		assert.Equal(t, []string{"b@example.com"}, inv.emails)
		assert.Empty(t, nav.Calls())
	})

	t.Run("customer is sent to unauthorized", func(t *testing.T) {
		svc, gw, nav, inv := newBookingFixture(t, "customer-token")
		res := svc.PromoteUser(context.Background(), gw, "b@example.com")
		assert.True(t, res.Navigated())
		assert.True(t, apperrors.IsForbidden(res.Err()))
		assert.Empty(t, inv.emails)
		last, ok := nav.Last()
		require.True(t, ok)
		assert.Equal(t, "/unauthorized", last.To)
	})

	t.Run("empty email", func(t *testing.T) {
		svc, gw, _, _ := newBookingFixture(t, "admin-token")
		assert.True(t, apperrors.IsValidation(svc.PromoteUser(context.Background(), gw, "").Err()))
	})
}

func TestBookingService_Dashboard(t *testing.T) {
	t.Run("customer", func(t *testing.T) {
		svc, gw, nav, _ := newBookingFixture(t, "customer-token")
		sum, ok := svc.Dashboard(context.Background(), gw, "traveler@example.com", domainauth.RoleCustomer).Value()
		require.True(t, ok)
		assert.Equal(t, domainauth.RoleCustomer, sum.Role)
		assert.Equal(t, 2, sum.Packages)
		assert.Len(t, sum.Bookings, 1)
		assert.Zero(t, sum.Users)
		assert.Empty(t, sum.Transactions)
		assert.Empty(t, nav.Calls())
	})

	t.Run("admin", func(t *testing.T) {
		svc, gw, _, _ := newBookingFixture(t, "admin-token")
		sum, ok := svc.Dashboard(context.Background(), gw, "root@example.com", domainauth.RoleAdmin).Value()
		require.True(t, ok)
		assert.Equal(t, 3, sum.Users)
		assert.Len(t, sum.Transactions, 1)
	})

	t.Run("admin view with a customer credential fails", func(t *testing.T) {
		svc, gw, _, _ := newBookingFixture(t, "customer-token")
		res := svc.Dashboard(context.Background(), gw, "traveler@example.com", domainauth.RoleAdmin)
		assert.False(t, res.OK())
		assert.True(t, apperrors.IsForbidden(res.Err()))
	})
}
