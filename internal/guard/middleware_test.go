package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/tourbook/internal/adapters/navigation"
	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/observability/metrics"
	"github.com/target/tourbook/internal/testutil"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("protected"))
})

func newMiddleware(sub Subject, m *metrics.Metrics) *Middleware {
	return NewMiddleware(Options{
		Subject: func(*http.Request) Subject {
			if sub == nil {
				return nil
			}
			return sub
		},
		ResolveTimeout: 30 * time.Millisecond,
		Metrics:        m,
	})
}

func TestRequireIdentity(t *testing.T) {
	tests := []struct {
		name         string
		sub          *fakeSubject
		wantStatus   int
		wantLocation string
		wantBody     string
	}{
		{
			name:       "signed in",
			sub:        newFakeSubject(testutil.NewIdentity().SignedIn("cred")),
			wantStatus: http.StatusOK,
			wantBody:   "protected",
		},
		{
			name:         "signed out",
			sub:          newFakeSubject(testutil.SignedOut()),
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/login?from=%2Fpackage_details%2F7",
		},
		{
			name:         "no session",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/login?from=%2Fpackage_details%2F7",
		},
		{
			name:       "still loading",
			sub:        newFakeSubject(testutil.LoadingSnapshot()),
			wantStatus: http.StatusOK,
			wantBody:   "Checking your session",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sub Subject
			if tt.sub != nil {
				sub = tt.sub
			}
			h := newMiddleware(sub, nil).RequireIdentity(okHandler)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/package_details/7", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			}
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRequireIdentity_PendingPlaceholder(t *testing.T) {
	h := newMiddleware(newFakeSubject(testutil.LoadingSnapshot()), nil).RequireIdentity(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "1", rec.Header().Get("Refresh"))
	assert.JSONEq(t, `{"status":"loading"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "protected")
}

func TestRequireIdentity_ResolvesWithinTimeout(t *testing.T) {
	sub := newFakeSubject(testutil.LoadingSnapshot())
	m := NewMiddleware(Options{
		Subject:        func(*http.Request) Subject { return sub },
		ResolveTimeout: 2 * time.Second,
	})
	go func() {
		time.Sleep(20 * time.Millisecond)
		sub.set(testutil.NewIdentity().SignedIn("cred"))
	}()

	rec := httptest.NewRecorder()
	m.RequireIdentity(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "protected", rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	admin := domainauth.RoleState{Role: domainauth.RoleAdmin, Resolved: true}
	customer := domainauth.RoleState{Role: domainauth.RoleCustomer, Resolved: true}

	tests := []struct {
		name         string
		snap         domainauth.Snapshot
		role         domainauth.RoleState
		wantStatus   int
		wantLocation string
		wantRoleHits int
	}{
		{name: "admin", snap: testutil.NewIdentity().SignedIn("c"), role: admin, wantStatus: http.StatusOK, wantRoleHits: 1},
		{name: "customer", snap: testutil.NewIdentity().SignedIn("c"), role: customer, wantStatus: http.StatusSeeOther, wantLocation: "/unauthorized?from=%2Fadmin%2Fusers", wantRoleHits: 1},
		{name: "signed out never asks for a role", snap: testutil.SignedOut(), role: admin, wantStatus: http.StatusSeeOther, wantLocation: "/login?from=%2Fadmin%2Fusers"},
		{name: "loading never asks for a role", snap: testutil.LoadingSnapshot(), role: admin, wantStatus: http.StatusOK},
		{name: "unresolved role is pending", snap: testutil.NewIdentity().SignedIn("c"), role: domainauth.RoleState{}, wantStatus: http.StatusOK, wantRoleHits: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := newFakeSubject(tt.snap)
			sub.role = tt.role
			h := newMiddleware(sub, nil).RequireRole(domainauth.RoleAdmin)(okHandler)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			assert.Equal(t, tt.wantRoleHits, sub.roleHits)
			if tt.name != "admin" {
				assert.NotContains(t, rec.Body.String(), "protected")
			}
		})
	}
}

func TestMiddleware_UsesBoundNavigator(t *testing.T) {
	h := newMiddleware(newFakeSubject(testutil.SignedOut()), nil).RequireIdentity(okHandler)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
	nav := navigation.NewResponse(rec, req)
	req = req.WithContext(navigation.WithNavigator(req.Context(), nav))
	h.ServeHTTP(nav.Writer(), req)

	got, ok := nav.Navigated()
	require.True(t, ok)
	assert.Equal(t, "/login", got.To)
	assert.Equal(t, "/bookings", got.From)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestMiddleware_HTMXRedirect(t *testing.T) {
	h := newMiddleware(newFakeSubject(testutil.SignedOut()), nil).RequireIdentity(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/login?from=%2Fbookings", rec.Header().Get("HX-Redirect"))
}

func TestMiddleware_CountsDecisions(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	mw := newMiddleware(newFakeSubject(testutil.SignedOut()), m)

	rec := httptest.NewRecorder()
	mw.RequireIdentity(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings", nil))

	assert.InDelta(t, 1, promtest.ToFloat64(m.GuardDecisions.WithLabelValues(string(domainauth.DecisionRedirectToLogin))), 0)
}
