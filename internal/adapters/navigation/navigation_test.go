package navigation

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/tourbook/internal/ports"
)

func TestTarget(t *testing.T) {
	assert.Equal(t, "/login", Target(ports.Navigation{To: "/login"}))
	assert.Equal(t, "/login?from=%2Fpackage_details%2F42",
		Target(ports.Navigation{To: "/login", From: "/package_details/42"}))
}

func TestResponse_ReplaceRedirectDropsLaterWrites(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	nav := NewResponse(rec, req)
	w := nav.Writer()

	nav.Navigate(context.Background(), ports.Navigation{To: "/login", Replace: true})
	w.WriteHeader(http.StatusOK)
	_, err := w.Write([]byte("secret dashboard"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.NotContains(t, rec.Body.String(), "secret dashboard")

	got, ok := nav.Navigated()
	require.True(t, ok)
	assert.Equal(t, "/login", got.To)
}

func TestResponse_FirstNavigationWins(t *testing.T) {
	rec := httptest.NewRecorder()
	nav := NewResponse(rec, httptest.NewRequest(http.MethodGet, "/admin/users", nil))

	nav.Navigate(context.Background(), ports.Navigation{To: "/unauthorized", Replace: true})
	nav.Navigate(context.Background(), ports.Navigation{To: "/login", Replace: true})

	assert.Equal(t, "/unauthorized", rec.Header().Get("Location"))
}

func TestResponse_HTMX(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
	req.Header.Set("HX-Request", "true")
	nav := NewResponse(rec, req)

	nav.Navigate(context.Background(), ports.Navigation{To: "/login", From: "/bookings", Replace: true})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/login?from=%2Fbookings", rec.Header().Get("HX-Redirect"))
}

func TestResponse_NoNavigationPassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	nav := NewResponse(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	w := nav.Writer()

	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte("ok"))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	_, navigated := nav.Navigated()
	assert.False(t, navigated)
}

func TestContextual(t *testing.T) {
	var fallback, bound []ports.Navigation
	c := Contextual{Fallback: ports.NavigatorFunc(func(_ context.Context, nav ports.Navigation) {
		fallback = append(fallback, nav)
	})}

	c.Navigate(context.Background(), ports.Navigation{To: "/login"})

	ctx := WithNavigator(context.Background(), ports.NavigatorFunc(func(_ context.Context, nav ports.Navigation) {
		bound = append(bound, nav)
	}))
	c.Navigate(ctx, ports.Navigation{To: "/unauthorized"})

	require.Len(t, fallback, 1)
	require.Len(t, bound, 1)
	assert.Equal(t, "/login", fallback[0].To)
	assert.Equal(t, "/unauthorized", bound[0].To)
}

func TestDetach(t *testing.T) {
	var calls []ports.Navigation
	ctx, cancel := context.WithCancel(WithNavigator(context.Background(), ports.NavigatorFunc(func(_ context.Context, nav ports.Navigation) {
		calls = append(calls, nav)
	})))
	detached := Detach(ctx)
	cancel()

	assert.NoError(t, detached.Err())
	_, ok := FromContext(detached)
	assert.False(t, ok)

	Contextual{}.Navigate(detached, ports.Navigation{To: "/login"})
	assert.Empty(t, calls)
}

func TestCLI(t *testing.T) {
	var out bytes.Buffer
	cli := NewCLI(&out, map[string]string{"/login": "tourbookctl login"})

	cli.Navigate(context.Background(), ports.Navigation{To: "/login", Replace: true})
	cli.Navigate(context.Background(), ports.Navigation{To: "/unauthorized", Replace: true})

	assert.Contains(t, out.String(), "run: tourbookctl login")
	assert.Contains(t, out.String(), "-> /unauthorized")
	last, ok := cli.Last()
	require.True(t, ok)
	assert.Equal(t, "/unauthorized", last.To)
}
