// Package navigation implements the Navigator port for the web server and the CLI.
package navigation

import (
	"context"
	"net/url"

	"github.com/target/tourbook/internal/ports"
)

type navigatorKey struct{}

// WithNavigator binds a request-scoped navigator to ctx.
func WithNavigator(ctx context.Context, nav ports.Navigator) context.Context {
	return context.WithValue(ctx, navigatorKey{}, nav)
}

// FromContext returns the navigator bound to ctx, if any.
func FromContext(ctx context.Context) (ports.Navigator, bool) {
	nav, ok := ctx.Value(navigatorKey{}).(ports.Navigator)
	return nav, ok && nav != nil
}

// Detach returns a context that outlives ctx and carries no navigator. Work that continues
// after the request has been answered must not navigate its response.
func Detach(ctx context.Context) context.Context {
	return WithNavigator(context.WithoutCancel(ctx), nil)
}

// Contextual dispatches to the navigator bound to the call's context.
// Long-lived components such as the gateway hold one Contextual and stay unaware of requests.
type Contextual struct {
	// Fallback handles navigations issued outside any request. Nil drops them.
	Fallback ports.Navigator
}

func (c Contextual) Navigate(ctx context.Context, nav ports.Navigation) {
	if bound, ok := FromContext(ctx); ok {
		bound.Navigate(ctx, nav)
		return
	}
	if c.Fallback != nil {
		c.Fallback.Navigate(ctx, nav)
	}
}

// Target renders the destination URL, carrying From as the "from" query parameter.
func Target(nav ports.Navigation) string {
	if nav.From == "" {
		return nav.To
	}
	u, err := url.Parse(nav.To)
	if err != nil {
		return nav.To
	}
	q := u.Query()
	q.Set("from", nav.From)
	u.RawQuery = q.Encode()
	return u.String()
}
