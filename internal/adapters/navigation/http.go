package navigation

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/target/tourbook/internal/ports"
)

// Response is a navigator bound to one HTTP response.
// The first navigation redirects; the handler's later writes are dropped so the
// denied page never renders behind the redirect.
type Response struct {
	w http.ResponseWriter
	r *http.Request

	mu          sync.Mutex
	navigated   bool
	last        ports.Navigation
	wroteHeader bool
}

// NewResponse binds a navigator to w and r.
func NewResponse(w http.ResponseWriter, r *http.Request) *Response {
	return &Response{w: w, r: r}
}

func (n *Response) Navigate(_ context.Context, nav ports.Navigation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.navigated {
		return
	}
	n.navigated = true
	n.last = nav
	if n.wroteHeader {
		return
	}
	n.wroteHeader = true

	target := Target(nav)
	if isHTMX(n.r) {
		n.w.Header().Set("HX-Redirect", target)
		n.w.WriteHeader(http.StatusOK)
		return
	}
	code := http.StatusFound
	if nav.Replace {
		code = http.StatusSeeOther
	}
	http.Redirect(n.w, n.r, target, code)
}

// Navigated returns the navigation that took over the response, if any.
func (n *Response) Navigated() (ports.Navigation, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last, n.navigated
}

// Writer returns the ResponseWriter handlers should use.
func (n *Response) Writer() http.ResponseWriter {
	return &guardedWriter{nav: n}
}

func isHTMX(r *http.Request) bool {
	return r != nil && strings.EqualFold(r.Header.Get("HX-Request"), "true")
}

type guardedWriter struct {
	nav *Response
}

func (g *guardedWriter) Header() http.Header {
	return g.nav.w.Header()
}

func (g *guardedWriter) WriteHeader(code int) {
	g.nav.mu.Lock()
	defer g.nav.mu.Unlock()
	if g.nav.navigated || g.nav.wroteHeader {
		return
	}
	g.nav.wroteHeader = true
	g.nav.w.WriteHeader(code)
}

func (g *guardedWriter) Write(p []byte) (int, error) {
	g.nav.mu.Lock()
	if g.nav.navigated {
		g.nav.mu.Unlock()
		return len(p), nil
	}
	g.nav.wroteHeader = true
	g.nav.mu.Unlock()
	return g.nav.w.Write(p)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (g *guardedWriter) Unwrap() http.ResponseWriter {
	return g.nav.w
}
