package httpx

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	domainauth "github.com/target/tourbook/internal/domain/auth"
)

//go:embed pages/*.html
var pageFS embed.FS

// pageView is the data every page template receives.
type pageView struct {
	Title     string
	Identity  *domainauth.Identity
	CSRFToken string
	Data      any
}

// Pages renders HTML pages, or the page data as JSON for clients that ask for it.
type Pages struct {
	t      *template.Template
	logger *slog.Logger
}

// NewPages parses the embedded page templates.
func NewPages(logger *slog.Logger) (*Pages, error) {
	t, err := template.New("pages").ParseFS(pageFS, "pages/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pages{t: t, logger: logger}, nil
}

// Render writes page name with view. JSON clients get view.Data.
func (p *Pages) Render(w http.ResponseWriter, r *http.Request, status int, name string, view pageView) {
	if wantsJSON(r) {
		WriteJSON(w, status, view.Data)
		return
	}
	view.CSRFToken = CSRFToken(r.Context())
	var buf bytes.Buffer
	if err := p.t.ExecuteTemplate(&buf, name, view); err != nil {
		p.logger.ErrorContext(r.Context(), "render page failed", "page", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
