package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/target/tourbook/internal/adapters/navigation"
	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/guard"
	"github.com/target/tourbook/internal/ports"
	"github.com/target/tourbook/internal/service"
)

const (
	stateCookie    = "oauth_state"
	nonceCookie    = "oauth_nonce"
	redirectCookie = "post_login_redirect"
	oauthCookieTTL = 10 * time.Minute
)

// AuthHandlers serves sign-in, registration, sign-out and session status.
type AuthHandlers struct {
	Svc *service.AuthService
	// Sessions re-keys the browser session once a sign-in succeeds.
	Sessions     *service.SessionManager
	Pages        *Pages
	Paths        guard.Paths
	CookieName   string
	CookieDomain string
	// SettleTimeout bounds how long a response waits for the session to pick up a sign-in.
	SettleTimeout time.Duration
	Logger        *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type loginView struct {
	From   string `json:"from"`
	Action string `json:"-"`
	Error  string `json:"error,omitempty"`
}

// LoginPage renders the sign-in form, or sends an already signed-in user on to "from".
// GET /login?from=<path>.
func (h *AuthHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	sess := requireSession(w, r)
	if sess == nil {
		return
	}
	from := service.SafeRedirect(r.URL.Query().Get("from"))
	snap := guard.Settle(r.Context(), sess, h.SettleTimeout)
	if snap.Authenticated() {
		navigate(w, r, from)
		return
	}
	h.Pages.Render(w, r, http.StatusOK, "login", pageView{
		Title: "Sign in",
		Data:  loginView{From: from, Action: h.Paths.Login, Error: r.URL.Query().Get("error")},
	})
}

// Login signs in with email and password from a form or JSON body.
// POST /login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	sess := requireSession(w, r)
	if sess == nil {
		return
	}
	in, ok := readCredentials(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Login(r.Context(), sess, in.Credentials); err != nil {
		writeAuthError(w, r, h.logger(), err)
		return
	}
	h.signedIn(w, r, sess, http.StatusOK, in.From)
}

// Register creates an account, signs in as it and applies the optional display name.
// POST /register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	sess := requireSession(w, r)
	if sess == nil {
		return
	}
	in, ok := readCredentials(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Register(r.Context(), sess, in.Credentials); err != nil {
		writeAuthError(w, r, h.logger(), err)
		return
	}
	if name := strings.TrimSpace(in.DisplayName); name != "" {
		if err := h.Svc.UpdateProfile(r.Context(), sess, domainauth.ProfileUpdate{DisplayName: &name}); err != nil {
			// The account exists and is signed in; only the name is missing.
			h.logger().WarnContext(r.Context(), "set display name after registration failed", "error", err)
		}
	}
	h.signedIn(w, r, sess, http.StatusCreated, in.From)
}

// signedIn moves the session to a fresh id, waits for it to reflect the sign-in, then
// answers with the identity (JSON) or a redirect to from.
func (h *AuthHandlers) signedIn(w http.ResponseWriter, r *http.Request, sess *service.Session, status int, from string) {
	sess, ok := h.rotate(w, r, sess)
	if !ok {
		return
	}
	snap := guard.Settle(r.Context(), sess, h.SettleTimeout)
	from = service.SafeRedirect(from)
	if !wantsJSON(r) {
		navigate(w, r, from)
		return
	}
	WriteJSON(w, status, map[string]any{
		"status":      "signed_in",
		"identity":    snap.Identity,
		"redirect_to": from,
	})
}

// rotate re-keys sess and re-issues the session cookie. The id the browser held before
// signing in stops resolving.
func (h *AuthHandlers) rotate(w http.ResponseWriter, r *http.Request, sess *service.Session) (*service.Session, bool) {
	next, err := h.Sessions.Rotate(r.Context(), sess.ID)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "rotate session after sign-in failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: "session_unavailable",
			Err:     errors.New("session unavailable"),
		})
		return nil, false
	}
	sessionCookie{name: h.CookieName, domain: h.CookieDomain}.set(w, r, next.ID)
	return next, true
}

// LoginFederated starts federated sign-in and redirects to the provider.
// GET /login/federated?from=<path>.
func (h *AuthHandlers) LoginFederated(w http.ResponseWriter, r *http.Request) {
	sess := requireSession(w, r)
	if sess == nil {
		return
	}
	result, err := h.Svc.BeginLogin(r.Context(), sess, r.URL.Query().Get("from"))
	if err != nil {
		writeAuthError(w, r, h.logger(), err)
		return
	}
	h.setOAuthCookies(w, r, oauthCookieParams{State: result.State, Nonce: result.Nonce, RedirectURI: result.From})
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback completes federated sign-in.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	sess := requireSession(w, r)
	if sess == nil {
		return
	}
	in := service.CompleteLoginInput{
		Code:  r.URL.Query().Get("code"),
		State: r.URL.Query().Get("state"),
	}
	if c, err := r.Cookie(stateCookie); err == nil {
		in.ExpectedState = c.Value
	}
	if c, err := r.Cookie(nonceCookie); err == nil {
		in.Nonce = c.Value
	}
	h.clearCookie(w, r, stateCookie)
	h.clearCookie(w, r, nonceCookie)

	if err := h.Svc.CompleteLogin(r.Context(), sess, in); err != nil {
		h.clearCookie(w, r, redirectCookie)
		writeAuthError(w, r, h.logger(), err)
		return
	}
	h.signedIn(w, r, sess, http.StatusOK, h.getPostLoginRedirect(w, r))
}

// Logout signs the session out.
// POST /logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	sess := requireSession(w, r)
	if sess == nil {
		return
	}
	if err := h.Svc.Logout(r.Context(), sess); err != nil {
		writeAuthError(w, r, h.logger(), err)
		return
	}
	guard.Settle(r.Context(), sess, h.SettleTimeout)
	if wantsJSON(r) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "signed_out",
			"redirect_to": h.Paths.Login,
		})
		return
	}
	navigate(w, r, h.Paths.Login)
}

// Unauthorized renders the page role-denied navigations land on.
// GET /unauthorized.
func (h *AuthHandlers) Unauthorized(w http.ResponseWriter, r *http.Request) {
	var id *domainauth.Identity
	if sess, ok := SessionFromContext(r.Context()); ok {
		id = sess.Identity()
	}
	h.Pages.Render(w, r, http.StatusOK, "unauthorized", pageView{
		Title:    "Not allowed",
		Identity: id,
		Data: map[string]string{
			"error": "forbidden",
			"from":  service.SafeRedirect(r.URL.Query().Get("from")),
		},
	})
}

// Status reports the session's identity, loading flag and role.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	sess := requireSession(w, r)
	if sess == nil {
		return
	}
	snap := sess.Snapshot()
	var role domainauth.RoleState
	if snap.Authenticated() {
		role = sess.Role(r.Context(), snap)
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": snap.Authenticated(),
		"loading":       snap.Loading,
		"identity":      snap.Identity,
		"role":          role,
	})
}

type profileRequest struct {
	DisplayName *string `json:"display_name"`
	PhotoURL    *string `json:"photo_url"`
}

// Profile updates the display name or photo of the signed-in identity.
// POST /profile.
func (h *AuthHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	sess := requireSession(w, r)
	if sess == nil {
		return
	}
	var req profileRequest
	if isJSONBody(r) {
		if !DecodeJSON(w, r, &req) {
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
			return
		}
		if r.PostForm.Has("display_name") {
			v := r.PostForm.Get("display_name")
			req.DisplayName = &v
		}
		if r.PostForm.Has("photo_url") {
			v := r.PostForm.Get("photo_url")
			req.PhotoURL = &v
		}
	}
	update := domainauth.ProfileUpdate{DisplayName: req.DisplayName, PhotoURL: req.PhotoURL}
	if update.Empty() {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Err:     errors.New("at least one field must be updated"),
		})
		return
	}
	if err := h.Svc.UpdateProfile(r.Context(), sess, update); err != nil {
		writeAuthError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// credentialsInput is a sign-in or registration form.
type credentialsInput struct {
	service.Credentials
	DisplayName string `json:"display_name"`
	From        string `json:"from"`
}

func readCredentials(w http.ResponseWriter, r *http.Request) (credentialsInput, bool) {
	var in credentialsInput
	if isJSONBody(r) {
		return in, DecodeJSON(w, r, &in)
	}
	if err := r.ParseForm(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return in, false
	}
	in.Email = r.PostForm.Get("email")
	in.Password = r.PostForm.Get("password")
	in.DisplayName = r.PostForm.Get("display_name")
	in.From = r.PostForm.Get("from")
	return in, true
}

// requireSession returns the request's session, answering 503 when the Sessions
// middleware did not bind one.
func requireSession(w http.ResponseWriter, r *http.Request) *service.Session {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: "session_unavailable",
			Err:     errors.New("no session bound to request"),
		})
		return nil
	}
	return sess
}

// navigate sends the client to "to" through the response's navigator, replacing history.
func navigate(w http.ResponseWriter, r *http.Request, to string) {
	nav := ports.Navigation{To: to, Replace: true}
	if bound, ok := navigation.FromContext(r.Context()); ok {
		bound.Navigate(r.Context(), nav)
		return
	}
	navigation.NewResponse(w, r).Navigate(r.Context(), nav)
}

// clearCookie clears a cookie by setting it to expire immediately.
// It mirrors key attributes (Secure, Path, Domain, SameSite) used when setting cookies
// to maximize compatibility across browsers during deletion.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

type oauthCookieParams struct {
	State       string
	Nonce       string
	RedirectURI string
}

// setOAuthCookies stores OAuth state, nonce, and the post-login redirect in short-lived cookies.
func (h *AuthHandlers) setOAuthCookies(w http.ResponseWriter, r *http.Request, p oauthCookieParams) {
	for name, value := range map[string]string{
		stateCookie:    p.State,
		nonceCookie:    p.Nonce,
		redirectCookie: p.RedirectURI,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Domain:   h.CookieDomain,
			HttpOnly: true,
			Secure:   isSecureRequest(r),
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(oauthCookieTTL.Seconds()),
		})
	}
}

// getPostLoginRedirect returns the post-login redirect URL and clears the cookie.
func (h *AuthHandlers) getPostLoginRedirect(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(redirectCookie)
	if err != nil {
		return "/"
	}
	h.clearCookie(w, r, redirectCookie)
	return service.SafeRedirect(c.Value)
}
