package httpx

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func csrfHandler() (http.Handler, *string) {
	var seen string
	h := CSRFProtection(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CSRFToken(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &seen
}

func csrfCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultCSRFCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", DefaultCSRFCookieName)
	return nil
}

func TestCSRFProtection_SafeRequestIssuesToken(t *testing.T) {
	h, seen := csrfHandler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	c := csrfCookie(t, rec)
	assert.NotEmpty(t, c.Value)
	assert.Equal(t, c.Value, *seen)
	assert.False(t, c.HttpOnly, "scripts echo the cookie in the header")
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.False(t, c.Secure)
}

func TestCSRFProtection_ExistingTokenIsKept(t *testing.T) {
	h, seen := csrfHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: "tok"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Values("Set-Cookie"))
	assert.Equal(t, "tok", *seen)
}

func TestCSRFProtection_SecureCookieBehindTLS(t *testing.T) {
	h, _ := csrfHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.True(t, csrfCookie(t, rec).Secure)
}

func TestCSRFProtection_UnsafeMethods(t *testing.T) {
	form := url.Values{CSRFFormField: {"tok"}}.Encode()
	tests := []struct {
		name        string
		method      string
		cookie      string
		header      string
		contentType string
		body        string
		want        int
	}{
		{name: "no cookie no token", method: http.MethodPost, want: http.StatusForbidden},
		{name: "cookie without token", method: http.MethodPost, cookie: "tok", want: http.StatusForbidden},
		{name: "mismatched header", method: http.MethodPost, cookie: "tok", header: "other", want: http.StatusForbidden},
		{name: "header without cookie", method: http.MethodDelete, header: "tok", want: http.StatusForbidden},
		{name: "matching header", method: http.MethodPost, cookie: "tok", header: "tok", want: http.StatusNoContent},
		{name: "matching header on delete", method: http.MethodDelete, cookie: "tok", header: "tok", want: http.StatusNoContent},
		{
			name: "matching form field", method: http.MethodPost, cookie: "tok",
			contentType: "application/x-www-form-urlencoded", body: form, want: http.StatusNoContent,
		},
		{
			name: "form field ignored for json", method: http.MethodPost, cookie: "tok",
			contentType: "application/json", body: form, want: http.StatusForbidden,
		},
		{name: "head is exempt", method: http.MethodHead, want: http.StatusNoContent},
		{name: "options is exempt", method: http.MethodOptions, want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := csrfHandler()
			req := httptest.NewRequest(tt.method, "/bookings", strings.NewReader(tt.body))
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(DefaultCSRFHeaderName, tt.header)
			}
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want == http.StatusForbidden {
				assert.Contains(t, rec.Body.String(), "csrf_token_invalid")
			}
		})
	}
}
