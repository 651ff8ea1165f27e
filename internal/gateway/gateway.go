// Package gateway implements the Authorized Request Gateway: every backend call is stamped
// with the current bearer credential, and 401/403 responses are turned into forced
// navigations instead of data.
//
// There is exactly one attempt per call. Transport failures never escape as panics or
// returned errors; they come back as a failed Result and are also kept in the client's
// error slot.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/target/tourbook/internal/errors"
	obserrors "github.com/target/tourbook/internal/observability/errors"
	"github.com/target/tourbook/internal/observability/metrics"
	"github.com/target/tourbook/internal/ports"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// CredentialSource is the read path onto the session's in-memory credential.
type CredentialSource interface {
	Credential() string
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func() string

func (f CredentialFunc) Credential() string { return f() }

// Options configures a Client.
type Options struct {
	// BaseURL is the fixed backend origin, e.g. "https://api.tours.example.com".
	BaseURL          string
	Credentials      CredentialSource
	Navigator        ports.Navigator
	LoginPath        string
	UnauthorizedPath string
	HTTPClient       *http.Client
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
}

// Client sends authorized requests to the backend.
type Client struct {
	base             *url.URL
	creds            CredentialSource
	nav              ports.Navigator
	loginPath        string
	unauthorizedPath string
	http             *http.Client
	logger           *slog.Logger
	metrics          *metrics.Metrics

	inflight atomic.Int64
	mu       sync.Mutex
	lastErr  *apperrors.AppError
}

// New validates opts and builds a Client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gateway: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("gateway: base url %q must be an absolute http(s) origin", opts.BaseURL)
	}
	if opts.Navigator == nil {
		return nil, errors.New("gateway: navigator is required")
	}
	creds := opts.Credentials
	if creds == nil {
		creds = CredentialFunc(func() string { return "" })
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	login := opts.LoginPath
	if login == "" {
		login = "/login"
	}
	unauthorized := opts.UnauthorizedPath
	if unauthorized == "" {
		unauthorized = "/unauthorized"
	}
	return &Client{
		base:             base,
		creds:            creds,
		nav:              opts.Navigator,
		loginPath:        login,
		unauthorizedPath: unauthorized,
		http:             httpClient,
		logger:           logger.With("component", "gateway"),
		metrics:          opts.Metrics,
	}, nil
}

// WithCredentials returns a copy bound to another credential source. The copy has its own
// error slot and loading flag.
func (c *Client) WithCredentials(creds CredentialSource) *Client {
	return &Client{
		base:             c.base,
		creds:            creds,
		nav:              c.nav,
		loginPath:        c.loginPath,
		unauthorizedPath: c.unauthorizedPath,
		http:             c.http,
		logger:           c.logger,
		metrics:          c.metrics,
	}
}

// Err returns the failure of the most recent call, or nil.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr == nil {
		return nil
	}
	return c.lastErr
}

// Loading reports whether any call is in flight.
func (c *Client) Loading() bool {
	return c.inflight.Load() > 0
}

func (c *Client) setErr(err *apperrors.AppError) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// resolve joins path onto the fixed origin. Absolute URLs are only accepted for that origin,
// so the credential never leaves it.
func (c *Client) resolve(path string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path: %w", err)
	}
	if ref.IsAbs() || ref.Host != "" {
		if !strings.EqualFold(ref.Scheme, c.base.Scheme) || !strings.EqualFold(ref.Host, c.base.Host) {
			return nil, fmt.Errorf("url %q is outside the backend origin", path)
		}
	}
	u := *c.base
	p := ref.Path
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u.Path = strings.TrimRight(c.base.Path, "/") + p
	q := ref.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return &u, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, payload any) (*http.Request, error) {
	u, err := c.resolve(path, query)
	if err != nil {
		return nil, err
	}
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if cred := c.creds.Credential(); cred != "" {
		req.Header.Set("Authorization", "Bearer "+cred)
	}
	injectTraceparent(ctx, req)
	return req, nil
}

// do performs one round trip and interprets the status. It returns the raw body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, *apperrors.AppError) {
	c.inflight.Add(1)
	defer c.inflight.Add(-1)

	req, err := c.newRequest(ctx, method, path, query, payload)
	if err != nil {
		appErr := apperrors.Wrap(err, apperrors.ErrCodeValidation, "build request")
		c.setErr(appErr)
		return nil, appErr
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveGateway(method, 0, start)
		appErr := apperrors.MapTransportError(err)
		c.logger.WarnContext(ctx, "backend request failed",
			"method", method,
			"path", req.URL.Path,
			"error_class", obserrors.Classify(err),
			"error", err,
		)
		c.setErr(appErr)
		return nil, appErr
	}
	defer resp.Body.Close()
	c.metrics.ObserveGateway(method, resp.StatusCode, start)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		drain(resp.Body)
		c.navigate(ctx, c.loginPath)
		appErr := apperrors.Unauthenticated("backend rejected the credential")
		c.setErr(appErr)
		return nil, appErr
	case resp.StatusCode == http.StatusForbidden:
		drain(resp.Body)
		c.navigate(ctx, c.unauthorizedPath)
		appErr := apperrors.Forbidden("insufficient role for " + req.URL.Path)
		c.setErr(appErr)
		return nil, appErr
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		drain(resp.Body)
		appErr := apperrors.FromStatus(resp.StatusCode,
			fmt.Sprintf("backend returned %d for %s %s", resp.StatusCode, method, req.URL.Path))
		c.logger.InfoContext(ctx, "backend request unsuccessful",
			"method", method,
			"path", req.URL.Path,
			"status", resp.StatusCode,
		)
		c.setErr(appErr)
		return nil, appErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		appErr := apperrors.MapTransportError(err)
		c.setErr(appErr)
		return nil, appErr
	}
	c.setErr(nil)
	return data, nil
}

func (c *Client) navigate(ctx context.Context, to string) {
	c.metrics.IncNavigation(to)
	c.nav.Navigate(ctx, ports.Navigation{To: to, Replace: true})
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, maxResponseBytes))
}

func decode[T any](c *Client, data []byte) Result[T] {
	var out T
	if len(bytes.TrimSpace(data)) == 0 {
		return Ok(out)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		appErr := apperrors.Wrap(err, apperrors.ErrCodeDecode, "decode response")
		c.setErr(appErr)
		return Fail[T](appErr)
	}
	return Ok(out)
}

func call[T any](ctx context.Context, c *Client, method, path string, query url.Values, payload any) Result[T] {
	data, appErr := c.do(ctx, method, path, query, payload)
	if appErr != nil {
		return Fail[T](appErr)
	}
	return decode[T](c, data)
}

// Get retrieves path with optional query parameters.
func Get[T any](ctx context.Context, c *Client, path string, query url.Values) Result[T] {
	return call[T](ctx, c, http.MethodGet, path, query, nil)
}

// Post creates a resource.
func Post[T any](ctx context.Context, c *Client, path string, body any) Result[T] {
	return call[T](ctx, c, http.MethodPost, path, nil, body)
}

// Put replaces a resource.
func Put[T any](ctx context.Context, c *Client, path string, body any) Result[T] {
	return call[T](ctx, c, http.MethodPut, path, nil, body)
}

// Patch partially updates a resource.
func Patch[T any](ctx context.Context, c *Client, path string, body any) Result[T] {
	return call[T](ctx, c, http.MethodPatch, path, nil, body)
}

// Delete removes a resource.
func Delete[T any](ctx context.Context, c *Client, path string) Result[T] {
	return call[T](ctx, c, http.MethodDelete, path, nil, nil)
}
