package oidc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	domainauth "github.com/target/tourbook/internal/domain/auth"
)

// accountError is the account-management API's error body.
type accountError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (p *Provider) createAccount(ctx context.Context, email, password string) error {
	return p.callAccountAPI(ctx, http.MethodPost, "/accounts", "", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (p *Provider) updateProfile(ctx context.Context, accessToken string, update domainauth.ProfileUpdate) error {
	if update.Empty() {
		return nil
	}
	return p.callAccountAPI(ctx, http.MethodPatch, "/profile", accessToken, update)
}

func (p *Provider) callAccountAPI(ctx context.Context, method, path, bearer string, payload any) error {
	if p.accountURL == "" {
		return domainauth.NewProviderError(domainauth.CodeOperationNotAllowed, "account management is not available for this provider")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode account request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.accountURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build account request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &domainauth.ProviderError{Code: domainauth.CodeNetworkRequestFailed, Message: "account API unreachable", Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return accountStatusError(resp)
}

// accountStatusError maps a failed account API response. Bodies carrying an "auth/" code
// are passed through as is.
func accountStatusError(resp *http.Response) error {
	var ae accountError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&ae)
	if strings.HasPrefix(ae.Code, "auth/") {
		return domainauth.NewProviderError(ae.Code, ae.Message)
	}
	switch resp.StatusCode {
	case http.StatusConflict:
		return domainauth.NewProviderError(domainauth.CodeEmailAlreadyInUse, "email already registered")
	case http.StatusUnauthorized:
		return domainauth.NewProviderError(domainauth.CodeNoCurrentUser, "account API rejected the session")
	case http.StatusForbidden:
		return domainauth.NewProviderError(domainauth.CodeOperationNotAllowed, "account API refused the operation")
	}
	return domainauth.NewProviderError(domainauth.CodeInternalError, fmt.Sprintf("account API returned %d", resp.StatusCode))
}
