package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/target/tourbook/internal/domain/auth"
	apperrors "github.com/target/tourbook/internal/errors"
	"github.com/target/tourbook/internal/session"
)

// providerStatus maps provider error codes to HTTP statuses.
var providerStatus = map[string]int{ //nolint:gochecknoglobals // read-only lookup table
	domainauth.CodeInvalidCredential:     http.StatusUnauthorized,
	domainauth.CodeUserNotFound:          http.StatusUnauthorized,
	domainauth.CodeNoCurrentUser:         http.StatusUnauthorized,
	domainauth.CodeEmailAlreadyInUse:     http.StatusConflict,
	domainauth.CodeWeakPassword:          http.StatusBadRequest,
	domainauth.CodeInvalidEmail:          http.StatusBadRequest,
	domainauth.CodePopupBlocked:          http.StatusBadRequest,
	domainauth.CodeInvalidFederatedState: http.StatusBadRequest,
	domainauth.CodeOperationNotAllowed:   http.StatusForbidden,
	domainauth.CodeNetworkRequestFailed:  http.StatusBadGateway,
	domainauth.CodeInternalError:         http.StatusInternalServerError,
}

// appStatus maps gateway and validation error codes to HTTP statuses.
var appStatus = map[apperrors.ErrorCode]int{ //nolint:gochecknoglobals // read-only lookup table
	apperrors.ErrCodeValidation: http.StatusBadRequest,
	apperrors.ErrCodeNotFound:   http.StatusNotFound,
	apperrors.ErrCodeTransport:  http.StatusBadGateway,
	apperrors.ErrCodeStatus:     http.StatusBadGateway,
	apperrors.ErrCodeDecode:     http.StatusBadGateway,
	apperrors.ErrCodeTimeout:    http.StatusGatewayTimeout,
	apperrors.ErrCodeCanceled:   http.StatusRequestTimeout,
}

// writeAuthError renders a failed sign-in style operation as JSON carrying the provider code.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if apperrors.IsValidation(err) {
		writeAppError(w, r, logger, err)
		return
	}
	if errors.Is(err, session.ErrDisposed) || errors.Is(err, session.ErrNotInitialized) {
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "session_unavailable", Err: err})
		return
	}
	pe := domainauth.AsProviderError(err)
	status, ok := providerStatus[pe.Code]
	if !ok {
		status = http.StatusBadRequest
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "auth operation failed", "code", pe.Code, "error", err)
	}
	message := pe.Message
	if message == "" {
		message = pe.Code
	}
	WriteJSON(w, status, map[string]string{"error": pe.Code, "message": message})
}

// writeAppError renders a gateway or validation failure. Errors that already navigated
// (401/403 from the backend) write nothing; the navigator owns the response.
func writeAppError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if apperrors.IsNavigation(err) {
		return
	}
	code := apperrors.GetCode(err)
	status, ok := appStatus[code]
	if !ok {
		status = http.StatusInternalServerError
		code = apperrors.ErrCodeInternal
	}
	if s := apperrors.GetStatus(err); code == apperrors.ErrCodeStatus && s >= 400 && s < 500 {
		status = s
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "code", code, "error", err)
	}
	WriteError(w, ErrorParams{Code: status, ErrCode: string(code), Err: err})
}
