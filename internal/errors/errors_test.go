package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeNotFound,
				Message: "resource not found",
			},
			want: "resource not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeInternal,
				Message: "failed to process",
				Cause:   errors.New("underlying error"),
			},
			want: "failed to process: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &AppError{
		Code:    ErrCodeInternal,
		Message: "wrapped error",
		Cause:   cause,
	}

	if unwrapped := err.Unwrap(); !errors.Is(unwrapped, cause) {
		t.Errorf("AppError.Unwrap() = %v, want %v", unwrapped, cause)
	}
}

func TestUnauthenticatedAndForbidden(t *testing.T) {
	unauth := Unauthenticated("credential rejected")
	if unauth.Status != 401 || !IsUnauthenticated(unauth) {
		t.Errorf("unexpected unauthenticated error: %+v", unauth)
	}
	forbidden := Forbidden("insufficient role")
	if forbidden.Status != 403 || !IsForbidden(forbidden) {
		t.Errorf("unexpected forbidden error: %+v", forbidden)
	}
	if !IsNavigation(unauth) || !IsNavigation(forbidden) {
		t.Errorf("401/403 errors should report navigation")
	}
	if IsNavigation(FromStatus(500, "boom")) {
		t.Errorf("500 should not report navigation")
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorCode
	}{
		{status: 401, want: ErrCodeUnauthenticated},
		{status: 403, want: ErrCodeForbidden},
		{status: 404, want: ErrCodeNotFound},
		{status: 409, want: ErrCodeStatus},
		{status: 502, want: ErrCodeStatus},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := FromStatus(tt.status, "backend said no")
			if err.Code != tt.want {
				t.Errorf("FromStatus(%d).Code = %v, want %v", tt.status, err.Code, tt.want)
			}
			if GetStatus(fmt.Errorf("wrapped: %w", err)) != tt.status {
				t.Errorf("GetStatus did not see wrapped status")
			}
			if IsNotFound(err) != (tt.status == 404) {
				t.Errorf("IsNotFound(FromStatus(%d)) = %v", tt.status, IsNotFound(err))
			}
		})
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeDecode, "decode payload")

	if err.Code != ErrCodeDecode {
		t.Errorf("Wrap().Code = %v, want %v", err.Code, ErrCodeDecode)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Wrap() should preserve cause")
	}
}

func TestWrap_NilError(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "message"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestMapTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "deadline", err: fmt.Errorf("dial: %w", context.DeadlineExceeded), want: ErrCodeTimeout},
		{name: "canceled", err: context.Canceled, want: ErrCodeCanceled},
		{name: "connection refused", err: errors.New("connect: connection refused"), want: ErrCodeTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapTransportError(tt.err)
			if got.Code != tt.want {
				t.Errorf("MapTransportError() code = %v, want %v", got.Code, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("MapTransportError() should preserve cause")
			}
		})
	}

	if MapTransportError(nil) != nil {
		t.Errorf("MapTransportError(nil) should be nil")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "app error", err: Validation("bad"), want: ErrCodeValidation},
		{name: "wrapped app error", err: fmt.Errorf("ctx: %w", FromStatus(404, "gone")), want: ErrCodeNotFound},
		{name: "plain error", err: errors.New("plain"), want: ""},
		{name: "nil", err: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}
