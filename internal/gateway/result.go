package gateway

import (
	apperrors "github.com/target/tourbook/internal/errors"
)

// Result is the outcome of one gateway call: either a decoded payload or a failure reason.
type Result[T any] struct {
	value T
	err   *apperrors.AppError
}

// Ok wraps a decoded payload.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail wraps a failure reason.
func Fail[T any](err *apperrors.AppError) Result[T] {
	if err == nil {
		err = apperrors.Internal("gateway: failure without reason")
	}
	return Result[T]{err: err}
}

// OK reports whether the call produced a payload.
func (r Result[T]) OK() bool { return r.err == nil }

// Value returns the payload and whether there was one.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.err == nil
}

// Ptr returns the payload, or nil on any failure.
func (r Result[T]) Ptr() *T {
	if r.err != nil {
		return nil
	}
	v := r.value
	return &v
}

// Err returns the failure reason, or nil.
func (r Result[T]) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

// Reason returns the failure as an AppError, or nil.
func (r Result[T]) Reason() *apperrors.AppError { return r.err }

// Navigated reports whether the failure already forced a navigation (401/403).
// Callers should render nothing further.
func (r Result[T]) Navigated() bool {
	return r.err != nil && apperrors.IsNavigation(r.err)
}

// Map transforms a successful payload.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	if r.err != nil {
		return Fail[U](r.err)
	}
	return Ok(fn(r.value))
}

// Envelope is the backend's {success, data, message} response shape.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

// Unwrap decodes an enveloped result into its data. A payload with success=false is a failure.
func Unwrap[T any](r Result[Envelope[T]]) Result[T] {
	if r.err != nil {
		return Fail[T](r.err)
	}
	if !r.value.Success {
		msg := r.value.Message
		if msg == "" {
			msg = "backend reported failure"
		}
		return Fail[T](apperrors.FromStatus(200, msg))
	}
	return Ok(r.value.Data)
}
