package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ValidationError      ErrorCode = "validation_error"
	InvalidAmount        ErrorCode = "invalid_amount"
	NotFound             ErrorCode = "not_found"
	DuplicateKey         ErrorCode = "duplicate_key"
	StaleState           ErrorCode = "stale_state"
	InvalidTransition    ErrorCode = "invalid_transition"
	GatewayUnavailable   ErrorCode = "gateway_unavailable"
	GatewayRejected      ErrorCode = "gateway_rejected"
	GatewayProtocolError ErrorCode = "gateway_protocol_error"
	InternalError        ErrorCode = "internal_error"
)

type AppError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	cause     error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any AppError carrying the same code, so errors.Is works against
// the predefined values below after WithDetails or Wrap.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: code == GatewayUnavailable,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return NewAppError(code, fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of e carrying details.
func (e *AppError) WithDetails(details string) *AppError {
	c := *e
	c.Details = details
	return &c
}

// Wrap returns a copy of e that records cause as details and unwraps to it.
func (e *AppError) Wrap(cause error) *AppError {
	c := *e
	c.cause = cause
	if cause != nil {
		c.Details = cause.Error()
	}
	return &c
}

func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ValidationError, InvalidAmount:
		return http.StatusUnprocessableEntity
	case NotFound:
		return http.StatusNotFound
	case InvalidTransition, DuplicateKey:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// As extracts the AppError from err, converting anything else into an internal error.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal.Wrap(err)
}

// CodeOf returns the code of err, or the empty code when err is not an AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Predefined errors for common cases
var (
	ErrValidation         = NewAppError(ValidationError, "invalid request")
	ErrInvalidAmount      = NewAppError(InvalidAmount, "invalid amount")
	ErrNotFound           = NewAppError(NotFound, "transaction not found")
	ErrDuplicateKey       = NewAppError(DuplicateKey, "transaction already exists")
	ErrStaleState         = NewAppError(StaleState, "transaction status changed concurrently")
	ErrInvalidTransition  = NewAppError(InvalidTransition, "transition not allowed from current status")
	ErrGatewayUnavailable = NewAppError(GatewayUnavailable, "payment gateway unavailable")
	ErrGatewayRejected    = NewAppError(GatewayRejected, "payment gateway rejected the request")
	ErrGatewayProtocol    = NewAppError(GatewayProtocolError, "unexpected payment gateway response")
	ErrInternal           = NewAppError(InternalError, "an unexpected error occurred")
)
