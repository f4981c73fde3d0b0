package core

import (
	"errors"
	"fmt"
)

// Error is the error shape shared by the relay server and the conversation client.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest   ErrorType = "invalid_request_error"
	ErrPermission       ErrorType = "permission_error"
	ErrNotFound         ErrorType = "not_found_error"
	ErrOverloaded       ErrorType = "overloaded_error"
	ErrCapture          ErrorType = "capture_error"
	ErrSynthesis        ErrorType = "synthesis_error"
	ErrVoiceUnavailable ErrorType = "voice_unavailable_error"
	ErrChannel          ErrorType = "channel_error"
	ErrProvider         ErrorType = "provider_error"
	ErrProtocol         ErrorType = "protocol_error"
)

// Codes attached to provider errors.
const (
	CodeTimeout       = "timeout"
	CodeRateLimited   = "rate_limited"
	CodeUnauthorized  = "unauthorized"
	CodeUpstream      = "upstream_error"
	CodeEmptyResponse = "empty_response"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
	}
}

// NewOverloadedError creates an overloaded error.
func NewOverloadedError(message string) *Error {
	return &Error{
		Type:    ErrOverloaded,
		Message: message,
	}
}

// NewPermissionError creates a permission error.
func NewPermissionError(message string) *Error {
	return &Error{
		Type:    ErrPermission,
		Message: message,
	}
}

// NewChannelError wraps a relay transport failure.
func NewChannelError(underlying error) *Error {
	msg := "channel closed"
	if underlying != nil {
		msg = underlying.Error()
	}
	return &Error{
		Type:    ErrChannel,
		Message: msg,
		Cause:   underlying,
	}
}

// NewProviderError creates a provider-specific error.
func NewProviderError(provider, code string, underlying error) *Error {
	msg := provider
	if underlying != nil {
		msg = fmt.Sprintf("%s: %v", provider, underlying)
	}
	return &Error{
		Type:    ErrProvider,
		Message: msg,
		Code:    code,
		Cause:   underlying,
	}
}

// AsError extracts a *Error from err. Typed errors from the voice and protocol
// packages expose one through CoreError.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	var conv interface{ CoreError() *Error }
	if errors.As(err, &conv) {
		if ce := conv.CoreError(); ce != nil {
			return ce, true
		}
	}
	return nil, false
}

// IsTimeout reports whether err is a provider timeout.
func IsTimeout(err error) bool {
	ce, ok := AsError(err)
	return ok && ce.Type == ErrProvider && ce.Code == CodeTimeout
}
