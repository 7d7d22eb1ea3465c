// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Session errors
	ErrAuthExpired = &Error{Code: "AUTH_EXPIRED", Message: "brokerage session expired, sign in again"}
	ErrRateLimited = &Error{Code: "RATE_LIMITED", Message: "upstream rate limit reached"}

	// Data errors
	ErrSymbolNotFound   = &Error{Code: "SYMBOL_NOT_FOUND", Message: "symbol not found"}
	ErrNoData           = &Error{Code: "NO_DATA", Message: "no data available"}
	ErrInsufficientData = &Error{Code: "INSUFFICIENT_DATA", Message: "insufficient data for analysis"}

	// Provider errors
	ErrAccountFailed  = &Error{Code: "ACCOUNT_FAILED", Message: "account processing failed"}
	ErrProviderFailed = &Error{Code: "PROVIDER_FAILED", Message: "data provider failed"}

	// Request errors
	ErrInvalidRequest = &Error{Code: "INVALID_REQUEST", Message: "invalid request"}
	ErrNotFound       = &Error{Code: "NOT_FOUND", Message: "resource not found"}
	ErrUnauthorized   = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid API key"}

	// Sync errors
	ErrSyncInProgress = &Error{Code: "SYNC_IN_PROGRESS", Message: "a sync is already running"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
