// Package core provides shared types for the complaint service: the error
// taxonomy returned to API clients and the acting-user identity carried
// through request contexts.
package core

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of error that occurred
type ErrorType string

const (
	// ErrorTypeConflict indicates a coordination conflict: a resource lock held
	// by another user, an idempotency key reused with a different payload, or a
	// duplicate request currently being processed (409)
	ErrorTypeConflict ErrorType = "conflict_error"
	// ErrorTypeValidation indicates a malformed or incomplete request (400/422)
	ErrorTypeValidation ErrorType = "validation_error"
	// ErrorTypeUnavailable indicates required infrastructure is unreachable (503)
	ErrorTypeUnavailable ErrorType = "unavailable_error"
	// ErrorTypeNotFound indicates a missing resource (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
	// ErrorTypeAuthentication indicates a missing or invalid credential (401)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeForbidden indicates the caller lacks the required role (403)
	ErrorTypeForbidden ErrorType = "forbidden_error"
	// ErrorTypeRateLimit indicates the caller exceeded its request budget (429)
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
)

// RetryHint tells a client what to do with a failed request.
type RetryHint string

const (
	// RetryLater: the failure is transient (duplicate in flight, infrastructure
	// unavailable); the same request may be retried after a delay.
	RetryLater RetryHint = "retry_later"
	// DoNotRetry: the request itself is wrong (payload mismatch, validation);
	// retrying the identical request will fail the same way.
	DoNotRetry RetryHint = "do_not_retry"
	// ResourceBusy: another user holds the resource; retry once they finish.
	ResourceBusy RetryHint = "resource_busy"
)

// APIError is the base error type for all service errors surfaced to clients.
type APIError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Retry      RetryHint `json:"retriable,omitempty"`
	// Holder names the current lock holder for resource-busy conflicts.
	Holder string `json:"holder,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *APIError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeForbidden:
		return http.StatusForbidden
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *APIError) ToJSON() map[string]interface{} {
	inner := map[string]interface{}{
		"type":    e.Type,
		"message": e.Message,
	}
	if e.Retry != "" {
		inner["retriable"] = e.Retry
	}
	if e.Holder != "" {
		inner["holder"] = e.Holder
	}
	return map[string]interface{}{"error": inner}
}

// NewConflictError creates a conflict error with an explicit retry hint.
func NewConflictError(message string, hint RetryHint) *APIError {
	return &APIError{
		Type:       ErrorTypeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
		Retry:      hint,
	}
}

// NewLockHeldError creates a conflict error naming the current lock holder.
func NewLockHeldError(resourceID, holder string) *APIError {
	return &APIError{
		Type:       ErrorTypeConflict,
		Message:    fmt.Sprintf("resource %s is locked by another user", resourceID),
		StatusCode: http.StatusConflict,
		Retry:      ResourceBusy,
		Holder:     holder,
	}
}

// NewValidationError creates a validation error (400)
func NewValidationError(message string, err error) *APIError {
	return &APIError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Retry:      DoNotRetry,
		Err:        err,
	}
}

// NewUnavailableError creates an unavailable error (503). Used when the
// key-value store is unreachable during an operation that must fail closed.
func NewUnavailableError(message string, err error) *APIError {
	return &APIError{
		Type:       ErrorTypeUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Retry:      RetryLater,
		Err:        err,
	}
}

// NewNotFoundError creates a not found error (404)
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewAuthenticationError creates an authentication error (401)
func NewAuthenticationError(message string) *APIError {
	return &APIError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewForbiddenError creates a forbidden error (403)
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Type:       ErrorTypeForbidden,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// NewRateLimitError creates a rate limit error (429)
func NewRateLimitError(message string) *APIError {
	return &APIError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Retry:      RetryLater,
	}
}
