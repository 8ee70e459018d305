// Package resilience wraps fallible external operations (LLM calls, database
// calls, remote APIs) with error classification and jittered exponential
// backoff retry. Classification maps an arbitrary failure to one of a closed
// set of kinds; only transient kinds are retried.
package resilience

import (
	"fmt"
)

// ErrorKind is the closed classification of a failure.
type ErrorKind string

const (
	// KindRateLimit indicates the remote side throttled the request (retryable).
	KindRateLimit ErrorKind = "rate_limit"
	// KindTimeout indicates the operation timed out (retryable).
	KindTimeout ErrorKind = "timeout"
	// KindServerError indicates a 5xx-class remote failure (retryable).
	KindServerError ErrorKind = "server_error"
	// KindNetworkError indicates a low-level connectivity failure (retryable).
	KindNetworkError ErrorKind = "network_error"
	// KindAuthError indicates missing or invalid credentials (not retryable).
	KindAuthError ErrorKind = "auth_error"
	// KindValidationError indicates a malformed request (not retryable).
	KindValidationError ErrorKind = "validation_error"
	// KindUnknown is the fallback for unclassifiable failures (not retryable).
	KindUnknown ErrorKind = "unknown"
)

// Retryable returns true if failures of this kind may succeed on retry.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimit, KindTimeout, KindServerError, KindNetworkError:
		return true
	default:
		return false
	}
}

// APIError is the explicit error value produced by remote-call adapters.
// Carrying the HTTP status and provider code as typed fields lets Classify
// work without probing ad hoc properties at runtime.
type APIError struct {
	// Provider names the remote system (e.g. "openai", "anthropic", "pubmed").
	Provider string
	// StatusCode is the HTTP status code, or 0 when no response was received.
	StatusCode int
	// Code is the provider-specific error code, if any.
	Code string
	// Message is the error message from the remote system.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: API error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError creates a new APIError.
func NewAPIError(provider string, statusCode int, message string, cause error) *APIError {
	return &APIError{
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Err:        cause,
	}
}
