package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Classify maps an arbitrary failure to one of the closed set of error kinds.
// Classification is checked in priority order:
//
//  1. An APIError's HTTP status code.
//  2. Low-level network and timeout errors (syscall errnos, net.Error,
//     context deadline).
//  3. Case-insensitive substring matching on the error message.
//  4. KindUnknown.
//
// The function is total: it never fails, and nil classifies as KindUnknown.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		if kind, ok := classifyStatus(apiErr.StatusCode); ok {
			return kind
		}
	}

	if kind, ok := classifyNetwork(err); ok {
		return kind
	}

	return classifyMessage(err.Error())
}

// IsRetryable reports whether err is worth retrying: true iff it classifies
// as rate-limit, timeout, server-error, or network-error.
func IsRetryable(err error) bool {
	return Classify(err).Retryable()
}

// classifyStatus maps an HTTP status code to an error kind.
func classifyStatus(status int) (ErrorKind, bool) {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimit, true
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuthError, true
	case http.StatusRequestTimeout:
		return KindTimeout, true
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidationError, true
	}
	if status >= 500 {
		return KindServerError, true
	}
	return KindUnknown, false
}

// classifyNetwork maps low-level connectivity and timeout failures.
func classifyNetwork(err error) (ErrorKind, bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout, true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && (dnsErr.IsTemporary || dnsErr.IsTimeout) {
		return KindNetworkError, true
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return KindNetworkError, true
	case errors.Is(err, syscall.ETIMEDOUT):
		return KindTimeout, true
	}

	return KindUnknown, false
}

// classifyMessage falls back to case-insensitive substring matching on the
// error message, covering errors from libraries that flatten their causes
// into text.
func classifyMessage(msg string) ErrorKind {
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "too many requests"):
		return KindRateLimit
	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "timed out"):
		return KindTimeout
	case strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "fetch failed"),
		strings.Contains(lower, "network"):
		return KindNetworkError
	case strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "forbidden"),
		strings.Contains(lower, "invalid api key"):
		return KindAuthError
	default:
		return KindUnknown
	}
}
