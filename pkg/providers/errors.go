package providers

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoProvidersConfigured is returned at startup when the active provider
// set is empty after credential resolution. It is the only fatal error in
// the dispatch subsystem.
var ErrNoProvidersConfigured = errors.New("no providers configured")

// ErrCredentialNotFound is returned by a CredentialSource when a credential
// reference cannot be resolved. The affected provider is excluded from the
// active set rather than failing startup.
var ErrCredentialNotFound = errors.New("credential not found")

// ProviderError represents an upstream provider error with its HTTP status.
type ProviderError struct {
	// Provider is the descriptor ID of the provider that returned the error.
	Provider string

	// StatusCode is the HTTP status code (0 if not applicable).
	StatusCode int

	// Message is the error message, usually the upstream response body.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %q error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// RateLimitError represents a rate limit exceeded signal (HTTP 429).
type RateLimitError struct {
	// Provider is the descriptor ID of the provider that rate limited the request.
	Provider string

	// RetryAfter is the duration to wait before retrying, if reported upstream.
	RetryAfter time.Duration

	// Message is the error message from the provider.
	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %q rate limit exceeded (retry after %s): %s",
			e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("provider %q rate limit exceeded: %s", e.Provider, e.Message)
}

// TimeoutError represents an attempt that exceeded the descriptor's timeout.
type TimeoutError struct {
	// Provider is the descriptor ID of the provider where the timeout occurred.
	Provider string

	// Timeout is the configured per-attempt timeout.
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider %q attempt timeout after %s", e.Provider, e.Timeout)
}

// ParseError represents a malformed upstream response.
type ParseError struct {
	// Provider is the descriptor ID of the provider that returned the response.
	Provider string

	// RawResponse is the raw body that failed to parse, possibly truncated.
	RawResponse string

	// Cause is the underlying parse error.
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("provider %q response parse error: %v", e.Provider, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}
