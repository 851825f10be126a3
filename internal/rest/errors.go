package rest

import (
	"fmt"
	"time"
)

// APIError is the common shape of an error response.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// RateLimitError is an over-limit response (429). The dispatcher retries
// these automatically; callers only see one when retries are exhausted.
type RateLimitError struct {
	APIError
	RetryAfter time.Duration
	Global     bool
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s (global=%v)", e.RetryAfter, e.Global)
}

// ClientError is a non-retryable 4xx other than 429 and 401 (bad request,
// forbidden, not found).
type ClientError struct {
	APIError
}

// AuthError is an invalid or disallowed credential. Fatal: it stops the
// shard coordinator when surfaced from the gateway side too.
type AuthError struct {
	APIError
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error %d: %s", e.StatusCode, e.Message)
}

// ServerError is a 5xx. Retried with bounded exponential backoff.
type ServerError struct {
	APIError
}
