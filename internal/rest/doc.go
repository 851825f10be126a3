// Package rest implements the rate-limited request dispatcher.
//
// Every outbound call acquires a token from the bucket limiter first and
// reports response headers back to it, success or failure. Retry policy:
//   - 429: wait the server-specified delay, retry once
//   - 5xx and transport timeouts: exponential backoff, bounded attempts
//   - other 4xx: typed error, never retried
//   - 401: fatal auth error
//
// Streamed (non-replayable) bodies fail fast instead of retrying.
package rest
