// Package ratelimit implements per-route token accounting for the REST
// dispatcher.
//
// The limiter:
//   - Keys buckets by server-assigned bucket hash, falling back to the
//     route key until a hash is known
//   - Serializes requests to the same bucket; distinct buckets proceed
//     in parallel
//   - Honors relative reset-after durations only (never absolute server
//     clock values)
//   - Suspends all acquisitions during a global pause
//   - Evicts idle buckets in the background
package ratelimit
