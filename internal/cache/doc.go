// Package cache holds the local view of remote entities, kept consistent
// by the streamed event feed.
//
// Properties:
//   - At most one entry per (kind, ID); last arrival wins
//   - Upserts merge partial payloads field by field, never blind-replace
//   - A read miss is a valid outcome, not an error
//   - Per-channel message rings evict oldest-first at capacity
//   - Striped locks serialize mutation per entity key; multiple shards
//     feed the cache concurrently
package cache
