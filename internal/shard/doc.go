// Package shard runs the fleet of gateway sessions for one token. The
// coordinator resolves the shard count, staggers identify calls behind a
// shared rate limiter, supervises each session's lifecycle, and feeds
// decoded events into the cache and the handler registry.
package shard
