// Package client is the top-level facade: it wires the REST client, the
// shard coordinator, the entity cache, and the event registry into one
// handle. Reads consult the cache first and fall back to the REST API,
// repopulating the cache on the way back.
package client
