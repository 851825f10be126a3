// Package gateway implements one persistent gateway connection: the
// session state machine, its heartbeat, and identify/resume handling.
//
// A session moves Connecting -> Identifying|Resuming -> Ready. Transient
// failures put it in Reconnecting with capped, jittered backoff; fatal
// close codes surface to the shard coordinator. Closed is terminal until
// the coordinator restarts the session.
package gateway
