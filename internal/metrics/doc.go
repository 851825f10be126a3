// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Gateway connection state, event throughput, and reconnect counts
//   - REST request totals by status class
//   - Rate-limit waits and global pauses
//   - Cache entry counts
package metrics
