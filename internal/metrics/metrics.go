package metrics

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Gateway metrics
	ConnectedShards = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_connected_shards",
		Help: "Number of shard sessions currently in the Ready state.",
	})
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_received_total",
		Help: "Total dispatch events received, by event type.",
	}, []string{"type"})
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_reconnects_total",
		Help: "Total session reconnect attempts.",
	})
	HeartbeatMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_heartbeat_misses_total",
		Help: "Heartbeats sent without a timely acknowledgment.",
	})

	// REST metrics
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rest_requests_total",
		Help: "Total REST requests, by status class (2xx, 4xx, 5xx, 429, error).",
	}, []string{"class"})
	RateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rest_ratelimit_waits_total",
		Help: "Requests that waited on a rate-limit bucket or global pause.",
	})

	// Cache metrics
	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cache_entries",
		Help: "Cached entries, by entity kind.",
	}, []string{"kind"})
)

// Serve exposes the metrics endpoint. Blocks until the listener fails.
func Serve(port int, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics server listening", "addr", addr, "path", path)
	return http.ListenAndServe(addr, mux)
}
