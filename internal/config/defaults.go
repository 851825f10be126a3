package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL             = "https://api.example.chat/v10"
	DefaultRestTimeout         = 30 * time.Second
	DefaultMaxRetries          = 3
	DefaultRetryBackoff        = 500 * time.Millisecond
	DefaultReconnectBaseDelay  = 1 * time.Second
	DefaultReconnectMaxDelay   = 2 * time.Minute
	DefaultIdentifyMinInterval = 5 * time.Second
	DefaultPresenceStatus      = "online"
	DefaultMessageLimit        = 200
	DefaultBucketIdleTTL       = 10 * time.Minute
	DefaultMetricsPort         = 9090
	DefaultMetricsPath         = "/metrics"
)

func (c *GatewayConfig) applyDefaults() {
	// Gateway defaults. The URL itself has no default: an empty URL
	// means discovery through the REST API.
	if c.Gateway.PresenceStatus == "" {
		c.Gateway.PresenceStatus = DefaultPresenceStatus
	}
	if c.Gateway.ReconnectBaseDelay == 0 {
		c.Gateway.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Gateway.ReconnectMaxDelay == 0 {
		c.Gateway.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Gateway.IdentifyMinInterval == 0 {
		c.Gateway.IdentifyMinInterval = DefaultIdentifyMinInterval
	}

	// REST defaults
	if c.Rest.URL == "" {
		c.Rest.URL = DefaultRestURL
	}
	if c.Rest.Timeout == 0 {
		c.Rest.Timeout = DefaultRestTimeout
	}
	if c.Rest.MaxRetries == 0 {
		c.Rest.MaxRetries = DefaultMaxRetries
	}
	if c.Rest.RetryBackoff == 0 {
		c.Rest.RetryBackoff = DefaultRetryBackoff
	}

	// Cache defaults
	if c.Cache.MessageLimit == 0 {
		c.Cache.MessageLimit = DefaultMessageLimit
	}
	if c.Cache.BucketIdleTTL == 0 {
		c.Cache.BucketIdleTTL = DefaultBucketIdleTTL
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
