package config

import "time"

// GatewayConfig is the root configuration for a client instance.
type GatewayConfig struct {
	Token   string        `yaml:"token"`
	Gateway GatewaySect   `yaml:"gateway"`
	Rest    RestConfig    `yaml:"rest"`
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// GatewaySect holds gateway connection settings.
type GatewaySect struct {
	URL        string `yaml:"url"`
	Intents    uint64 `yaml:"intents"`
	ShardCount int    `yaml:"shard_count"` // 0 uses the recommended count

	PresenceStatus string `yaml:"presence_status"`

	ReconnectBaseDelay  time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay   time.Duration `yaml:"reconnect_max_delay"`
	IdentifyMinInterval time.Duration `yaml:"identify_min_interval"`
}

// RestConfig holds HTTP API settings.
type RestConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// CacheConfig holds entity cache settings.
type CacheConfig struct {
	MessageLimit  int           `yaml:"message_limit"`
	BucketIdleTTL time.Duration `yaml:"bucket_idle_ttl"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
