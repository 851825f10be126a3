package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *GatewayConfig) Validate() error {
	if c.Token == "" {
		return errors.New("token is required")
	}

	if c.Gateway.ShardCount < 0 {
		return errors.New("gateway.shard_count must be >= 0")
	}
	if c.Gateway.ReconnectBaseDelay < 0 {
		return errors.New("gateway.reconnect_base_delay must be >= 0")
	}
	if c.Gateway.ReconnectMaxDelay < c.Gateway.ReconnectBaseDelay {
		return fmt.Errorf("gateway.reconnect_max_delay (%s) cannot be below reconnect_base_delay (%s)",
			c.Gateway.ReconnectMaxDelay, c.Gateway.ReconnectBaseDelay)
	}

	if c.Rest.URL == "" {
		return errors.New("rest.url is required")
	}
	if c.Rest.MaxRetries < 0 {
		return errors.New("rest.max_retries must be >= 0")
	}

	if c.Cache.MessageLimit < 1 {
		return errors.New("cache.message_limit must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}
