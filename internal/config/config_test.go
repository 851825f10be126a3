package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
token: test-token
gateway:
  url: wss://gateway.example.chat
  intents: 513
  shard_count: 2
rest:
  url: https://api.example.chat/v10
  timeout: 10s
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Token != "test-token" {
		t.Errorf("Token = %q, want %q", cfg.Token, "test-token")
	}
	if cfg.Gateway.URL != "wss://gateway.example.chat" {
		t.Errorf("Gateway.URL = %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.Intents != 513 {
		t.Errorf("Gateway.Intents = %d, want 513", cfg.Gateway.Intents)
	}
	if cfg.Gateway.ShardCount != 2 {
		t.Errorf("Gateway.ShardCount = %d, want 2", cfg.Gateway.ShardCount)
	}
	if cfg.Rest.Timeout != 10*time.Second {
		t.Errorf("Rest.Timeout = %s, want 10s", cfg.Rest.Timeout)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "secret123")

	yaml := `
token: ${TEST_BOT_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Token != "secret123" {
		t.Errorf("Token = %q, want env-substituted %q", cfg.Token, "secret123")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load succeeded on missing file")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
token: test-token
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Rest.URL != DefaultRestURL {
		t.Errorf("Rest.URL = %q, want default %q", cfg.Rest.URL, DefaultRestURL)
	}
	if cfg.Rest.Timeout != DefaultRestTimeout {
		t.Errorf("Rest.Timeout = %s, want default %s", cfg.Rest.Timeout, DefaultRestTimeout)
	}
	if cfg.Gateway.ReconnectBaseDelay != DefaultReconnectBaseDelay {
		t.Errorf("Gateway.ReconnectBaseDelay = %s", cfg.Gateway.ReconnectBaseDelay)
	}
	if cfg.Gateway.IdentifyMinInterval != DefaultIdentifyMinInterval {
		t.Errorf("Gateway.IdentifyMinInterval = %s", cfg.Gateway.IdentifyMinInterval)
	}
	if cfg.Cache.MessageLimit != DefaultMessageLimit {
		t.Errorf("Cache.MessageLimit = %d", cfg.Cache.MessageLimit)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d", cfg.Metrics.Port)
	}

	// Defaults never override explicit values.
	if cfg.Gateway.URL != "" {
		t.Errorf("Gateway.URL defaulted to %q, want empty for discovery", cfg.Gateway.URL)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *GatewayConfig {
		cfg := &GatewayConfig{Token: "t"}
		cfg.applyDefaults()
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*GatewayConfig)
	}{
		{"missing token", func(c *GatewayConfig) { c.Token = "" }},
		{"negative shard count", func(c *GatewayConfig) { c.Gateway.ShardCount = -1 }},
		{"max delay below base", func(c *GatewayConfig) { c.Gateway.ReconnectMaxDelay = time.Millisecond }},
		{"missing rest url", func(c *GatewayConfig) { c.Rest.URL = "" }},
		{"zero message limit", func(c *GatewayConfig) { c.Cache.MessageLimit = 0 }},
		{"bad metrics port", func(c *GatewayConfig) { c.Metrics.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "gateway:\n  shard_count: 1\n")
	if _, err := LoadAndValidate(path); err == nil {
		t.Fatal("config without token accepted")
	}
}
