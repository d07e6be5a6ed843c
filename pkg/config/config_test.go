package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
environment: test
providers:
  order: [yahoo, alphavantage]
  alpha_vantage:
    api_key: demo
universe:
  source: static
  static: [AAPL, MSFT]
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Acquisition.FullHistoryDays != 730 || c.Acquisition.BatchSize != 10 {
		t.Fatalf("unexpected acquisition defaults %+v", c.Acquisition)
	}
	if c.RateLimit.BaseCooldown != time.Second || c.RateLimit.MaxCooldown != 60*time.Second {
		t.Fatalf("unexpected cooldown defaults %v %v", c.RateLimit.BaseCooldown, c.RateLimit.MaxCooldown)
	}
	if c.RateLimit.MaxHits != 10 || c.Features.OutputWindowDays != 30 {
		t.Fatalf("unexpected defaults")
	}
	if c.Storage.Type != "local" || c.Logger.Level != "info" {
		t.Fatalf("unexpected storage/logger defaults")
	}
}

func TestParseKeepsExplicitValues(t *testing.T) {
	c, err := Parse([]byte(minimalYAML + `
acquisition:
  batch_size: 25
  batch_cooldown: 5s
rate_limit:
  calls_per_window: 5
  window: 1s
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Acquisition.BatchSize != 25 || c.Acquisition.BatchCooldown != 5*time.Second {
		t.Fatalf("explicit values overwritten: %+v", c.Acquisition)
	}
	if c.RateLimit.CallsPerWindow != 5 || c.RateLimit.Window != time.Second {
		t.Fatalf("explicit rate limit overwritten: %+v", c.RateLimit)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad storage", minimalYAML + "storage:\n  type: ftp\n", "Type"},
		{"bucket required", minimalYAML + "storage:\n  type: s3\n", "bucket"},
		{"threshold range", minimalYAML + "acquisition:\n  failure_threshold: 1.5\n", "FailureThreshold"},
		{"unknown provider", strings.Replace(minimalYAML, "[yahoo, alphavantage]", "[yahoo, bloomberg]", 1), "Order"},
		{"missing key", strings.Replace(minimalYAML, "api_key: demo", "api_key: \"\"", 1), "api_key"},
		{"cooldown order", minimalYAML + "rate_limit:\n  base_cooldown: 2m\n", "max_cooldown"},
	}
	for _, tt := range tests {
		_, err := Parse([]byte(tt.yaml))
		if err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: error %q does not mention %q", tt.name, err, tt.want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	env := map[string]string{
		"REDIS_ADDR":    "cache.internal:6380",
		"KAFKA_BROKERS": "k1:9092,k2:9092",
		"STORAGE_TYPE":  "memory",
	}
	c.applyEnv(func(k string) string { return env[k] })
	if !c.Redis.Enabled || c.Redis.Host != "cache.internal" || c.Redis.Port != 6380 {
		t.Fatalf("redis env not applied: %+v", c.Redis)
	}
	if !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("kafka env not applied: %+v", c.Kafka.Brokers)
	}
	if c.Storage.Type != "memory" {
		t.Fatalf("storage env not applied")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Environment != "test" || c.TestMode() {
		t.Fatalf("unexpected config %q mode=%q", c.Environment, c.Mode)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
