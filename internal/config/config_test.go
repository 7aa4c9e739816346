package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: lpwatcher\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Monitoring.Interval != 30*time.Second {
		t.Fatalf("default interval wrong: %v", cfg.Monitoring.Interval)
	}
	if cfg.Monitoring.ThresholdPct != 5.0 {
		t.Fatalf("default threshold wrong: %v", cfg.Monitoring.ThresholdPct)
	}
	if cfg.Monitoring.WarningMultiplier != 2.0 || cfg.Monitoring.CriticalMultiplier != 3.0 {
		t.Fatalf("default multipliers wrong: %v / %v", cfg.Monitoring.WarningMultiplier, cfg.Monitoring.CriticalMultiplier)
	}
	if cfg.PriceCache.TTL != 5*time.Minute {
		t.Fatalf("default price cache ttl wrong: %v", cfg.PriceCache.TTL)
	}
	if cfg.Alerting.MaxMessageLen != 4096 {
		t.Fatalf("default max message len wrong: %d", cfg.Alerting.MaxMessageLen)
	}
	if cfg.Alerting.MinSendInterval != time.Second {
		t.Fatalf("default min send interval wrong: %v", cfg.Alerting.MinSendInterval)
	}
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
monitoring:
  interval: 1m
  threshold_pct: 10.0
pools:
  - name: cake-wbnb
    address: "0xabc"
    type: v2
    target_token: CAKE
    enabled: true
  - name: quiet-pool
    address: "0xdef"
    type: v3
    target_token: BUSD
    enabled: false
tokens:
  CAKE:
    coingecko_id: pancakeswap-token
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Monitoring.Interval != time.Minute {
		t.Fatalf("interval not applied: %v", cfg.Monitoring.Interval)
	}
	if len(cfg.Pools) != 2 {
		t.Fatalf("expected 2 pools, got %d", len(cfg.Pools))
	}

	enabled := cfg.EnabledPools()
	if len(enabled) != 1 || enabled[0].Name != "cake-wbnb" {
		t.Fatalf("EnabledPools wrong: %#v", enabled)
	}
}

func TestCoinGeckoIDCaseInsensitive(t *testing.T) {
	cfg := &Config{Tokens: map[string]Token{
		"cake": {CoinGeckoID: "pancakeswap-token"},
	}}

	if got := cfg.CoinGeckoID("CAKE"); got != "pancakeswap-token" {
		t.Fatalf("case-insensitive lookup failed: %q", got)
	}
	if got := cfg.CoinGeckoID("WBNB"); got != "" {
		t.Fatalf("unknown symbol should map to empty id, got %q", got)
	}
}

func TestValidateRejectsBadPoolType(t *testing.T) {
	_, err := Load(writeConfig(t, `
pools:
  - name: broken
    address: "0xabc"
    type: v4
    target_token: CAKE
`))
	if err == nil {
		t.Fatal("pool type v4 should be rejected")
	}
}

func TestValidateRejectsMissingTargetToken(t *testing.T) {
	_, err := Load(writeConfig(t, `
pools:
  - name: broken
    address: "0xabc"
    type: v2
`))
	if err == nil {
		t.Fatal("missing target_token should be rejected")
	}
}

func TestValidateRejectsMultiplierInversion(t *testing.T) {
	_, err := Load(writeConfig(t, `
monitoring:
  warning_multiplier: 3.0
  critical_multiplier: 2.0
`))
	if err == nil {
		t.Fatal("critical below warning should be rejected")
	}
}

func TestValidateRejectsTelegramWithoutToken(t *testing.T) {
	_, err := Load(writeConfig(t, `
alerting:
  enabled: true
  telegram:
    enabled: true
    chat_id: "123"
`))
	if err == nil {
		t.Fatal("telegram without bot_token should be rejected")
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 500}}
	if got := cfg.ResolveMaxPoints(0); got != 500 {
		t.Fatalf("config default not used: %d", got)
	}
	if got := cfg.ResolveMaxPoints(42); got != 42 {
		t.Fatalf("override not honored: %d", got)
	}
}
