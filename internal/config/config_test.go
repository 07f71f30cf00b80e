package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("CACHE_TTL_SECONDS", "")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "")
	t.Setenv("REPUTATION_WEIGHTS", "")

	cfg := Load()
	if cfg.CacheTTLSecs != 300 {
		t.Fatalf("expected default cache TTL 300, got %d", cfg.CacheTTLSecs)
	}
	if cfg.CacheFlushWrites != 10 {
		t.Fatalf("expected default flush writes 10, got %d", cfg.CacheFlushWrites)
	}
	if cfg.BreakerFailureThreshold != 5 || cfg.BreakerCooldownSecs != 60 {
		t.Fatalf("unexpected breaker defaults: %d / %d", cfg.BreakerFailureThreshold, cfg.BreakerCooldownSecs)
	}
	if cfg.RetryMaxAttempts != 3 || cfg.RetryBaseDelayMs != 1000 || cfg.RetryJitterFraction != 0.20 {
		t.Fatalf("unexpected retry defaults: %+v", cfg)
	}
	if cfg.WinnerROIThreshold != 1.5 {
		t.Fatalf("expected winner threshold 1.5, got %f", cfg.WinnerROIThreshold)
	}
	if len(cfg.ProviderOrder) != 5 || cfg.ProviderOrder[0] != "dexscreener" {
		t.Fatalf("unexpected provider order: %v", cfg.ProviderOrder)
	}
	if len(cfg.CheckpointHorizons) != 4 || cfg.DecisionHorizon != "24h" {
		t.Fatalf("unexpected horizons: %v decision=%s", cfg.CheckpointHorizons, cfg.DecisionHorizon)
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CACHE_TTL_SECONDS", "30")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "7")
	t.Setenv("RETRY_JITTER_FRACTION", "0.1")
	t.Setenv("PROVIDER_ORDER", "geckoterminal, dexscreener")
	t.Setenv("REPUTATION_WEIGHTS", "1,1,1,1")

	cfg := Load()
	if cfg.CacheTTLSecs != 30 || cfg.BreakerFailureThreshold != 7 || cfg.RetryJitterFraction != 0.1 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if len(cfg.ProviderOrder) != 2 || cfg.ProviderOrder[0] != "geckoterminal" || cfg.ProviderOrder[1] != "dexscreener" {
		t.Fatalf("provider order not parsed: %v", cfg.ProviderOrder)
	}
	if cfg.ReputationWeights.WinRate != 0.25 || cfg.ReputationWeights.Speed != 0.25 {
		t.Fatalf("weights should be normalized to sum 1: %+v", cfg.ReputationWeights)
	}

	t.Setenv("CACHE_TTL_SECONDS", "bad")
	cfg = Load()
	if cfg.CacheTTLSecs != 300 {
		t.Fatalf("invalid TTL should fall back to default, got %d", cfg.CacheTTLSecs)
	}
}

func TestLoadInvalidWeightsKeepDefault(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REPUTATION_WEIGHTS", "0.5,0.5")

	cfg := Load()
	if cfg.ReputationWeights.WinRate != 0.35 {
		t.Fatalf("malformed weights should keep defaults, got %+v", cfg.ReputationWeights)
	}
}

func TestLoadConfigFileThenEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mintwatch.yaml")
	body := []byte("cache_ttl_seconds: 120\nwinner_roi_threshold: 2.0\ndead_liquidity_usd: 500\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CACHE_TTL_SECONDS", "45")

	cfg := Load()
	if cfg.CacheTTLSecs != 45 {
		t.Fatalf("env should win over file, got %d", cfg.CacheTTLSecs)
	}
	if cfg.WinnerROIThreshold != 2.0 || cfg.DeadLiquidityUSD != 500 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}

func TestLoadAppendsDecisionHorizon(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CHECKPOINT_HORIZONS", "1h,7d")
	t.Setenv("DECISION_HORIZON", "24h")

	cfg := Load()
	if !containsHorizon(cfg.CheckpointHorizons, "24h") {
		t.Fatalf("decision horizon should be appended: %v", cfg.CheckpointHorizons)
	}
}
