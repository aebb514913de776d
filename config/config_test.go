package config

import (
	"reflect"
	"testing"
	"time"
)

func TestApplyEnvOverridesDefaults(t *testing.T) {
	cfg := &Config{}
	applyEnvOverrides(cfg)

	if cfg.BybitConfig.BaseURL != "https://api.bybit.com" {
		t.Errorf("bybit base url = %q", cfg.BybitConfig.BaseURL)
	}
	if cfg.BybitConfig.WSBaseURL != "wss://stream.bybit.com/v5/private" {
		t.Errorf("bybit ws url = %q", cfg.BybitConfig.WSBaseURL)
	}
	if cfg.SniperConfig.FixedRateMs != 60000 || cfg.SniperConfig.Workers != 4 || cfg.SniperConfig.DrainWaitSec != 5 {
		t.Errorf("sniper defaults = %+v", cfg.SniperConfig)
	}
	if cfg.SniperConfig.Interval != "1h" || cfg.SniperConfig.Exchange != "BYBIT" {
		t.Errorf("sniper defaults = %+v", cfg.SniperConfig)
	}
	if cfg.DefaultConfig.FixedRateMs != 300000 {
		t.Errorf("default loop rate = %d", cfg.DefaultConfig.FixedRateMs)
	}
	if cfg.HedgingConfig.LossThresholdPercent != -0.15 ||
		cfg.HedgingConfig.VolatilityATRPercent != 0.04 ||
		cfg.HedgingConfig.HedgeRatio != 0.5 ||
		cfg.HedgingConfig.CooldownMinutes != 5 {
		t.Errorf("hedging defaults = %+v", cfg.HedgingConfig)
	}
	if cfg.RiskConfig.MaxRiskPerTrade != 0.015 || cfg.RiskConfig.MaxOpenPositions != 5 {
		t.Errorf("risk defaults = %+v", cfg.RiskConfig)
	}
	if cfg.ServerConfig.Port != 8080 {
		t.Errorf("server port = %d", cfg.ServerConfig.Port)
	}
	if cfg.AuthConfig.Enabled {
		t.Error("auth must default off")
	}
	if cfg.AuthConfig.AccessTokenDuration != 15*time.Minute {
		t.Errorf("token duration = %v", cfg.AuthConfig.AccessTokenDuration)
	}
}

func TestApplyEnvOverridesReadsEnvironment(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "env-key")
	t.Setenv("SNIPER_FIXED_RATE_MS", "30000")
	t.Setenv("SNIPER_SYMBOLS", "btcusdt, ethusdt ,solusdt")
	t.Setenv("HEDGING_RATIO", "0.25")
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("AUTH_ACCESS_TOKEN_DURATION", "1h")

	cfg := &Config{}
	applyEnvOverrides(cfg)

	if cfg.BybitConfig.APIKey != "env-key" {
		t.Errorf("api key = %q", cfg.BybitConfig.APIKey)
	}
	if cfg.SniperConfig.FixedRateMs != 30000 {
		t.Errorf("rate = %d", cfg.SniperConfig.FixedRateMs)
	}
	want := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	if !reflect.DeepEqual(cfg.SniperConfig.Symbols, want) {
		t.Errorf("symbols = %v, want %v", cfg.SniperConfig.Symbols, want)
	}
	if cfg.HedgingConfig.HedgeRatio != 0.25 {
		t.Errorf("hedge ratio = %v", cfg.HedgingConfig.HedgeRatio)
	}
	if !cfg.AuthConfig.Enabled || cfg.AuthConfig.AccessTokenDuration != time.Hour {
		t.Errorf("auth = %+v", cfg.AuthConfig)
	}
}

func TestEnvOverridesKeepFileValues(t *testing.T) {
	cfg := &Config{}
	cfg.SniperConfig.FixedRateMs = 45000
	cfg.ServerConfig.Port = 9090

	applyEnvOverrides(cfg)

	if cfg.SniperConfig.FixedRateMs != 45000 {
		t.Errorf("file rate overwritten: %d", cfg.SniperConfig.FixedRateMs)
	}
	if cfg.ServerConfig.Port != 9090 {
		t.Errorf("file port overwritten: %d", cfg.ServerConfig.Port)
	}
}

func TestSplitSymbols(t *testing.T) {
	got := splitSymbols(" btcusdt,ETHUSDT, ,solusdt ,")
	want := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitSymbols = %v, want %v", got, want)
	}
}

func TestEnvHelperParsing(t *testing.T) {
	t.Setenv("TEST_INT", "not-a-number")
	if got := getEnvIntOrDefault("TEST_INT", 7); got != 7 {
		t.Errorf("bad int env = %d, want fallback 7", got)
	}

	t.Setenv("TEST_FLOAT", "2.5")
	if got := getEnvFloatOrDefault("TEST_FLOAT", 1); got != 2.5 {
		t.Errorf("float env = %v, want 2.5", got)
	}

	t.Setenv("TEST_DURATION", "90s")
	if got := getEnvDurationOrDefault("TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Errorf("duration env = %v, want 90s", got)
	}
}
