package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	defer SetConfigForTesting(nil)

	if err := LoadConfig(dir); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	cfg, err := GetConfig()
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if cfg.Database.Path != "costtrack.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "costtrack.db")
	}
	if cfg.Metrics.Mode != MetricsModeInternal {
		t.Errorf("Metrics.Mode = %q, want %q", cfg.Metrics.Mode, MetricsModeInternal)
	}
	if cfg.Budgets.SpikeWindowDays != 7 {
		t.Errorf("Budgets.SpikeWindowDays = %d, want 7", cfg.Budgets.SpikeWindowDays)
	}
	if cfg.Analytics.RefreshInterval != 15*time.Minute {
		t.Errorf("Analytics.RefreshInterval = %v, want 15m", cfg.Analytics.RefreshInterval)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	defer SetConfigForTesting(nil)

	content := `{
  "version": 1,
  "database": {"path": "ledger.db"},
  "budgets": {"daily_budget_usd": 25, "session_limit_usd": 5, "spike_multiplier": 4, "spike_window_days": 14},
  "metrics": {"mode": "off"},
  "analytics": {"refresh_interval": 300000000000}
}`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(dir); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	cfg, _ := GetConfig()
	if cfg.Database.Path != "ledger.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "ledger.db")
	}
	if cfg.Budgets.DailyBudgetUSD != 25 {
		t.Errorf("Budgets.DailyBudgetUSD = %v, want 25", cfg.Budgets.DailyBudgetUSD)
	}
	if cfg.Metrics.Mode != MetricsModeOff {
		t.Errorf("Metrics.Mode = %q, want %q", cfg.Metrics.Mode, MetricsModeOff)
	}
	if cfg.Analytics.RefreshInterval != 5*time.Minute {
		t.Errorf("Analytics.RefreshInterval = %v, want 5m", cfg.Analytics.RefreshInterval)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	defer SetConfigForTesting(nil)

	t.Setenv("COSTTRACK_BUDGETS_DAILY_BUDGET_USD", "42.5")
	t.Setenv("COSTTRACK_METRICS_MODE", "off")

	if err := LoadConfig(dir); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	cfg, _ := GetConfig()
	if cfg.Budgets.DailyBudgetUSD != 42.5 {
		t.Errorf("Budgets.DailyBudgetUSD = %v, want 42.5", cfg.Budgets.DailyBudgetUSD)
	}
	if cfg.Metrics.Mode != MetricsModeOff {
		t.Errorf("Metrics.Mode = %q, want %q", cfg.Metrics.Mode, MetricsModeOff)
	}
}

func TestLoadConfigRejectsNewerVersion(t *testing.T) {
	dir := t.TempDir()
	defer SetConfigForTesting(nil)

	content := `{"version": 99, "database": {"path": "x.db"}}`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(dir); err == nil {
		t.Error("LoadConfig() accepted config from a newer version")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults valid", mutate: func(*Config) {}, wantErr: false},
		{name: "empty db path", mutate: func(c *Config) { c.Database.Path = " " }, wantErr: true},
		{name: "negative daily budget", mutate: func(c *Config) { c.Budgets.DailyBudgetUSD = -1 }, wantErr: true},
		{name: "negative session limit", mutate: func(c *Config) { c.Budgets.SessionLimitUSD = -0.5 }, wantErr: true},
		{name: "bad metrics mode", mutate: func(c *Config) { c.Metrics.Mode = "statsd" }, wantErr: true},
		{name: "prometheus without url", mutate: func(c *Config) { c.Metrics.Mode = MetricsModePrometheus }, wantErr: true},
		{name: "prometheus with url", mutate: func(c *Config) {
			c.Metrics.Mode = MetricsModePrometheus
			c.Metrics.PrometheusURL = "http://localhost:9090"
		}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdateBudgets(t *testing.T) {
	SetConfigForTesting(DefaultConfig())
	defer SetConfigForTesting(nil)

	if err := UpdateBudgets(&BudgetConfig{DailyBudgetUSD: 10, SpikeMultiplier: 2, SpikeWindowDays: 3}); err != nil {
		t.Fatalf("UpdateBudgets() error = %v", err)
	}
	cfg, _ := GetConfig()
	if cfg.Budgets.DailyBudgetUSD != 10 {
		t.Errorf("Budgets.DailyBudgetUSD = %v, want 10", cfg.Budgets.DailyBudgetUSD)
	}

	if err := UpdateBudgets(&BudgetConfig{DailyBudgetUSD: -1}); err == nil {
		t.Error("UpdateBudgets() accepted a negative budget")
	}
}
