// Package config provides configuration loading, validation, and management
// for the cost tracker.
//
// A single global Config instance is maintained in memory, protected by a
// mutex. GetConfig returns the config BY VALUE so callers cannot mutate the
// shared instance; all changes go through Update* functions, which validate
// before persisting. Runtime state (aggregates, alerts, pricing windows)
// belongs in the database, never in config.
//
// Priority on load: environment > file > defaults. Environment overrides use
// the COSTTRACK_ prefix, one group per subsystem (COSTTRACK_DATABASE_DB_PATH,
// COSTTRACK_BUDGETS_*, COSTTRACK_METRICS_*, COSTTRACK_ANALYTICS_*).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"

	"costtrack/pkg/logx"
)

// ConfigVersion is incremented whenever the config schema changes shape.
const ConfigVersion = 1

// ConfigFileName is the config file stored under the project directory.
const ConfigFileName = "costtrack.json"

// Metrics export modes.
const (
	MetricsModeOff        = "off"
	MetricsModeInternal   = "internal"
	MetricsModePrometheus = "prometheus"
)

//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config     *Config
	configPath string // Immutable after LoadConfig - set once at startup
	logger     *logx.Logger
	mu         sync.RWMutex
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// DatabaseConfig locates the SQLite database. The env tag deliberately
// avoids the bare name PATH, which envconfig would fall back to.
type DatabaseConfig struct {
	Path string `json:"path" envconfig:"DB_PATH"`
}

// BudgetConfig holds the spend thresholds the alert monitor enforces.
// A zero value disables the corresponding check.
type BudgetConfig struct {
	DailyBudgetUSD  float64 `json:"daily_budget_usd" envconfig:"DAILY_BUDGET_USD"`
	SessionLimitUSD float64 `json:"session_limit_usd" envconfig:"SESSION_LIMIT_USD"`
	SpikeMultiplier float64 `json:"spike_multiplier" envconfig:"SPIKE_MULTIPLIER"`
	SpikeWindowDays int     `json:"spike_window_days" envconfig:"SPIKE_WINDOW_DAYS"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	Mode          string `json:"mode" envconfig:"MODE"`
	PrometheusURL string `json:"prometheus_url,omitempty" envconfig:"PROMETHEUS_URL"`
}

// AnalyticsConfig controls the rollup refresh cadence.
type AnalyticsConfig struct {
	RefreshInterval time.Duration `json:"refresh_interval" envconfig:"REFRESH_INTERVAL"`
}

// Config is the root configuration object persisted to costtrack.json.
//
//nolint:govet // field order follows the file layout, not alignment
type Config struct {
	Version     int             `json:"version"`
	Database    DatabaseConfig  `json:"database"`
	Budgets     BudgetConfig    `json:"budgets"`
	Metrics     MetricsConfig   `json:"metrics"`
	Analytics   AnalyticsConfig `json:"analytics"`
	PricingFile string          `json:"pricing_file,omitempty" envconfig:"PRICING_FILE"`
}

// DefaultConfig returns the config used when no file exists yet.
func DefaultConfig() *Config {
	return &Config{
		Version: ConfigVersion,
		Database: DatabaseConfig{
			Path: "costtrack.db",
		},
		Budgets: BudgetConfig{
			DailyBudgetUSD:  0,
			SessionLimitUSD: 0,
			SpikeMultiplier: 3.0,
			SpikeWindowDays: 7,
		},
		Metrics: MetricsConfig{
			Mode: MetricsModeInternal,
		},
		Analytics: AnalyticsConfig{
			RefreshInterval: 15 * time.Minute,
		},
	}
}

// LoadConfig loads configuration for the given project directory and installs
// it as the global instance. Missing file means defaults; environment
// variables override both.
func LoadConfig(projectDir string) error {
	mu.Lock()
	defer mu.Unlock()

	cfg := DefaultConfig()
	path := filepath.Join(projectDir, ConfigFileName)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if cfg.Version > ConfigVersion {
			return fmt.Errorf("config %s has version %d, this build supports up to %d", path, cfg.Version, ConfigVersion)
		}
	case os.IsNotExist(err):
		getLogger().Debug("no config at %s, using defaults", path)
	default:
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := validateConfig(cfg); err != nil {
		return err
	}

	config = cfg
	configPath = path
	getLogger().Info("config loaded from %s (metrics=%s)", path, cfg.Metrics.Mode)
	return nil
}

func applyEnvOverrides(cfg *Config) {
	// envconfig.Process only errors on malformed struct tags, which is a
	// programming bug, not a runtime condition.
	_ = envconfig.Process("COSTTRACK_DATABASE", &cfg.Database)
	_ = envconfig.Process("COSTTRACK_BUDGETS", &cfg.Budgets)
	_ = envconfig.Process("COSTTRACK_METRICS", &cfg.Metrics)
	_ = envconfig.Process("COSTTRACK_ANALYTICS", &cfg.Analytics)
	_ = envconfig.Process("COSTTRACK", cfg)
}

// GetConfig returns a copy of the current config. LoadConfig must have been
// called first.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not loaded - call LoadConfig first")
	}
	return *config, nil
}

// SetConfigForTesting installs a config without touching the filesystem.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
	configPath = ""
}

// UpdateBudgets replaces the budget thresholds atomically and persists the
// config.
func UpdateBudgets(budgets *BudgetConfig) error {
	mu.Lock()
	defer mu.Unlock()
	if config == nil {
		return fmt.Errorf("config not loaded - call LoadConfig first")
	}
	candidate := *config
	candidate.Budgets = *budgets
	if err := validateConfig(&candidate); err != nil {
		return err
	}
	config = &candidate
	return saveConfigLocked()
}

// UpdateMetrics replaces the metrics settings atomically and persists the
// config.
func UpdateMetrics(metrics *MetricsConfig) error {
	mu.Lock()
	defer mu.Unlock()
	if config == nil {
		return fmt.Errorf("config not loaded - call LoadConfig first")
	}
	candidate := *config
	candidate.Metrics = *metrics
	if err := validateConfig(&candidate); err != nil {
		return err
	}
	config = &candidate
	return saveConfigLocked()
}

// SaveConfig writes the config to the given project directory.
func SaveConfig(cfg *Config, projectDir string) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(projectDir, ConfigFileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

func saveConfigLocked() error {
	if configPath == "" {
		return nil // testing config, nothing to persist
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", configPath, err)
	}
	return nil
}

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.Database.Path) == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if cfg.Budgets.DailyBudgetUSD < 0 {
		return fmt.Errorf("budgets.daily_budget_usd must not be negative")
	}
	if cfg.Budgets.SessionLimitUSD < 0 {
		return fmt.Errorf("budgets.session_limit_usd must not be negative")
	}
	if cfg.Budgets.SpikeMultiplier < 0 {
		return fmt.Errorf("budgets.spike_multiplier must not be negative")
	}
	if cfg.Budgets.SpikeWindowDays < 0 {
		return fmt.Errorf("budgets.spike_window_days must not be negative")
	}
	switch cfg.Metrics.Mode {
	case MetricsModeOff, MetricsModeInternal, MetricsModePrometheus:
	default:
		return fmt.Errorf("metrics.mode must be one of %s, %s, %s", MetricsModeOff, MetricsModeInternal, MetricsModePrometheus)
	}
	if cfg.Metrics.Mode == MetricsModePrometheus && strings.TrimSpace(cfg.Metrics.PrometheusURL) == "" {
		return fmt.Errorf("metrics.prometheus_url is required when metrics.mode is %s", MetricsModePrometheus)
	}
	if cfg.Analytics.RefreshInterval < 0 {
		return fmt.Errorf("analytics.refresh_interval must not be negative")
	}
	return nil
}
