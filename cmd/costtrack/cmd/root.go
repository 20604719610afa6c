// Package cmd wires the costtrack CLI: ledger recording, reports, alert
// management, analytics refresh, and orchestration control over one shared
// SQLite database.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"costtrack/pkg/config"
	"costtrack/pkg/ledger"
	"costtrack/pkg/metrics"
	"costtrack/pkg/persistence"
	"costtrack/pkg/pricing"
)

var (
	projectDir string
	jsonOut    bool
)

var rootCmd = &cobra.Command{
	Use:   "costtrack",
	Short: "LLM cost ledger and multi-agent orchestration tracker",
	Long: `costtrack records every LLM API call into an immutable cost ledger,
maintains per-session and per-day spending aggregates, resolves prices
from a versioned registry, raises budget alerts, and tracks multi-agent
project orchestration through a six-stage journey.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

//nolint:gochecknoinits // cobra command registration
func init() {
	rootCmd.PersistentFlags().StringVar(&projectDir, "project-dir", ".", "directory holding costtrack.json and the database")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "emit JSON output")
}

// loadConfig loads the project's config file into the global instance and
// returns a copy.
func loadConfig() (config.Config, error) {
	if err := config.LoadConfig(projectDir); err != nil {
		return config.Config{}, err
	}
	return config.GetConfig()
}

// resolveDBPath anchors a relative database path at the project directory.
func resolveDBPath(cfg *config.Config) string {
	if filepath.IsAbs(cfg.Database.Path) {
		return cfg.Database.Path
	}
	return filepath.Join(projectDir, cfg.Database.Path)
}

// openDatabase loads config and opens the shared database connection. The
// returned cleanup closes it.
func openDatabase() (config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := persistence.Initialize(resolveDBPath(&cfg)); err != nil {
		return config.Config{}, nil, err
	}
	cleanup := func() {
		if err := persistence.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close database: %v\n", err)
		}
	}
	return cfg, cleanup, nil
}

// newRecorder picks the metrics backend the config asks for.
func newRecorder(cfg *config.Config) metrics.Recorder {
	switch cfg.Metrics.Mode {
	case config.MetricsModePrometheus:
		return metrics.NewPrometheusRecorder()
	case config.MetricsModeInternal:
		return metrics.NewInternalRecorder()
	default:
		return metrics.Nop()
	}
}

// newLedgerService assembles the pricing resolver and recording service over
// the open database.
func newLedgerService(cfg *config.Config) *ledger.Service {
	store := persistence.Ops()
	resolver := pricing.NewResolver(store)
	return ledger.NewService(store, resolver, newRecorder(cfg), cfg.Budgets.DailyBudgetUSD)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
