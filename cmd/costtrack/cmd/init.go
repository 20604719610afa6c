package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"costtrack/pkg/config"
	"costtrack/pkg/persistence"
	"costtrack/pkg/pricing"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config file, database schema, and pricing seed",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

//nolint:gochecknoinits // cobra command registration
func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	configFile := filepath.Join(projectDir, config.ConfigFileName)
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig(), projectDir); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", configFile)
	}

	cfg, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	resolver := pricing.NewResolver(persistence.Ops())
	if err := resolver.Seed(); err != nil {
		return err
	}

	if cfg.PricingFile != "" {
		overlayPath := cfg.PricingFile
		if !filepath.IsAbs(overlayPath) {
			overlayPath = filepath.Join(projectDir, overlayPath)
		}
		entries, err := config.LoadPricingOverlay(overlayPath)
		if err != nil {
			return err
		}
		if err := persistence.Ops().SeedPricing(entries); err != nil {
			return err
		}
		fmt.Printf("applied pricing overlay %s (%d entries)\n", overlayPath, len(entries))
	}

	fmt.Printf("database ready at %s\n", resolveDBPath(&cfg))
	return nil
}
