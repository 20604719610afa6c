package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"costtrack/pkg/persistence"
)

// pricingOverlayFile is the YAML shape of a pricing overlay file. Operators
// drop one next to the config to seed prices for models the built-in
// registry does not know, or to open new windows after a vendor price
// change.
type pricingOverlayFile struct {
	Pricing []pricingOverlayEntry `yaml:"pricing"`
}

type pricingOverlayEntry struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	InputPer1KUSD  float64 `yaml:"input_per_1k_usd"`
	OutputPer1KUSD float64 `yaml:"output_per_1k_usd"`
	PerRequestUSD  float64 `yaml:"per_request_usd"`
	ContextWindow  int     `yaml:"context_window"`
	EffectiveFrom  string  `yaml:"effective_from"`
	EffectiveTo    string  `yaml:"effective_to,omitempty"`
}

// LoadPricingOverlay parses a YAML pricing overlay file into pricing entries
// ready for seeding. Dates are YYYY-MM-DD and interpreted as UTC midnight.
func LoadPricingOverlay(path string) ([]*persistence.PricingEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing overlay %s: %w", path, err)
	}

	var file pricingOverlayFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse pricing overlay %s: %w", path, err)
	}

	entries := make([]*persistence.PricingEntry, 0, len(file.Pricing))
	for i := range file.Pricing {
		entry, err := file.Pricing[i].toPricingEntry()
		if err != nil {
			return nil, fmt.Errorf("pricing overlay %s entry %d: %w", path, i, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (e *pricingOverlayEntry) toPricingEntry() (*persistence.PricingEntry, error) {
	if e.Provider == "" || e.Model == "" {
		return nil, fmt.Errorf("provider and model are required")
	}
	if e.InputPer1KUSD < 0 || e.OutputPer1KUSD < 0 || e.PerRequestUSD < 0 {
		return nil, fmt.Errorf("rates must not be negative")
	}

	from, err := time.ParseInLocation(persistence.DateLayout, e.EffectiveFrom, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid effective_from %q: %w", e.EffectiveFrom, err)
	}

	entry := &persistence.PricingEntry{
		Provider:       e.Provider,
		Model:          e.Model,
		InputPer1KUSD:  e.InputPer1KUSD,
		OutputPer1KUSD: e.OutputPer1KUSD,
		PerRequestUSD:  e.PerRequestUSD,
		ContextWindow:  e.ContextWindow,
		EffectiveFrom:  from,
		IsActive:       true,
	}
	if e.EffectiveTo != "" {
		to, err := time.ParseInLocation(persistence.DateLayout, e.EffectiveTo, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid effective_to %q: %w", e.EffectiveTo, err)
		}
		if !to.After(from) {
			return nil, fmt.Errorf("effective_to %q must be after effective_from %q", e.EffectiveTo, e.EffectiveFrom)
		}
		entry.EffectiveTo = &to
	}
	return entry, nil
}
