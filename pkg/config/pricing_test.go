package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeOverlay(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPricingOverlay(t *testing.T) {
	path := writeOverlay(t, `
pricing:
  - provider: openai
    model: gpt-4o
    input_per_1k_usd: 0.0025
    output_per_1k_usd: 0.01
    context_window: 128000
    effective_from: "2025-06-01"
  - provider: anthropic
    model: claude-sonnet-4-20250514
    input_per_1k_usd: 0.003
    output_per_1k_usd: 0.015
    per_request_usd: 0.0001
    context_window: 200000
    effective_from: "2025-05-14"
    effective_to: "2025-12-01"
`)

	entries, err := LoadPricingOverlay(path)
	if err != nil {
		t.Fatalf("LoadPricingOverlay() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	first := entries[0]
	if first.Provider != "openai" || first.Model != "gpt-4o" {
		t.Errorf("entry 0 = %s/%s, want openai/gpt-4o", first.Provider, first.Model)
	}
	if first.InputPer1KUSD != 0.0025 {
		t.Errorf("InputPer1KUSD = %v, want 0.0025", first.InputPer1KUSD)
	}
	wantFrom := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if !first.EffectiveFrom.Equal(wantFrom) {
		t.Errorf("EffectiveFrom = %v, want %v", first.EffectiveFrom, wantFrom)
	}
	if first.EffectiveTo != nil {
		t.Errorf("EffectiveTo = %v, want nil", first.EffectiveTo)
	}
	if !first.IsActive {
		t.Error("IsActive = false, want true")
	}

	second := entries[1]
	if second.EffectiveTo == nil {
		t.Fatal("entry 1 EffectiveTo is nil")
	}
	wantTo := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	if !second.EffectiveTo.Equal(wantTo) {
		t.Errorf("EffectiveTo = %v, want %v", second.EffectiveTo, wantTo)
	}
}

func TestLoadPricingOverlayRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing model",
			content: `
pricing:
  - provider: openai
    input_per_1k_usd: 0.001
    effective_from: "2025-01-01"
`,
		},
		{
			name: "negative rate",
			content: `
pricing:
  - provider: openai
    model: gpt-4o
    input_per_1k_usd: -0.001
    effective_from: "2025-01-01"
`,
		},
		{
			name: "bad date",
			content: `
pricing:
  - provider: openai
    model: gpt-4o
    effective_from: "June 1st"
`,
		},
		{
			name: "inverted window",
			content: `
pricing:
  - provider: openai
    model: gpt-4o
    effective_from: "2025-06-01"
    effective_to: "2025-06-01"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeOverlay(t, tt.content)
			if _, err := LoadPricingOverlay(path); err == nil {
				t.Error("LoadPricingOverlay() accepted a bad entry")
			}
		})
	}
}
