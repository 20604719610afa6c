// Package pricing resolves per-token rates for LLM providers and computes
// interaction costs from token counts. Rates are versioned in the database;
// this package supplies the seed registry and the lookup layer on top.
package pricing

import (
	"time"

	"costtrack/pkg/persistence"
)

// Provider name constants used across the ledger.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderPerplexity = "perplexity"
	ProviderGoogle     = "google"
	ProviderOllama     = "ollama"
)

// seedEffectiveFrom anchors the built-in registry. Rate changes after this
// date are recorded by closing the old window and inserting a new entry, not
// by editing the seed.
var seedEffectiveFrom = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// DefaultSeed returns the built-in price registry, per-1K-token USD rates as
// published by each provider. Local ollama models cost nothing but are seeded
// so their usage still resolves and aggregates.
func DefaultSeed() []*persistence.PricingEntry {
	entry := func(provider, model string, inputPer1K, outputPer1K float64, contextWindow int) *persistence.PricingEntry {
		return &persistence.PricingEntry{
			Provider:       provider,
			Model:          model,
			InputPer1KUSD:  inputPer1K,
			OutputPer1KUSD: outputPer1K,
			ContextWindow:  contextWindow,
			IsActive:       true,
			EffectiveFrom:  seedEffectiveFrom,
		}
	}

	return []*persistence.PricingEntry{
		entry(ProviderOpenAI, "gpt-4o", 0.0025, 0.01, 128000),
		entry(ProviderOpenAI, "gpt-4o-mini", 0.00015, 0.0006, 128000),
		entry(ProviderOpenAI, "o3", 0.002, 0.008, 200000),
		entry(ProviderOpenAI, "o3-mini", 0.0011, 0.0044, 200000),

		entry(ProviderAnthropic, "claude-opus-4-1", 0.015, 0.075, 200000),
		entry(ProviderAnthropic, "claude-sonnet-4", 0.003, 0.015, 200000),
		entry(ProviderAnthropic, "claude-3-5-haiku", 0.0008, 0.004, 200000),

		entry(ProviderPerplexity, "sonar", 0.001, 0.001, 127000),
		entry(ProviderPerplexity, "sonar-pro", 0.003, 0.015, 200000),

		entry(ProviderGoogle, "gemini-2.0-flash", 0.0001, 0.0004, 1048576),
		entry(ProviderGoogle, "gemini-2.5-pro", 0.00125, 0.01, 1048576),

		entry(ProviderOllama, "llama3.3", 0, 0, 128000),
		entry(ProviderOllama, "qwen2.5-coder", 0, 0, 128000),
	}
}
