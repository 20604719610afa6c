package pricing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costtrack/pkg/persistence"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "pricing_test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	db, err := persistence.InitializeDatabase(filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	resolver := NewResolver(persistence.NewStore(db))
	require.NoError(t, resolver.Seed())
	return resolver
}

func TestResolverCost(t *testing.T) {
	resolver := newTestResolver(t)
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// 1000 input + 500 output on gpt-4o: 0.0025 + 0.005.
	inputUSD, outputUSD, err := resolver.Cost(ProviderOpenAI, "gpt-4o", at, 1000, 500)
	require.NoError(t, err)
	assert.InDelta(t, 0.0025, inputUSD, 1e-9)
	assert.InDelta(t, 0.005, outputUSD, 1e-9)

	// Local models cost nothing.
	inputUSD, outputUSD, err = resolver.Cost(ProviderOllama, "llama3.3", at, 100000, 50000)
	require.NoError(t, err)
	assert.Zero(t, inputUSD)
	assert.Zero(t, outputUSD)

	// Unknown models fail loudly rather than recording zero cost.
	_, _, err = resolver.Cost(ProviderOpenAI, "gpt-9000", at, 100, 100)
	assert.ErrorIs(t, err, persistence.ErrPricingNotFound)

	// The seed epoch bounds rate resolution.
	_, _, err = resolver.Cost(ProviderOpenAI, "gpt-4o", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 100, 100)
	assert.ErrorIs(t, err, persistence.ErrPricingNotFound)
}

func TestResolverSeedIdempotent(t *testing.T) {
	resolver := newTestResolver(t)
	require.NoError(t, resolver.Seed())

	entries, err := resolver.store.ListCurrentPricing()
	require.NoError(t, err)
	assert.Len(t, entries, len(DefaultSeed()))
}

func TestResolverContextWindow(t *testing.T) {
	resolver := newTestResolver(t)
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 128000, resolver.ContextWindow(ProviderOpenAI, "gpt-4o", at))
	assert.Equal(t, 200000, resolver.ContextWindow(ProviderAnthropic, "claude-opus-4-1", at))
	assert.Zero(t, resolver.ContextWindow(ProviderOpenAI, "gpt-9000", at))
}

func TestEstimateCost(t *testing.T) {
	resolver := newTestResolver(t)

	prompt := "Summarize the quarterly cost report in three bullet points."
	estimate, err := resolver.EstimateCost(ProviderOpenAI, "gpt-4o", prompt, 200)
	require.NoError(t, err)

	promptTokens := int64(EstimateTokens(prompt))
	want := float64(promptTokens)/1000*0.0025 + 200.0/1000*0.01
	assert.InDelta(t, want, estimate, 1e-9)

	// Zero-cost local models estimate to zero.
	free, err := resolver.EstimateCost(ProviderOllama, "llama3.3", prompt, 200)
	require.NoError(t, err)
	assert.Zero(t, free)

	_, err = resolver.EstimateCost(ProviderOpenAI, "gpt-99", prompt, 200)
	assert.ErrorIs(t, err, persistence.ErrPricingNotFound)
}

func TestTokenCounter(t *testing.T) {
	counter, err := NewTokenCounter()
	require.NoError(t, err)

	count := counter.CountTokens("The quick brown fox jumps over the lazy dog.")
	assert.Greater(t, count, 5)
	assert.Less(t, count, 20)

	assert.Zero(t, counter.CountTokens(""))

	// The fallback estimator stays in the same ballpark.
	fallback := (&TokenCounter{}).CountTokens("The quick brown fox jumps over the lazy dog.")
	assert.Greater(t, fallback, 5)
}
