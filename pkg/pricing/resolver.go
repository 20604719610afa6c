package pricing

import (
	"fmt"
	"time"

	"costtrack/pkg/logx"
	"costtrack/pkg/persistence"
)

// Resolver looks up the rate in effect at a given instant and turns token
// counts into USD amounts.
type Resolver struct {
	store  *persistence.Store
	logger *logx.Logger
}

// NewResolver creates a resolver over the given store.
func NewResolver(store *persistence.Store) *Resolver {
	return &Resolver{
		store:  store,
		logger: logx.NewLogger("pricing"),
	}
}

// Seed loads the built-in registry, skipping entries that already exist.
// Called on startup so a fresh database resolves common models immediately.
func (r *Resolver) Seed() error {
	if err := r.store.SeedPricing(DefaultSeed()); err != nil {
		return fmt.Errorf("failed to seed pricing registry: %w", err)
	}
	r.logger.Debug("pricing registry seeded with %d entries", len(DefaultSeed()))
	return nil
}

// Rate returns the price point in effect for (provider, model) at the given
// instant.
func (r *Resolver) Rate(provider, model string, at time.Time) (*persistence.PricingEntry, error) {
	return r.store.CurrentPricing(provider, model, at)
}

// Cost computes the input and output USD amounts for one interaction at the
// rate in effect at the given instant. Any per-request surcharge is folded
// into the input side.
func (r *Resolver) Cost(provider, model string, at time.Time, inputTokens, outputTokens int64) (inputUSD, outputUSD float64, err error) {
	rate, err := r.Rate(provider, model, at)
	if err != nil {
		return 0, 0, err
	}
	inputUSD = float64(inputTokens)/1000*rate.InputPer1KUSD + rate.PerRequestUSD
	outputUSD = float64(outputTokens) / 1000 * rate.OutputPer1KUSD
	return inputUSD, outputUSD, nil
}

// ContextWindow returns the model's context window, or 0 when unknown.
func (r *Resolver) ContextWindow(provider, model string, at time.Time) int {
	rate, err := r.Rate(provider, model, at)
	if err != nil {
		return 0
	}
	return rate.ContextWindow
}
