package pricing

import (
	"fmt"
	"time"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates token counts for text when the provider response
// carries no usage block. All supported models approximate with the GPT-4
// encoding; provider tokenizers differ but stay within a few percent for
// typical prose.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter using the shared GPT-4 encoding.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.codec == nil {
		// Fallback to character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// EstimateTokens counts tokens without requiring a TokenCounter instance.
func EstimateTokens(text string) int {
	counter, err := NewTokenCounter()
	if err != nil {
		return len(text) / 4
	}
	return counter.CountTokens(text)
}

// EstimateCost prices a prompt before it is sent: the prompt's tokens are
// estimated, the expected output size is supplied by the caller, and both are
// priced at the rate in effect right now.
func (r *Resolver) EstimateCost(provider, model, prompt string, expectedOutputTokens int64) (float64, error) {
	inputUSD, outputUSD, err := r.Cost(provider, model, time.Now(), int64(EstimateTokens(prompt)), expectedOutputTokens)
	if err != nil {
		return 0, err
	}
	return inputUSD + outputUSD, nil
}

// FitsContext reports whether the text fits the model's context window at the
// current rate entry; unknown models always fit.
func (r *Resolver) FitsContext(provider, model, text string) bool {
	window := r.ContextWindow(provider, model, time.Now())
	if window <= 0 {
		return true
	}
	return EstimateTokens(text) <= window
}
