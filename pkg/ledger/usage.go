package ledger

import (
	"github.com/anthropics/anthropic-sdk-go"
	ollama "github.com/ollama/ollama/api"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

// Usage is the provider-neutral token count for one LLM call. Converters
// below extract it from each SDK's response type so callers never touch
// provider structs directly.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// FromOpenAI extracts usage from an OpenAI chat completion.
func FromOpenAI(u openai.CompletionUsage) Usage {
	return Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
	}
}

// FromAnthropic extracts usage from an Anthropic message response.
func FromAnthropic(u anthropic.Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
	}
}

// FromOllama extracts usage from an ollama generate/chat response.
func FromOllama(m ollama.Metrics) Usage {
	return Usage{
		InputTokens:  int64(m.PromptEvalCount),
		OutputTokens: int64(m.EvalCount),
	}
}

// FromGenAI extracts usage from a Gemini response. Nil metadata (streaming
// chunks before the final one) yields zero usage.
func FromGenAI(md *genai.GenerateContentResponseUsageMetadata) Usage {
	if md == nil {
		return Usage{}
	}
	return Usage{
		InputTokens:  int64(md.PromptTokenCount),
		OutputTokens: int64(md.CandidatesTokenCount),
	}
}

// Total returns the combined token count.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}
