package gateway

// ProviderUsage carries token accounting exactly as one provider reports it.
// Only the field matching Provider is set.
type ProviderUsage struct {
	Provider  Provider
	Anthropic *AnthropicUsage
	OpenAI    *OpenAIUsage
	Google    *GoogleUsage
	Ollama    *OllamaUsage
}

type AnthropicUsage struct {
	InputTokens  int
	OutputTokens int
}

// OpenAIUsage is also the shape Perplexity reports.
type OpenAIUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type GoogleUsage struct {
	PromptTokenCount     int32
	CandidatesTokenCount int32
	TotalTokenCount      int32
}

type OllamaUsage struct {
	PromptEvalCount int
	EvalCount       int
}

// NormalizeUsage converts provider accounting to Usage. It returns nil when the
// provider reported nothing.
func NormalizeUsage(u ProviderUsage) *Usage {
	var out Usage
	switch u.Provider {
	case ProviderAnthropic:
		if u.Anthropic == nil {
			return nil
		}
		out = Usage{PromptTokens: u.Anthropic.InputTokens, CompletionTokens: u.Anthropic.OutputTokens}
	case ProviderOpenAI, ProviderPerplexity:
		if u.OpenAI == nil {
			return nil
		}
		out = Usage{PromptTokens: u.OpenAI.PromptTokens, CompletionTokens: u.OpenAI.CompletionTokens, TotalTokens: u.OpenAI.TotalTokens}
	case ProviderGoogle:
		if u.Google == nil {
			return nil
		}
		out = Usage{
			PromptTokens:     int(u.Google.PromptTokenCount),
			CompletionTokens: int(u.Google.CandidatesTokenCount),
			TotalTokens:      int(u.Google.TotalTokenCount),
		}
	case ProviderOllama:
		if u.Ollama == nil {
			return nil
		}
		out = Usage{PromptTokens: u.Ollama.PromptEvalCount, CompletionTokens: u.Ollama.EvalCount}
	default:
		return nil
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = out.PromptTokens + out.CompletionTokens
	}
	return &out
}
