package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/seenimoa/marketpulse/internal/config"
)

// NewProviderFromConfig builds the single provider named by cfg.LLM.Primary.
// There is no fallback chain.
func NewProviderFromConfig(ctx context.Context, cfg *config.Config) (LLMProvider, error) {
	var (
		p   LLMProvider
		err error
	)
	switch cfg.LLM.Primary {
	case ProviderOpenAI:
		var op *OpenAIProvider
		op, err = NewOpenAIProvider(cfg.LLM.OpenAIKey,
			WithOpenAIBaseURL(cfg.LLM.OpenAIBaseURL),
			WithOpenAIModel(cfg.LLM.Model),
		)
		p = op
	case ProviderOllama:
		var op *OllamaProvider
		op, err = NewOllamaProvider(cfg.LLM.OllamaURL, WithOllamaModel(cfg.LLM.Model))
		p = op
	case ProviderGemini:
		var gp *GeminiProvider
		gp, err = NewGeminiProvider(ctx, cfg.LLM.GeminiKey,
			WithGeminiModel(modelWithPrefix(cfg.LLM.Model, "gemini")),
		)
		p = gp
	case ProviderAnthropic:
		var ap *AnthropicProvider
		ap, err = NewAnthropicProvider(cfg.LLM.AnthropicKey,
			WithAnthropicModel(modelWithPrefix(cfg.LLM.Model, "claude")),
		)
		p = ap
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknown, cfg.LLM.Primary)
	}
	if err != nil {
		return nil, fmt.Errorf("llm: %s provider: %w", cfg.LLM.Primary, err)
	}
	return p, nil
}

// modelWithPrefix returns model when it belongs to the provider family,
// otherwise "" so the provider keeps its own default.
func modelWithPrefix(model, prefix string) string {
	if strings.HasPrefix(model, prefix) {
		return model
	}
	return ""
}
