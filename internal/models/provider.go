package models

import (
	"strings"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/pricing"
)

// Provider names used for client selection, rate limits and metrics.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderDeepSeek  = "deepseek"
	ProviderMistral   = "mistral"
	ProviderXAI       = "xai"
	ProviderOllama    = "ollama"
	ProviderUnknown   = "unknown"
)

// DetectProvider determines the provider from a model name.
// An explicit entry in the models.yaml pricing table wins; otherwise the
// provider is inferred from common model naming conventions.
func DetectProvider(model string) string {
	if strings.TrimSpace(model) == "" {
		return ProviderUnknown
	}
	if provider := pricing.ProviderForModel(model); provider != "" {
		// llama models listed under "meta" are served locally
		if provider == "meta" && strings.Contains(strings.ToLower(model), "llama") {
			return ProviderOllama
		}
		return provider
	}
	return detectProviderFromPattern(model)
}

// detectProviderFromPattern uses pattern matching to detect provider from model name.
func detectProviderFromPattern(model string) string {
	ml := strings.ToLower(model)

	switch {
	case strings.Contains(ml, "gpt-") || strings.Contains(ml, "davinci") ||
		strings.Contains(ml, "turbo") || strings.HasPrefix(ml, "o1") ||
		strings.HasPrefix(ml, "o3") || strings.HasPrefix(ml, "o4"):
		return ProviderOpenAI
	case strings.Contains(ml, "claude") || strings.Contains(ml, "opus") ||
		strings.Contains(ml, "sonnet") || strings.Contains(ml, "haiku"):
		return ProviderAnthropic
	case strings.Contains(ml, "gemini") || strings.Contains(ml, "palm"):
		return ProviderGoogle
	case strings.Contains(ml, "deepseek"):
		return ProviderDeepSeek
	case strings.Contains(ml, "grok"):
		return ProviderXAI
	// mistral before llama since some names overlap
	case strings.Contains(ml, "mistral") || strings.Contains(ml, "mixtral") ||
		strings.Contains(ml, "codestral"):
		return ProviderMistral
	case strings.Contains(ml, "llama"):
		return ProviderOllama
	}
	return ProviderUnknown
}
