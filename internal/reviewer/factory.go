package reviewer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/config"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/interceptors"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/models"
)

// New builds the review client for cfg: an explicit reviewer.provider wins,
// otherwise the provider is detected from the review model. SDK providers
// need their API key; without one, or for any other provider, reviews go
// through the internal LLM service. The result is always Guarded.
func New(ctx context.Context, cfg config.Config, limiter Limiter, logger *zap.Logger) (*Guarded, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rc := cfg.Reviewer
	provider := rc.Provider
	if provider == "" || provider == "auto" {
		provider = models.DetectProvider(cfg.Reflection.ReviewModel)
	}

	httpClient := interceptors.NewHTTPClient()
	newBreaker := func(provider string) *circuitbreaker.CircuitBreaker {
		cb := circuitbreaker.NewCircuitBreaker(provider+"-review", circuitbreaker.GetReviewConfig().ToConfig(), logger)
		circuitbreaker.Breakers.Track(cb, provider)
		return cb
	}

	var client Client
	var breaker *circuitbreaker.CircuitBreaker
	switch {
	case provider == ProviderOpenAI && rc.OpenAIAPIKey != "":
		client = NewOpenAIClient(rc.OpenAIAPIKey, rc.OpenAIBaseURL, httpClient)
		breaker = newBreaker(ProviderOpenAI)
	case provider == ProviderAnthropic && rc.AnthropicAPIKey != "":
		client = NewAnthropicClient(rc.AnthropicAPIKey, "", httpClient)
		breaker = newBreaker(ProviderAnthropic)
	case provider == ProviderGoogle && rc.GeminiAPIKey != "":
		gc, err := NewGeminiClient(ctx, rc.GeminiAPIKey, "", httpClient)
		if err != nil {
			return nil, err
		}
		client = gc
		breaker = newBreaker(ProviderGoogle)
	default:
		if rc.LLMServiceURL == "" {
			return nil, fmt.Errorf("no review transport for provider %q: set an API key or reviewer.llm_service_url", provider)
		}
		if provider != ProviderLLMService {
			logger.Info("Routing reviews through LLM service",
				zap.String("detected_provider", provider),
				zap.String("url", rc.LLMServiceURL),
			)
		}
		// the HTTP wrapper carries its own breaker
		client = NewLLMServiceClient(rc.LLMServiceURL, logger)
	}

	logger.Info("Review client ready",
		zap.String("provider", client.Provider()),
		zap.String("model", cfg.Reflection.ReviewModel),
	)
	return NewGuarded(client, breaker, limiter), nil
}
