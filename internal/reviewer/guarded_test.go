package reviewer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/config"
)

type stubClient struct {
	calls int
	err   error
}

func (s *stubClient) Provider() string { return "stub" }

func (s *stubClient) Review(context.Context, Request) (Response, error) {
	s.calls++
	if s.err != nil {
		return Response{}, s.err
	}
	return Response{Text: "{}"}, nil
}

type denyAll struct{}

func (denyAll) Allow(string, int) bool { return false }

func testBreaker(t *testing.T) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker("test-review", circuitbreaker.Config{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 2,
		SuccessThreshold: 1,
	}, zaptest.NewLogger(t))
}

func TestGuardedLimiterRefusal(t *testing.T) {
	next := &stubClient{}
	g := NewGuarded(next, nil, denyAll{})

	_, err := g.Review(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.Zero(t, next.calls)
}

func TestGuardedBreakerOpens(t *testing.T) {
	next := &stubClient{err: &Error{Kind: KindUpstream, Provider: "stub", StatusCode: 502, Err: errors.New("bad gateway")}}
	cb := testBreaker(t)
	g := NewGuarded(next, cb, nil)

	for i := 0; i < 2; i++ {
		_, err := g.Review(context.Background(), testRequest())
		require.Error(t, err)
	}
	assert.True(t, cb.IsOpen())
	assert.Same(t, cb, g.Breaker())

	_, err := g.Review(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.True(t, errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen))
	assert.Equal(t, 2, next.calls)
}

func TestGuardedRateLimitDoesNotTrip(t *testing.T) {
	next := &stubClient{err: &Error{Kind: KindRateLimited, Provider: "stub", StatusCode: 429, Err: errors.New("429")}}
	cb := testBreaker(t)
	g := NewGuarded(next, cb, nil)

	for i := 0; i < 5; i++ {
		_, err := g.Review(context.Background(), testRequest())
		assert.Equal(t, KindRateLimited, KindOf(err))
	}
	assert.False(t, cb.IsOpen())
	assert.Equal(t, 5, next.calls)
}

func TestGuardedPassThrough(t *testing.T) {
	next := &stubClient{}
	g := NewGuarded(next, testBreaker(t), nil)
	resp, err := g.Review(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Text)
	assert.Equal(t, "stub", g.Provider())
}

func TestNewSelectsTransport(t *testing.T) {
	base := config.Config{
		Reflection: config.ReflectionConfig{ReviewModel: "gpt-4o-mini"},
		Reviewer:   config.ReviewerConfig{Provider: "auto", LLMServiceURL: "http://llm-service:8000"},
	}
	logger := zaptest.NewLogger(t)

	cases := []struct {
		name     string
		mutate   func(*config.Config)
		provider string
	}{
		{"openai with key", func(c *config.Config) { c.Reviewer.OpenAIAPIKey = "sk" }, ProviderOpenAI},
		{"openai without key", func(c *config.Config) {}, ProviderLLMService},
		{"anthropic with key", func(c *config.Config) {
			c.Reflection.ReviewModel = "claude-3-5-haiku-latest"
			c.Reviewer.AnthropicAPIKey = "sk-ant"
		}, ProviderAnthropic},
		{"gemini with key", func(c *config.Config) {
			c.Reflection.ReviewModel = "gemini-2.0-flash"
			c.Reviewer.GeminiAPIKey = "g-key"
		}, ProviderGoogle},
		{"explicit llm service", func(c *config.Config) {
			c.Reviewer.Provider = "llm_service"
			c.Reviewer.OpenAIAPIKey = "sk"
		}, ProviderLLMService},
		{"unknown model", func(c *config.Config) { c.Reflection.ReviewModel = "house-model" }, ProviderLLMService},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			c, err := New(context.Background(), cfg, nil, logger)
			require.NoError(t, err)
			assert.Equal(t, tc.provider, c.Provider())
			assert.NotNil(t, c.Breaker())
		})
	}
}

func TestNewWithoutTransport(t *testing.T) {
	cfg := config.Config{
		Reflection: config.ReflectionConfig{ReviewModel: "gpt-4o-mini"},
		Reviewer:   config.ReviewerConfig{Provider: "auto"},
	}
	_, err := New(context.Background(), cfg, nil, zaptest.NewLogger(t))
	assert.Error(t, err)
}
