package reviewer

import (
	"context"
	"errors"
	"time"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/metrics"
)

// Limiter grants review permits without blocking.
type Limiter interface {
	Allow(provider string, estimatedTokens int) bool
}

// Guarded wraps a Client with an optional circuit breaker and an optional
// rate limiter, and records per-call metrics. A refused call fails
// immediately and never reaches the wrapped client.
type Guarded struct {
	next    Client
	breaker *circuitbreaker.CircuitBreaker
	limiter Limiter
}

// NewGuarded decorates next. breaker and limiter may be nil.
func NewGuarded(next Client, breaker *circuitbreaker.CircuitBreaker, limiter Limiter) *Guarded {
	return &Guarded{next: next, breaker: breaker, limiter: limiter}
}

func (g *Guarded) Provider() string { return g.next.Provider() }

// Breaker returns the breaker guarding the transport, if any.
func (g *Guarded) Breaker() *circuitbreaker.CircuitBreaker {
	if g.breaker != nil {
		return g.breaker
	}
	if b, ok := g.next.(interface {
		Breaker() *circuitbreaker.CircuitBreaker
	}); ok {
		return b.Breaker()
	}
	return nil
}

func (g *Guarded) Review(ctx context.Context, req Request) (Response, error) {
	provider := g.next.Provider()
	if g.limiter != nil && !g.limiter.Allow(provider, estimateTokens(req)) {
		metrics.RateLimitRejections.WithLabelValues(provider).Inc()
		metrics.RecordReviewCall(provider, "rate_limited", 0)
		return Response{}, &Error{Kind: KindRateLimited, Provider: provider, Err: ErrRateLimited}
	}

	start := time.Now()
	var resp Response
	var err error
	if g.breaker == nil {
		resp, err = g.next.Review(ctx, req)
	} else {
		err = g.breaker.ExecuteWith(ctx, func() error {
			var callErr error
			resp, callErr = g.next.Review(ctx, req)
			return callErr
		}, countsAgainstProvider)
		circuitbreaker.Breakers.Observe(g.breaker, err)
		if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			err = &Error{Kind: KindUpstream, Provider: provider, Err: err}
		}
	}

	status := "success"
	if err != nil {
		status = string(KindOf(err))
	}
	metrics.RecordReviewCall(provider, status, time.Since(start).Seconds())
	return resp, err
}

// countsAgainstProvider reports whether a failed call says something about
// the provider's health. Rate limiting and caller cancellation do not.
func countsAgainstProvider(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return KindOf(err) != KindRateLimited
}

// estimateTokens approximates prompt plus completion tokens at four
// characters per token.
func estimateTokens(req Request) int {
	return (len(req.System)+len(req.User))/4 + req.MaxTokens
}
