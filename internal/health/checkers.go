package health

import (
	"context"
	"time"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/circuitbreaker"
)

// BreakerChecker reports the state of the circuit breaker guarding the
// review transport. An open breaker degrades the service without making it
// unready: the gate keeps answering with the original response.
type BreakerChecker struct {
	name    string
	breaker *circuitbreaker.CircuitBreaker
}

// NewBreakerChecker creates a checker for breaker under the given name.
func NewBreakerChecker(name string, breaker *circuitbreaker.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: breaker}
}

func (b *BreakerChecker) Name() string           { return b.name }
func (b *BreakerChecker) IsCritical() bool       { return false }
func (b *BreakerChecker) Timeout() time.Duration { return time.Second }

func (b *BreakerChecker) Check(ctx context.Context) CheckResult {
	if b.breaker == nil {
		return CheckResult{Status: StatusUnknown, Message: "no circuit breaker configured"}
	}

	counts := b.breaker.Counts()
	result := CheckResult{
		Details: map[string]interface{}{
			"breaker":              b.breaker.Name(),
			"state":                b.breaker.State().String(),
			"consecutive_failures": counts.ConsecutiveFailures,
			"total_failures":       counts.TotalFailures,
		},
	}
	switch b.breaker.State() {
	case circuitbreaker.StateOpen:
		result.Status = StatusDegraded
		result.Message = "review transport circuit open; reviews are being skipped"
	case circuitbreaker.StateHalfOpen:
		result.Status = StatusDegraded
		result.Message = "review transport recovering"
	default:
		result.Status = StatusHealthy
		result.Message = "review transport healthy"
	}
	return result
}

// Pinger is satisfied by the Redis outcome reporter.
type Pinger interface {
	Ping(ctx context.Context) error
	BreakerOpen() bool
}

// RedisChecker checks reachability of the outcome stream. Reporting is best
// effort, so failures degrade rather than fail the service.
type RedisChecker struct {
	pinger  Pinger
	timeout time.Duration
}

// NewRedisChecker creates a Redis health checker
func NewRedisChecker(p Pinger) *RedisChecker {
	return &RedisChecker{pinger: p, timeout: 2 * time.Second}
}

func (r *RedisChecker) Name() string           { return "redis" }
func (r *RedisChecker) IsCritical() bool       { return false }
func (r *RedisChecker) Timeout() time.Duration { return r.timeout }

func (r *RedisChecker) Check(ctx context.Context) CheckResult {
	if r.pinger.BreakerOpen() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   "circuit breaker open",
			Message: "Redis circuit breaker is open",
		}
	}

	start := time.Now()
	err := r.pinger.Ping(ctx)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   err.Error(),
			Message: "Redis ping failed",
			Details: map[string]interface{}{"latency_ms": latency.Milliseconds()},
		}
	}

	result := CheckResult{
		Status:  StatusHealthy,
		Message: "Redis healthy",
		Details: map[string]interface{}{"latency_ms": latency.Milliseconds()},
	}
	if latency > 100*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "Redis responding but with high latency"
	}
	return result
}

// FuncChecker adapts a function into a Checker.
type FuncChecker struct {
	CheckName string
	Critical  bool
	Fn        func(ctx context.Context) CheckResult
}

func (f FuncChecker) Name() string                          { return f.CheckName }
func (f FuncChecker) IsCritical() bool                      { return f.Critical }
func (f FuncChecker) Timeout() time.Duration                { return time.Second }
func (f FuncChecker) Check(ctx context.Context) CheckResult { return f.Fn(ctx) }
