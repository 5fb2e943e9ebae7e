package circuitbreaker

import (
	"context"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const redisProvider = "redis"

// RedisWrapper wraps the Redis client used for outcome streaming with a circuit breaker
type RedisWrapper struct {
	client *redis.Client
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewRedisWrapper creates a Redis wrapper with circuit breaker
func NewRedisWrapper(client *redis.Client, logger *zap.Logger) *RedisWrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := NewCircuitBreaker("redis", GetRedisConfig().ToConfig(), logger)
	Breakers.Track(cb, redisProvider)

	return &RedisWrapper{
		client: client,
		cb:     cb,
		logger: logger,
	}
}

// Ping wraps Redis Ping with circuit breaker
func (rw *RedisWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	var result *redis.StatusCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Ping(ctx)
		return result.Err()
	})
	Breakers.Observe(rw.cb, err)

	if err != nil && (result == nil || result.Err() == nil) {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// XAdd wraps Redis XAdd with circuit breaker
func (rw *RedisWrapper) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	var result *redis.StringCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.XAdd(ctx, args)
		return result.Err()
	})
	Breakers.Observe(rw.cb, err)

	if err != nil && (result == nil || result.Err() == nil) {
		result = redis.NewStringCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// XLen wraps Redis XLen with circuit breaker
func (rw *RedisWrapper) XLen(ctx context.Context, stream string) *redis.IntCmd {
	var result *redis.IntCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.XLen(ctx, stream)
		return result.Err()
	})
	Breakers.Observe(rw.cb, err)

	if err != nil && (result == nil || result.Err() == nil) {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Close wraps Redis Close
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// IsCircuitBreakerOpen returns true if the circuit breaker is open
func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.IsOpen()
}
