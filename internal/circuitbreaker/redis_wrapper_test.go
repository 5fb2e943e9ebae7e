package circuitbreaker

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap/zaptest"
)

func TestRedisWrapper_StreamOperations(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	wrapper := NewRedisWrapper(client, zaptest.NewLogger(t))
	ctx := context.Background()

	if err := wrapper.Ping(ctx).Err(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		id, err := wrapper.XAdd(ctx, &redis.XAddArgs{
			Stream: "reflection:outcomes",
			Values: map[string]interface{}{"outcome": "clean"},
		}).Result()
		if err != nil {
			t.Fatalf("XAdd failed: %v", err)
		}
		if id == "" {
			t.Fatal("Expected stream entry id")
		}
	}

	n, err := wrapper.XLen(ctx, "reflection:outcomes").Result()
	if err != nil {
		t.Fatalf("XLen failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 entries, got %d", n)
	}
	if wrapper.IsCircuitBreakerOpen() {
		t.Error("Circuit breaker should remain closed")
	}
}

func TestRedisWrapper_CircuitBreakerTriggering(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer client.Close()
	// Take the server away so every call fails
	s.Close()

	wrapper := NewRedisWrapper(client, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if wrapper.Ping(ctx).Err() == nil {
			t.Error("Expected ping to fail against a closed server")
		}
	}
	if !wrapper.IsCircuitBreakerOpen() {
		t.Fatal("Expected circuit breaker to be open after repeated failures")
	}

	err = wrapper.XAdd(ctx, &redis.XAddArgs{Stream: "s", Values: map[string]interface{}{"k": "v"}}).Err()
	if !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("Expected circuit breaker open error, got %v", err)
	}
}
