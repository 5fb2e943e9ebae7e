// Package streaming publishes reflection outcomes to a Redis stream so
// downstream consumers can audit reviewer behavior.
package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/reflection"
)

// DefaultStream is the stream outcomes go to when none is configured.
const DefaultStream = "reflection:outcomes"

const sinkName = "redis_stream"

// Reporter appends one stream entry per reported outcome. Entries carry the
// headline fields flat for XRANGE filtering plus the full outcome as JSON.
type Reporter struct {
	redis  *circuitbreaker.RedisWrapper
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewReporter creates a Reporter. maxLen <= 0 leaves the stream untrimmed.
func NewReporter(rw *circuitbreaker.RedisWrapper, stream string, maxLen int64, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stream == "" {
		stream = DefaultStream
	}
	return &Reporter{redis: rw, stream: stream, maxLen: maxLen, logger: logger}
}

// Dial connects to addr and verifies the connection with a ping.
func Dial(ctx context.Context, addr, stream string, maxLen int64, logger *zap.Logger) (*Reporter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	rw := circuitbreaker.NewRedisWrapper(client, logger)
	if err := rw.Ping(ctx).Err(); err != nil {
		_ = rw.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewReporter(rw, stream, maxLen, logger), nil
}

// Stream returns the stream name entries are written to.
func (r *Reporter) Stream() string { return r.stream }

// Report implements reflection.Reporter.
func (r *Reporter) Report(ctx context.Context, o reflection.Outcome) error {
	payload, err := json.Marshal(o)
	if err != nil {
		metrics.OutcomeReports.WithLabelValues(sinkName, "error").Inc()
		return fmt.Errorf("marshal outcome: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"request_id":     o.RequestID,
			"outcome":        string(o.Kind),
			"triggered":      strconv.FormatBool(o.Triggered),
			"ran":            strconv.FormatBool(o.Ran),
			"duration_ms":    o.DurationMs,
			"issue_count":    o.IssueCount,
			"trigger_reason": o.TriggerReason,
			"failure_reason": string(o.FailureReason),
			"ts":             time.Now().UTC().Format(time.RFC3339Nano),
			"payload":        string(payload),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	id, err := r.redis.XAdd(ctx, args).Result()
	if err != nil {
		metrics.OutcomeReports.WithLabelValues(sinkName, "error").Inc()
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	metrics.OutcomeReports.WithLabelValues(sinkName, "ok").Inc()
	r.logger.Debug("Outcome streamed",
		zap.String("stream", r.stream),
		zap.String("entry_id", id),
		zap.String("outcome", string(o.Kind)),
	)
	return nil
}

// Len returns the current stream length.
func (r *Reporter) Len(ctx context.Context) (int64, error) {
	return r.redis.XLen(ctx, r.stream).Result()
}

// Ping checks Redis reachability through the breaker.
func (r *Reporter) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}

// BreakerOpen reports whether Redis calls are currently being shed.
func (r *Reporter) BreakerOpen() bool {
	return r.redis.IsCircuitBreakerOpen()
}

func (r *Reporter) Close() error {
	return r.redis.Close()
}
