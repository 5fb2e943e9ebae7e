package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/config"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/ratecontrol"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/reflection"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/reviewer"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/streaming"
)

// newLogger builds the process logger and installs it as zap's global.
func newLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if devLogs || lc.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if lc.Level != "" {
		level, err := zapcore.ParseLevel(lc.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// components is everything a gate needs at runtime.
type components struct {
	gate     *reflection.Gate
	client   *reviewer.Guarded
	reporter *streaming.Reporter
}

// Close waits for pending outcome reports, then closes the stream.
func (c *components) Close() {
	if c.gate != nil {
		c.gate.Drain()
	}
	if c.reporter != nil {
		_ = c.reporter.Close()
	}
}

// buildComponents wires the review client, the optional outcome stream and
// the gate. A stream that cannot be reached is logged and skipped.
func buildComponents(ctx context.Context, cfg config.Config, withStream bool, logger *zap.Logger) (*components, error) {
	c := &components{}

	if cfg.Reflection.Enabled {
		client, err := reviewer.New(ctx, cfg, ratecontrol.NewLimiter(), logger)
		if err != nil {
			return nil, fmt.Errorf("review client: %w", err)
		}
		c.client = client
	} else {
		logger.Info("Reflection disabled; candidates pass through unchanged")
	}

	var rep reflection.Reporter
	if withStream && cfg.Streaming.Enabled {
		r, err := streaming.Dial(ctx, cfg.Streaming.RedisAddr, cfg.Streaming.Stream, cfg.Streaming.MaxLen, logger)
		if err != nil {
			logger.Warn("Outcome stream unavailable; continuing without it",
				zap.String("addr", cfg.Streaming.RedisAddr),
				zap.Error(err),
			)
		} else {
			c.reporter = r
			rep = r
			logger.Info("Streaming outcomes to Redis", zap.String("stream", r.Stream()))
		}
	}

	var client reviewer.Client
	if c.client != nil {
		client = c.client
	}
	c.gate = reflection.NewGate(reflection.NewPolicy(cfg.Reflection, cfg.Gate), client, rep, logger)
	return c, nil
}
