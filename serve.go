package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/config"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/health"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/httpapi"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/pricing"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service exposing POST /v1/reflect",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return serve(cfg, logger)
		},
	}
}

func serve(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting reflection gate",
		zap.Bool("config_file", config.UsedFile(configPath)),
		zap.Bool("enabled", cfg.Reflection.Enabled),
		zap.String("review_model", cfg.Reflection.ReviewModel),
		zap.Float64("timeout_seconds", cfg.Reflection.TimeoutSeconds),
		zap.String("pricing_source", pricing.Source()),
	)
	if cfg.Service.WriteTimeout > 0 && cfg.Service.WriteTimeout <= cfg.Reflection.Timeout() {
		logger.Warn("HTTP write timeout does not leave room for the review deadline",
			zap.Duration("write_timeout", cfg.Service.WriteTimeout),
			zap.Duration("review_timeout", cfg.Reflection.Timeout()),
		)
	}

	if err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	}, logger); err != nil {
		logger.Warn("Tracing initialization failed", zap.Error(err))
	}

	circuitbreaker.Breakers.Start(ctx, 10*time.Second)

	comps, err := buildComponents(ctx, cfg, true, logger)
	if err != nil {
		logger.Error("Failed to build reflection gate", zap.Error(err))
		return err
	}
	defer comps.Close()

	hm := health.NewManager(logger)
	if comps.client != nil {
		_ = hm.RegisterChecker(health.NewBreakerChecker("review_transport", comps.client.Breaker()))
	}
	if comps.reporter != nil {
		_ = hm.RegisterChecker(health.NewRedisChecker(comps.reporter))
	}
	policy := comps.gate.Policy()
	_ = hm.RegisterChecker(health.FuncChecker{
		CheckName: "reflection_policy",
		Fn: func(context.Context) health.CheckResult {
			return health.CheckResult{
				Status:  health.StatusHealthy,
				Message: "policy loaded",
				Details: map[string]interface{}{
					"enabled":                policy.Enabled,
					"review_model":           policy.ReviewModel,
					"min_response_length":    policy.MinResponseLength,
					"timeout_ms":             policy.Timeout.Milliseconds(),
					"max_concurrent_reviews": policy.MaxConcurrentReviews,
				},
			}
		},
	})

	mux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(mux)
	httpapi.NewReflectHandler(comps.gate, logger, cfg.Service.AuthToken).RegisterRoutes(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Service.HTTPPort),
		Handler:      mux,
		ReadTimeout:  cfg.Service.ReadTimeout,
		WriteTimeout: cfg.Service.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("Metrics server listening", zap.String("address", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	go func() {
		logger.Info("HTTP server listening", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down reflection gate")
	case runErr = <-errCh:
		logger.Error("Server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Metrics server shutdown", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown", zap.Error(err))
	}
	return runErr
}
