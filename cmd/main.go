package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantsafe/guardrail/adaptive"
	"github.com/quantsafe/guardrail/api"
	"github.com/quantsafe/guardrail/api/routes"
	"github.com/quantsafe/guardrail/jobsafety"
	"github.com/quantsafe/guardrail/jobsafety/repository"
	"github.com/quantsafe/guardrail/lib/env"
	"github.com/quantsafe/guardrail/lib/httpserver"
	"github.com/quantsafe/guardrail/lib/logger"
	redisClient "github.com/quantsafe/guardrail/lib/redis"
)

var (
	ctx    context.Context
	cancel context.CancelFunc
)

func init() {
	// Initialize logger
	if err := logger.Initialize(); err != nil {
		panic("failed to initialize logger: " + err.Error())
	}

	// Initialize context
	ctx, cancel = context.WithCancel(context.Background())

	// Initialize Redis client
	if err := redisClient.Initialize(ctx); err != nil {
		logger.Fatal("failed to initialize Redis client", "error", err)
	}
	logger.Info("successfully connected to Redis")
}

func main() {
	defer func() { _ = logger.Sync() }()
	defer cancel()
	defer func() { _ = redisClient.Close() }()

	// Execution-side repositories over the shared Redis store
	idempotencyRepo := repository.NewIdempotencyRepository(redisClient.Client, repository.IdempotencyConfig{
		RetentionSeconds: env.IdempotencyRetentionSeconds(),
		ClaimTTLSeconds:  env.IdempotencyClaimTTLSeconds(),
	})
	circuitRepo := repository.NewCircuitRepository(redisClient.Client)
	retryStateRepo := repository.NewRetryStateRepository(redisClient.Client)
	auditRepo := repository.NewAuditRepository(redisClient.Client, env.AuditFlushSize())

	// Alert sinks: structured log, prometheus, optional webhook
	notifier := jobsafety.NewAlertNotifier()
	notifier.Register(jobsafety.LogAlerts)
	notifier.Register(jobsafety.PrometheusAlertHandler)
	if url := env.AlertWebhookURL(); url != "" {
		notifier.Register(jobsafety.NewWebhookAlertHandler(url))
	}

	breaker := jobsafety.NewCircuitBreaker(circuitRepo, jobsafety.CircuitBreakerConfig{
		FailureThreshold: env.CircuitFailureThreshold(),
		WindowSeconds:    env.CircuitWindowSeconds(),
		CooldownSeconds:  env.CircuitCooldownSeconds(),
	}, notifier)

	policy := jobsafety.NewRetryPolicy(jobsafety.RetryPolicyConfig{
		MaxAttempts:  env.RetryMaxAttempts(),
		CooldownBase: time.Duration(env.RetryCooldownBaseSeconds()) * time.Second,
		CooldownCap:  time.Duration(env.RetryCooldownCapSeconds()) * time.Second,
	})

	manager := jobsafety.NewRetryManager(jobsafety.NewFailureClassifier(), policy, breaker, retryStateRepo, auditRepo)
	manager.StartDueRetriesFinder(ctx)
	logger.Info("due retries finder started")

	// Guarded job execution: deliveries run through the side effect guard and
	// due retries are re-delivered from the manager's feed
	guard := jobsafety.NewSideEffectGuard(idempotencyRepo)
	var processor *jobsafety.Processor
	if url := env.JobExecutorURL(); url != "" {
		processor = jobsafety.NewProcessor(guard, manager, jobsafety.NewWebhookJobHandler(url))
		processor.StartRedelivery(ctx, manager.DueRetries())
		logger.Info("job processor started", "executorURL", url)
	} else {
		logger.Warn("JOB_EXECUTOR_URL not set, job intake disabled")
	}

	// Flush any buffered audit records on the way out
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer flushCancel()
		if err := auditRepo.Flush(flushCtx); err != nil {
			logger.Error("failed to flush audit buffer on shutdown", "error", err)
		}
	}()

	// Adaptive side: isolated from the execution-side store
	monitor := adaptive.NewDriftMonitor(adaptive.DriftMonitorConfig{
		WindowSize:        env.DriftWindowSize(),
		MinTrades:         env.DriftMinTrades(),
		WinrateFloorDelta: env.DriftWinrateFloorDelta(),
		MaxLossStreak:     env.DriftMaxLossStreak(),
	})

	journal, err := adaptive.NewPromotionJournal(env.PromotionLogPath())
	if err != nil {
		logger.Fatal("failed to open promotion journal", "error", err)
	}

	gate := adaptive.NewPromotionGate(adaptive.PromotionGateConfig{
		WinrateMargin:    env.PromotionWinrateMargin(),
		ExpectancyMargin: env.PromotionExpectancyMargin(),
		DrawdownCeiling:  env.PromotionDrawdownCeiling(),
		MinTrades:        env.PromotionMinTrades(),
		MinRecentTrades:  env.PromotionMinRecentTrades(),
	}, journal)

	runner, err := adaptive.NewDriftCheckRunner(monitor, env.DriftCheckSchedule())
	if err != nil {
		logger.Fatal("failed to create drift check runner", "error", err)
	}
	runner.OnDrift(func(comparison adaptive.DriftComparison) {
		logger.Warn("drift flagged by scheduled check", "reasons", comparison.Reasons)
	})
	runner.Start(ctx)
	logger.Info("drift check runner started", "schedule", env.DriftCheckSchedule())

	// Wire handler dependencies and create HTTP server for API routes
	api.Initialize(breaker, auditRepo, processor, monitor, runner, gate, journal)
	server := httpserver.New(routes.Setup())

	// Start server in a goroutine
	go func() {
		logger.Info("starting guardrail server", "addr", server.Addr())
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, gracefully shutting down")

	// Cancel context to signal all components (including due retries finder)
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
