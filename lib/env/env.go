package env

import (
	"os"
	"strconv"
)

// RedisHost returns the Redis host from environment
func RedisHost() string {
	if host := os.Getenv("REDIS_HOST"); host != "" {
		return host
	}
	return "localhost"
}

// RedisPort returns the Redis port from environment
func RedisPort() string {
	if port := os.Getenv("REDIS_PORT"); port != "" {
		return port
	}
	return "6379"
}

// RedisPassword returns the Redis password from environment
func RedisPassword() string {
	return os.Getenv("REDIS_PASSWORD")
}

// RedisDB returns the Redis database number from environment
func RedisDB() int {
	return intVar("REDIS_DB", 0)
}

// RedisPoolSize returns the Redis connection pool size from environment
func RedisPoolSize() int {
	return intVar("REDIS_POOL_SIZE", 10)
}

// HTTPPort returns the HTTP server port from environment
func HTTPPort() string {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		return port
	}
	return "80"
}

// IdempotencyRetentionSeconds returns how long completed idempotency records
// are kept before the key may be executed again (default 72 hours)
func IdempotencyRetentionSeconds() int {
	return intVar("IDEMPOTENCY_RETENTION_SECONDS", 72*3600)
}

// IdempotencyClaimTTLSeconds returns the TTL on an in-progress claim, so a
// crashed executor cannot hold a key forever (default 15 minutes)
func IdempotencyClaimTTLSeconds() int {
	return intVar("IDEMPOTENCY_CLAIM_TTL_SECONDS", 900)
}

// RetryMaxAttempts returns the maximum retry attempts per job
func RetryMaxAttempts() int {
	return intVar("RETRY_MAX_ATTEMPTS", 3)
}

// RetryCooldownBaseSeconds returns the base cooldown for exponential backoff
func RetryCooldownBaseSeconds() int {
	return intVar("RETRY_COOLDOWN_BASE_SECONDS", 60)
}

// RetryCooldownCapSeconds returns the backoff cap
func RetryCooldownCapSeconds() int {
	return intVar("RETRY_COOLDOWN_CAP_SECONDS", 3600)
}

// CircuitFailureThreshold returns the failure count that opens a circuit
func CircuitFailureThreshold() int {
	return intVar("CIRCUIT_FAILURE_THRESHOLD", 10)
}

// CircuitWindowSeconds returns the sliding window for counting failures
func CircuitWindowSeconds() int {
	return intVar("CIRCUIT_WINDOW_SECONDS", 300)
}

// CircuitCooldownSeconds returns how long an open circuit stays open before a
// half-open trial is allowed without a manual override
func CircuitCooldownSeconds() int {
	return intVar("CIRCUIT_COOLDOWN_SECONDS", 600)
}

// AuditFlushSize returns the retry-audit buffer size that triggers a flush
func AuditFlushSize() int {
	return intVar("AUDIT_FLUSH_SIZE", 100)
}

// AlertWebhookURL returns the webhook endpoint for alert events (empty
// disables webhook delivery)
func AlertWebhookURL() string {
	return os.Getenv("ALERT_WEBHOOK_URL")
}

// JobExecutorURL returns the endpoint jobs are dispatched to (empty disables
// job intake)
func JobExecutorURL() string {
	return os.Getenv("JOB_EXECUTOR_URL")
}

// DriftWindowSize returns the rolling trade window for the shadow model
func DriftWindowSize() int {
	return intVar("DRIFT_WINDOW_SIZE", 50)
}

// DriftMinTrades returns the minimum trades before drift checks fire
func DriftMinTrades() int {
	return intVar("DRIFT_MIN_TRADES", 20)
}

// DriftWinrateFloorDelta returns how far below the frozen winrate the shadow
// may fall before drift is flagged
func DriftWinrateFloorDelta() float64 {
	return floatVar("DRIFT_WINRATE_FLOOR_DELTA", 0.05)
}

// DriftMaxLossStreak returns the loss streak that flags drift
func DriftMaxLossStreak() int {
	return intVar("DRIFT_MAX_LOSS_STREAK", 5)
}

// DriftCheckSchedule returns the cron expression driving scheduled drift checks
func DriftCheckSchedule() string {
	if schedule := os.Getenv("DRIFT_CHECK_SCHEDULE"); schedule != "" {
		return schedule
	}
	return "*/5 * * * *"
}

// PromotionWinrateMargin returns the required winrate improvement over frozen
func PromotionWinrateMargin() float64 {
	return floatVar("PROMOTION_WINRATE_MARGIN", 0.02)
}

// PromotionExpectancyMargin returns the required relative expectancy improvement
func PromotionExpectancyMargin() float64 {
	return floatVar("PROMOTION_EXPECTANCY_MARGIN", 0.05)
}

// PromotionDrawdownCeiling returns the max drawdown permitted for promotion
func PromotionDrawdownCeiling() float64 {
	return floatVar("PROMOTION_DRAWDOWN_CEILING", 0.20)
}

// PromotionMinTrades returns the minimum sample size for promotion
func PromotionMinTrades() int {
	return intVar("PROMOTION_MIN_TRADES", 100)
}

// PromotionMinRecentTrades returns the alternative recent-window sample minimum
func PromotionMinRecentTrades() int {
	return intVar("PROMOTION_MIN_RECENT_TRADES", 50)
}

// PromotionLogPath returns the path of the promotion decision journal
func PromotionLogPath() string {
	if path := os.Getenv("PROMOTION_LOG_PATH"); path != "" {
		return path
	}
	return "data/adaptive/promotion_log.jsonl"
}

func intVar(name string, fallback int) int {
	if raw := os.Getenv(name); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			return value
		}
	}
	return fallback
}

func floatVar(name string, fallback float64) float64 {
	if raw := os.Getenv(name); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil {
			return value
		}
	}
	return fallback
}
