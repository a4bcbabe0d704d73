package repository

import (
	"fmt"
	"time"
)

// redisKeyPrefix is the prefix for all execution-side guardrail Redis keys.
// Adaptive-learning state must never live under this prefix.
const redisKeyPrefix = "guardrail:"

// retryPendingKey is the redis key for the sorted set of jobs awaiting
// re-delivery, scored by cooldown_until
const retryPendingKey = redisKeyPrefix + "retry_pending"

// auditStreamPrefix is the prefix for day-sharded retry audit streams
const auditStreamPrefix = redisKeyPrefix + "audit:retry:"

// buildEffectKey constructs the Redis key for an idempotency record
func buildEffectKey(idempotencyKey string) string {
	return fmt.Sprintf("%seffect:%s", redisKeyPrefix, idempotencyKey)
}

// buildRetryStateKey constructs the Redis key for a job's retry state hash
func buildRetryStateKey(jobID string) string {
	return fmt.Sprintf("%sretry:%s", redisKeyPrefix, jobID)
}

// buildCircuitKey constructs a Redis key for one facet of a category's circuit
func buildCircuitKey(category, facet string) string {
	return fmt.Sprintf("%scircuit:%s:%s", redisKeyPrefix, category, facet)
}

// unixNow is the shared clock for repository timestamps
func unixNow() int64 {
	return time.Now().Unix()
}
