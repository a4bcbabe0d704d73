package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// findDueRetriesScript atomically drains due members from the pending sorted
// set so only one worker instance re-delivers each job.
var findDueRetriesScript = redis.NewScript(`
local pending_key = KEYS[1]
local until_timestamp = ARGV[1]

local due = redis.call('ZRANGEBYSCORE', pending_key, '-inf', until_timestamp)

if #due > 0 then
    redis.call('ZREMRANGEBYSCORE', pending_key, '-inf', until_timestamp)
end

return due
`)

// RetryStateRepository handles Redis operations for per-job retry state
type RetryStateRepository struct {
	client *redis.Client
}

// NewRetryStateRepository creates a new RetryStateRepository
func NewRetryStateRepository(client *redis.Client) *RetryStateRepository {
	return &RetryStateRepository{client: client}
}

// Get returns the retry state for a job; a zero-attempt state if none
func (r *RetryStateRepository) Get(ctx context.Context, jobID string) (RetryState, error) {
	fields, err := r.client.HGetAll(ctx, buildRetryStateKey(jobID)).Result()
	if err != nil {
		return RetryState{}, fmt.Errorf("failed to get retry state: %w", err)
	}

	state := RetryState{JobID: jobID}
	if len(fields) == 0 {
		return state, nil
	}

	state.Attempts, err = strconv.Atoi(fields["attempts"])
	if err != nil {
		return RetryState{}, fmt.Errorf("failed to parse retry attempts: %w", err)
	}
	state.Classification = fields["classification"]
	state.CooldownUntil = parseInt64Field(fields, "cooldown_until")
	state.FirstFailedAt = parseInt64Field(fields, "first_failed_at")
	state.LastFailedAt = parseInt64Field(fields, "last_failed_at")

	return state, nil
}

// RecordAttempt persists the updated retry state after a failure
func (r *RetryStateRepository) RecordAttempt(ctx context.Context, state RetryState) error {
	err := r.client.HSet(ctx, buildRetryStateKey(state.JobID), map[string]interface{}{
		"attempts":        state.Attempts,
		"classification":  state.Classification,
		"cooldown_until":  state.CooldownUntil,
		"first_failed_at": state.FirstFailedAt,
		"last_failed_at":  state.LastFailedAt,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to record retry attempt: %w", err)
	}

	return nil
}

// Clear removes retry state once a job reaches a terminal outcome
func (r *RetryStateRepository) Clear(ctx context.Context, jobID string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, buildRetryStateKey(jobID))
	pipe.ZRem(ctx, retryPendingKey, jobID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear retry state: %w", err)
	}

	return nil
}

// SchedulePending queues the job for re-delivery once retryAt has passed
func (r *RetryStateRepository) SchedulePending(ctx context.Context, jobID string, retryAt int64) error {
	err := r.client.ZAdd(ctx, retryPendingKey, redis.Z{
		Score:  float64(retryAt),
		Member: jobID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule pending retry: %w", err)
	}

	return nil
}

// FindDueRetries atomically drains jobs whose cooldown has elapsed and pushes
// their IDs to the provided channel
func (r *RetryStateRepository) FindDueRetries(ctx context.Context, untilTimestamp int64, jobsChan chan<- string) error {
	result, err := findDueRetriesScript.Run(ctx, r.client, []string{retryPendingKey}, untilTimestamp).Result()
	if err != nil {
		return fmt.Errorf("failed to find due retries: %w", err)
	}

	jobs, ok := result.([]interface{})
	if !ok {
		return fmt.Errorf("unexpected result type from Lua script: %T", result)
	}

	for _, jobID := range jobs {
		select {
		case jobsChan <- jobID.(string):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func parseInt64Field(fields map[string]string, name string) int64 {
	value, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return 0
	}
	return value
}
