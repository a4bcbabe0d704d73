package repository

import "context"

// RetryState is the durable retry bookkeeping for one job. The stored
// cooldown_until is what gates the next attempt, not worker wall clocks.
type RetryState struct {
	JobID          string
	Attempts       int
	Classification string
	CooldownUntil  int64
	FirstFailedAt  int64
	LastFailedAt   int64
}

// RetryStateRepositoryInterface defines persistence for retry attempts and
// the pending re-delivery queue
type RetryStateRepositoryInterface interface {
	// Get returns the retry state for a job; a zero-attempt state if none
	Get(ctx context.Context, jobID string) (RetryState, error)

	// RecordAttempt persists the updated retry state after a failure
	RecordAttempt(ctx context.Context, state RetryState) error

	// Clear removes retry state once a job reaches a terminal outcome
	Clear(ctx context.Context, jobID string) error

	// SchedulePending queues the job for re-delivery once retryAt has passed
	SchedulePending(ctx context.Context, jobID string, retryAt int64) error

	// FindDueRetries atomically drains jobs whose cooldown has elapsed and
	// pushes their IDs to the provided channel
	FindDueRetries(ctx context.Context, untilTimestamp int64, jobsChan chan<- string) error
}
