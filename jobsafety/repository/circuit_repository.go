package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// recordFailureScript appends one failure, prunes the window and returns the
// count in a single atomic step so concurrent workers cannot double-count.
var recordFailureScript = redis.NewScript(`
local failures_key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local member = ARGV[3]

redis.call('ZADD', failures_key, now, member)
redis.call('ZREMRANGEBYSCORE', failures_key, '-inf', now - window)
return redis.call('ZCARD', failures_key)
`)

// CircuitRepository stores per-category circuit state in Redis
type CircuitRepository struct {
	client *redis.Client
	now    func() int64
}

// NewCircuitRepository creates a new CircuitRepository
func NewCircuitRepository(client *redis.Client) *CircuitRepository {
	return &CircuitRepository{client: client, now: unixNow}
}

// GetState returns the persisted state, defaulting to closed
func (r *CircuitRepository) GetState(ctx context.Context, category string) (CircuitStateValue, error) {
	value, err := r.client.Get(ctx, buildCircuitKey(category, "state")).Result()
	if errors.Is(err, redis.Nil) {
		return CircuitClosed, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get circuit state: %w", err)
	}

	return CircuitStateValue(value), nil
}

// SetState persists the circuit state for a category
func (r *CircuitRepository) SetState(ctx context.Context, category string, state CircuitStateValue) error {
	err := r.client.Set(ctx, buildCircuitKey(category, "state"), string(state), 0).Err()
	if err != nil {
		return fmt.Errorf("failed to set circuit state: %w", err)
	}

	return nil
}

// RecordFailure appends a failure timestamp and returns the windowed count
func (r *CircuitRepository) RecordFailure(ctx context.Context, category string, windowSeconds int) (int64, error) {
	now := r.now()
	// unique member so simultaneous failures in the same second all count
	member := fmt.Sprintf("%d:%s", now, uuid.New().String())

	count, err := recordFailureScript.Run(ctx, r.client,
		[]string{buildCircuitKey(category, "failures")},
		now, windowSeconds, member,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to record circuit failure: %w", err)
	}

	return count, nil
}

// FailureCount prunes the window and returns the current failure count
func (r *CircuitRepository) FailureCount(ctx context.Context, category string, windowSeconds int) (int64, error) {
	key := buildCircuitKey(category, "failures")
	cutoff := r.now() - int64(windowSeconds)

	if err := r.client.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return 0, fmt.Errorf("failed to prune circuit failures: %w", err)
	}

	count, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count circuit failures: %w", err)
	}

	return count, nil
}

// ClearFailures empties the failure window
func (r *CircuitRepository) ClearFailures(ctx context.Context, category string) error {
	if err := r.client.Del(ctx, buildCircuitKey(category, "failures")).Err(); err != nil {
		return fmt.Errorf("failed to clear circuit failures: %w", err)
	}

	return nil
}

// SetOpenedAt records when the circuit opened
func (r *CircuitRepository) SetOpenedAt(ctx context.Context, category string, openedAt int64) error {
	err := r.client.Set(ctx, buildCircuitKey(category, "opened_at"), openedAt, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to set circuit opened_at: %w", err)
	}

	return nil
}

// GetOpenedAt returns when the circuit opened, 0 if never
func (r *CircuitRepository) GetOpenedAt(ctx context.Context, category string) (int64, error) {
	value, err := r.client.Get(ctx, buildCircuitKey(category, "opened_at")).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get circuit opened_at: %w", err)
	}

	openedAt, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse circuit opened_at: %w", err)
	}

	return openedAt, nil
}

// SetOverride stores a manual override with its reason and user
func (r *CircuitRepository) SetOverride(ctx context.Context, category string, override OverrideRecord) error {
	err := r.client.HSet(ctx, buildCircuitKey(category, "override"), map[string]interface{}{
		"user":   override.User,
		"reason": override.Reason,
		"set_at": override.SetAt,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to set circuit override: %w", err)
	}

	return nil
}

// GetOverride returns the active override, nil if none
func (r *CircuitRepository) GetOverride(ctx context.Context, category string) (*OverrideRecord, error) {
	fields, err := r.client.HGetAll(ctx, buildCircuitKey(category, "override")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get circuit override: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	setAt, err := strconv.ParseInt(fields["set_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse circuit override set_at: %w", err)
	}

	return &OverrideRecord{
		User:   fields["user"],
		Reason: fields["reason"],
		SetAt:  setAt,
	}, nil
}

// ClearOverride removes the manual override
func (r *CircuitRepository) ClearOverride(ctx context.Context, category string) error {
	if err := r.client.Del(ctx, buildCircuitKey(category, "override")).Err(); err != nil {
		return fmt.Errorf("failed to clear circuit override: %w", err)
	}

	return nil
}

// ClaimTrial atomically claims the single half-open trial slot. The claim
// expires after ttlSeconds so a trial worker that crashes without reporting
// an outcome cannot hold the slot forever.
func (r *CircuitRepository) ClaimTrial(ctx context.Context, category string, ttlSeconds int) (bool, error) {
	claimed, err := r.client.SetNX(ctx, buildCircuitKey(category, "trial"), r.now(), time.Duration(ttlSeconds)*time.Second).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim circuit trial: %w", err)
	}

	return claimed, nil
}

// ClearTrial releases the half-open trial slot
func (r *CircuitRepository) ClearTrial(ctx context.Context, category string) error {
	if err := r.client.Del(ctx, buildCircuitKey(category, "trial")).Err(); err != nil {
		return fmt.Errorf("failed to clear circuit trial: %w", err)
	}

	return nil
}
