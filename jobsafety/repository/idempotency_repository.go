package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// beginScript atomically claims the key if no live record exists.
// Returns {status, cached_result}.
var beginScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]
local claim_ttl = tonumber(ARGV[2])
local created_at = ARGV[3]

local status = redis.call('HGET', key, 'status')
if status == false then
    redis.call('HSET', key, 'status', 'in_progress', 'token', token, 'created_at', created_at)
    redis.call('EXPIRE', key, claim_ttl)
    return {'granted', ''}
end

if status == 'completed' then
    local result = redis.call('HGET', key, 'result')
    return {'completed', result or ''}
end

return {'in_progress', ''}
`)

// completeScript marks the record completed only if the token still matches.
var completeScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]
local result = ARGV[2]
local retention = tonumber(ARGV[3])

if redis.call('HGET', key, 'token') ~= token then
    return 0
end

redis.call('HSET', key, 'status', 'completed', 'result', result)
redis.call('HDEL', key, 'token')
redis.call('EXPIRE', key, retention)
return 1
`)

// failScript deletes the in-progress record only if the token still matches.
var failScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]

if redis.call('HGET', key, 'token') ~= token then
    return 0
end

redis.call('DEL', key)
return 1
`)

// IdempotencyConfig holds the record lifetimes
type IdempotencyConfig struct {
	// RetentionSeconds is how long a completed record (and its cached result)
	// survives before the key may execute again
	RetentionSeconds int
	// ClaimTTLSeconds bounds how long an in-progress claim can dangle if the
	// executor crashes without calling Complete or Fail
	ClaimTTLSeconds int
}

// IdempotencyRepository stores at-most-once execution records in Redis
type IdempotencyRepository struct {
	client *redis.Client
	config IdempotencyConfig
	now    func() int64
}

// NewIdempotencyRepository creates a new IdempotencyRepository
func NewIdempotencyRepository(client *redis.Client, config IdempotencyConfig) *IdempotencyRepository {
	return &IdempotencyRepository{
		client: client,
		config: config,
		now:    unixNow,
	}
}

// Begin atomically claims the key or reports the existing record.
// Any transport error fails closed: exclusivity cannot be guaranteed, so the
// caller must not execute the side effect.
func (r *IdempotencyRepository) Begin(ctx context.Context, key string) (ClaimResult, error) {
	token := uuid.New().String()
	redisKey := buildEffectKey(key)

	result, err := beginScript.Run(ctx, r.client,
		[]string{redisKey},
		token, r.config.ClaimTTLSeconds, r.now(),
	).Result()
	if err != nil {
		return ClaimResult{}, fmt.Errorf("%w: begin failed for key %s: %v", ErrStoreUnavailable, key, err)
	}

	reply, ok := result.([]interface{})
	if !ok || len(reply) != 2 {
		return ClaimResult{}, fmt.Errorf("%w: unexpected begin reply type %T", ErrStoreUnavailable, result)
	}

	status, _ := reply[0].(string)
	cached, _ := reply[1].(string)

	switch ClaimStatus(status) {
	case ClaimGranted:
		return ClaimResult{
			Status: ClaimGranted,
			Token:  ExecutionToken{Key: key, Token: token},
		}, nil
	case ClaimCompleted:
		return ClaimResult{Status: ClaimCompleted, CachedResult: cached}, nil
	case ClaimInProgress:
		return ClaimResult{Status: ClaimInProgress}, nil
	default:
		return ClaimResult{}, fmt.Errorf("%w: unknown claim status %q", ErrStoreUnavailable, status)
	}
}

// Complete marks the claimed record completed and caches the result
func (r *IdempotencyRepository) Complete(ctx context.Context, token ExecutionToken, result string) error {
	redisKey := buildEffectKey(token.Key)

	applied, err := completeScript.Run(ctx, r.client,
		[]string{redisKey},
		token.Token, result, r.config.RetentionSeconds,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to complete idempotency record %s: %w", token.Key, err)
	}
	if applied == 0 {
		return fmt.Errorf("stale execution token for key %s", token.Key)
	}

	return nil
}

// Fail removes the in-progress marker so a later attempt may retry
func (r *IdempotencyRepository) Fail(ctx context.Context, token ExecutionToken) error {
	redisKey := buildEffectKey(token.Key)

	applied, err := failScript.Run(ctx, r.client, []string{redisKey}, token.Token).Int()
	if err != nil {
		return fmt.Errorf("failed to release idempotency record %s: %w", token.Key, err)
	}
	if applied == 0 {
		return fmt.Errorf("stale execution token for key %s", token.Key)
	}

	return nil
}
