package jobsafety

import (
	"fmt"
	"time"

	"github.com/quantsafe/guardrail/jobsafety/repository"
)

// RetryPolicyConfig holds the retry limits and backoff shape
type RetryPolicyConfig struct {
	MaxAttempts  int
	CooldownBase time.Duration
	CooldownCap  time.Duration
}

// RetryPolicy decides whether and when a failed job may be retried
type RetryPolicy struct {
	config RetryPolicyConfig
	now    func() time.Time
}

// NewRetryPolicy creates a new RetryPolicy
func NewRetryPolicy(config RetryPolicyConfig) *RetryPolicy {
	return &RetryPolicy{config: config, now: time.Now}
}

// NextCooldown returns the backoff for the given attempt number:
// base * 2^attempt, capped at the configured maximum
func (p *RetryPolicy) NextCooldown(attemptNumber int) time.Duration {
	cooldown := p.config.CooldownBase
	for i := 0; i < attemptNumber; i++ {
		cooldown *= 2
		if cooldown >= p.config.CooldownCap {
			return p.config.CooldownCap
		}
	}

	if cooldown > p.config.CooldownCap {
		return p.config.CooldownCap
	}

	return cooldown
}

// CanRetry reports whether the job may be retried given its stored state and
// the classification of the latest failure. The reason explains any denial.
func (p *RetryPolicy) CanRetry(state repository.RetryState, category FailureCategory) (bool, string) {
	if !category.Retryable() {
		return false, fmt.Sprintf("failure class %q is not retryable; manual intervention required", category)
	}

	// this failure is attempt state.Attempts+1; deny once it hits the limit
	if state.Attempts+1 >= p.config.MaxAttempts {
		return false, fmt.Sprintf("maximum retry attempts (%d) reached", p.config.MaxAttempts)
	}

	if state.CooldownUntil > 0 && p.now().Unix() < state.CooldownUntil {
		remaining := state.CooldownUntil - p.now().Unix()
		return false, fmt.Sprintf("still cooling down; %ds remaining before next attempt", remaining)
	}

	return true, ""
}
