package jobsafety

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/quantsafe/guardrail/jobsafety/repository"
	"github.com/quantsafe/guardrail/lib/logger"
)

// CircuitBreakerConfig holds the thresholds for one breaker instance
type CircuitBreakerConfig struct {
	// FailureThreshold is the windowed failure count that opens the circuit
	FailureThreshold int
	// WindowSeconds is the sliding window for counting failures
	WindowSeconds int
	// CooldownSeconds is how long an open circuit blocks retries before a
	// half-open trial is allowed without a manual override
	CooldownSeconds int
}

// CircuitStatus is a point-in-time view of one category's circuit
type CircuitStatus struct {
	Category      string
	State         repository.CircuitStateValue
	FailureCount  int64
	Threshold     int
	WindowSeconds int
	OpenedAt      int64
	Override      *repository.OverrideRecord
}

// CircuitBreaker is the per-category retry gate. It is a pure decision
// component: it reads and writes shared circuit state and emits alert events,
// and never touches execution code.
type CircuitBreaker struct {
	repo     repository.CircuitRepositoryInterface
	config   CircuitBreakerConfig
	notifier *AlertNotifier
	now      func() int64
}

// NewCircuitBreaker creates a new CircuitBreaker over shared circuit state
func NewCircuitBreaker(repo repository.CircuitRepositoryInterface, config CircuitBreakerConfig, notifier *AlertNotifier) *CircuitBreaker {
	if notifier == nil {
		notifier = NewAlertNotifier()
	}

	return &CircuitBreaker{
		repo:     repo,
		config:   config,
		notifier: notifier,
		now:      func() int64 { return time.Now().Unix() },
	}
}

// CanRetry reports whether a retry is permitted for the category. Denials
// always carry a reason distinguishing "the system is protecting itself"
// from an actual job failure.
func (b *CircuitBreaker) CanRetry(ctx context.Context, category string) (bool, string, error) {
	state, err := b.repo.GetState(ctx, category)
	if err != nil {
		return false, "", err
	}

	switch state {
	case repository.CircuitClosed:
		return true, "", nil

	case repository.CircuitOpen:
		override, err := b.repo.GetOverride(ctx, category)
		if err != nil {
			return false, "", err
		}

		if override == nil {
			openedAt, err := b.repo.GetOpenedAt(ctx, category)
			if err != nil {
				return false, "", err
			}

			elapsed := b.now() - openedAt
			if elapsed < int64(b.config.CooldownSeconds) {
				remaining := int64(b.config.CooldownSeconds) - elapsed
				return false, fmt.Sprintf("circuit open for category %q; retries blocked for another %ds", category, remaining), nil
			}
		}

		// cooldown elapsed or operator override: move to half-open
		if err := b.transitionToHalfOpen(ctx, category); err != nil {
			return false, "", err
		}

		return b.claimTrial(ctx, category)

	case repository.CircuitHalfOpen:
		return b.claimTrial(ctx, category)

	default:
		return false, fmt.Sprintf("circuit in unknown state %q for category %q", state, category), nil
	}
}

// RecordFailure appends a failure to the shared window. In half-open state a
// failed trial reopens the circuit and restarts the cooldown; in closed state
// crossing the threshold opens the circuit and emits an alert.
func (b *CircuitBreaker) RecordFailure(ctx context.Context, category string) error {
	state, err := b.repo.GetState(ctx, category)
	if err != nil {
		return err
	}

	if state == repository.CircuitHalfOpen {
		return b.reopen(ctx, category)
	}

	count, err := b.repo.RecordFailure(ctx, category, b.config.WindowSeconds)
	if err != nil {
		return err
	}

	if state == repository.CircuitClosed && count >= int64(b.config.FailureThreshold) {
		return b.open(ctx, category, count)
	}

	return nil
}

// RecordSuccess closes the circuit after a successful half-open trial
func (b *CircuitBreaker) RecordSuccess(ctx context.Context, category string) error {
	state, err := b.repo.GetState(ctx, category)
	if err != nil {
		return err
	}

	if state != repository.CircuitHalfOpen {
		return nil
	}

	if err := b.repo.SetState(ctx, category, repository.CircuitClosed); err != nil {
		return err
	}
	if err := b.repo.ClearFailures(ctx, category); err != nil {
		return err
	}
	if err := b.repo.ClearOverride(ctx, category); err != nil {
		return err
	}
	if err := b.repo.ClearTrial(ctx, category); err != nil {
		return err
	}

	observeCircuitState(category, repository.CircuitClosed)
	logger.Info("circuit closed after successful trial", "category", category)
	b.notifier.Emit(AlertEvent{
		Type:      AlertCircuitClosed,
		Severity:  "info",
		Category:  category,
		Message:   fmt.Sprintf("circuit closed for category %q after successful trial retry", category),
		Timestamp: time.Unix(b.now(), 0),
	})

	return nil
}

// ManualOverride records an operator decision to test recovery despite an
// open circuit and moves the circuit to half-open
func (b *CircuitBreaker) ManualOverride(ctx context.Context, category, user, reason string) error {
	if user == "" || reason == "" {
		return fmt.Errorf("manual override requires both user and reason")
	}

	err := b.repo.SetOverride(ctx, category, repository.OverrideRecord{
		User:   user,
		Reason: reason,
		SetAt:  b.now(),
	})
	if err != nil {
		return err
	}

	// an abandoned trial claim must not block the operator's trial
	if err := b.repo.ClearTrial(ctx, category); err != nil {
		return err
	}

	if err := b.transitionToHalfOpen(ctx, category); err != nil {
		return err
	}

	logger.Warn("manual circuit override set", "category", category, "user", user, "reason", reason)
	b.notifier.Emit(AlertEvent{
		Type:     AlertManualOverrideSet,
		Severity: "warning",
		Category: category,
		Message:  fmt.Sprintf("manual override set for category %q by %s", category, user),
		Context: map[string]string{
			"user":   user,
			"reason": reason,
		},
		Timestamp: time.Unix(b.now(), 0),
	})

	return nil
}

// Status returns a point-in-time view of the category's circuit
func (b *CircuitBreaker) Status(ctx context.Context, category string) (CircuitStatus, error) {
	state, err := b.repo.GetState(ctx, category)
	if err != nil {
		return CircuitStatus{}, err
	}

	count, err := b.repo.FailureCount(ctx, category, b.config.WindowSeconds)
	if err != nil {
		return CircuitStatus{}, err
	}

	openedAt, err := b.repo.GetOpenedAt(ctx, category)
	if err != nil {
		return CircuitStatus{}, err
	}

	override, err := b.repo.GetOverride(ctx, category)
	if err != nil {
		return CircuitStatus{}, err
	}

	return CircuitStatus{
		Category:      category,
		State:         state,
		FailureCount:  count,
		Threshold:     b.config.FailureThreshold,
		WindowSeconds: b.config.WindowSeconds,
		OpenedAt:      openedAt,
		Override:      override,
	}, nil
}

func (b *CircuitBreaker) open(ctx context.Context, category string, count int64) error {
	if err := b.repo.SetState(ctx, category, repository.CircuitOpen); err != nil {
		return err
	}
	if err := b.repo.SetOpenedAt(ctx, category, b.now()); err != nil {
		return err
	}
	// fresh trial slot for the next half-open period
	if err := b.repo.ClearTrial(ctx, category); err != nil {
		return err
	}

	observeCircuitState(category, repository.CircuitOpen)
	logger.Error("circuit opened", "category", category, "failureCount", count, "windowSeconds", b.config.WindowSeconds)
	b.notifier.Emit(AlertEvent{
		Type:     AlertCircuitOpened,
		Severity: "critical",
		Category: category,
		Message:  fmt.Sprintf("circuit opened for category %q: %d failures within %ds", category, count, b.config.WindowSeconds),
		Context: map[string]string{
			"failure_count":  strconv.FormatInt(count, 10),
			"threshold":      strconv.Itoa(b.config.FailureThreshold),
			"window_seconds": strconv.Itoa(b.config.WindowSeconds),
		},
		Timestamp: time.Unix(b.now(), 0),
	})

	return nil
}

// reopen handles a failed half-open trial: back to open with a fresh window
// and a restarted cooldown
func (b *CircuitBreaker) reopen(ctx context.Context, category string) error {
	if err := b.repo.SetState(ctx, category, repository.CircuitOpen); err != nil {
		return err
	}
	if err := b.repo.SetOpenedAt(ctx, category, b.now()); err != nil {
		return err
	}
	if err := b.repo.ClearFailures(ctx, category); err != nil {
		return err
	}
	if err := b.repo.ClearTrial(ctx, category); err != nil {
		return err
	}

	observeCircuitState(category, repository.CircuitOpen)
	logger.Error("circuit reopened after failed trial", "category", category)
	b.notifier.Emit(AlertEvent{
		Type:      AlertCircuitReopened,
		Severity:  "critical",
		Category:  category,
		Message:   fmt.Sprintf("circuit reopened for category %q: trial retry failed", category),
		Timestamp: time.Unix(b.now(), 0),
	})

	return nil
}

func (b *CircuitBreaker) transitionToHalfOpen(ctx context.Context, category string) error {
	if err := b.repo.SetState(ctx, category, repository.CircuitHalfOpen); err != nil {
		return err
	}

	observeCircuitState(category, repository.CircuitHalfOpen)
	logger.Info("circuit half-open, testing recovery", "category", category)
	return nil
}

// claimTrial grants the single half-open trial to exactly one caller. The
// claim expires after one cooldown period so a crashed trial worker cannot
// wedge the category.
func (b *CircuitBreaker) claimTrial(ctx context.Context, category string) (bool, string, error) {
	claimed, err := b.repo.ClaimTrial(ctx, category, b.config.CooldownSeconds)
	if err != nil {
		return false, "", err
	}

	if !claimed {
		return false, fmt.Sprintf("circuit half-open for category %q; trial retry already in flight", category), nil
	}

	return true, "", nil
}
