package jobsafety

import (
	"context"
	"time"

	"github.com/quantsafe/guardrail/jobsafety/repository"
	"github.com/quantsafe/guardrail/lib/logger"
)

// TerminalKind tags why a job is done retrying
type TerminalKind string

const (
	TerminalNone         TerminalKind = ""
	TerminalNonRetryable TerminalKind = "non_retryable"
	TerminalExhausted    TerminalKind = "exhausted"
)

// FailureReport describes one job failure as seen by the worker
type FailureReport struct {
	JobID        string
	Category     string
	ErrorCode    string
	ErrorMessage string
	// DryRun evaluates the decision without mutating retry or circuit state
	DryRun bool
	Actor  string
}

// RetryDecision is the manager's verdict on a failure report
type RetryDecision struct {
	Allow          bool
	Reason         string
	Classification FailureCategory
	AttemptNumber  int
	RetryAt        int64
	Terminal       TerminalKind
}

// RetryManager ties the classifier, retry policy and circuit breaker together
// and records every decision in the audit log. It owns no execution: workers
// report failures and successes, the manager only decides and books.
type RetryManager struct {
	classifier *FailureClassifier
	policy     *RetryPolicy
	breaker    *CircuitBreaker
	states     repository.RetryStateRepositoryInterface
	audit      repository.AuditRepositoryInterface

	dueRetries chan string
	now        func() int64
}

// NewRetryManager creates a new RetryManager
func NewRetryManager(
	classifier *FailureClassifier,
	policy *RetryPolicy,
	breaker *CircuitBreaker,
	states repository.RetryStateRepositoryInterface,
	audit repository.AuditRepositoryInterface,
) *RetryManager {
	return &RetryManager{
		classifier: classifier,
		policy:     policy,
		breaker:    breaker,
		states:     states,
		audit:      audit,
		dueRetries: make(chan string, 100),
		now:        func() int64 { return time.Now().Unix() },
	}
}

// OnJobFailure classifies the failure, consults the circuit breaker and the
// retry policy, persists the updated retry state when a retry is allowed, and
// audits the decision either way.
func (m *RetryManager) OnJobFailure(ctx context.Context, report FailureReport) (RetryDecision, error) {
	classification := m.classifier.Classify(report.ErrorCode, report.ErrorMessage)

	state, err := m.states.Get(ctx, report.JobID)
	if err != nil {
		return RetryDecision{}, err
	}
	attemptNumber := state.Attempts + 1

	if !report.DryRun {
		if err := m.breaker.RecordFailure(ctx, report.Category); err != nil {
			logger.Error("failed to record circuit failure", "jobID", report.JobID, "category", report.Category, "error", err)
		}
	}

	if !classification.Retryable() {
		decision := RetryDecision{
			Allow:          false,
			Reason:         "failure class is not retryable; manual intervention required",
			Classification: classification,
			AttemptNumber:  attemptNumber,
			Terminal:       TerminalNonRetryable,
		}
		if !report.DryRun {
			if err := m.states.Clear(ctx, report.JobID); err != nil {
				logger.Error("failed to clear retry state", "jobID", report.JobID, "error", err)
			}
		}
		return decision, m.recordDecision(ctx, report, decision, repository.AuditOutcomeDeniedNonRetryable)
	}

	allowed, reason, err := m.circuitAllows(ctx, report)
	if err != nil {
		return RetryDecision{}, err
	}
	if !allowed {
		decision := RetryDecision{
			Allow:          false,
			Reason:         reason,
			Classification: classification,
			AttemptNumber:  attemptNumber,
		}
		return decision, m.recordDecision(ctx, report, decision, repository.AuditOutcomeDeniedCircuitOpen)
	}

	if allowed, reason := m.policy.CanRetry(state, classification); !allowed {
		decision := RetryDecision{
			Allow:          false,
			Reason:         reason,
			Classification: classification,
			AttemptNumber:  attemptNumber,
		}

		outcome := repository.AuditOutcomeDeniedCoolingDown
		if attemptNumber >= m.policy.config.MaxAttempts {
			outcome = repository.AuditOutcomeDeniedExhausted
			decision.Terminal = TerminalExhausted
			if !report.DryRun {
				if err := m.states.Clear(ctx, report.JobID); err != nil {
					logger.Error("failed to clear retry state", "jobID", report.JobID, "error", err)
				}
			}
		}

		return decision, m.recordDecision(ctx, report, decision, outcome)
	}

	cooldown := m.policy.NextCooldown(state.Attempts)
	retryAt := m.now() + int64(cooldown.Seconds())

	decision := RetryDecision{
		Allow:          true,
		Reason:         "",
		Classification: classification,
		AttemptNumber:  attemptNumber,
		RetryAt:        retryAt,
	}

	if !report.DryRun {
		firstFailedAt := state.FirstFailedAt
		if firstFailedAt == 0 {
			firstFailedAt = m.now()
		}

		err = m.states.RecordAttempt(ctx, repository.RetryState{
			JobID:          report.JobID,
			Attempts:       attemptNumber,
			Classification: string(classification),
			CooldownUntil:  retryAt,
			FirstFailedAt:  firstFailedAt,
			LastFailedAt:   m.now(),
		})
		if err != nil {
			return RetryDecision{}, err
		}

		if err := m.states.SchedulePending(ctx, report.JobID, retryAt); err != nil {
			return RetryDecision{}, err
		}
	}

	return decision, m.recordDecision(ctx, report, decision, repository.AuditOutcomeRetryAllowed)
}

// OnJobSuccess clears retry bookkeeping and gives the circuit breaker its
// success signal
func (m *RetryManager) OnJobSuccess(ctx context.Context, jobID, category string) error {
	if err := m.breaker.RecordSuccess(ctx, category); err != nil {
		logger.Error("failed to record circuit success", "jobID", jobID, "category", category, "error", err)
	}

	if err := m.states.Clear(ctx, jobID); err != nil {
		return err
	}

	observeRetryDecision(repository.AuditOutcomeSuccess)
	return m.audit.Record(ctx, repository.RetryAuditRecord{
		JobID:     jobID,
		Outcome:   repository.AuditOutcomeSuccess,
		Timestamp: m.now(),
	})
}

// OnStoreUnavailable audits a job that was skipped because the idempotency
// store could not guarantee exclusivity
func (m *RetryManager) OnStoreUnavailable(ctx context.Context, jobID string) error {
	logger.Error("job skipped, idempotency store unavailable", "jobID", jobID)
	observeRetryDecision(repository.AuditOutcomeStoreUnavailable)
	return m.audit.Record(ctx, repository.RetryAuditRecord{
		JobID:     jobID,
		Outcome:   repository.AuditOutcomeStoreUnavailable,
		Reason:    "idempotency store unavailable; execution skipped",
		Timestamp: m.now(),
	})
}

// DueRetries returns the channel of job IDs whose cooldown has elapsed
func (m *RetryManager) DueRetries() <-chan string {
	return m.dueRetries
}

// StartDueRetriesFinder polls the pending queue every second and pushes due
// job IDs to the DueRetries channel until the context is cancelled
func (m *RetryManager) StartDueRetriesFinder(ctx context.Context) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("due retries finder panicked", "panic", r)
			}
		}()

		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("due retries finder stopping")
				return
			case <-ticker.C:
				if err := m.states.FindDueRetries(ctx, m.now(), m.dueRetries); err != nil {
					logger.Error("failed to find due retries", "error", err)
				}
			}
		}
	}()
}

// circuitAllows consults the breaker. A dry run must not claim the half-open
// trial slot or trigger transitions, so it only inspects the current state.
func (m *RetryManager) circuitAllows(ctx context.Context, report FailureReport) (bool, string, error) {
	if !report.DryRun {
		return m.breaker.CanRetry(ctx, report.Category)
	}

	status, err := m.breaker.Status(ctx, report.Category)
	if err != nil {
		return false, "", err
	}

	if status.State == repository.CircuitClosed {
		return true, "", nil
	}

	return false, "circuit is not closed for category " + report.Category, nil
}

func (m *RetryManager) recordDecision(ctx context.Context, report FailureReport, decision RetryDecision, outcome string) error {
	observeRetryDecision(outcome)
	logger.Info("retry decision",
		"jobID", report.JobID,
		"outcome", outcome,
		"classification", decision.Classification,
		"attempt", decision.AttemptNumber,
		"reason", decision.Reason,
		"dryRun", report.DryRun,
	)

	return m.audit.Record(ctx, repository.RetryAuditRecord{
		JobID:          report.JobID,
		AttemptNumber:  decision.AttemptNumber,
		Classification: string(decision.Classification),
		Outcome:        outcome,
		Reason:         decision.Reason,
		CooldownUntil:  decision.RetryAt,
		DryRun:         report.DryRun,
		Actor:          report.Actor,
		Timestamp:      m.now(),
	})
}
