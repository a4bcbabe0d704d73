package jobsafety

import (
	"context"
	"errors"
	"sync"

	"github.com/quantsafe/guardrail/jobsafety/repository"
	"github.com/quantsafe/guardrail/lib/logger"
)

// JobDelivery is one unit of work handed to the processor
type JobDelivery struct {
	JobID    string
	Category string
	// EffectType and EntityID identify the guarded side effect the job
	// performs; together they form the idempotency key
	EffectType    string
	EntityID      string
	AttemptNumber int
}

// JobHandler performs the actual side effect for a delivery. The returned
// string is the serialized result cached for duplicate deliveries. An error
// is reported through the retry manager as a failure.
type JobHandler func(ctx context.Context, delivery JobDelivery) (string, error)

// Processor runs guarded job executions. Every delivery goes through the
// side effect guard, and every outcome is reported to the retry manager.
// Deliveries with a scheduled retry are remembered so the due-retries feed
// can re-deliver them by job ID.
type Processor struct {
	guard   *SideEffectGuard
	manager *RetryManager
	handler JobHandler
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[string]JobDelivery
}

// NewProcessor creates a new Processor
func NewProcessor(guard *SideEffectGuard, manager *RetryManager, handler JobHandler) *Processor {
	return &Processor{
		guard:   guard,
		manager: manager,
		handler: handler,
		pending: make(map[string]JobDelivery),
	}
}

// Process spawns a worker goroutine for one delivery
func (p *Processor) Process(ctx context.Context, delivery JobDelivery) {
	p.wg.Add(1)
	go p.processJob(ctx, delivery)
}

// Wait waits for all worker goroutines to complete
func (p *Processor) Wait() {
	p.wg.Wait()
}

// StartRedelivery consumes due job IDs and re-processes the remembered
// deliveries until the context is cancelled. The memory is process-local: a
// due ID with no remembered delivery (for example after a restart) is logged
// and dropped, its retry state stays in the store for manual review.
func (p *Processor) StartRedelivery(ctx context.Context, due <-chan string) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("redelivery loop stopping")
				return
			case jobID := <-due:
				delivery, ok := p.pendingDelivery(jobID)
				if !ok {
					logger.Warn("due retry with no remembered delivery, dropping", "jobID", jobID)
					continue
				}

				logger.Info("redelivering job", "jobID", jobID, "attempt", delivery.AttemptNumber)
				p.Process(ctx, delivery)
			}
		}
	}()
}

func (p *Processor) rememberDelivery(delivery JobDelivery) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[delivery.JobID] = delivery
}

func (p *Processor) pendingDelivery(jobID string) (JobDelivery, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delivery, ok := p.pending[jobID]
	return delivery, ok
}

func (p *Processor) forgetDelivery(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, jobID)
}

func (p *Processor) processJob(ctx context.Context, delivery JobDelivery) {
	defer p.wg.Done()

	executed, result, err := p.guard.ExecuteOnce(ctx, delivery.EffectType, delivery.EntityID, func(ctx context.Context) (string, error) {
		return p.handler(ctx, delivery)
	})

	switch {
	case err == nil:
		if executed {
			logger.Info("job executed", "jobID", delivery.JobID, "effectType", delivery.EffectType)
		} else {
			logger.Info("job skipped, side effect already handled", "jobID", delivery.JobID, "effectType", delivery.EffectType, "cachedResult", result)
		}
		p.forgetDelivery(delivery.JobID)
		if err := p.manager.OnJobSuccess(ctx, delivery.JobID, delivery.Category); err != nil {
			logger.Error("failed to record job success", "jobID", delivery.JobID, "error", err)
		}

	case errors.Is(err, repository.ErrStoreUnavailable):
		if err := p.manager.OnStoreUnavailable(ctx, delivery.JobID); err != nil {
			logger.Error("failed to audit store outage", "jobID", delivery.JobID, "error", err)
		}

	case errors.Is(err, ErrExecutionInProgress):
		// another worker holds the claim; neither success nor failure
		logger.Info("job execution in progress elsewhere", "jobID", delivery.JobID, "effectType", delivery.EffectType)

	case executed:
		// the side effect ran but its completion record failed to persist;
		// do NOT report a failure, a retry here would risk double execution
		logger.Error("job executed but completion record failed", "jobID", delivery.JobID, "error", err)

	default:
		decision, decErr := p.manager.OnJobFailure(ctx, FailureReport{
			JobID:        delivery.JobID,
			Category:     delivery.Category,
			ErrorMessage: err.Error(),
		})
		if decErr != nil {
			logger.Error("failed to record job failure", "jobID", delivery.JobID, "error", decErr)
			return
		}

		switch {
		case decision.Allow:
			delivery.AttemptNumber = decision.AttemptNumber
			p.rememberDelivery(delivery)
			logger.Info("job failed, retry scheduled", "jobID", delivery.JobID, "attempt", decision.AttemptNumber, "retryAt", decision.RetryAt)
		case decision.Terminal != TerminalNone:
			p.forgetDelivery(delivery.JobID)
			logger.Error("job failed terminally", "jobID", delivery.JobID, "reason", decision.Reason, "terminal", decision.Terminal)
		default:
			logger.Error("job failed, retry denied", "jobID", delivery.JobID, "reason", decision.Reason)
		}
	}
}
