package adaptive

import (
	"context"
	"fmt"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/quantsafe/guardrail/lib/logger"
)

// DriftHandler receives flagged drift comparisons. Handlers run on the
// runner's goroutine; a panicking handler is isolated and logged.
type DriftHandler func(comparison DriftComparison)

// DriftCheckRunner periodically compares the shadow window to the frozen
// baseline on a cron schedule and fans flagged drifts out to handlers
type DriftCheckRunner struct {
	monitor  *DriftMonitor
	schedule *cronexpr.Expression
	handlers []DriftHandler
}

// NewDriftCheckRunner creates a runner with a validated cron schedule
func NewDriftCheckRunner(monitor *DriftMonitor, schedule string) (*DriftCheckRunner, error) {
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid drift check schedule: %w", err)
	}

	return &DriftCheckRunner{
		monitor:  monitor,
		schedule: expr,
	}, nil
}

// OnDrift registers a handler invoked for every flagged comparison
func (r *DriftCheckRunner) OnDrift(handler DriftHandler) {
	r.handlers = append(r.handlers, handler)
}

// Start runs the check loop until the context is cancelled. Register all
// handlers before calling Start.
func (r *DriftCheckRunner) Start(ctx context.Context) {
	go func() {
		for {
			next := r.schedule.Next(time.Now())
			timer := time.NewTimer(time.Until(next))

			select {
			case <-ctx.Done():
				timer.Stop()
				logger.Info("drift check runner stopping")
				return
			case <-timer.C:
				r.runCheck()
			}
		}
	}()
}

// RunOnce performs a single drift check, used by the operator API
func (r *DriftCheckRunner) RunOnce() DriftComparison {
	return r.runCheck()
}

func (r *DriftCheckRunner) runCheck() DriftComparison {
	comparison := r.monitor.CompareToFrozen()

	if !comparison.Evaluated {
		logger.Debug("drift check skipped, not enough trades", "windowTrades", comparison.Shadow.WindowTrades)
		return comparison
	}

	if comparison.Drifted {
		for _, handler := range r.handlers {
			r.invoke(handler, comparison)
		}
	}

	return comparison
}

func (r *DriftCheckRunner) invoke(handler DriftHandler, comparison DriftComparison) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("drift handler panicked", "panic", rec)
		}
	}()

	handler(comparison)
}
