package api

import (
	"github.com/quantsafe/guardrail/adaptive"
	"github.com/quantsafe/guardrail/jobsafety"
	"github.com/quantsafe/guardrail/jobsafety/repository"
)

// Handler dependencies, wired once from main before the router starts
var (
	breaker      *jobsafety.CircuitBreaker
	auditLog     repository.AuditRepositoryInterface
	processor    *jobsafety.Processor
	driftMonitor *adaptive.DriftMonitor
	driftRunner  *adaptive.DriftCheckRunner
	gate         *adaptive.PromotionGate
	journal      *adaptive.PromotionJournal
)

// Initialize wires the handler dependencies. jobProcessor may be nil when no
// job executor is configured; job intake then answers 503.
func Initialize(
	cb *jobsafety.CircuitBreaker,
	audit repository.AuditRepositoryInterface,
	jobProcessor *jobsafety.Processor,
	monitor *adaptive.DriftMonitor,
	runner *adaptive.DriftCheckRunner,
	promotionGate *adaptive.PromotionGate,
	promotionJournal *adaptive.PromotionJournal,
) {
	breaker = cb
	auditLog = audit
	processor = jobProcessor
	driftMonitor = monitor
	driftRunner = runner
	gate = promotionGate
	journal = promotionJournal
}

// errorResponse represents a standardized error response
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}
