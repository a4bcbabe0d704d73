package repository

import (
	"context"
	"time"
)

// Retry decision outcomes recorded in the audit trail
const (
	AuditOutcomeRetryAllowed       = "retry_allowed"
	AuditOutcomeDeniedNonRetryable = "denied_non_retryable"
	AuditOutcomeDeniedExhausted    = "denied_exhausted"
	AuditOutcomeDeniedCoolingDown  = "denied_cooling_down"
	AuditOutcomeDeniedCircuitOpen  = "denied_circuit_open"
	AuditOutcomeSuccess            = "success"
	AuditOutcomeStoreUnavailable   = "store_unavailable"
)

// RetryAuditRecord is one immutable retry decision. Records are never
// mutated after being written.
type RetryAuditRecord struct {
	JobID          string
	AttemptNumber  int
	Classification string
	Outcome        string
	Reason         string
	CooldownUntil  int64
	DryRun         bool
	Actor          string
	Timestamp      int64
}

// StoredRetryAuditRecord is an audit record as read back from the stream
type StoredRetryAuditRecord struct {
	ID string
	RetryAuditRecord
}

// AuditQuery filters audit reads by job and day range
type AuditQuery struct {
	JobID string
	From  time.Time
	To    time.Time
	Limit int
}

// AuditRepositoryInterface defines the append-only retry audit log.
// Writes are buffered and flushed in batches; at most the last unflushed
// batch can be lost on a crash. That gap is accepted, not guaranteed away.
type AuditRepositoryInterface interface {
	// Record buffers one audit record, flushing when the batch size is reached
	Record(ctx context.Context, record RetryAuditRecord) error

	// Flush writes all buffered records to their day-sharded streams
	Flush(ctx context.Context) error

	// Query reads records back, optionally filtered by job id and date range
	Query(ctx context.Context, query AuditQuery) ([]StoredRetryAuditRecord, error)
}
