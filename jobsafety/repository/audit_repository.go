package repository

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AuditRepository writes retry audit records to day-sharded Redis streams.
// Sharding by day bounds stream size and makes retention a per-day delete.
type AuditRepository struct {
	client    *redis.Client
	flushSize int

	mu     sync.Mutex
	buffer []RetryAuditRecord
}

// NewAuditRepository creates a new AuditRepository flushing at flushSize records
func NewAuditRepository(client *redis.Client, flushSize int) *AuditRepository {
	if flushSize <= 0 {
		flushSize = 100
	}

	return &AuditRepository{
		client:    client,
		flushSize: flushSize,
		buffer:    make([]RetryAuditRecord, 0, flushSize),
	}
}

// auditStreamKey returns the stream key for the day containing ts
func auditStreamKey(ts int64) string {
	return auditStreamPrefix + time.Unix(ts, 0).UTC().Format("20060102")
}

// Record buffers one audit record, flushing when the batch size is reached
func (r *AuditRepository) Record(ctx context.Context, record RetryAuditRecord) error {
	r.mu.Lock()
	r.buffer = append(r.buffer, record)
	full := len(r.buffer) >= r.flushSize
	r.mu.Unlock()

	if full {
		return r.Flush(ctx)
	}

	return nil
}

// Flush writes all buffered records to their day-sharded streams in one pipeline
func (r *AuditRepository) Flush(ctx context.Context) error {
	r.mu.Lock()
	pending := r.buffer
	r.buffer = make([]RetryAuditRecord, 0, r.flushSize)
	r.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, record := range pending {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: auditStreamKey(record.Timestamp),
			Values: auditRecordToStreamValues(record),
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		// put the batch back so a later flush can retry it
		r.mu.Lock()
		r.buffer = append(pending, r.buffer...)
		r.mu.Unlock()
		auditFlushesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to flush audit records: %w", err)
	}

	auditFlushesTotal.WithLabelValues("ok").Inc()
	return nil
}

// Query reads records back, optionally filtered by job id and date range
func (r *AuditRepository) Query(ctx context.Context, query AuditQuery) ([]StoredRetryAuditRecord, error) {
	from := query.From
	to := query.To
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to
	}

	records := make([]StoredRetryAuditRecord, 0)

	for day := from.UTC().Truncate(24 * time.Hour); !day.After(to.UTC()); day = day.AddDate(0, 0, 1) {
		key := auditStreamPrefix + day.Format("20060102")

		entries, err := r.client.XRange(ctx, key, "-", "+").Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read audit stream %s: %w", key, err)
		}

		for _, entry := range entries {
			record, err := auditRecordFromStreamValues(entry.Values)
			if err != nil {
				return nil, fmt.Errorf("failed to decode audit record %s: %w", entry.ID, err)
			}

			if query.JobID != "" && record.JobID != query.JobID {
				continue
			}

			records = append(records, StoredRetryAuditRecord{ID: entry.ID, RetryAuditRecord: record})
			if query.Limit > 0 && len(records) >= query.Limit {
				return records, nil
			}
		}
	}

	return records, nil
}

func auditRecordToStreamValues(record RetryAuditRecord) map[string]interface{} {
	return map[string]interface{}{
		"job_id":         record.JobID,
		"attempt":        record.AttemptNumber,
		"classification": record.Classification,
		"outcome":        record.Outcome,
		"reason":         record.Reason,
		"cooldown_until": record.CooldownUntil,
		"dry_run":        strconv.FormatBool(record.DryRun),
		"actor":          record.Actor,
		"timestamp":      record.Timestamp,
	}
}

func auditRecordFromStreamValues(values map[string]interface{}) (RetryAuditRecord, error) {
	record := RetryAuditRecord{
		JobID:          stringValue(values, "job_id"),
		Classification: stringValue(values, "classification"),
		Outcome:        stringValue(values, "outcome"),
		Reason:         stringValue(values, "reason"),
		Actor:          stringValue(values, "actor"),
	}

	attempt, err := strconv.Atoi(stringValue(values, "attempt"))
	if err != nil {
		return RetryAuditRecord{}, fmt.Errorf("invalid attempt: %w", err)
	}
	record.AttemptNumber = attempt

	record.CooldownUntil, err = strconv.ParseInt(stringValue(values, "cooldown_until"), 10, 64)
	if err != nil {
		return RetryAuditRecord{}, fmt.Errorf("invalid cooldown_until: %w", err)
	}

	record.Timestamp, err = strconv.ParseInt(stringValue(values, "timestamp"), 10, 64)
	if err != nil {
		return RetryAuditRecord{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	record.DryRun, err = strconv.ParseBool(stringValue(values, "dry_run"))
	if err != nil {
		return RetryAuditRecord{}, fmt.Errorf("invalid dry_run: %w", err)
	}

	return record, nil
}

func stringValue(values map[string]interface{}, name string) string {
	if value, ok := values[name].(string); ok {
		return value
	}
	return ""
}
