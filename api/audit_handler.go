package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quantsafe/guardrail/jobsafety/repository"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// retryAuditResponse represents a single audit record in the API response
type retryAuditResponse struct {
	ID             string `json:"id"`
	JobID          string `json:"job_id"`
	AttemptNumber  int    `json:"attempt_number"`
	Classification string `json:"classification"`
	Outcome        string `json:"outcome"`
	Reason         string `json:"reason,omitempty"`
	CooldownUntil  int64  `json:"cooldown_until,omitempty"`
	DryRun         bool   `json:"dry_run"`
	Actor          string `json:"actor,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

type retryAuditListResponse struct {
	Count   int                  `json:"count"`
	Records []retryAuditResponse `json:"records"`
}

// AuditRetries handles GET /v1/audit/retries
func AuditRetries(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: errorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
				Field:   "limit",
			},
		})
		return
	}

	from, to, err := parseDayRange(c.Query("from"), c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: errorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	records, err := auditLog.Query(c.Request.Context(), repository.AuditQuery{
		JobID: c.Query("job_id"),
		From:  from,
		To:    to,
		Limit: limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error: errorDetail{
				Code:    "AUDIT_QUERY_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	responses := make([]retryAuditResponse, len(records))
	for i, record := range records {
		responses[i] = retryAuditResponse{
			ID:             record.ID,
			JobID:          record.JobID,
			AttemptNumber:  record.AttemptNumber,
			Classification: record.Classification,
			Outcome:        record.Outcome,
			Reason:         record.Reason,
			CooldownUntil:  record.CooldownUntil,
			DryRun:         record.DryRun,
			Actor:          record.Actor,
			Timestamp:      record.Timestamp,
		}
	}

	c.JSON(http.StatusOK, retryAuditListResponse{
		Count:   len(responses),
		Records: responses,
	})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultAuditLimit, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}

	if value <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}

	if value > maxAuditLimit {
		return maxAuditLimit, nil
	}

	return value, nil
}

// parseDayRange parses optional YYYY-MM-DD bounds, defaulting to today. With
// only to given, from defaults to the same day.
func parseDayRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	from := today
	to := today

	var err error
	if toRaw != "" {
		to, err = time.Parse("2006-01-02", toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date, expected YYYY-MM-DD: %w", err)
		}
		if fromRaw == "" {
			from = to
		}
	}
	if fromRaw != "" {
		from, err = time.Parse("2006-01-02", fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date, expected YYYY-MM-DD: %w", err)
		}
	}

	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to date precedes from date")
	}

	return from, to, nil
}
