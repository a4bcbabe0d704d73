package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quantsafe/guardrail/jobsafety"
)

// jobRequest represents one job delivery submitted for guarded execution
type jobRequest struct {
	JobID      string `json:"job_id" binding:"required"`
	Category   string `json:"category" binding:"required"`
	EffectType string `json:"effect_type" binding:"required"`
	EntityID   string `json:"entity_id" binding:"required"`
}

// SubmitJob handles POST /v1/jobs. The delivery is accepted and executed
// asynchronously through the side effect guard.
func SubmitJob(c *gin.Context) {
	if processor == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{
			Error: errorDetail{
				Code:    "JOB_INTAKE_DISABLED",
				Message: "no job executor configured",
			},
		})
		return
	}

	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: errorDetail{
				Code:    "INVALID_REQUEST",
				Message: "Invalid request body: " + err.Error(),
			},
		})
		return
	}

	// execution outlives the request, so it must not inherit its context
	processor.Process(context.Background(), jobsafety.JobDelivery{
		JobID:      req.JobID,
		Category:   req.Category,
		EffectType: req.EffectType,
		EntityID:   req.EntityID,
	})

	c.JSON(http.StatusAccepted, gin.H{
		"status": "accepted",
		"job_id": req.JobID,
	})
}
