package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quantsafe/guardrail/jobsafety"
)

// circuitStatusResponse represents one category's circuit state
type circuitStatusResponse struct {
	Category      string            `json:"category"`
	State         string            `json:"state"`
	FailureCount  int64             `json:"failure_count"`
	Threshold     int               `json:"threshold"`
	WindowSeconds int               `json:"window_seconds"`
	OpenedAt      int64             `json:"opened_at,omitempty"`
	Override      *overrideResponse `json:"override,omitempty"`
}

type overrideResponse struct {
	User   string `json:"user"`
	Reason string `json:"reason"`
	SetAt  int64  `json:"set_at"`
}

// overrideRequest represents the request to manually override an open circuit
type overrideRequest struct {
	User   string `json:"user" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// CircuitStatus handles GET /v1/circuit/:category
func CircuitStatus(c *gin.Context) {
	category := c.Param("category")

	status, err := breaker.Status(c.Request.Context(), category)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error: errorDetail{
				Code:    "CIRCUIT_STATUS_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, toCircuitStatusResponse(status))
}

// CircuitOverride handles POST /v1/circuit/:category/override
func CircuitOverride(c *gin.Context) {
	category := c.Param("category")

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: errorDetail{
				Code:    "INVALID_REQUEST",
				Message: "Invalid request body: " + err.Error(),
			},
		})
		return
	}

	if err := breaker.ManualOverride(c.Request.Context(), category, req.User, req.Reason); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error: errorDetail{
				Code:    "OVERRIDE_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	status, err := breaker.Status(c.Request.Context(), category)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error: errorDetail{
				Code:    "CIRCUIT_STATUS_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, toCircuitStatusResponse(status))
}

func toCircuitStatusResponse(status jobsafety.CircuitStatus) circuitStatusResponse {
	resp := circuitStatusResponse{
		Category:      status.Category,
		State:         string(status.State),
		FailureCount:  status.FailureCount,
		Threshold:     status.Threshold,
		WindowSeconds: status.WindowSeconds,
		OpenedAt:      status.OpenedAt,
	}

	if status.Override != nil {
		resp.Override = &overrideResponse{
			User:   status.Override.User,
			Reason: status.Override.Reason,
			SetAt:  status.Override.SetAt,
		}
	}

	return resp
}
