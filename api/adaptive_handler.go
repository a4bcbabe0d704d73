package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// tradeOutcomeRequest represents one completed paper trade fed to the
// drift monitor
type tradeOutcomeRequest struct {
	PnL   *float64 `json:"pnl" binding:"required"`
	IsWin *bool    `json:"is_win" binding:"required"`
}

// DriftStatus handles GET /v1/drift/status and returns a fresh comparison
// of the shadow window against the frozen baseline
func DriftStatus(c *gin.Context) {
	c.JSON(http.StatusOK, driftRunner.RunOnce())
}

// RecordTrade handles POST /v1/drift/trades
func RecordTrade(c *gin.Context) {
	var req tradeOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: errorDetail{
				Code:    "INVALID_REQUEST",
				Message: "Invalid request body: " + err.Error(),
			},
		})
		return
	}

	snapshot := driftMonitor.RecordTradeOutcome(*req.PnL, *req.IsWin)
	c.JSON(http.StatusOK, snapshot)
}

// EvaluatePromotion handles POST /v1/promotion/evaluate. Evaluation is
// deliberately separate from any promote action: an APPROVE here changes
// nothing by itself.
func EvaluatePromotion(c *gin.Context) {
	decision, err := gate.Evaluate(driftMonitor.ShadowMetrics(), driftMonitor.FrozenBaseline())
	if err != nil {
		// the decision was made but not journaled; surface that explicitly
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error: errorDetail{
				Code:    "JOURNAL_WRITE_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, decision)
}

// PromotionDecisions handles GET /v1/promotion/decisions
func PromotionDecisions(c *gin.Context) {
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

	decisions, err := journal.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error: errorDetail{
				Code:    "JOURNAL_READ_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     len(decisions),
		"decisions": decisions,
	})
}
