package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quantsafe/guardrail/api"
	redisClient "github.com/quantsafe/guardrail/lib/redis"
)

// Setup registers all HTTP routes
func Setup() *gin.Engine {
	router := gin.Default()

	router.GET("/", rootHandler)
	router.GET("/health", healthHandler)
	router.GET("/health/deep", deepHealthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// v1 API routes
	v1 := router.Group("/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", api.SubmitJob)
		}

		circuit := v1.Group("/circuit")
		{
			circuit.GET("/:category", api.CircuitStatus)
			circuit.POST("/:category/override", api.CircuitOverride)
		}

		audit := v1.Group("/audit")
		{
			audit.GET("/retries", api.AuditRetries)
		}

		drift := v1.Group("/drift")
		{
			drift.GET("/status", api.DriftStatus)
			drift.POST("/trades", api.RecordTrade)
		}

		promotion := v1.Group("/promotion")
		{
			promotion.POST("/evaluate", api.EvaluatePromotion)
			promotion.GET("/decisions", api.PromotionDecisions)
		}
	}

	return router
}

func rootHandler(c *gin.Context) {
	c.String(http.StatusOK, "Guardrail - Paper-Trading Safety Core")
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

func deepHealthHandler(c *gin.Context) {
	// Check Redis connection
	if err := redisClient.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"checks": gin.H{
				"redis": "unreachable",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"checks": gin.H{
			"redis": "healthy",
		},
	})
}
