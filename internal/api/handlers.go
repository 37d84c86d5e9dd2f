package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"arena-agent/internal/auth"
	"arena-agent/internal/orchestrator"
)

// Predictor runs one turn; orchestrator.Runtime satisfies it.
type Predictor interface {
	Predict(ctx context.Context, req *orchestrator.Request) (*orchestrator.Response, error)
}

// StatusReporter probes collaborator health; services.Registry satisfies it.
type StatusReporter interface {
	Status(ctx context.Context) map[string]string
}

// GET /health
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// GET /status
func statusHandler(status StatusReporter, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := status.Status(c.Request.Context())
		healthy := true
		for _, v := range report {
			if v != "ok" {
				healthy = false
				break
			}
		}
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		body := gin.H{
			"healthy":  healthy,
			"services": report,
		}
		// Token bookkeeping is advisory; a missing auth store never degrades
		// the status verdict.
		if rdb != nil {
			if n, err := auth.ActiveTokenCount(rdb); err == nil {
				body["activeArenas"] = n
			}
		}
		c.JSON(code, body)
	}
}

// POST /v1/predict
func predictHandler(rt Predictor, monitor *Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req orchestrator.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "Invalid request body"}})
			return
		}
		resp, err := rt.Predict(c.Request.Context(), &req)
		if err == orchestrator.ErrMissingHeader || err == orchestrator.ErrMissingMetadata {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}
		if monitor != nil {
			monitor.Publish(summarize(&req, resp))
		}
		c.JSON(http.StatusOK, resp)
	}
}
