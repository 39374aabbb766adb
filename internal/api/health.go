package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/riskcore/fraudengine/internal/repositories"
)

// HealthHandler reports liveness plus a best-effort database health check.
func HealthHandler(db *repositories.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK

		if err := db.HealthCheck(c.Request.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}
