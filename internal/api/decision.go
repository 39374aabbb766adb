package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/riskcore/fraudengine/internal/models"
	"github.com/riskcore/fraudengine/internal/pipeline"
	"github.com/riskcore/fraudengine/internal/pipelineerr"
)

// DecisionHandler builds the gin handler for the hot decision endpoint. The
// request body is the full §3.1 PaymentEvent shape; binding errors (missing
// required fields, wrong JSON types) are distinct from §3.1 semantic
// validation, which the pipeline performs and reports as a VALIDATION
// pipeline error.
func DecisionHandler(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var event models.PaymentEvent
		if err := c.ShouldBindJSON(&event); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": pipelineerr.Validation})
			return
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		decision, err := p.Decide(c.Request.Context(), &event)
		if err != nil {
			code := pipelineerr.CodeOf(err)
			c.JSON(pipelineerr.HTTPStatus(code), gin.H{"error": err.Error(), "code": code})
			return
		}

		c.JSON(http.StatusOK, decision)
	}
}
