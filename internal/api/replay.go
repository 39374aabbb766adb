package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/riskcore/fraudengine/internal/models"
	"github.com/riskcore/fraudengine/internal/pipeline/replay"
)

// ReplayRequest carries a candidate policy plus the historical samples to
// replay it against. Samples are supplied inline rather than looked up by
// date range — the caller is expected to have pulled them from the evidence
// vault already, keeping this endpoint free of any vault decryption
// responsibility.
type ReplayRequest struct {
	Candidate models.Policy   `json:"candidate" binding:"required"`
	Samples   []replay.Sample `json:"samples" binding:"required"`
}

// RunReplayHandler replays samples against a candidate policy with zero
// side effects, admin-only.
func RunReplayHandler(runner *replay.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		summary := runner.Run(c.Request.Context(), &req.Candidate, req.Samples)
		c.JSON(http.StatusOK, summary)
	}
}
