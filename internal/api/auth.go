package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/riskcore/fraudengine/internal/auth"
)

// LoginHandler authenticates the configured operator and issues a JWT
// guarding the policy-mutation and evidence-review endpoints.
func LoginHandler(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := svc.Login(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
