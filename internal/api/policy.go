package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/riskcore/fraudengine/internal/models"
	"github.com/riskcore/fraudengine/internal/policyversion"
)

// PolicyRequest is the admin-submitted body for publishing a new policy
// version. Version, content hash and audit timestamps are computed by the
// store, never accepted from the caller.
type PolicyRequest struct {
	Allowlist         []string      `json:"allowlist"`
	Blocklist         []string      `json:"blocklist"`
	Rules             []models.Rule `json:"rules"`
	BlockThreshold    float64                 `json:"block_threshold" binding:"required"`
	ReviewThreshold   float64                 `json:"review_threshold" binding:"required"`
	FrictionThreshold float64                 `json:"friction_threshold" binding:"required"`
	DefaultAction     models.Action           `json:"default_action" binding:"required"`
	ChallengerPct     int                     `json:"challenger_pct"`
	HoldoutPct        int                     `json:"holdout_pct"`
	ChangeKind        models.PolicyChangeKind `json:"change_kind" binding:"required"`
}

// GetActivePolicyHandler returns the currently active policy.
func GetActivePolicyHandler(store *policyversion.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := store.Active(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// PublishPolicyHandler creates a new immutable policy version, admin-only.
func PublishPolicyHandler(store *policyversion.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PolicyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		createdBy, _ := c.Get("user_email")
		createdByStr, _ := createdBy.(string)

		p := &models.Policy{
			Allowlist:         req.Allowlist,
			Blocklist:         req.Blocklist,
			Rules:             req.Rules,
			BlockThreshold:    req.BlockThreshold,
			ReviewThreshold:   req.ReviewThreshold,
			FrictionThreshold: req.FrictionThreshold,
			DefaultAction:     req.DefaultAction,
			ChallengerPct:     req.ChallengerPct,
			HoldoutPct:        req.HoldoutPct,
			CreatedBy:         createdByStr,
		}

		published, err := store.Publish(c.Request.Context(), p, req.ChangeKind)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, published)
	}
}

type rollbackRequest struct {
	ToVersion string `json:"to_version" binding:"required"`
}

// RollbackPolicyHandler republishes a prior version's content as a new
// version, admin-only.
func RollbackPolicyHandler(store *policyversion.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rollbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		createdBy, _ := c.Get("user_email")
		createdByStr, _ := createdBy.(string)

		p, err := store.Rollback(c.Request.Context(), req.ToVersion, createdByStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, p)
	}
}

// PolicyHistoryHandler lists past policy versions, most recent first.
func PolicyHistoryHandler(store *policyversion.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		history, err := store.History(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"versions": history})
	}
}
