package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/riskcore/fraudengine/internal/evidence"
	"github.com/riskcore/fraudengine/internal/models"
	"github.com/riskcore/fraudengine/internal/store"
)

// ChargebackRequest reports an inbound chargeback or refund label against a
// previously decided transaction, feeding the friendly-fraud detector's
// historical rate features. account_id/card_token are not part of the
// processor's chargeback payload but are required to update the right
// entity profiles; callers supply them from their own transaction record
// since the evidence row only carries an irreversible hash of each.
type ChargebackRequest struct {
	TransactionID     string `json:"transaction_id" binding:"required"`
	ChargebackID      string `json:"chargeback_id"`
	AccountID         string `json:"account_id" binding:"required"`
	CardToken         string `json:"card_token"`
	AmountCents       int64  `json:"amount_cents"`
	ReasonCode        string `json:"reason_code"`
	ReasonDescription string `json:"reason_description"`
	FraudType         string `json:"fraud_type"`
}

// RecordChargebackHandler ingests a chargeback label, persisting it via the
// evidence service and incrementing the card and user chargeback_count(_90d)
// profile fields, per §6.4.
func RecordChargebackHandler(evidenceStore *evidence.Store, profiles *store.ProfileStore) gin.HandlerFunc {
	return recordHandler(evidenceStore, profiles, "chargeback")
}

// RecordRefundHandler ingests a refund label, incrementing refund_count_90d
// on the user profile, per §6.4.
func RecordRefundHandler(evidenceStore *evidence.Store, profiles *store.ProfileStore) gin.HandlerFunc {
	return recordHandler(evidenceStore, profiles, "refund")
}

func recordHandler(evidenceStore *evidence.Store, profiles *store.ProfileStore, kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChargebackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		now := time.Now()
		cb := &models.ChargebackEvent{
			TransactionID:     req.TransactionID,
			ChargebackID:      req.ChargebackID,
			AccountID:         req.AccountID,
			Kind:              kind,
			AmountCents:       req.AmountCents,
			ReasonCode:        req.ReasonCode,
			ReasonDescription: req.ReasonDescription,
			FraudType:         req.FraudType,
			Status:            "RECEIVED",
			ReportedAt:        now,
		}

		if err := evidenceStore.RecordChargeback(c.Request.Context(), cb); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		userProfile, _ := profiles.Load(ctx, models.EntityAccount, req.AccountID)
		userProfile.Touch(now)
		if kind == "chargeback" {
			userProfile.ChargebackCount++
			userProfile.ChargebackCount90d++
		} else {
			userProfile.RefundCount90d++
		}
		_ = profiles.Save(ctx, userProfile)

		if req.CardToken != "" && kind == "chargeback" {
			cardProfile, _ := profiles.Load(ctx, models.EntityCard, req.CardToken)
			cardProfile.Touch(now)
			cardProfile.ChargebackCount++
			_ = profiles.Save(ctx, cardProfile)
		}

		c.JSON(http.StatusCreated, cb)
	}
}
