package detectors

import (
	"context"
	"fmt"

	"github.com/riskcore/fraudengine/internal/models"
)

const (
	friendlyFraudTau = 0.4
	friendlyFraudK   = 0.05
	// estimatedChargebackRateMultiplier turns the trailing 24h transaction
	// count into a rough 90-day transaction-count proxy (30 days worth) for
	// estimating a chargeback rate when a full 90-day denominator isn't
	// tracked directly. A known approximation, not a measured rate.
	estimatedChargebackRateMultiplier = 30
)

// FriendlyFraudDetector scores the risk of first-party abuse: a legitimate
// subscriber who disputes a charge after receiving the service or device,
// or abuses a recurring subscription's billing cycle. The detector computes
// two independent sub-scores — chargeback/refund history and subscription
// abuse — and reports the stronger of the two.
type FriendlyFraudDetector struct {
	ChargebackRateThreshold    float64
	UserChargebackCountThreshold int64
	UserRefundCountThreshold     int64
	CardChargebackThreshold      int64
	DeviceChargebackThreshold    int64
	GuestHighValueCents          int64
	SubscriptionTransactions24hThreshold int64
}

// NewFriendlyFraudDetector builds a detector with the default thresholds.
func NewFriendlyFraudDetector() *FriendlyFraudDetector {
	return &FriendlyFraudDetector{
		ChargebackRateThreshold:              0.03,
		UserChargebackCountThreshold:         2,
		UserRefundCountThreshold:             5,
		CardChargebackThreshold:              1,
		DeviceChargebackThreshold:            2,
		GuestHighValueCents:                  50000,
		SubscriptionTransactions24hThreshold: 3,
	}
}

func (d *FriendlyFraudDetector) Name() string { return "friendly_fraud" }

func (d *FriendlyFraudDetector) Detect(_ context.Context, event *models.PaymentEvent, features *models.FeatureSnapshot) models.DetectorResult {
	chargeback := aggregate(d.Name(), 0, friendlyFraudK, d.chargebackSignals(features))
	subscription := models.DetectorResult{Name: d.Name()}
	if event.IsRecurring {
		subscription = aggregate(d.Name(), 0, friendlyFraudK, d.subscriptionAbuseSignals(features))
	}

	winner := chargeback
	if subscription.Score > chargeback.Score {
		winner = subscription
	}

	return models.DetectorResult{
		Name:      d.Name(),
		Score:     winner.Score,
		Triggered: winner.Score >= friendlyFraudTau,
		Tau:       friendlyFraudTau,
		Reasons:   winner.Reasons,
	}
}

func (d *FriendlyFraudDetector) chargebackSignals(features *models.FeatureSnapshot) []signal {
	return []signal{
		{score: boolScore(features.EstimatedChargebackRate90d >= d.ChargebackRateThreshold, 0.7), reason: boolReason(features.EstimatedChargebackRate90d >= d.ChargebackRateThreshold, models.Reason{
			Code:        models.ReasonFriendlyFraudHistory,
			Description: "estimated 90-day chargeback rate exceeds threshold",
			Severity:    models.SeverityHigh,
			Source:      "friendly_fraud",
			Score:       0.7,
			Value:       features.EstimatedChargebackRate90d,
			Threshold:   d.ChargebackRateThreshold,
			Detail:      fmt.Sprintf("estimated chargeback rate %.1f%% exceeds %.1f%% threshold", features.EstimatedChargebackRate90d*100, d.ChargebackRateThreshold*100),
		})},
		{score: boolScore(features.UserChargebackCount90d >= d.UserChargebackCountThreshold, 0.6), reason: boolReason(features.UserChargebackCount90d >= d.UserChargebackCountThreshold, models.Reason{
			Code:        models.ReasonFriendlyFraudHistory,
			Description: "user has repeat chargebacks in the trailing 90 days",
			Severity:    models.SeverityHigh,
			Source:      "friendly_fraud",
			Score:       0.6,
			Value:       float64(features.UserChargebackCount90d),
			Threshold:   float64(d.UserChargebackCountThreshold),
			Detail:      fmt.Sprintf("%d chargebacks in the last 90 days", features.UserChargebackCount90d),
		})},
		{score: boolScore(features.UserRefundCount90d >= d.UserRefundCountThreshold, 0.4), reason: boolReason(features.UserRefundCount90d >= d.UserRefundCountThreshold, models.Reason{
			Code:        models.ReasonFriendlyFraudRefunds,
			Description: "user has frequent refunds in the trailing 90 days",
			Severity:    models.SeverityMedium,
			Source:      "friendly_fraud",
			Score:       0.4,
			Value:       float64(features.UserRefundCount90d),
			Threshold:   float64(d.UserRefundCountThreshold),
			Detail:      fmt.Sprintf("%d refunds in the last 90 days", features.UserRefundCount90d),
		})},
		{score: boolScore(features.CardChargebackCount >= d.CardChargebackThreshold, 0.5), reason: boolReason(features.CardChargebackCount >= d.CardChargebackThreshold, models.Reason{
			Code:        models.ReasonFriendlyFraudHistory,
			Description: "card has a prior chargeback",
			Severity:    models.SeverityMedium,
			Source:      "friendly_fraud",
			Score:       0.5,
			Value:       float64(features.CardChargebackCount),
			Threshold:   float64(d.CardChargebackThreshold),
			Detail:      fmt.Sprintf("card has %d chargebacks on record", features.CardChargebackCount),
		})},
		{score: boolScore(features.DeviceChargebackCount >= d.DeviceChargebackThreshold, 0.5), reason: boolReason(features.DeviceChargebackCount >= d.DeviceChargebackThreshold, models.Reason{
			Code:        models.ReasonFriendlyFraudHistory,
			Description: "device has repeat chargebacks on record",
			Severity:    models.SeverityMedium,
			Source:      "friendly_fraud",
			Score:       0.5,
			Value:       float64(features.DeviceChargebackCount),
			Threshold:   float64(d.DeviceChargebackThreshold),
			Detail:      fmt.Sprintf("device has %d chargebacks on record", features.DeviceChargebackCount),
		})},
		{score: riskTierScore(features.UserRiskTier), reason: riskTierReason(features.UserRiskTier)},
		{score: boolScore(features.IsGuest && features.AmountUSD*100 >= float64(d.GuestHighValueCents), 0.4), reason: boolReason(features.IsGuest && features.AmountUSD*100 >= float64(d.GuestHighValueCents), models.Reason{
			Code:        models.ReasonFriendlyFraudGuestHighValue,
			Description: "guest checkout at an unusually high amount",
			Severity:    models.SeverityMedium,
			Source:      "friendly_fraud",
			Score:       0.4,
			Detail:      "guest (non-registered) subscriber attempting a high-value transaction",
		})},
	}
}

func riskTierScore(tier models.RiskTier) float64 {
	switch tier {
	case models.RiskHigh:
		return 0.6
	case models.RiskElevated:
		return 0.4
	default:
		return 0
	}
}

func riskTierReason(tier models.RiskTier) *models.Reason {
	score := riskTierScore(tier)
	if score == 0 {
		return nil
	}
	severity := models.SeverityMedium
	if tier == models.RiskHigh {
		severity = models.SeverityHigh
	}
	return &models.Reason{
		Code:        models.ReasonFriendlyFraudRiskTier,
		Description: "user risk tier is elevated",
		Severity:    severity,
		Source:      "friendly_fraud",
		Score:       score,
		Detail:      fmt.Sprintf("user risk tier is %s", tier),
	}
}

func (d *FriendlyFraudDetector) subscriptionAbuseSignals(features *models.FeatureSnapshot) []signal {
	newUserAndCard := features.IsNewCardForUser && features.AccountProfile != nil && features.AccountProfile.TotalTransactions == 0
	return []signal{
		{score: boolScore(newUserAndCard, 0.4), reason: boolReason(newUserAndCard, models.Reason{
			Code:        models.ReasonSubscriptionAbuse,
			Description: "new user paired with a new card on a recurring subscription",
			Severity:    models.SeverityMedium,
			Source:      "friendly_fraud",
			Score:       0.4,
			Detail:      "recurring subscription started with both a new user and a new card",
		})},
		{score: boolScore(features.UserTransactions24h >= d.SubscriptionTransactions24hThreshold, 0.3), reason: boolReason(features.UserTransactions24h >= d.SubscriptionTransactions24hThreshold, models.Reason{
			Code:        models.ReasonSubscriptionAbuse,
			Description: "high transaction count on a recurring subscription",
			Severity:    models.SeverityLow,
			Source:      "friendly_fraud",
			Score:       0.3,
			Value:       float64(features.UserTransactions24h),
			Threshold:   float64(d.SubscriptionTransactions24hThreshold),
			Detail:      fmt.Sprintf("%d transactions in the last 24 hours on a recurring subscription", features.UserTransactions24h),
		})},
		{score: boolScore(features.IsVPN || features.IsProxy, 0.2), reason: boolReason(features.IsVPN || features.IsProxy, models.Reason{
			Code:        models.ReasonSubscriptionAbuse,
			Description: "recurring subscription billed from a VPN or proxy",
			Severity:    models.SeverityLow,
			Source:      "friendly_fraud",
			Score:       0.2,
			Detail:      "recurring subscription billed from a VPN or proxy",
		})},
	}
}
