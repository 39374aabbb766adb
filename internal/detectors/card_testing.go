package detectors

import (
	"context"
	"fmt"

	"github.com/riskcore/fraudengine/internal/models"
)

const (
	cardTestingTau = 0.5
	cardTestingK   = 0.05
)

// CardTestingDetector flags rapid small-amount probing of a single card,
// high decline rates against one card, or a single device/IP cycling
// through many distinct cards in a short window — the signature of BIN
// enumeration and SIM-farm card validation attacks.
type CardTestingDetector struct {
	AttemptsThreshold10m     int64
	DeclineRateThreshold10m  float64
	DeclineMinAttempts10m    int64
	SmallAmountCents         int64
	DeviceDistinctCardsThreshold1h int64
	IPDistinctCardsThreshold1h     int64
}

// NewCardTestingDetector builds a detector with the defaults: 5 attempts on
// one card inside 10 minutes, an 80% decline rate with at least 3 attempts,
// amounts at or under $5 repeated twice, 5+ distinct cards from one device
// in an hour, or 10+ distinct cards from one IP in an hour.
func NewCardTestingDetector() *CardTestingDetector {
	return &CardTestingDetector{
		AttemptsThreshold10m:           5,
		DeclineRateThreshold10m:        0.8,
		DeclineMinAttempts10m:          3,
		SmallAmountCents:               500,
		DeviceDistinctCardsThreshold1h: 5,
		IPDistinctCardsThreshold1h:     10,
	}
}

func (d *CardTestingDetector) Name() string { return "card_testing" }

func (d *CardTestingDetector) Detect(_ context.Context, event *models.PaymentEvent, features *models.FeatureSnapshot) models.DetectorResult {
	attempts := features.CardAttempts10m

	signals := []signal{
		cardAttemptsSignal(d, attempts),
		declineRateSignal(d, features, attempts),
		smallAmountSignal(d, event, attempts),
		deviceDistinctCardsSignal(d, features),
		ipDistinctCardsSignal(d, features),
	}

	return aggregate(d.Name(), cardTestingTau, cardTestingK, signals)
}

func cardAttemptsSignal(d *CardTestingDetector, attempts int64) signal {
	if attempts < d.AttemptsThreshold10m {
		return signal{}
	}
	return signal{score: 0.8, reason: &models.Reason{
		Code:        models.ReasonCardTestingVelocity,
		Description: "card used repeatedly in a short window",
		Severity:    models.SeverityHigh,
		Source:      "card_testing",
		Score:       0.8,
		Value:       float64(attempts),
		Threshold:   float64(d.AttemptsThreshold10m),
		Detail:      fmt.Sprintf("card used %d times in the last 10 minutes (threshold %d)", attempts, d.AttemptsThreshold10m),
	}}
}

func declineRateSignal(d *CardTestingDetector, features *models.FeatureSnapshot, attempts int64) signal {
	if attempts < d.DeclineMinAttempts10m || features.CardDeclineRate10m < d.DeclineRateThreshold10m {
		return signal{}
	}
	return signal{score: 0.9, reason: &models.Reason{
		Code:        models.ReasonCardTestingDeclineRate,
		Description: "high decline rate against this card",
		Severity:    models.SeverityHigh,
		Source:      "card_testing",
		Score:       0.9,
		Value:       features.CardDeclineRate10m,
		Threshold:   d.DeclineRateThreshold10m,
		Detail:      fmt.Sprintf("card declined %.0f%% of %d attempts in the last 10 minutes", features.CardDeclineRate10m*100, attempts),
	}}
}

func smallAmountSignal(d *CardTestingDetector, event *models.PaymentEvent, attempts int64) signal {
	if attempts < 2 || event.AmountCents > d.SmallAmountCents {
		return signal{}
	}
	return signal{score: 0.6, reason: &models.Reason{
		Code:        models.ReasonCardTestingSmallAmount,
		Description: "small probing amount combined with repeated use",
		Severity:    models.SeverityMedium,
		Source:      "card_testing",
		Score:       0.6,
		Value:       float64(event.AmountCents),
		Threshold:   float64(d.SmallAmountCents),
		Detail:      fmt.Sprintf("small amount %d cents combined with %d attempts", event.AmountCents, attempts),
	}}
}

func deviceDistinctCardsSignal(d *CardTestingDetector, features *models.FeatureSnapshot) signal {
	if features.DeviceDistinctCards1h < d.DeviceDistinctCardsThreshold1h {
		return signal{}
	}
	return signal{score: 0.85, reason: &models.Reason{
		Code:        models.ReasonCardTestingDistinctCards,
		Description: "device has probed many distinct cards",
		Severity:    models.SeverityHigh,
		Source:      "card_testing",
		Score:       0.85,
		Value:       float64(features.DeviceDistinctCards1h),
		Threshold:   float64(d.DeviceDistinctCardsThreshold1h),
		Detail:      fmt.Sprintf("device has used %d distinct cards in the last hour", features.DeviceDistinctCards1h),
	}}
}

func ipDistinctCardsSignal(d *CardTestingDetector, features *models.FeatureSnapshot) signal {
	if features.IPDistinctCards1h < d.IPDistinctCardsThreshold1h {
		return signal{}
	}
	return signal{score: 0.8, reason: &models.Reason{
		Code:        models.ReasonCardTestingDistinctCards,
		Description: "IP address has probed many distinct cards",
		Severity:    models.SeverityHigh,
		Source:      "card_testing",
		Score:       0.8,
		Value:       float64(features.IPDistinctCards1h),
		Threshold:   float64(d.IPDistinctCardsThreshold1h),
		Detail:      fmt.Sprintf("IP address has used %d distinct cards in the last hour", features.IPDistinctCards1h),
	}}
}
