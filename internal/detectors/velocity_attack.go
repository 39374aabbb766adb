package detectors

import (
	"context"
	"fmt"

	"github.com/riskcore/fraudengine/internal/models"
)

const (
	velocityAttackTau = 0.45
	velocityAttackK   = 0.05
)

// VelocityAttackDetector flags a card, device, IP or user transacting far
// more often (or across far more distinct counterparties) than is
// plausible, across the 1h/24h windows.
type VelocityAttackDetector struct {
	CardAttempts1hThreshold        int64
	DeviceDistinctCards24hThreshold int64
	IPDistinctCards1hThreshold      int64
	UserTransactions24hThreshold   int64
	UserAmount24hCentsThreshold     int64
	CardDistinctMerchants24hThreshold int64
	CardDistinctDevices24hThreshold   int64
	CardDistinctIPs24hThreshold       int64
}

// NewVelocityAttackDetector builds a detector with the default thresholds.
func NewVelocityAttackDetector() *VelocityAttackDetector {
	return &VelocityAttackDetector{
		CardAttempts1hThreshold:           10,
		DeviceDistinctCards24hThreshold:   5,
		IPDistinctCards1hThreshold:        10,
		UserTransactions24hThreshold:      20,
		UserAmount24hCentsThreshold:       500000,
		CardDistinctMerchants24hThreshold: 10,
		CardDistinctDevices24hThreshold:   3,
		CardDistinctIPs24hThreshold:       5,
	}
}

func (d *VelocityAttackDetector) Name() string { return "velocity_attack" }

func (d *VelocityAttackDetector) Detect(_ context.Context, _ *models.PaymentEvent, features *models.FeatureSnapshot) models.DetectorResult {
	signals := []signal{
		cardAttempts1hSignal(d, features),
		deviceDistinctCards24hSignal(d, features),
		ipDistinctCards1hSignal(d, features),
		userTransactions24hSignal(d, features),
		userAmount24hSignal(d, features),
		cardDistinctMerchants24hSignal(d, features),
		cardDistinctCounterparties24hSignal(d, features),
	}

	return aggregate(d.Name(), velocityAttackTau, velocityAttackK, signals)
}

// scaledSeverity grades a ratio-scored signal HIGH under 2x threshold and
// CRITICAL at or beyond it.
func scaledSeverity(count, threshold int64) models.Severity {
	if count >= 2*threshold {
		return models.SeverityCritical
	}
	return models.SeverityHigh
}

func cardAttempts1hSignal(d *VelocityAttackDetector, features *models.FeatureSnapshot) signal {
	count := features.CardVelocity[models.Window1Hour].Count
	if count < d.CardAttempts1hThreshold {
		return signal{}
	}
	score := clamp(float64(count) / float64(2*d.CardAttempts1hThreshold))
	return signal{score: score, reason: &models.Reason{
		Code:        models.ReasonVelocityAttackCard,
		Description: "card used at an attack-level rate",
		Severity:    scaledSeverity(count, d.CardAttempts1hThreshold),
		Source:      "velocity_attack",
		Score:       score,
		Value:       float64(count),
		Threshold:   float64(d.CardAttempts1hThreshold),
		Detail:      fmt.Sprintf("card used %d times in the last hour (threshold %d)", count, d.CardAttempts1hThreshold),
	}}
}

func deviceDistinctCards24hSignal(d *VelocityAttackDetector, features *models.FeatureSnapshot) signal {
	count := features.DeviceDistinctCards24h
	if count < d.DeviceDistinctCards24hThreshold {
		return signal{}
	}
	score := clamp(float64(count) / float64(2*d.DeviceDistinctCards24hThreshold))
	return signal{score: score, reason: &models.Reason{
		Code:        models.ReasonVelocityAttackDevice,
		Description: "device has cycled through many distinct cards",
		Severity:    scaledSeverity(count, d.DeviceDistinctCards24hThreshold),
		Source:      "velocity_attack",
		Score:       score,
		Value:       float64(count),
		Threshold:   float64(d.DeviceDistinctCards24hThreshold),
		Detail:      fmt.Sprintf("device has used %d distinct cards in the last 24 hours (threshold %d)", count, d.DeviceDistinctCards24hThreshold),
	}}
}

func ipDistinctCards1hSignal(d *VelocityAttackDetector, features *models.FeatureSnapshot) signal {
	count := features.IPDistinctCards1h
	if count < d.IPDistinctCards1hThreshold {
		return signal{}
	}
	score := clamp(float64(count) / float64(2*d.IPDistinctCards1hThreshold))
	return signal{score: score, reason: &models.Reason{
		Code:        models.ReasonVelocityAttackIP,
		Description: "IP address has cycled through many distinct cards",
		Severity:    scaledSeverity(count, d.IPDistinctCards1hThreshold),
		Source:      "velocity_attack",
		Score:       score,
		Value:       float64(count),
		Threshold:   float64(d.IPDistinctCards1hThreshold),
		Detail:      fmt.Sprintf("ip address has used %d distinct cards in the last hour (threshold %d)", count, d.IPDistinctCards1hThreshold),
	}}
}

func userTransactions24hSignal(d *VelocityAttackDetector, features *models.FeatureSnapshot) signal {
	count := features.UserTransactions24h
	if count < d.UserTransactions24hThreshold {
		return signal{}
	}
	score := clamp(0.5 * float64(count) / float64(d.UserTransactions24hThreshold))
	return signal{score: score, reason: &models.Reason{
		Code:        models.ReasonVelocityAttackAccount,
		Description: "user transacting far more often than usual",
		Severity:    models.SeverityMedium,
		Source:      "velocity_attack",
		Score:       score,
		Value:       float64(count),
		Threshold:   float64(d.UserTransactions24hThreshold),
		Detail:      fmt.Sprintf("user has %d transactions in the last 24 hours (threshold %d)", count, d.UserTransactions24hThreshold),
	}}
}

func userAmount24hSignal(d *VelocityAttackDetector, features *models.FeatureSnapshot) signal {
	amount := features.UserAmount24hCents
	if amount < d.UserAmount24hCentsThreshold {
		return signal{}
	}
	score := clamp(0.5 * float64(amount) / float64(d.UserAmount24hCentsThreshold))
	return signal{score: score, reason: &models.Reason{
		Code:        models.ReasonVelocityAttackAccount,
		Description: "user's 24h spend is far above normal",
		Severity:    models.SeverityMedium,
		Source:      "velocity_attack",
		Score:       score,
		Value:       float64(amount),
		Threshold:   float64(d.UserAmount24hCentsThreshold),
		Detail:      fmt.Sprintf("user has spent %d cents in the last 24 hours (threshold %d)", amount, d.UserAmount24hCentsThreshold),
	}}
}

func cardDistinctMerchants24hSignal(d *VelocityAttackDetector, features *models.FeatureSnapshot) signal {
	count := features.CardDistinctMerchants24h
	if count < d.CardDistinctMerchants24hThreshold {
		return signal{}
	}
	score := clamp(0.5 * float64(count) / float64(d.CardDistinctMerchants24hThreshold))
	return signal{score: score, reason: &models.Reason{
		Code:        models.ReasonVelocityAttackCard,
		Description: "card spread across many distinct merchants",
		Severity:    models.SeverityMedium,
		Source:      "velocity_attack",
		Score:       score,
		Value:       float64(count),
		Threshold:   float64(d.CardDistinctMerchants24hThreshold),
		Detail:      fmt.Sprintf("card used at %d distinct merchants in the last 24 hours (threshold %d)", count, d.CardDistinctMerchants24hThreshold),
	}}
}

func cardDistinctCounterparties24hSignal(d *VelocityAttackDetector, features *models.FeatureSnapshot) signal {
	devices := features.CardDistinctDevices24h
	ips := features.CardDistinctIPs24h
	if devices < d.CardDistinctDevicesThreshold() && ips < d.CardDistinctIPsThreshold() {
		return signal{}
	}
	count := devices
	threshold := d.CardDistinctDevicesThreshold()
	via := "devices"
	if ips >= d.CardDistinctIPsThreshold() && ips > devices {
		count, threshold, via = ips, d.CardDistinctIPsThreshold(), "IP addresses"
	}
	score := clamp((2.0 / 3.0) * float64(count) / float64(threshold))
	return signal{score: score, reason: &models.Reason{
		Code:        models.ReasonVelocityAttackCard,
		Description: "card shared across many distinct " + via,
		Severity:    models.SeverityMedium,
		Source:      "velocity_attack",
		Score:       score,
		Value:       float64(count),
		Threshold:   float64(threshold),
		Detail:      fmt.Sprintf("card used from %d distinct %s in the last 24 hours (threshold %d)", count, via, threshold),
	}}
}

func (d *VelocityAttackDetector) CardDistinctDevicesThreshold() int64 {
	return d.CardDistinctDevices24hThreshold
}

func (d *VelocityAttackDetector) CardDistinctIPsThreshold() int64 {
	return d.CardDistinctIPs24hThreshold
}
