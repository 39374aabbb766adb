package detectors

import (
	"context"

	"github.com/riskcore/fraudengine/internal/models"
)

const (
	botAutomationTau = 0.5
	botAutomationK   = 0.08
)

// BotAutomationDetector flags non-human traffic: emulated or rooted
// devices, Tor exit nodes, datacenter/VPN/proxy IPs, suspicious user
// agents and incomplete device fingerprints. Emulator and Tor signals are
// near-binary and get surfaced at high severity so the risk scorer can
// treat them as override candidates rather than blending them away.
type BotAutomationDetector struct{}

// NewBotAutomationDetector builds the detector.
func NewBotAutomationDetector() *BotAutomationDetector { return &BotAutomationDetector{} }

func (d *BotAutomationDetector) Name() string { return "bot_automation" }

func (d *BotAutomationDetector) Detect(_ context.Context, _ *models.PaymentEvent, features *models.FeatureSnapshot) models.DetectorResult {
	signals := []signal{
		{score: boolScore(features.IsEmulator, 0.9), reason: boolReason(features.IsEmulator, models.Reason{
			Code:        models.ReasonBotEmulator,
			Description: "device fingerprint indicates an emulator",
			Severity:    models.SeverityCritical,
			Source:      "bot_automation",
			Score:       0.9,
			Detail:      "device fingerprint indicates an emulator",
		})},
		{score: boolScore(features.IsRooted, 0.6), reason: boolReason(features.IsRooted, models.Reason{
			Code:        models.ReasonBotRooted,
			Description: "device fingerprint indicates a rooted or jailbroken device",
			Severity:    models.SeverityMedium,
			Source:      "bot_automation",
			Score:       0.6,
			Detail:      "device fingerprint indicates a rooted or jailbroken device",
		})},
		{score: boolScore(features.IsDatacenterIP, 0.8), reason: boolReason(features.IsDatacenterIP, models.Reason{
			Code:        models.ReasonBotDatacenterIP,
			Description: "request originated from a datacenter IP range",
			Severity:    models.SeverityHigh,
			Source:      "bot_automation",
			Score:       0.8,
			Detail:      "request originated from a datacenter IP range, not a residential or carrier network",
		})},
		{score: boolScore(features.IsTorExitNode, 0.85), reason: boolReason(features.IsTorExitNode, models.Reason{
			Code:        models.ReasonBotTor,
			Description: "request originated from a Tor exit node",
			Severity:    models.SeverityHigh,
			Source:      "bot_automation",
			Score:       0.85,
			Detail:      "request originated from a known Tor exit node",
		})},
		{score: boolScore(features.IsVPN || features.IsProxy, 0.3), reason: boolReason(features.IsVPN || features.IsProxy, models.Reason{
			Code:        models.ReasonBotVPNProxy,
			Description: "request originated from a VPN or proxy",
			Severity:    models.SeverityLow,
			Source:      "bot_automation",
			Score:       0.3,
			Detail:      "ip address resolves to a VPN or proxy exit",
		})},
		{score: boolScore(features.SuspiciousUA, 0.5), reason: boolReason(features.SuspiciousUA, models.Reason{
			Code:        models.ReasonBotSuspiciousUA,
			Description: "user agent or client signature looks scripted",
			Severity:    models.SeverityMedium,
			Source:      "bot_automation",
			Score:       0.5,
			Detail:      "user agent or client signature looks scripted",
		})},
		{score: boolScore(features.FingerprintIncomplete, 0.4), reason: boolReason(features.FingerprintIncomplete, models.Reason{
			Code:        models.ReasonBotIncompleteFingerprint,
			Description: "device fingerprint is missing most expected fields",
			Severity:    models.SeverityMedium,
			Source:      "bot_automation",
			Score:       0.4,
			Detail:      "device fingerprint is missing most expected fields",
		})},
	}

	return aggregate(d.Name(), botAutomationTau, botAutomationK, signals)
}

func boolScore(condition bool, score float64) float64 {
	if !condition {
		return 0
	}
	return score
}

func boolReason(condition bool, reason models.Reason) *models.Reason {
	if !condition {
		return nil
	}
	r := reason
	return &r
}
