package detectors

import (
	"context"
	"testing"

	"github.com/riskcore/fraudengine/internal/models"
)

func TestBotAutomationDetectorEmulatorIsNearCeiling(t *testing.T) {
	d := NewBotAutomationDetector()
	result := d.Detect(context.Background(), &models.PaymentEvent{}, &models.FeatureSnapshot{IsEmulator: true})

	if result.Score < 0.9 {
		t.Fatalf("score = %v, want near-ceiling for emulator detection", result.Score)
	}
	if result.Reasons[0].Code != models.ReasonBotEmulator {
		t.Fatalf("reason = %s, want BOT_EMULATOR", result.Reasons[0].Code)
	}
}

func TestBotAutomationDetectorTorExitNode(t *testing.T) {
	d := NewBotAutomationDetector()
	result := d.Detect(context.Background(), &models.PaymentEvent{}, &models.FeatureSnapshot{IsTorExitNode: true})

	if result.Reasons[0].Code != models.ReasonBotTor {
		t.Fatalf("reason = %s, want BOT_TOR", result.Reasons[0].Code)
	}
}

func TestBotAutomationDetectorQuietForCleanTraffic(t *testing.T) {
	d := NewBotAutomationDetector()
	result := d.Detect(context.Background(), &models.PaymentEvent{}, &models.FeatureSnapshot{})

	if result.Score != 0 {
		t.Fatalf("score = %v, want 0 for clean traffic", result.Score)
	}
}

func TestBotAutomationDetectorCombinesDatacenterAndIncompleteFingerprint(t *testing.T) {
	d := NewBotAutomationDetector()
	features := &models.FeatureSnapshot{IsDatacenterIP: true, FingerprintIncomplete: true}

	result := d.Detect(context.Background(), &models.PaymentEvent{}, features)
	if len(result.Reasons) != 2 {
		t.Fatalf("reasons = %+v, want 2 (datacenter + fingerprint)", result.Reasons)
	}
	// max(0.8, 0.4) + k*(n-1) = 0.8 + 0.08 = 0.88
	if result.Score <= 0.8 {
		t.Fatalf("score = %v, want aggregation above the stronger individual signal (0.8)", result.Score)
	}
}

func TestBotAutomationDetectorSuspiciousUAAndRootedCompound(t *testing.T) {
	d := NewBotAutomationDetector()
	features := &models.FeatureSnapshot{IsRooted: true, SuspiciousUA: true}

	result := d.Detect(context.Background(), &models.PaymentEvent{}, features)
	found := map[models.ReasonCode]bool{}
	for _, r := range result.Reasons {
		found[r.Code] = true
	}
	if !found[models.ReasonBotRooted] || !found[models.ReasonBotSuspiciousUA] {
		t.Fatalf("expected BOT_ROOTED_DEVICE and BOT_SUSPICIOUS_USER_AGENT, got %+v", result.Reasons)
	}
}
