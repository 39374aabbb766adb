package riskscore

import (
	"math"
	"testing"

	"github.com/riskcore/fraudengine/internal/models"
)

func TestBlendRuleCriminalIsMaxWeightedDetector(t *testing.T) {
	scorer := NewScorer(DetectorWeights{CardTesting: 1.0, Velocity: 0.5}, 0.7)
	detectors := []models.DetectorResult{
		{Name: "card_testing", Score: 0.6},
		{Name: "velocity_attack", Score: 0.9},
	}

	result := scorer.Blend(detectors, models.MLResult{}, &models.FeatureSnapshot{})

	// max(1.0*0.6, 0.5*0.9) = max(0.6, 0.45) = 0.6; no ML score so criminal == ruleCriminal.
	if math.Abs(result.Criminal-0.6) > 1e-9 {
		t.Fatalf("criminal = %v, want 0.6", result.Criminal)
	}
}

func TestBlendFriendlyFraudDoesNotParticipateInCriminalWeighting(t *testing.T) {
	scorer := NewScorer(DefaultDetectorWeights(), 0.7)
	detectors := []models.DetectorResult{
		{Name: "friendly_fraud", Score: 0.95},
	}

	result := scorer.Blend(detectors, models.MLResult{}, &models.FeatureSnapshot{})

	if result.Criminal != 0 {
		t.Fatalf("criminal = %v, want 0 (friendly_fraud must not feed the criminal weighting)", result.Criminal)
	}
	if result.FriendlyFraud != 0.95 {
		t.Fatalf("friendly_fraud = %v, want 0.95", result.FriendlyFraud)
	}
	if result.Risk != 0.95 {
		t.Fatalf("risk = %v, want max(criminal, friendly) = 0.95", result.Risk)
	}
}

func TestBlendMLWeightMixesWithRuleCriminal(t *testing.T) {
	scorer := NewScorer(DetectorWeights{CardTesting: 1.0}, 0.7)
	detectors := []models.DetectorResult{{Name: "card_testing", Score: 0.4}}

	result := scorer.Blend(detectors, models.MLResult{HasScore: true, Score: 1.0}, &models.FeatureSnapshot{})

	// 0.7*1.0 + 0.3*0.4 = 0.82
	if math.Abs(result.Criminal-0.82) > 1e-9 {
		t.Fatalf("criminal = %v, want 0.82", result.Criminal)
	}
	if result.MLScore == nil || *result.MLScore != 1.0 {
		t.Fatalf("MLScore = %v, want pointer to 1.0", result.MLScore)
	}
}

func TestBlendOverrideForcesCriminalToAtLeastCeiling(t *testing.T) {
	scorer := NewScorer(DefaultDetectorWeights(), 0.7)
	detectors := []models.DetectorResult{{Name: "bot_automation", Score: 0.1}}

	result := scorer.Blend(detectors, models.MLResult{}, &models.FeatureSnapshot{IsEmulator: true})

	if !result.OverrideApplied {
		t.Fatal("expected override to be applied for emulator detection")
	}
	if result.Criminal < overrideThreshold {
		t.Fatalf("criminal = %v, want >= %v override ceiling", result.Criminal, overrideThreshold)
	}
	if result.OverrideReason != models.ReasonBotEmulator {
		t.Fatalf("override reason = %s, want BOT_EMULATOR", result.OverrideReason)
	}
}

func TestBlendOverrideDoesNotLowerAnAlreadyHigherScore(t *testing.T) {
	scorer := NewScorer(DetectorWeights{CardTesting: 1.0}, 0.7)
	detectors := []models.DetectorResult{{Name: "card_testing", Score: 1.0}}

	result := scorer.Blend(detectors, models.MLResult{}, &models.FeatureSnapshot{IsTorExitNode: true})

	if result.Criminal != 1.0 {
		t.Fatalf("criminal = %v, want 1.0 (override must not lower an already-higher score)", result.Criminal)
	}
	if result.OverrideApplied {
		t.Fatal("override should not be recorded as applied when it didn't change anything")
	}
}

func TestBlendLowConfidenceRemapsRiskTowardNeutral(t *testing.T) {
	scorer := NewScorer(DetectorWeights{CardTesting: 1.0}, 0.7)
	detectors := []models.DetectorResult{{Name: "card_testing", Score: 0.9}}

	// A nil-heavy snapshot (no profiles, no data presence flags) yields low confidence.
	result := scorer.Blend(detectors, models.MLResult{}, &models.FeatureSnapshot{})

	if result.Confidence >= 0.5 {
		t.Fatalf("confidence = %v, want < 0.5 for an empty feature snapshot", result.Confidence)
	}
	if result.Risk >= 0.9 {
		t.Fatalf("risk = %v, want remapped below the raw criminal score under low confidence", result.Risk)
	}
}

func TestBlendPopulatesPerDetectorScores(t *testing.T) {
	scorer := NewScorer(DefaultDetectorWeights(), 0.7)
	detectors := []models.DetectorResult{
		{Name: "card_testing", Score: 0.3},
		{Name: "velocity_attack", Score: 0.4},
		{Name: "geo_anomaly", Score: 0.5},
		{Name: "bot_automation", Score: 0.6},
		{Name: "friendly_fraud", Score: 0.2},
	}

	result := scorer.Blend(detectors, models.MLResult{}, &models.FeatureSnapshot{})

	if result.CardTestingScore != 0.3 || result.VelocityScore != 0.4 || result.GeoScore != 0.5 || result.BotScore != 0.6 || result.FriendlyFraudScore != 0.2 {
		t.Fatalf("per-detector scores not populated correctly: %+v", result)
	}
}

func TestClampBounds(t *testing.T) {
	if clamp(-1) != 0 {
		t.Fatal("clamp(-1) should be 0")
	}
	if clamp(2) != 1 {
		t.Fatal("clamp(2) should be 1")
	}
	if clamp(0.5) != 0.5 {
		t.Fatal("clamp(0.5) should be unchanged")
	}
}

func TestConfidenceAveragesFourFactors(t *testing.T) {
	features := &models.FeatureSnapshot{
		CardProfile:             &models.EntityProfile{TotalTransactions: 20},
		DeviceProfile:           &models.EntityProfile{TotalTransactions: 10},
		AccountProfile:          &models.EntityProfile{TotalTransactions: 40},
		DeviceDataPresent:       true,
		GeoDataPresent:          true,
		VerificationDataPresent: true,
	}

	got := confidence(features)
	if got != 1 {
		t.Fatalf("confidence = %v, want 1 for full history and complete data", got)
	}
}

func TestConfidenceNilSnapshotIsZero(t *testing.T) {
	if confidence(nil) != 0 {
		t.Fatal("confidence(nil) should be 0")
	}
}
