// Package riskscore blends detector outputs and an optional ML score into a
// single risk figure, splitting criminal-fraud risk from friendly-fraud
// risk, applying near-binary overrides after blending, and computing a
// confidence figure the policy engine can use to temper a low-confidence
// score back toward neutral.
package riskscore

import (
	"github.com/riskcore/fraudengine/internal/models"
)

// DetectorWeights assigns each criminal-fraud detector its contribution to
// the rule-based criminal score. Friendly fraud is scored separately and
// does not participate in this weighting.
type DetectorWeights struct {
	CardTesting float64
	Velocity    float64
	Geo         float64
	Bot         float64
}

// DefaultDetectorWeights mirrors each detector's reliability as a standalone
// criminal-fraud signal: card testing and bot automation are treated as
// near-authoritative, velocity close behind, geo weighted down since
// legitimate travel and VPN use both trip it.
func DefaultDetectorWeights() DetectorWeights {
	return DetectorWeights{CardTesting: 1.0, Velocity: 0.9, Geo: 0.7, Bot: 1.0}
}

// weightFor looks up the configured weight for a detector by name.
func (w DetectorWeights) weightFor(name string) float64 {
	switch name {
	case "card_testing":
		return w.CardTesting
	case "velocity_attack":
		return w.Velocity
	case "geo_anomaly":
		return w.Geo
	case "bot_automation":
		return w.Bot
	default:
		return 0
	}
}

// overrideThreshold is the floor criminal_score is raised to when an
// emulator or Tor signal fires, regardless of the blended value.
const overrideThreshold = 0.95

// Scorer blends per-detector criminal scores, the friendly-fraud detector's
// score and an optional ML score into a final RiskScores value.
type Scorer struct {
	Weights  DetectorWeights
	MLWeight float64 // w in criminal = w*ml + (1-w)*rule_criminal
}

// NewScorer builds a scorer with the given detector weights and ML blend
// weight.
func NewScorer(weights DetectorWeights, mlWeight float64) *Scorer {
	return &Scorer{Weights: weights, MLWeight: mlWeight}
}

// Blend combines detector results and an ML result into RiskScores, per the
// criminal/friendly split: rule_criminal = min(1, max_i weight_i*score_i)
// over the criminal detectors; friendly = the friendly-fraud detector's own
// score; criminal = w*ml + (1-w)*rule_criminal when an ML score is present,
// else rule_criminal; risk = max(criminal, friendly), clamped and then
// remapped toward neutral when confidence is low.
func (s *Scorer) Blend(detectorResults []models.DetectorResult, ml models.MLResult, features *models.FeatureSnapshot) models.RiskScores {
	var reasons []models.Reason
	byName := make(map[string]models.DetectorResult, len(detectorResults))
	for _, d := range detectorResults {
		byName[d.Name] = d
		reasons = append(reasons, d.Reasons...)
	}

	ruleCriminal := 0.0
	for _, d := range detectorResults {
		if d.Name == "friendly_fraud" {
			continue
		}
		weighted := s.Weights.weightFor(d.Name) * d.Score
		if weighted > ruleCriminal {
			ruleCriminal = weighted
		}
	}
	ruleCriminal = clamp(ruleCriminal)

	friendly := byName["friendly_fraud"].Score

	criminal := ruleCriminal
	var mlScorePtr *float64
	if ml.HasScore {
		v := ml.Score
		mlScorePtr = &v
		criminal = s.MLWeight*ml.Score + (1-s.MLWeight)*ruleCriminal
	}
	criminal = clamp(criminal)

	overrideApplied := false
	var overrideReason models.ReasonCode
	if features != nil && (features.IsEmulator || features.IsTorExitNode) {
		if criminal < overrideThreshold {
			overrideApplied = true
			if features.IsEmulator {
				overrideReason = models.ReasonBotEmulator
			} else {
				overrideReason = models.ReasonGeoTor
			}
		}
		criminal = maxFloat(criminal, overrideThreshold)
	}

	risk := clamp(maxFloat(criminal, friendly))
	conf := confidence(features)
	if conf < 0.5 {
		risk = clamp(0.3 + (risk-0.3)*conf*2)
	}

	result := models.RiskScores{
		Risk:               risk,
		Criminal:           criminal,
		FriendlyFraud:      friendly,
		Confidence:         conf,
		CardTestingScore:   byName["card_testing"].Score,
		VelocityScore:      byName["velocity_attack"].Score,
		GeoScore:           byName["geo_anomaly"].Score,
		BotScore:           byName["bot_automation"].Score,
		FriendlyFraudScore: friendly,
		MLScore:            mlScorePtr,
		ModelVersion:       ml.ModelVersion,
		ModelVariant:       ml.Variant,
		OverrideApplied:    overrideApplied,
		OverrideReason:     overrideReason,
		Reasons:            reasons,
	}
	result.Round4()
	return result
}

// confidence is the mean of four factors: card transaction history, user
// transaction history, device transaction history, and data completeness
// (device/geo/verification presence). Each history factor falls back to a
// fixed floor when the entity is new rather than scoring 0, since a brand
// new entity isn't necessarily suspicious on its own.
func confidence(features *models.FeatureSnapshot) float64 {
	if features == nil {
		return 0
	}

	cardFactor := 0.3
	if features.CardProfile != nil && features.CardProfile.TotalTransactions > 0 {
		cardFactor = clamp(float64(features.CardProfile.TotalTransactions) / 10)
	}

	userFactor := 0.3
	if features.AccountProfile != nil && features.AccountProfile.TotalTransactions > 0 && !features.IsGuest {
		userFactor = clamp(float64(features.AccountProfile.TotalTransactions) / 20)
	}

	deviceFactor := 0.4
	if features.DeviceProfile != nil && features.DeviceProfile.TotalTransactions > 0 {
		deviceFactor = clamp(float64(features.DeviceProfile.TotalTransactions) / 5)
	}

	completeness := 0.0
	if features.DeviceDataPresent {
		completeness += 0.3
	}
	if features.GeoDataPresent {
		completeness += 0.3
	}
	if features.VerificationDataPresent {
		completeness += 0.4
	}

	return clamp((cardFactor + userFactor + deviceFactor + completeness) / 4)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
