// Package mlscore provides the ML/behavioral scorer and its champion/
// challenger/holdout routing. The lightweight ensemble scoring approach and
// the consistent-hash routing scheme are both carried over from the
// engine's rule-based scorer and its A/B experiment manager.
package mlscore

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/riskcore/fraudengine/internal/models"
)

// Route deterministically buckets a routing key into champion, challenger
// or holdout using the first 32 bits of sha256(routing_key) modulo 100,
// the same consistent-hash technique the engine's experiment manager uses
// to keep an account in a stable group across requests.
func Route(routingKey string, challengerPct, holdoutPct int) models.MLVariant {
	sum := sha256.Sum256([]byte(routingKey))
	bucket := binary.BigEndian.Uint32(sum[:4]) % 100

	if int(bucket) < holdoutPct {
		return models.MLVariant("holdout")
	}
	if int(bucket) < holdoutPct+challengerPct {
		return models.MLVariant("challenger")
	}
	return models.MLVariant("champion")
}

// Model is a scoring function a variant routes to. Champion and challenger
// can be different model versions; a holdout request calls no model at all
// (see Scorer.Score).
type Model interface {
	Version() string
	Score(ctx context.Context, event *models.PaymentEvent, features *models.FeatureSnapshot) (score float64, confidence float64)
}

// Scorer routes each request to a model variant and runs it.
type Scorer struct {
	Champion   Model
	Challenger Model
	ChallengerPct int
	HoldoutPct    int
}

// NewScorer builds a scorer. challengerPct and holdoutPct are each in
// [0,100] and must not sum to more than 100; the remainder goes to champion.
func NewScorer(champion, challenger Model, challengerPct, holdoutPct int) *Scorer {
	return &Scorer{Champion: champion, Challenger: challenger, ChallengerPct: challengerPct, HoldoutPct: holdoutPct}
}

// Score routes routingKey to a variant and scores the event. A holdout
// routing deliberately withholds the score from decisioning — HasScore is
// false and Score is left at zero — so the holdout group forms a true
// control for comparing decision outcomes offline.
func (s *Scorer) Score(ctx context.Context, routingKey string, event *models.PaymentEvent, features *models.FeatureSnapshot) models.MLResult {
	variant := Route(routingKey, s.ChallengerPct, s.HoldoutPct)

	if variant == models.VariantHoldout {
		return models.MLResult{Variant: variant, HasScore: false}
	}

	model := s.Champion
	if variant == models.VariantChallenger && s.Challenger != nil {
		model = s.Challenger
	}

	score, confidence := model.Score(ctx, event, features)
	return models.MLResult{
		Score:        score,
		HasScore:     true,
		Variant:      variant,
		ModelVersion: model.Version(),
		Confidence:   confidence,
	}
}

// BehavioralModel is the lightweight statistical ensemble: no trained
// weights, just sigmoid-transformed z-scores and feature indicators,
// generalized from the original rule-based scorer's ensemble approach.
type BehavioralModel struct {
	version string
}

// NewBehavioralModel builds the default behavioral model.
func NewBehavioralModel(version string) *BehavioralModel {
	return &BehavioralModel{version: version}
}

func (m *BehavioralModel) Version() string { return m.version }

func (m *BehavioralModel) Score(_ context.Context, event *models.PaymentEvent, features *models.FeatureSnapshot) (float64, float64) {
	weights := struct {
		amountZ, velocityZ, geo, time, chargeback float64
	}{amountZ: 0.30, velocityZ: 0.20, geo: 0.20, time: 0.10, chargeback: 0.20}

	var score float64
	score += weights.amountZ * sigmoid(features.AmountZScore-2) * 100
	velocityZ := velocityZScore(features)
	score += weights.velocityZ * sigmoid(velocityZ-1.5) * 100

	geoRisk := 0.0
	if features.ImpliedSpeedKmh > 900 {
		geoRisk += 50
	}
	if features.IsHighRiskCountry {
		geoRisk += 30
	}
	if features.IPCardCountryMismatch {
		geoRisk += 20
	}
	score += weights.geo * math.Min(geoRisk, 100)

	timeRisk := 0.0
	if features.IsWeekend {
		timeRisk += 40
	}
	score += weights.time * timeRisk

	score += weights.chargeback * math.Min(features.EstimatedChargebackRate90d*1000, 100)

	confidence := 0.75
	if features.Degraded {
		confidence = 0.4
	}

	return math.Round(math.Min(score, 100)*100) / 100 / 100, confidence
}

func velocityZScore(features *models.FeatureSnapshot) float64 {
	count := float64(features.AccountVelocity[models.Window1Hour].Count)
	const avgVelocity, stdVelocity = 3.0, 2.0
	return (count - avgVelocity) / stdVelocity
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
