// Package detectors implements the five parallel fraud signals run against
// every payment event: card testing, velocity attack, geo anomaly, bot
// automation and friendly fraud. Each one is a Detector; the pipeline fans
// out to all of them concurrently and collects whatever finishes inside the
// feature/scoring budget.
package detectors

import (
	"context"

	"github.com/riskcore/fraudengine/internal/models"
)

// Detector is the common interface every fraud signal implements. Kept
// narrow and uniform so the pipeline can dispatch across detector kinds
// through a single slice rather than a type switch.
type Detector interface {
	Name() string
	Detect(ctx context.Context, event *models.PaymentEvent, features *models.FeatureSnapshot) models.DetectorResult
}

// clamp bounds a score to [0, 1], the contract every detector must satisfy.
func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// signal is one contributing observation inside a detector: a raw score
// plus the reason it produced, if any. A detector collects its signals then
// calls aggregate to combine them into a single DetectorResult.
type signal struct {
	score  float64
	reason *models.Reason
}

// aggregate combines a detector's signals via score = min(1, max(signals) +
// k*(n-1)), n = number of fired signals: the strongest single signal
// dominates, and each additional corroborating signal nudges the score up
// by a detector-specific increment k. triggered is score >= tau. Reasons are
// returned in the order signals fired, one per non-zero signal.
func aggregate(name string, tau, k float64, signals []signal) models.DetectorResult {
	var max float64
	var reasons []models.Reason
	n := 0
	for _, s := range signals {
		if s.score <= 0 {
			continue
		}
		n++
		if s.score > max {
			max = s.score
		}
		if s.reason != nil {
			reasons = append(reasons, *s.reason)
		}
	}
	if n == 0 {
		return models.DetectorResult{Name: name, Score: 0, Triggered: false, Tau: tau, Reasons: nil}
	}
	score := clamp(max + k*float64(n-1))
	return models.DetectorResult{
		Name:      name,
		Score:     score,
		Triggered: score >= tau,
		Tau:       tau,
		Reasons:   reasons,
	}
}
