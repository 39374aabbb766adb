package mlscore

import (
	"context"
	"fmt"
	"testing"

	"github.com/riskcore/fraudengine/internal/models"
)

func TestRouteIsDeterministic(t *testing.T) {
	key := "account-42"
	first := Route(key, 10, 5)
	for i := 0; i < 20; i++ {
		if got := Route(key, 10, 5); got != first {
			t.Fatalf("Route(%q) not stable across calls: got %s, want %s", key, got, first)
		}
	}
}

func TestRouteRespectsBucketSplitApproximately(t *testing.T) {
	const holdoutPct, challengerPct = 10, 20
	counts := map[models.MLVariant]int{}
	for i := 0; i < 5000; i++ {
		v := Route(fmt.Sprintf("key-%d", i), challengerPct, holdoutPct)
		counts[v]++
	}

	total := 5000
	holdoutFrac := float64(counts[models.MLVariant("holdout")]) / float64(total)
	challengerFrac := float64(counts[models.MLVariant("challenger")]) / float64(total)

	if holdoutFrac < 0.05 || holdoutFrac > 0.15 {
		t.Errorf("holdout fraction = %.3f, want roughly 0.10", holdoutFrac)
	}
	if challengerFrac < 0.15 || challengerFrac > 0.25 {
		t.Errorf("challenger fraction = %.3f, want roughly 0.20", challengerFrac)
	}
}

func TestRouteZeroPercentNeverHoldoutOrChallenger(t *testing.T) {
	for i := 0; i < 200; i++ {
		v := Route(fmt.Sprintf("k-%d", i), 0, 0)
		if v != models.VariantChampion {
			t.Fatalf("Route with 0/0 split = %s, want champion", v)
		}
	}
}

type stubModel struct {
	version    string
	score      float64
	confidence float64
}

func (s stubModel) Version() string { return s.version }
func (s stubModel) Score(_ context.Context, _ *models.PaymentEvent, _ *models.FeatureSnapshot) (float64, float64) {
	return s.score, s.confidence
}

func TestScorerUsesChampionOutsideChallengerBucket(t *testing.T) {
	champion := stubModel{version: "champion-v1", score: 0.2, confidence: 0.8}
	challenger := stubModel{version: "challenger-v1", score: 0.9, confidence: 0.8}
	scorer := NewScorer(champion, challenger, 0, 0)

	result := scorer.Score(context.Background(), "any-key", &models.PaymentEvent{}, &models.FeatureSnapshot{})
	if result.Variant != models.VariantChampion {
		t.Fatalf("variant = %s, want champion", result.Variant)
	}
	if result.ModelVersion != "champion-v1" {
		t.Fatalf("model version = %s, want champion-v1", result.ModelVersion)
	}
}

func TestScorerHoldoutNeverScores(t *testing.T) {
	champion := stubModel{version: "champion-v1", score: 0.9, confidence: 0.8}
	scorer := NewScorer(champion, nil, 0, 100)

	for i := 0; i < 20; i++ {
		result := scorer.Score(context.Background(), fmt.Sprintf("key-%d", i), &models.PaymentEvent{}, &models.FeatureSnapshot{})
		if result.Variant != models.VariantHoldout {
			t.Fatalf("variant = %s, want holdout", result.Variant)
		}
		if result.HasScore {
			t.Fatal("holdout result must not carry a score")
		}
	}
}

func TestBehavioralModelScoreIsBoundedAndMonotonicInAmountZ(t *testing.T) {
	m := NewBehavioralModel("v1")

	low, _ := m.Score(context.Background(), &models.PaymentEvent{}, &models.FeatureSnapshot{AmountZScore: 0})
	high, _ := m.Score(context.Background(), &models.PaymentEvent{}, &models.FeatureSnapshot{AmountZScore: 6})

	if low < 0 || low > 1 || high < 0 || high > 1 {
		t.Fatalf("scores out of [0,1] range: low=%v high=%v", low, high)
	}
	if high <= low {
		t.Fatalf("expected higher amount z-score to raise behavioral score: low=%v high=%v", low, high)
	}
}

func TestBehavioralModelLowerConfidenceWhenDegraded(t *testing.T) {
	m := NewBehavioralModel("v1")

	_, confFull := m.Score(context.Background(), &models.PaymentEvent{}, &models.FeatureSnapshot{})
	_, confDegraded := m.Score(context.Background(), &models.PaymentEvent{}, &models.FeatureSnapshot{Degraded: true})

	if confDegraded >= confFull {
		t.Fatalf("degraded confidence %.2f should be lower than full confidence %.2f", confDegraded, confFull)
	}
}
