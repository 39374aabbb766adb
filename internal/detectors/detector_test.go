package detectors

import (
	"math"
	"testing"

	"github.com/riskcore/fraudengine/internal/models"
)

func TestClampBounds(t *testing.T) {
	if clamp(-0.5) != 0 {
		t.Fatal("clamp(-0.5) should be 0")
	}
	if clamp(1.5) != 1 {
		t.Fatal("clamp(1.5) should be 1")
	}
	if clamp(0.3) != 0.3 {
		t.Fatal("clamp(0.3) should be unchanged")
	}
}

func TestAggregateNoSignalsIsZero(t *testing.T) {
	result := aggregate("test", 0.5, 0.05, nil)
	if result.Score != 0 || result.Triggered {
		t.Fatalf("aggregate(nil) = %+v, want zero score, not triggered", result)
	}
}

func TestAggregateSingleSignalIsItsScore(t *testing.T) {
	result := aggregate("test", 0.5, 0.05, []signal{{score: 0.7}})
	if result.Score != 0.7 {
		t.Fatalf("score = %v, want 0.7", result.Score)
	}
	if !result.Triggered {
		t.Fatal("expected triggered when score >= tau")
	}
}

func TestAggregateCorroboratingSignalsNudgeUp(t *testing.T) {
	// max(0.5, 0.5) + k*(n-1) = 0.5 + 0.05*1 = 0.55
	result := aggregate("test", 0.5, 0.05, []signal{{score: 0.5}, {score: 0.5}})
	if math.Abs(result.Score-0.55) > 1e-9 {
		t.Fatalf("aggregate score = %v, want 0.55", result.Score)
	}
}

func TestAggregateNeverExceedsOne(t *testing.T) {
	signals := []signal{{score: 0.9}, {score: 0.9}, {score: 0.9}, {score: 0.9}}
	result := aggregate("test", 0.5, 0.2, signals)
	if result.Score > 1 {
		t.Fatalf("aggregate result %v exceeds 1", result.Score)
	}
}

func TestAggregateIgnoresZeroSignals(t *testing.T) {
	result := aggregate("test", 0.5, 0.05, []signal{{score: 0}, {score: 0.6}})
	if result.Score != 0.6 {
		t.Fatalf("score = %v, want 0.6 (zero signals shouldn't count toward n)", result.Score)
	}
}

func TestAggregateCollectsReasonsInOrder(t *testing.T) {
	r1 := models.Reason{Code: models.ReasonCardTestingVelocity}
	r2 := models.Reason{Code: models.ReasonCardTestingDeclineRate}
	result := aggregate("test", 0.5, 0.05, []signal{{score: 0.6, reason: &r1}, {score: 0.7, reason: &r2}})
	if len(result.Reasons) != 2 || result.Reasons[0].Code != r1.Code || result.Reasons[1].Code != r2.Code {
		t.Fatalf("reasons = %+v, want [%v, %v] in order", result.Reasons, r1.Code, r2.Code)
	}
}
