package policy

import (
	"testing"

	"github.com/riskcore/fraudengine/internal/models"
)

func basePolicy() *models.Policy {
	return &models.Policy{
		BlockThreshold:    0.85,
		ReviewThreshold:   0.6,
		FrictionThreshold: 0.4,
		DefaultAction:     models.ActionAllow,
	}
}

func TestEvaluateAllowlistShortCircuits(t *testing.T) {
	p := basePolicy()
	p.Allowlist = []string{"card-123"}
	p.BlockThreshold = 0.0 // would otherwise block everything

	e := NewEngine()
	action, reasons := e.Evaluate(p, EntityKeys{Card: "card-123"}, Context{Risk: 0.99})

	if action != models.ActionAllow {
		t.Fatalf("action = %s, want ALLOW", action)
	}
	if len(reasons) != 1 || reasons[0].Code != models.ReasonAllowlisted {
		t.Fatalf("reasons = %+v, want single ALLOWLISTED reason", reasons)
	}
}

func TestEvaluateBlocklistMatchBlocks(t *testing.T) {
	p := basePolicy()
	p.Blocklist = []string{"device-666"}

	e := NewEngine()
	action, reasons := e.Evaluate(p, EntityKeys{Device: "device-666"}, Context{Risk: 0})

	if action != models.ActionBlock {
		t.Fatalf("action = %s, want BLOCK", action)
	}
	if reasons[0].Code != models.ReasonBlocklisted {
		t.Fatalf("reason = %s, want BLOCKLISTED", reasons[0].Code)
	}
}

func TestEvaluateScoreThresholds(t *testing.T) {
	p := basePolicy()
	e := NewEngine()

	cases := []struct {
		score float64
		want  models.Action
	}{
		{0.10, models.ActionAllow},
		{0.45, models.ActionFriction},
		{0.70, models.ActionReview},
		{0.90, models.ActionBlock},
	}

	for _, c := range cases {
		action, _ := e.Evaluate(p, EntityKeys{}, Context{Risk: c.score})
		if action != c.want {
			t.Errorf("score %.2f -> %s, want %s", c.score, action, c.want)
		}
	}
}

func TestEvaluateThresholdsConsiderCriminalAndFriendlyToo(t *testing.T) {
	p := basePolicy()
	e := NewEngine()

	action, reasons := e.Evaluate(p, EntityKeys{}, Context{Risk: 0.1, Criminal: 0.9, FriendlyFraud: 0.1})
	if action != models.ActionBlock {
		t.Fatalf("action = %s, want BLOCK (criminal score alone should block)", action)
	}
	if reasons[0].Code != models.ReasonScoreThreshold {
		t.Fatalf("reason = %s, want SCORE_THRESHOLD", reasons[0].Code)
	}

	action, _ = e.Evaluate(p, EntityKeys{}, Context{Risk: 0.1, Criminal: 0.1, FriendlyFraud: 0.7})
	if action != models.ActionReview {
		t.Fatalf("action = %s, want REVIEW (friendly fraud score alone should review)", action)
	}
}

func TestEvaluateRulesByPriorityOrder(t *testing.T) {
	p := basePolicy()
	p.Rules = []models.Rule{
		{
			ID: "low-priority", Name: "low", Priority: 10, Enabled: true, Action: models.ActionReview,
			Condition: models.RuleCondition{Type: "threshold", Field: "amount_z_score_gt", Value: 0.0},
		},
		{
			ID: "high-priority", Name: "high", Priority: 1, Enabled: true, Action: models.ActionBlock,
			Condition: models.RuleCondition{Type: "threshold", Field: "amount_z_score_gt", Value: 0.0},
		},
	}

	e := NewEngine()
	action, reasons := e.Evaluate(p, EntityKeys{}, Context{AmountZScore: 5.0})

	if action != models.ActionBlock {
		t.Fatalf("action = %s, want BLOCK (higher priority rule should win)", action)
	}
	if reasons[0].Code != models.ReasonRuleTriggered {
		t.Fatalf("reason = %s, want RULE_TRIGGERED", reasons[0].Code)
	}
}

func TestEvaluateDisabledRuleIsSkipped(t *testing.T) {
	p := basePolicy()
	p.Rules = []models.Rule{
		{ID: "r1", Priority: 1, Enabled: false, Action: models.ActionBlock,
			Condition: models.RuleCondition{Type: "threshold", Field: "amount_z_score_gt", Value: 0.0}},
	}

	e := NewEngine()
	action, _ := e.Evaluate(p, EntityKeys{}, Context{AmountZScore: 5.0})
	if action != models.ActionAllow {
		t.Fatalf("action = %s, want ALLOW (disabled rule should not fire, falls through to default)", action)
	}
}

func TestEvaluateContinueDefersToNextRule(t *testing.T) {
	p := basePolicy()
	p.Rules = []models.Rule{
		{ID: "r1", Priority: 1, Enabled: true, Action: models.ActionContinue,
			Condition: models.RuleCondition{Type: "threshold", Field: "amount_z_score_gt", Value: 0.0}},
		{ID: "r2", Priority: 2, Enabled: true, Action: models.ActionReview,
			Condition: models.RuleCondition{Type: "threshold", Field: "amount_z_score_gt", Value: 0.0}},
	}

	e := NewEngine()
	action, _ := e.Evaluate(p, EntityKeys{}, Context{AmountZScore: 5.0})
	if action != models.ActionReview {
		t.Fatalf("action = %s, want REVIEW (CONTINUE should defer to the next matching rule)", action)
	}
}

func TestEvaluateCompoundAndOr(t *testing.T) {
	and := models.RuleCondition{
		Type: "compound", Operator: "and",
		Conditions: []models.RuleCondition{
			{Type: "threshold", Field: "is_new_device_for_user_eq", Value: true},
			{Type: "threshold", Field: "is_high_risk_country_eq", Value: true},
		},
	}
	p := basePolicy()
	p.Rules = []models.Rule{{ID: "r1", Priority: 1, Enabled: true, Action: models.ActionBlock, Condition: and}}

	e := NewEngine()

	action, _ := e.Evaluate(p, EntityKeys{}, Context{IsNewDeviceForUser: true, IsHighRiskCountry: true})
	if action != models.ActionBlock {
		t.Fatalf("AND with both true: action = %s, want BLOCK", action)
	}

	action, _ = e.Evaluate(p, EntityKeys{}, Context{IsNewDeviceForUser: true, IsHighRiskCountry: false})
	if action != models.ActionAllow {
		t.Fatalf("AND with one false: action = %s, want ALLOW", action)
	}
}

func TestEvaluateTimeRange(t *testing.T) {
	rule := models.Rule{
		ID: "night", Priority: 1, Enabled: true, Action: models.ActionFriction,
		Condition: models.RuleCondition{Type: "time_range", StartHour: 1, EndHour: 5},
	}
	p := basePolicy()
	p.Rules = []models.Rule{rule}
	e := NewEngine()

	action, _ := e.Evaluate(p, EntityKeys{}, Context{Hour: 3})
	if action != models.ActionFriction {
		t.Fatalf("hour=3 within [1,5): action = %s, want FRICTION", action)
	}

	action, _ = e.Evaluate(p, EntityKeys{}, Context{Hour: 12})
	if action != models.ActionAllow {
		t.Fatalf("hour=12 outside [1,5): action = %s, want ALLOW", action)
	}
}

func TestBuildContextFromFeatureSnapshot(t *testing.T) {
	features := &models.FeatureSnapshot{
		AmountZScore:       2.5,
		IsNewDeviceForUser: true,
		AccountVelocity: map[models.VelocityWindow]models.VelocityCount{
			models.Window1Hour: {Count: 7},
		},
	}
	scores := models.RiskScores{Risk: 0.42, Confidence: 0.9}

	ctx := BuildContext(features, scores, 14)

	if ctx.Risk != 0.42 || ctx.Confidence != 0.9 {
		t.Fatalf("scores not copied: %+v", ctx)
	}
	if ctx.AccountVelocity1h != 7 {
		t.Fatalf("AccountVelocity1h = %d, want 7", ctx.AccountVelocity1h)
	}
	if !ctx.IsNewDeviceForUser {
		t.Fatal("IsNewDeviceForUser not copied")
	}
	if ctx.Hour != 14 {
		t.Fatalf("Hour = %d, want 14", ctx.Hour)
	}
}

func TestValidateThresholdsRejectsOutOfOrder(t *testing.T) {
	p := basePolicy()
	p.ReviewThreshold = 0.9 // now review > block
	if err := ValidateThresholds(p); err == nil {
		t.Fatal("expected error when review threshold exceeds block threshold")
	}
}

func TestValidateThresholdsAcceptsOrdered(t *testing.T) {
	if err := ValidateThresholds(basePolicy()); err != nil {
		t.Fatalf("unexpected error for a valid policy: %v", err)
	}
}
