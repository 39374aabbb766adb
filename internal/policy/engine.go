// Package policy evaluates the active policy against a scored transaction:
// allow/block lists, then priority-ordered explicit rules, then score
// thresholds evaluated over each of {risk, criminal, friendly}, then a
// default action. The condition evaluator generalizes the engine's JSON
// rule-condition tree (threshold/compound/time_range nodes with
// >,<,>=,<=,=,!= operators on named fields) into a field-suffix comparator
// scheme so new comparable fields never need new operator code.
package policy

import (
	"fmt"

	"github.com/riskcore/fraudengine/internal/models"
)

// Context is the field namespace the rule condition tree evaluates against.
// Keys match FeatureSnapshot/RiskScores fields by convention, e.g.
// "risk_gte", "account_velocity_1h_gt".
type Context struct {
	Risk          float64
	Criminal      float64
	FriendlyFraud float64
	Confidence    float64

	AmountZScore       float64
	ImpliedSpeedKmh    float64
	AccountVelocity1h  int64
	AccountVelocity24h int64
	CardVelocity10m    int64
	IsNewCardForUser   bool
	IsNewDeviceForUser bool
	IsHighRiskCountry  bool
	IPCardCountryMismatch bool
	Hour               int
}

// BuildContext derives the evaluation Context from a feature snapshot and
// blended risk scores.
func BuildContext(features *models.FeatureSnapshot, scores models.RiskScores, hour int) Context {
	return Context{
		Risk:                  scores.Risk,
		Criminal:              scores.Criminal,
		FriendlyFraud:         scores.FriendlyFraud,
		Confidence:            scores.Confidence,
		AmountZScore:          features.AmountZScore,
		ImpliedSpeedKmh:       features.ImpliedSpeedKmh,
		AccountVelocity1h:     features.AccountVelocity[models.Window1Hour].Count,
		AccountVelocity24h:    features.AccountVelocity[models.Window24Hour].Count,
		CardVelocity10m:       features.CardVelocity[models.Window10Min].Count,
		IsNewCardForUser:      features.IsNewCardForUser,
		IsNewDeviceForUser:    features.IsNewDeviceForUser,
		IsHighRiskCountry:     features.IsHighRiskCountry,
		IPCardCountryMismatch: features.IPCardCountryMismatch,
		Hour:                  hour,
	}
}

func (c Context) field(name string) (interface{}, bool) {
	switch name {
	case "risk":
		return c.Risk, true
	case "criminal":
		return c.Criminal, true
	case "friendly_fraud", "friendly":
		return c.FriendlyFraud, true
	case "confidence":
		return c.Confidence, true
	case "amount_z_score":
		return c.AmountZScore, true
	case "implied_speed_kmh":
		return c.ImpliedSpeedKmh, true
	case "account_velocity_1h":
		return float64(c.AccountVelocity1h), true
	case "account_velocity_24h":
		return float64(c.AccountVelocity24h), true
	case "card_velocity_10m":
		return float64(c.CardVelocity10m), true
	case "is_new_card_for_user":
		return c.IsNewCardForUser, true
	case "is_new_device_for_user":
		return c.IsNewDeviceForUser, true
	case "is_high_risk_country":
		return c.IsHighRiskCountry, true
	case "ip_card_country_mismatch":
		return c.IPCardCountryMismatch, true
	case "hour":
		return float64(c.Hour), true
	default:
		return nil, false
	}
}

// Engine evaluates a single active policy.
type Engine struct{}

// NewEngine builds a policy engine.
func NewEngine() *Engine { return &Engine{} }

// EntityKeys identifies the transaction's card/device/ip/account/service
// keys for allow/block list lookups.
type EntityKeys struct {
	Card    string
	Device  string
	IP      string
	Account string
	Service string
}

// Evaluate runs the full decision flow: allowlist, blocklist, rules in
// priority order, score thresholds over {risk, criminal, friendly},
// default action.
func (e *Engine) Evaluate(p *models.Policy, keys EntityKeys, ctx Context) (models.Action, []models.Reason) {
	for _, entry := range p.Allowlist {
		if matchesEntity(entry, keys) {
			return models.ActionAllow, []models.Reason{{
				Code: models.ReasonAllowlisted, Source: "policy", Severity: models.SeverityLow, Detail: fmt.Sprintf("matched allowlist entry %s", entry),
			}}
		}
	}

	for _, entry := range p.Blocklist {
		if matchesEntity(entry, keys) {
			return models.ActionBlock, []models.Reason{{
				Code: models.ReasonBlocklisted, Source: "policy", Severity: models.SeverityCritical, Detail: fmt.Sprintf("matched blocklist entry %s", entry),
			}}
		}
	}

	sorted := sortedRules(p.Rules)
	for _, rule := range sorted {
		if !rule.Enabled {
			continue
		}
		if !e.evaluateCondition(rule.Condition, ctx) {
			continue
		}
		if rule.Action == models.ActionContinue {
			continue
		}
		reason := models.Reason{
			Code: models.ReasonRuleTriggered, Source: "policy", Severity: models.SeverityMedium,
			Detail: fmt.Sprintf("rule %q (%s) matched", rule.Name, rule.ID),
		}
		return rule.Action, []models.Reason{reason}
	}

	return e.evaluateThresholds(p, ctx)
}

// evaluateThresholds checks block/review/friction thresholds across each of
// risk, criminal and friendly, returning the highest-severity action
// encountered (BLOCK short-circuits immediately; REVIEW/FRICTION track the
// most severe result across all three score types before returning).
func (e *Engine) evaluateThresholds(p *models.Policy, ctx Context) (models.Action, []models.Reason) {
	scores := map[string]float64{"risk": ctx.Risk, "criminal": ctx.Criminal, "friendly": ctx.FriendlyFraud}

	bestAction := models.Action("")
	var bestReason models.Reason

	for _, name := range []string{"risk", "criminal", "friendly"} {
		score := scores[name]
		switch {
		case score >= p.BlockThreshold:
			return models.ActionBlock, []models.Reason{{
				Code: models.ReasonScoreThreshold, Source: "policy", Severity: models.SeverityCritical, Score: score,
				Detail: fmt.Sprintf("%s score %.4f >= block threshold %.4f", name, score, p.BlockThreshold),
			}}
		case score >= p.ReviewThreshold:
			priority := models.ReviewMedium
			if score >= 0.8 {
				priority = models.ReviewHigh
			}
			if bestAction != models.ActionReview || priority == models.ReviewHigh {
				bestAction = models.ActionReview
				bestReason = models.Reason{
					Code: models.ReasonScoreThreshold, Source: "policy", Severity: models.SeverityHigh, Score: score,
					Detail: fmt.Sprintf("%s score %.4f >= review threshold %.4f (%s)", name, score, p.ReviewThreshold, priority),
				}
			}
		case score >= p.FrictionThreshold && bestAction == "":
			bestAction = models.ActionFriction
			bestReason = models.Reason{
				Code: models.ReasonScoreThreshold, Source: "policy", Severity: models.SeverityMedium, Score: score,
				Detail: fmt.Sprintf("%s score %.4f >= friction threshold %.4f", name, score, p.FrictionThreshold),
			}
		}
	}

	if bestAction != "" {
		return bestAction, []models.Reason{bestReason}
	}

	return p.DefaultAction, []models.Reason{{Code: models.ReasonDefaultAction, Source: "policy", Severity: models.SeverityLow, Detail: "no rule or threshold matched"}}
}

// ReviewPriorityFor returns the review priority the threshold reason carries
// for score: HIGH at or above 0.8, else MEDIUM.
func ReviewPriorityFor(score float64) models.ReviewPriority {
	if score >= 0.8 {
		return models.ReviewHigh
	}
	return models.ReviewMedium
}

// ValidateThresholds enforces the invariant required on every policy load:
// friction < review < block, all in [0,1].
func ValidateThresholds(p *models.Policy) error {
	if p.FrictionThreshold < 0 || p.BlockThreshold > 1 {
		return fmt.Errorf("thresholds must lie in [0,1]")
	}
	if !(p.FrictionThreshold < p.ReviewThreshold && p.ReviewThreshold < p.BlockThreshold) {
		return fmt.Errorf("thresholds must satisfy friction < review < block")
	}
	return nil
}

func matchesEntity(entry string, keys EntityKeys) bool {
	return entry == keys.Card || entry == keys.Device || entry == keys.IP || entry == keys.Account || entry == keys.Service
}

func sortedRules(rules []models.Rule) []models.Rule {
	out := make([]models.Rule, len(rules))
	copy(out, rules)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Priority < out[j-1].Priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
