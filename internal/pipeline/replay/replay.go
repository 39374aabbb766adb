// Package replay re-evaluates previously-scored transactions against a
// candidate policy without any side effects (no velocity writes, no
// evidence records, no async publish), so an operator can measure how a
// policy change would have shifted outcomes before activating it. It
// mirrors the engine's backtest service but replays stored feature/score
// snapshots from the evidence vault instead of recomputing features from
// live transaction history.
package replay

import (
	"context"

	"github.com/riskcore/fraudengine/internal/models"
	"github.com/riskcore/fraudengine/internal/policy"
)

// Sample is one historical decision to replay: the original inputs plus
// the decision that was actually made.
type Sample struct {
	Event            *models.PaymentEvent
	Features         *models.FeatureSnapshot
	Scores           models.RiskScores
	OriginalDecision models.Action
}

// Outcome compares a replayed decision against the original.
type Outcome struct {
	TransactionID    string        `json:"transaction_id"`
	OriginalDecision models.Action `json:"original_decision"`
	ReplayDecision   models.Action `json:"replay_decision"`
	Changed          bool          `json:"changed"`
}

// Summary aggregates a batch of replay outcomes.
type Summary struct {
	Total       int            `json:"total"`
	Changed     int            `json:"changed"`
	ByAction    map[models.Action]int `json:"by_action"`
	Outcomes    []Outcome      `json:"outcomes"`
}

// Runner replays samples against a candidate policy.
type Runner struct {
	engine *policy.Engine
}

// NewRunner builds a replay runner.
func NewRunner(engine *policy.Engine) *Runner {
	return &Runner{engine: engine}
}

// Run replays every sample against candidate and returns the aggregated
// outcome. It never touches the velocity/profile/evidence stores.
func (r *Runner) Run(_ context.Context, candidate *models.Policy, samples []Sample) Summary {
	summary := Summary{ByAction: make(map[models.Action]int)}

	for _, s := range samples {
		hour := s.Event.Timestamp.Hour()
		ctx := policy.BuildContext(s.Features, s.Scores, hour)
		keys := policy.EntityKeys{
			Card:    s.Event.CardToken,
			Device:  s.Event.Device.DeviceID,
			IP:      s.Event.Geo.IPAddress,
			Account: s.Event.Subscriber.UserID,
			Service: s.Event.ServiceID,
		}

		action, _ := r.engine.Evaluate(candidate, keys, ctx)

		summary.Total++
		summary.ByAction[action]++
		summary.Outcomes = append(summary.Outcomes, Outcome{
			TransactionID:    s.Event.TransactionID,
			OriginalDecision: s.OriginalDecision,
			ReplayDecision:   action,
			Changed:          action != s.OriginalDecision,
		})
		if action != s.OriginalDecision {
			summary.Changed++
		}
	}

	return summary
}
