package pipeline

import "time"

// Budgets holds the soft per-stage latency budgets and the hard end-to-end
// deadline. Soft budgets are advisory: a stage that overruns one is
// cancelled and its caller substitutes a degraded result; the hard deadline
// is enforced by the context passed to Decide and always wins.
type Budgets struct {
	Feature  time.Duration
	Scoring  time.Duration
	Policy   time.Duration
	EndToEnd time.Duration
}

// DefaultBudgets matches the decisioning contract: 50ms for features, 25ms
// for scoring, 5ms for policy, 200ms hard overall.
func DefaultBudgets() Budgets {
	return Budgets{
		Feature:  50 * time.Millisecond,
		Scoring:  25 * time.Millisecond,
		Policy:   5 * time.Millisecond,
		EndToEnd: 200 * time.Millisecond,
	}
}
