package pipeline

import (
	"testing"
	"time"
)

func TestDefaultBudgetsWithinEndToEnd(t *testing.T) {
	b := DefaultBudgets()

	sum := b.Feature + b.Scoring + b.Policy
	if sum >= b.EndToEnd {
		t.Fatalf("sum of soft budgets %v must stay under the hard end-to-end deadline %v", sum, b.EndToEnd)
	}
	if b.EndToEnd != 200*time.Millisecond {
		t.Fatalf("EndToEnd = %v, want 200ms", b.EndToEnd)
	}
}
