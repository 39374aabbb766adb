package detectors

import (
	"context"
	"testing"

	"github.com/riskcore/fraudengine/internal/models"
)

func TestFriendlyFraudDetectorFlagsHighChargebackRate(t *testing.T) {
	d := NewFriendlyFraudDetector()
	event := &models.PaymentEvent{}
	features := &models.FeatureSnapshot{EstimatedChargebackRate90d: 0.10}

	result := d.Detect(context.Background(), event, features)
	if result.Score <= 0 {
		t.Fatalf("score = %v, want > 0 for chargeback rate above threshold", result.Score)
	}

	found := false
	for _, r := range result.Reasons {
		if r.Code == models.ReasonFriendlyFraudHistory {
			found = true
		}
	}
	if !found {
		t.Fatal("expected FRIENDLY_FRAUD_CHARGEBACK_HISTORY reason")
	}
}

func TestFriendlyFraudDetectorQuietForCleanAccount(t *testing.T) {
	d := NewFriendlyFraudDetector()
	event := &models.PaymentEvent{}
	features := &models.FeatureSnapshot{}

	result := d.Detect(context.Background(), event, features)
	if result.Score != 0 {
		t.Fatalf("score = %v, want 0 for a clean account", result.Score)
	}
}

func TestFriendlyFraudDetectorRepeatUserChargebacks(t *testing.T) {
	d := NewFriendlyFraudDetector()
	event := &models.PaymentEvent{}
	features := &models.FeatureSnapshot{UserChargebackCount90d: 3}

	result := d.Detect(context.Background(), event, features)

	found := false
	for _, r := range result.Reasons {
		if r.Code == models.ReasonFriendlyFraudHistory {
			found = true
		}
	}
	if !found {
		t.Fatal("expected FRIENDLY_FRAUD_CHARGEBACK_HISTORY reason")
	}
}

func TestFriendlyFraudDetectorGuestHighValue(t *testing.T) {
	d := NewFriendlyFraudDetector()
	event := &models.PaymentEvent{}
	features := &models.FeatureSnapshot{IsGuest: true, AmountUSD: 600}

	result := d.Detect(context.Background(), event, features)

	found := false
	for _, r := range result.Reasons {
		if r.Code == models.ReasonFriendlyFraudGuestHighValue {
			found = true
		}
	}
	if !found {
		t.Fatal("expected FRIENDLY_FRAUD_GUEST_HIGH_VALUE reason")
	}
}

func TestFriendlyFraudDetectorSubscriptionAbuseOnlyWhenRecurring(t *testing.T) {
	d := NewFriendlyFraudDetector()
	features := &models.FeatureSnapshot{UserTransactions24h: 5}

	nonRecurring := d.Detect(context.Background(), &models.PaymentEvent{IsRecurring: false}, features)
	if nonRecurring.Score != 0 {
		t.Fatalf("score = %v, want 0 for a non-recurring transaction", nonRecurring.Score)
	}

	recurring := d.Detect(context.Background(), &models.PaymentEvent{IsRecurring: true}, features)
	if recurring.Score <= 0 {
		t.Fatalf("score = %v, want > 0 for a recurring subscription with elevated transaction count", recurring.Score)
	}

	found := false
	for _, r := range recurring.Reasons {
		if r.Code == models.ReasonSubscriptionAbuse {
			found = true
		}
	}
	if !found {
		t.Fatal("expected FRIENDLY_FRAUD_SUBSCRIPTION_ABUSE reason")
	}
}

func TestFriendlyFraudDetectorHighRiskTier(t *testing.T) {
	d := NewFriendlyFraudDetector()
	event := &models.PaymentEvent{}
	features := &models.FeatureSnapshot{UserRiskTier: models.RiskHigh}

	result := d.Detect(context.Background(), event, features)

	found := false
	for _, r := range result.Reasons {
		if r.Code == models.ReasonFriendlyFraudRiskTier {
			found = true
		}
	}
	if !found {
		t.Fatal("expected FRIENDLY_FRAUD_RISK_TIER reason")
	}
}
