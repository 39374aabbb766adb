package detectors

import (
	"context"
	"testing"

	"github.com/riskcore/fraudengine/internal/models"
)

func TestVelocityAttackDetectorCardBurst(t *testing.T) {
	d := NewVelocityAttackDetector()
	features := &models.FeatureSnapshot{
		CardVelocity: map[models.VelocityWindow]models.VelocityCount{
			models.Window1Hour: {Count: 12},
		},
	}

	result := d.Detect(context.Background(), &models.PaymentEvent{}, features)
	if result.Score <= 0 {
		t.Fatalf("score = %v, want > 0 for card burst above hourly threshold", result.Score)
	}

	found := false
	for _, r := range result.Reasons {
		if r.Code == models.ReasonVelocityAttackCard {
			found = true
		}
	}
	if !found {
		t.Fatal("expected VELOCITY_ATTACK_CARD reason")
	}
}

func TestVelocityAttackDetectorDeviceDistinctCards(t *testing.T) {
	d := NewVelocityAttackDetector()
	features := &models.FeatureSnapshot{DeviceDistinctCards24h: 8}

	result := d.Detect(context.Background(), &models.PaymentEvent{}, features)
	found := false
	for _, r := range result.Reasons {
		if r.Code == models.ReasonVelocityAttackDevice {
			found = true
		}
	}
	if !found {
		t.Fatal("expected VELOCITY_ATTACK_DEVICE reason")
	}
}

func TestVelocityAttackDetectorIPDistinctCards(t *testing.T) {
	d := NewVelocityAttackDetector()
	features := &models.FeatureSnapshot{IPDistinctCards1h: 15}

	result := d.Detect(context.Background(), &models.PaymentEvent{}, features)
	found := false
	for _, r := range result.Reasons {
		if r.Code == models.ReasonVelocityAttackIP {
			found = true
		}
	}
	if !found {
		t.Fatal("expected VELOCITY_ATTACK_IP reason")
	}
}

func TestVelocityAttackDetectorUserTransactionBurst(t *testing.T) {
	d := NewVelocityAttackDetector()
	features := &models.FeatureSnapshot{UserTransactions24h: 25}

	result := d.Detect(context.Background(), &models.PaymentEvent{}, features)
	found := false
	for _, r := range result.Reasons {
		if r.Code == models.ReasonVelocityAttackAccount {
			found = true
		}
	}
	if !found {
		t.Fatal("expected VELOCITY_ATTACK_ACCOUNT reason")
	}
}

func TestVelocityAttackDetectorQuietWithinNormalRange(t *testing.T) {
	d := NewVelocityAttackDetector()
	features := &models.FeatureSnapshot{
		CardVelocity: map[models.VelocityWindow]models.VelocityCount{
			models.Window1Hour: {Count: 2},
		},
	}

	result := d.Detect(context.Background(), &models.PaymentEvent{}, features)
	if result.Score != 0 {
		t.Fatalf("score = %v, want 0 for normal velocity", result.Score)
	}
}

func TestVelocityAttackDetectorCardDistinctCounterpartiesPrefersLarger(t *testing.T) {
	d := NewVelocityAttackDetector()
	features := &models.FeatureSnapshot{
		CardDistinctDevices24h: 3,
		CardDistinctIPs24h:     10,
	}

	result := d.Detect(context.Background(), &models.PaymentEvent{}, features)
	found := false
	for _, r := range result.Reasons {
		if r.Value == 10 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the counterparty signal to report the larger count (10 IPs), reasons: %+v", result.Reasons)
	}
}
