package detectors

import (
	"context"
	"testing"

	"github.com/riskcore/fraudengine/internal/models"
)

func TestGeoAnomalyDetectorImpossibleTravel(t *testing.T) {
	d := NewGeoAnomalyDetector()
	event := &models.PaymentEvent{}
	features := &models.FeatureSnapshot{ImpliedSpeedKmh: 5000, HoursSinceLastGeo: 1}

	result := d.Detect(context.Background(), event, features)
	if result.Score <= 0 {
		t.Fatalf("score = %v, want > 0 for impossible travel speed", result.Score)
	}
	if result.Reasons[0].Code != models.ReasonImpossibleTravel {
		t.Fatalf("reason = %s, want GEO_IMPOSSIBLE_TRAVEL", result.Reasons[0].Code)
	}
}

func TestGeoAnomalyDetectorCountryMismatch(t *testing.T) {
	d := NewGeoAnomalyDetector()
	event := &models.PaymentEvent{CardCountry: "NG"}
	event.Geo.Country = "US"
	features := &models.FeatureSnapshot{IPCardCountryMismatch: true}

	result := d.Detect(context.Background(), event, features)

	foundMismatch, foundHighRisk := false, false
	for _, r := range result.Reasons {
		if r.Code == models.ReasonCountryMismatch {
			foundMismatch = true
		}
		if r.Code == models.ReasonHighRiskCountry {
			foundHighRisk = true
		}
	}
	if !foundMismatch {
		t.Fatal("expected GEO_COUNTRY_MISMATCH reason")
	}
	if !foundHighRisk {
		t.Fatal("expected GEO_HIGH_RISK_COUNTRY reason since NG is in the default high-risk set")
	}
}

func TestGeoAnomalyDetectorTorExitNode(t *testing.T) {
	d := NewGeoAnomalyDetector()
	event := &models.PaymentEvent{}
	event.Geo.IsTor = true

	result := d.Detect(context.Background(), event, &models.FeatureSnapshot{})
	found := false
	for _, r := range result.Reasons {
		if r.Code == models.ReasonGeoTor {
			found = true
		}
	}
	if !found {
		t.Fatal("expected GEO_TOR reason")
	}
}

func TestGeoAnomalyDetectorDatacenterIP(t *testing.T) {
	d := NewGeoAnomalyDetector()
	event := &models.PaymentEvent{}
	event.Geo.IsDatacenter = true

	result := d.Detect(context.Background(), event, &models.FeatureSnapshot{})
	found := false
	for _, r := range result.Reasons {
		if r.Code == models.ReasonGeoDatacenter {
			found = true
		}
	}
	if !found {
		t.Fatal("expected GEO_DATACENTER reason")
	}
}

func TestGeoAnomalyDetectorQuietForNormalTravel(t *testing.T) {
	d := NewGeoAnomalyDetector()
	event := &models.PaymentEvent{CardCountry: "US"}
	event.Geo.Country = "US"
	features := &models.FeatureSnapshot{ImpliedSpeedKmh: 80, HoursSinceLastGeo: 1}

	result := d.Detect(context.Background(), event, features)
	if result.Score != 0 {
		t.Fatalf("score = %v, want 0 for normal same-country travel", result.Score)
	}
}
