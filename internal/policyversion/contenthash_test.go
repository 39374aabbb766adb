package policyversion

import (
	"testing"

	"github.com/riskcore/fraudengine/internal/models"
)

func TestContentHashIgnoresVersionMetadata(t *testing.T) {
	base := &models.Policy{
		Allowlist:         []string{"acct-1"},
		BlockThreshold:    0.85,
		ReviewThreshold:   0.6,
		FrictionThreshold: 0.4,
		DefaultAction:     models.ActionAllow,
	}
	variant := *base
	variant.Version = "9.9.9"
	variant.CreatedBy = "someone-else"
	variant.Active = true

	h1, err := ContentHash(base)
	if err != nil {
		t.Fatalf("ContentHash(base): %v", err)
	}
	h2, err := ContentHash(&variant)
	if err != nil {
		t.Fatalf("ContentHash(variant): %v", err)
	}
	if h1 != h2 {
		t.Fatalf("content hashes differ despite identical decisioning content: %s != %s", h1, h2)
	}
}

func TestContentHashChangesWithThreshold(t *testing.T) {
	a := &models.Policy{BlockThreshold: 0.85}
	b := &models.Policy{BlockThreshold: 0.90}

	h1, _ := ContentHash(a)
	h2, _ := ContentHash(b)
	if h1 == h2 {
		t.Fatal("expected different hashes for different thresholds")
	}
}
