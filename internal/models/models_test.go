package models

import (
	"math"
	"testing"
	"time"
)

func TestEntityProfileObserveAmountMeanAndStdDev(t *testing.T) {
	p := &EntityProfile{Kind: EntityCard, Key: "card-1"}

	samples := []int64{1000, 2000, 3000, 4000, 5000}
	for _, s := range samples {
		p.ObserveAmount(s)
	}

	if p.AmountCount != int64(len(samples)) {
		t.Fatalf("count = %d, want %d", p.AmountCount, len(samples))
	}
	if math.Abs(p.AmountMeanCents-3000) > 1e-9 {
		t.Fatalf("mean = %v, want 3000", p.AmountMeanCents)
	}
	// Sample variance of {1000,2000,3000,4000,5000} is 2,500,000; stddev = 1581.14.
	if math.Abs(p.StdDevCents()-1581.139) > 0.01 {
		t.Fatalf("stddev = %v, want ~1581.14", p.StdDevCents())
	}
}

func TestEntityProfileSingleSampleHasZeroStdDev(t *testing.T) {
	p := &EntityProfile{}
	p.ObserveAmount(10000)

	if p.StdDevCents() != 0 {
		t.Fatalf("stddev with one sample = %v, want 0", p.StdDevCents())
	}
}

func TestEntityProfileTouchSetsFirstSeenOnce(t *testing.T) {
	p := &EntityProfile{}
	first := time.Now()
	second := first.Add(time.Hour)

	p.Touch(first)
	p.Touch(second)

	if p.FirstSeen != first {
		t.Fatalf("FirstSeen = %v, want %v (set only on the first Touch)", p.FirstSeen, first)
	}
	if p.LastSeen != second {
		t.Fatalf("LastSeen = %v, want %v", p.LastSeen, second)
	}
	if p.TotalTransactions != 2 {
		t.Fatalf("TotalTransactions = %d, want 2", p.TotalTransactions)
	}
}

func TestVelocityWindowDuration(t *testing.T) {
	cases := []struct {
		window VelocityWindow
		want   time.Duration
	}{
		{Window10Min, 10 * time.Minute},
		{Window1Hour, time.Hour},
		{Window24Hour, 24 * time.Hour},
		{Window7Day, 7 * 24 * time.Hour},
		{Window30Day, 30 * 24 * time.Hour},
		{VelocityWindow("bogus"), time.Hour},
	}

	for _, c := range cases {
		if got := c.window.Duration(); got != c.want {
			t.Errorf("Duration(%q) = %v, want %v", c.window, got, c.want)
		}
	}
}

func TestAllWindowsIncludesEveryWindow(t *testing.T) {
	if len(AllWindows) != 5 {
		t.Fatalf("len(AllWindows) = %d, want 5", len(AllWindows))
	}
	seen := make(map[VelocityWindow]bool)
	for _, w := range AllWindows {
		seen[w] = true
	}
	for _, w := range []VelocityWindow{Window10Min, Window1Hour, Window24Hour, Window7Day, Window30Day} {
		if !seen[w] {
			t.Errorf("AllWindows missing %q", w)
		}
	}
}
