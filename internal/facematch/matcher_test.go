package facematch

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func TestEuclideanDistance(t *testing.T) {
	a := testEmbedding(t, 0)

	if d := EuclideanDistance(a, a); d != 0 {
		t.Errorf("distance to self = %v, want 0", d)
	}
	if d := EuclideanDistance(a, single(a, 0.3)); math.Abs(d-0.3) > epsilon {
		t.Errorf("distance = %v, want 0.3", d)
	}
	want := 0.1 * math.Sqrt(128)
	if d := EuclideanDistance(a, shifted(a, 0.1)); math.Abs(d-want) > epsilon {
		t.Errorf("distance = %v, want %v", d, want)
	}
}

func TestMatcher_IdenticalProbeMatchesItsIndex(t *testing.T) {
	known := []Embedding{
		testEmbedding(t, 0),
		testEmbedding(t, 1),
		testEmbedding(t, 2),
	}
	m := DefaultMatcher()

	for k := range known {
		res, ok := m.Match(known, known[k])
		if !ok {
			t.Fatalf("probe identical to entry %d did not match", k)
		}
		if res.KnownIndex != k {
			t.Errorf("expected index %d, got %d", k, res.KnownIndex)
		}
		if res.Distance != 0 {
			t.Errorf("expected distance 0, got %v", res.Distance)
		}
		if res.Confidence != 1 {
			t.Errorf("expected confidence 1, got %v", res.Confidence)
		}
	}
}

func TestMatcher_Tolerance(t *testing.T) {
	base := testEmbedding(t, 0)
	known := []Embedding{base}

	tests := []struct {
		name      string
		delta     float64
		tolerance float64
		match     bool
	}{
		{"well inside", 0.3, 0.6, true},
		{"just inside", 0.59, 0.6, true},
		{"exactly at tolerance", 0.5, 0.5, false},
		{"outside", 0.7, 0.6, false},
		{"zero tolerance", 0.0, 0, false},
		{"huge tolerance", 5, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher(tt.tolerance)
			res, ok := m.Match(known, single(base, tt.delta))
			if ok != tt.match {
				t.Fatalf("match = %v, want %v (distance %v)", ok, tt.match, res.Distance)
			}
			if ok && math.Abs(res.Confidence-(1-tt.delta)) > epsilon {
				t.Errorf("confidence = %v, want %v", res.Confidence, 1-tt.delta)
			}
		})
	}
}

func TestMatcher_PicksMinimumDistance(t *testing.T) {
	probe := testEmbedding(t, 0)
	known := []Embedding{
		single(probe, 0.5),
		single(probe, 0.2),
		single(probe, 0.4),
	}

	res, ok := DefaultMatcher().Match(known, probe)
	if !ok {
		t.Fatal("expected a match")
	}
	if res.KnownIndex != 1 {
		t.Errorf("expected closest index 1, got %d", res.KnownIndex)
	}
}

func TestMatcher_TieGoesToLowestIndex(t *testing.T) {
	probe := testEmbedding(t, 0)
	known := []Embedding{
		single(probe, 0.8),
		single(probe, 0.25),
		single(probe, -0.25),
		single(probe, 0.25),
	}

	res, ok := DefaultMatcher().Match(known, probe)
	if !ok {
		t.Fatal("expected a match")
	}
	if res.KnownIndex != 1 {
		t.Errorf("expected first tied index 1, got %d", res.KnownIndex)
	}
}

func TestMatcher_EmptyKnownNeverMatches(t *testing.T) {
	m := NewMatcher(100)
	if _, ok := m.Match(nil, testEmbedding(t, 0)); ok {
		t.Error("empty known list must not match")
	}
	if results := m.MatchAll(nil, []Embedding{testEmbedding(t, 0), testEmbedding(t, 1)}); len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestMatcher_AllDistancesAboveToleranceYieldNoMatch(t *testing.T) {
	probe := testEmbedding(t, 0)
	known := []Embedding{shifted(probe, 0.1), shifted(probe, -0.2), shifted(probe, 0.3)}

	if _, ok := DefaultMatcher().Match(known, probe); ok {
		t.Error("expected no match when every distance exceeds the tolerance")
	}
}

func TestMatcher_MatchAllIsPermissive(t *testing.T) {
	a := testEmbedding(t, 0)
	b := testEmbedding(t, 1)
	known := []Embedding{a, b}
	probes := []Embedding{
		single(a, 0.1),
		testEmbedding(t, 5),
		single(a, 0.2),
	}

	results := DefaultMatcher().MatchAll(known, probes)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ProbeIndex != 0 || results[0].KnownIndex != 0 {
		t.Errorf("unexpected first result %+v", results[0])
	}
	if results[1].ProbeIndex != 2 || results[1].KnownIndex != 0 {
		t.Errorf("two probes should both resolve to entry 0, got %+v", results[1])
	}
}
