package facematch

import (
	"math"

	"github.com/kozaktomas/attendance/internal/constants"
)

// MatchResult is the resolution of one probe to one known embedding.
type MatchResult struct {
	ProbeIndex int     `json:"probe_index"`
	KnownIndex int     `json:"known_index"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// Matcher resolves probes against known embeddings under a distance tolerance.
type Matcher struct {
	Tolerance float64
}

// NewMatcher creates a matcher. A non-positive or oversized tolerance is kept
// as is; it only makes matching degenerate.
func NewMatcher(tolerance float64) *Matcher {
	return &Matcher{Tolerance: tolerance}
}

// DefaultMatcher returns a matcher with the default tolerance of 0.6.
func DefaultMatcher() *Matcher {
	return NewMatcher(constants.DefaultTolerance)
}

// Match finds the known embedding closest to probe among those strictly closer
// than the tolerance. Ties go to the lowest index. An empty known list never matches.
func (m *Matcher) Match(known []Embedding, probe Embedding) (MatchResult, bool) {
	best := -1
	bestDist := math.Inf(1)

	for i := range known {
		d := EuclideanDistance(known[i], probe)
		if d < m.Tolerance && d < bestDist {
			best = i
			bestDist = d
		}
	}

	if best < 0 {
		return MatchResult{}, false
	}
	return MatchResult{
		KnownIndex: best,
		Distance:   bestDist,
		Confidence: Confidence(bestDist),
	}, true
}

// MatchAll matches every probe independently, in probe order.
// Probes do not consume known entries: two probes may resolve to the same one.
func (m *Matcher) MatchAll(known []Embedding, probes []Embedding) []MatchResult {
	var results []MatchResult
	for i, probe := range probes {
		res, ok := m.Match(known, probe)
		if !ok {
			continue
		}
		res.ProbeIndex = i
		results = append(results, res)
	}
	return results
}
