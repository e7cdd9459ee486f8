// Package profile defines the preference profile document and the learning
// phase function. The profile is only ever mutated by the learning cycle.
package profile

import "math"

// DefaultPath is where the profile document lives in the repository.
const DefaultPath = "user_preferences.json"

// Learning phase thresholds in cumulative signal count.
const (
	phase1MinSignals = 5
	phase2MinSignals = 15
	phase3MinSignals = 30
)

// Serendipity bounds for phase 3.
const (
	MinSerendipity = 0.1
	MaxSerendipity = 0.2
)

// DistributionTolerance is the accepted rounding slack when checking that a
// category distribution sums to 1.0.
const DistributionTolerance = 1e-6

// Profile is the personalization configuration derived from signal history.
type Profile struct {
	BoostedKeywords      []string           `json:"boosted_keywords"`
	SuppressedKeywords   []string           `json:"suppressed_keywords"`
	PreferredSources     []string           `json:"preferred_sources"`
	CategoryDistribution map[string]float64 `json:"category_distribution"`
	SerendipityRatio     float64            `json:"serendipity_ratio"`
	LearningPhase        int                `json:"learning_phase"`
	LastUpdated          string             `json:"last_updated"`
}

// Default returns the pass-through profile used before any learning has
// happened and as the base for phase-gated fields.
func Default() *Profile {
	return &Profile{
		BoostedKeywords:    []string{},
		SuppressedKeywords: []string{},
		PreferredSources:   []string{},
		CategoryDistribution: map[string]float64{
			"ai":       0.4,
			"finance":  0.2,
			"politics": 0.2,
			"other":    0.2,
		},
		SerendipityRatio: 0,
		LearningPhase:    0,
	}
}

// PhaseForCount maps cumulative signal count to a learning phase. It is a
// pure function of n: the phase is recomputed from scratch every cycle, never
// incremented from the previous value.
func PhaseForCount(n int) int {
	switch {
	case n < phase1MinSignals:
		return 0
	case n < phase2MinSignals:
		return 1
	case n < phase3MinSignals:
		return 2
	default:
		return 3
	}
}

// NormalizeDistribution scales dist so its values sum to 1.0. An empty or
// non-positive distribution returns nil, meaning "use the default".
func NormalizeDistribution(dist map[string]float64) map[string]float64 {
	sum := 0.0
	for _, v := range dist {
		if v > 0 {
			sum += v
		}
	}
	if sum <= 0 {
		return nil
	}
	out := make(map[string]float64, len(dist))
	for k, v := range dist {
		if v < 0 {
			v = 0
		}
		out[k] = v / sum
	}
	return out
}

// ClampSerendipity clamps x to the phase-3 serendipity band [0.1, 0.2].
func ClampSerendipity(x float64) float64 {
	return math.Min(MaxSerendipity, math.Max(MinSerendipity, x))
}
