// Package scoring converts feature vectors into ranked trade
// candidates. Two scorers exist, a transparent rule table and a
// trained logistic model, blended with automatic fallback to rules
// when no healthy model artifact is loaded.
package scoring

import (
	"time"

	"github.com/alphastack/tradepulse/internal/domain/features"
	"github.com/alphastack/tradepulse/internal/domain/trading"
)

// Source labels which scorer produced a result.
type Source string

const (
	SourceRules   Source = "rules"
	SourceModel   Source = "model"
	SourceBlended Source = "blended"
)

// Result is the scored view of one candidate.
type Result struct {
	Symbol     string       `json:"symbol"`
	Score      float64      `json:"score"` // 0..1
	Side       trading.Side `json:"side"`
	Confidence float64      `json:"confidence"` // 0..1
	Source     Source       `json:"source"`
	Timestamp  time.Time    `json:"timestamp"`

	// Component contributions for attribution, keyed by rule or
	// feature name.
	Breakdown map[string]float64 `json:"breakdown,omitempty"`

	// ThesisTags name the setups that fired, for display and logs.
	ThesisTags []string `json:"thesis_tags,omitempty"`
}

// Scorer scores a single feature vector.
type Scorer interface {
	Score(v features.Vector, mode trading.Mode) Result
	Name() Source
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
