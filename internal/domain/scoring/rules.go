package scoring

import (
	"math"

	"github.com/alphastack/tradepulse/internal/domain/features"
	"github.com/alphastack/tradepulse/internal/domain/trading"
)

// RuleWeights is the point budget for each rule on the 10-point raw
// scale. The final score divides by the total.
type RuleWeights struct {
	Momentum    float64 `yaml:"momentum"`
	RSIZone     float64 `yaml:"rsi_zone"`
	VolumeSurge float64 `yaml:"volume_surge"`
	Breakout    float64 `yaml:"breakout"`
	VWAPSide    float64 `yaml:"vwap_side"`
	TrendAlign  float64 `yaml:"trend_align"`
	Pattern     float64 `yaml:"pattern"`
	Compression float64 `yaml:"compression"`
}

// DefaultRuleWeights returns the standard 10-point budget.
func DefaultRuleWeights() RuleWeights {
	return RuleWeights{
		Momentum:    2.5,
		RSIZone:     1.5,
		VolumeSurge: 1.5,
		Breakout:    1.5,
		VWAPSide:    1.0,
		TrendAlign:  1.0,
		Pattern:     0.5,
		Compression: 0.5,
	}
}

func (w RuleWeights) total() float64 {
	return w.Momentum + w.RSIZone + w.VolumeSurge + w.Breakout +
		w.VWAPSide + w.TrendAlign + w.Pattern + w.Compression
}

// RuleScorer is the transparent weight-table scorer. It is always
// available and serves as the fallback when no model is loaded.
type RuleScorer struct {
	weights RuleWeights
}

// NewRuleScorer creates a RuleScorer. Zero weights fall back to the
// defaults.
func NewRuleScorer(weights RuleWeights) *RuleScorer {
	if weights.total() == 0 {
		weights = DefaultRuleWeights()
	}
	return &RuleScorer{weights: weights}
}

func (s *RuleScorer) Name() Source { return SourceRules }

// Score applies the rule table to one vector. A chop regime exits
// early with a near-zero score since mean-reverting tape invalidates
// every directional rule below.
func (s *RuleScorer) Score(v features.Vector, mode trading.Mode) Result {
	result := Result{
		Symbol:    v.Symbol,
		Side:      directionOf(v),
		Source:    SourceRules,
		Timestamp: v.AsOf,
		Breakdown: make(map[string]float64),
	}

	if v.RegimeChop == 1 {
		result.Score = 0
		result.Confidence = 0.2
		result.ThesisTags = append(result.ThesisTags, "chop_regime")
		result.Breakdown["chop_exit"] = 0
		return result
	}

	w := s.weights
	dir := 1.0
	if result.Side == trading.SideShort {
		dir = -1
	}

	points := 0.0
	add := func(name string, pts float64, tag string) {
		if pts <= 0 {
			return
		}
		points += pts
		result.Breakdown[name] = pts
		if tag != "" {
			result.ThesisTags = append(result.ThesisTags, tag)
		}
	}

	// Momentum alignment across lookbacks, scaled by magnitude.
	m5, m15 := dir*v.Momentum5, dir*v.Momentum15
	if m5 > 0 && m15 > 0 {
		mag := clamp01((m5 + m15) / 1.0)
		pts := w.Momentum * mag
		if mode == trading.ModeAggressive {
			pts = math.Min(w.Momentum, pts*1.2)
		}
		add("momentum", pts, "momentum_aligned")
	}

	// RSI sweet spot, room to run in either direction.
	switch {
	case v.RSI14 >= 40 && v.RSI14 <= 60:
		add("rsi_zone", w.RSIZone, "rsi_sweet_spot")
	case v.RSI14 >= 30 && v.RSI14 <= 70:
		add("rsi_zone", w.RSIZone*0.5, "")
	}

	// Participation confirms the move.
	switch {
	case v.VolumeZ >= 2:
		add("volume_surge", w.VolumeSurge, "volume_surge")
	case v.VolumeZ >= 1:
		add("volume_surge", w.VolumeSurge*0.5, "")
	}

	// Structure break in trade direction.
	brk := v.BreakoutPct
	tag := "breakout"
	if result.Side == trading.SideShort {
		brk = v.BreakdownPct
		tag = "breakdown"
	}
	if brk > 0 {
		add("breakout", w.Breakout*clamp01(brk/0.5), tag)
	}

	// Price on the right side of VWAP.
	if dir*v.VWAPDistPct > 0 {
		add("vwap_side", w.VWAPSide, "")
	}

	// Moving average structure agrees.
	if (result.Side == trading.SideLong && v.SMACrossUp == 1) ||
		(result.Side == trading.SideShort && v.SMACrossUp == 0) {
		add("trend_align", w.TrendAlign, "trend_aligned")
	}

	// Candlestick confirmation.
	if bias := dir * v.PatternBias; bias > 0 {
		add("pattern", w.Pattern*clamp01(bias), "pattern_confirm")
	}

	// Coiled range before the move.
	if v.RangeCompression < 0.7 && brk > 0 {
		add("compression", w.Compression, "compression_break")
	}

	result.Score = clamp01(points / w.total())
	result.Confidence = s.confidence(v, result.Score)
	return result
}

// confidence blends regime conviction and participation on top of the
// raw score.
func (s *RuleScorer) confidence(v features.Vector, score float64) float64 {
	c := 0.3 + 0.4*score
	if v.RegimeTrend == 1 {
		c += 0.15
	}
	if v.VolumeZ >= 1 {
		c += 0.1
	}
	if v.ZeroVol {
		c = 0
	}
	return clamp01(c)
}

// directionOf picks the trade side from dominant momentum.
func directionOf(v features.Vector) trading.Side {
	if v.Momentum15 < 0 {
		return trading.SideShort
	}
	return trading.SideLong
}
