// Package features turns sanitized bar series into the deterministic
// feature vectors consumed by the scoring and risk layers.
package features

import (
	"time"

	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/domain/patterns"
)

// Vector is an immutable snapshot of everything computed from one bar
// window. The same window always produces the same vector.
type Vector struct {
	Symbol    string           `json:"symbol"`
	AsOf      time.Time        `json:"as_of"`
	Timeframe market.Timeframe `json:"timeframe"`
	BarCount  int              `json:"bar_count"`

	// Price context kept in absolute terms for risk sizing.
	Price float64 `json:"price"`
	ATR   float64 `json:"atr"`
	VWAP  float64 `json:"vwap"`

	// ZeroVol marks a series whose true range collapsed to nothing.
	// Such symbols are excluded from the universe rather than scored.
	ZeroVol bool `json:"zero_vol"`

	// Momentum, percent changes over trailing bars.
	Momentum1  float64 `json:"momentum_1"`
	Momentum5  float64 `json:"momentum_5"`
	Momentum15 float64 `json:"momentum_15"`

	// Oscillators and bands.
	RSI14      float64 `json:"rsi_14"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`
	BBWidth    float64 `json:"bb_width"`
	BBPosition float64 `json:"bb_position"`
	StochK     float64 `json:"stoch_k"`
	StochD     float64 `json:"stoch_d"`

	// Trend structure.
	SMAShortDistPct float64 `json:"sma_short_dist_pct"`
	SMALongDistPct  float64 `json:"sma_long_dist_pct"`
	SMACrossUp      float64 `json:"sma_cross_up"` // 1 when short SMA above long
	TrendStrength   float64 `json:"trend_strength"`

	// Volatility and volume.
	ATRPct      float64 `json:"atr_pct"`
	RealizedVol float64 `json:"realized_vol"`
	VolumeZ     float64 `json:"volume_z"`
	RelVolume   float64 `json:"rel_volume"`
	VWAPDistPct float64 `json:"vwap_dist_pct"`

	// Structure breaks.
	BreakoutPct      float64 `json:"breakout_pct"`
	BreakdownPct     float64 `json:"breakdown_pct"`
	RangeCompression float64 `json:"range_compression"`
	GapPct           float64 `json:"gap_pct"`

	// Regime flags.
	RegimeTrend float64 `json:"regime_trend"`
	RegimeChop  float64 `json:"regime_chop"`

	// Candlestick formations.
	Patterns    patterns.Set `json:"patterns"`
	PatternBias float64      `json:"pattern_bias"`

	// Cyclical time encoding in Eastern market time.
	HourSin     float64 `json:"hour_sin"`
	HourCos     float64 `json:"hour_cos"`
	DowSin      float64 `json:"dow_sin"`
	DowCos      float64 `json:"dow_cos"`
	OpeningHour float64 `json:"opening_hour"`
	MiddayHour  float64 `json:"midday_hour"`
	ClosingHour float64 `json:"closing_hour"`
}

// modelFeatureNames is the canonical ordering of the model input
// schema. Names, Values and trained artifacts all depend on it, so
// entries are append-only.
var modelFeatureNames = []string{
	"momentum_1",
	"momentum_5",
	"momentum_15",
	"rsi_14",
	"macd_hist",
	"bb_width",
	"bb_position",
	"stoch_k",
	"stoch_d",
	"sma_short_dist_pct",
	"sma_long_dist_pct",
	"sma_cross_up",
	"trend_strength",
	"atr_pct",
	"realized_vol",
	"volume_z",
	"rel_volume",
	"vwap_dist_pct",
	"breakout_pct",
	"breakdown_pct",
	"range_compression",
	"gap_pct",
	"regime_trend",
	"regime_chop",
	"pattern_bias",
	"engulfing_bull",
	"engulfing_bear",
	"hammer",
	"shooting_star",
	"doji",
	"hour_sin",
	"hour_cos",
	"dow_sin",
	"dow_cos",
	"opening_hour",
	"midday_hour",
	"closing_hour",
}

// ModelFeatureNames returns the canonical model input schema.
func ModelFeatureNames() []string {
	out := make([]string, len(modelFeatureNames))
	copy(out, modelFeatureNames)
	return out
}

// ModelValues returns the vector's numeric features in canonical
// schema order, aligned with ModelFeatureNames.
func (v Vector) ModelValues() []float64 {
	return []float64{
		v.Momentum1,
		v.Momentum5,
		v.Momentum15,
		v.RSI14,
		v.MACDHist,
		v.BBWidth,
		v.BBPosition,
		v.StochK,
		v.StochD,
		v.SMAShortDistPct,
		v.SMALongDistPct,
		v.SMACrossUp,
		v.TrendStrength,
		v.ATRPct,
		v.RealizedVol,
		v.VolumeZ,
		v.RelVolume,
		v.VWAPDistPct,
		v.BreakoutPct,
		v.BreakdownPct,
		v.RangeCompression,
		v.GapPct,
		v.RegimeTrend,
		v.RegimeChop,
		v.PatternBias,
		v.Patterns.EngulfingBull,
		v.Patterns.EngulfingBear,
		v.Patterns.Hammer,
		v.Patterns.ShootingStar,
		v.Patterns.Doji,
		v.HourSin,
		v.HourCos,
		v.DowSin,
		v.DowCos,
		v.OpeningHour,
		v.MiddayHour,
		v.ClosingHour,
	}
}
