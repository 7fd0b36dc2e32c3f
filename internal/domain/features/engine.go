package features

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/alphastack/tradepulse/internal/domain/indicators"
	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/domain/patterns"
)

// ErrInsufficientData is returned when a bar window is too short to
// compute the full vector.
var ErrInsufficientData = errors.New("features: insufficient bars")

// Config sets the lookback periods for every indicator the engine
// computes. Defaults mirror standard intraday settings.
type Config struct {
	RSIPeriod       int     `yaml:"rsi_period"`
	ATRPeriod       int     `yaml:"atr_period"`
	MACDFast        int     `yaml:"macd_fast"`
	MACDSlow        int     `yaml:"macd_slow"`
	MACDSignal      int     `yaml:"macd_signal"`
	SMAShort        int     `yaml:"sma_short"`
	SMALong         int     `yaml:"sma_long"`
	BollingerPeriod int     `yaml:"bollinger_period"`
	BollingerStdDev float64 `yaml:"bollinger_std_dev"`
	StochK          int     `yaml:"stoch_k"`
	StochD          int     `yaml:"stoch_d"`
	VolPeriod       int     `yaml:"vol_period"`
	VolumeZPeriod   int     `yaml:"volume_z_period"`
	BreakoutWindow  int     `yaml:"breakout_window"`
	CompressWindow  int     `yaml:"compress_window"`
	VWAPWindow      int     `yaml:"vwap_window"`

	// Regime thresholds.
	ChopBandWidth   float64 `yaml:"chop_band_width"`
	TrendMinSpread  float64 `yaml:"trend_min_spread"`
	ChopMaxMomentum float64 `yaml:"chop_max_momentum"`
}

// DefaultConfig returns the standard intraday feature configuration.
func DefaultConfig() Config {
	return Config{
		RSIPeriod:       14,
		ATRPeriod:       14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		SMAShort:        20,
		SMALong:         50,
		BollingerPeriod: 20,
		BollingerStdDev: 2.0,
		StochK:          14,
		StochD:          3,
		VolPeriod:       20,
		VolumeZPeriod:   20,
		BreakoutWindow:  20,
		CompressWindow:  20,
		VWAPWindow:      0, // whole window
		ChopBandWidth:   0.005,
		TrendMinSpread:  0.15,
		ChopMaxMomentum: 0.10,
	}
}

// MinBars returns the shortest window the configuration can compute a
// full vector from.
func (c Config) MinBars() int {
	min := c.MACDSlow + c.MACDSignal
	if n := c.SMALong; n > min {
		min = n
	}
	if n := c.VolPeriod + 1; n > min {
		min = n
	}
	if n := c.BreakoutWindow + 1; n > min {
		min = n
	}
	return min
}

// Engine computes feature vectors. It is stateless and safe for
// concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Compute builds the feature vector for a sanitized, ascending bar
// window. The vector is stamped with the last bar's close time so a
// caller can never see features that include future bars.
func (e *Engine) Compute(symbol string, tf market.Timeframe, bars []market.Bar) (Vector, error) {
	cfg := e.cfg
	if len(bars) < cfg.MinBars() {
		return Vector{}, fmt.Errorf("%w: %s has %d bars, need %d",
			ErrInsufficientData, symbol, len(bars), cfg.MinBars())
	}

	closes := market.Closes(bars)
	volumes := market.Volumes(bars)
	last := bars[len(bars)-1]
	asOf := last.Timestamp.Add(tf.Duration())

	v := Vector{
		Symbol:    symbol,
		AsOf:      asOf,
		Timeframe: tf,
		BarCount:  len(bars),
		Price:     last.Close,
	}

	atr := indicators.CalculateATR(bars, cfg.ATRPeriod)
	v.ATR = atr.Value
	if last.Close > 0 {
		v.ATRPct = atr.Value / last.Close * 100
	}
	v.ZeroVol = atr.IsValid && atr.Value == 0

	v.Momentum1 = indicators.CalculateROC(closes, 1).Value
	v.Momentum5 = indicators.CalculateROC(closes, 5).Value
	v.Momentum15 = indicators.CalculateROC(closes, 15).Value

	v.RSI14 = indicators.CalculateRSI(closes, cfg.RSIPeriod).Value

	macd := indicators.CalculateMACD(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	v.MACD = macd.MACD
	v.MACDSignal = macd.Signal
	v.MACDHist = macd.Histogram

	bb := indicators.CalculateBollinger(closes, cfg.BollingerPeriod, cfg.BollingerStdDev)
	v.BBWidth = bb.Width
	v.BBPosition = bb.Position

	stoch := indicators.CalculateStochastic(bars, cfg.StochK, cfg.StochD)
	v.StochK = stoch.K
	v.StochD = stoch.D

	smaShort := indicators.CalculateSMA(closes, cfg.SMAShort)
	smaLong := indicators.CalculateSMA(closes, cfg.SMALong)
	if smaShort.IsValid && smaShort.Value > 0 {
		v.SMAShortDistPct = (last.Close - smaShort.Value) / smaShort.Value * 100
	}
	if smaLong.IsValid && smaLong.Value > 0 {
		v.SMALongDistPct = (last.Close - smaLong.Value) / smaLong.Value * 100
		if smaShort.IsValid && smaShort.Value > smaLong.Value {
			v.SMACrossUp = 1
		}
		v.TrendStrength = (smaShort.Value - smaLong.Value) / smaLong.Value * 100
	}

	v.RealizedVol = indicators.CalculateRealizedVolatility(closes, cfg.VolPeriod).Value
	v.VolumeZ = indicators.CalculateZScore(volumes, cfg.VolumeZPeriod).Value
	v.RelVolume = relativeVolume(volumes, cfg.VolumeZPeriod)

	if vwap := indicators.CalculateVWAP(bars, cfg.VWAPWindow); vwap.IsValid {
		v.VWAP = vwap.Value
		if vwap.Value > 0 {
			v.VWAPDistPct = (last.Close - vwap.Value) / vwap.Value * 100
		}
	}

	v.BreakoutPct, v.BreakdownPct = structureBreaks(bars, cfg.BreakoutWindow)
	v.RangeCompression = rangeCompression(bars, cfg.CompressWindow)
	if prev := bars[len(bars)-2].Close; prev > 0 {
		v.GapPct = (last.Open - prev) / prev * 100
	}

	v.RegimeTrend, v.RegimeChop = e.classifyRegime(v)

	v.Patterns = patterns.Detect(bars)
	v.PatternBias = v.Patterns.Bias()

	e.timeFeatures(&v, asOf)
	return v, nil
}

// classifyRegime derives coarse regime flags from already-computed
// features. Chop wins when both fire.
func (e *Engine) classifyRegime(v Vector) (trend, chop float64) {
	if v.BBWidth < e.cfg.ChopBandWidth && math.Abs(v.Momentum15) < e.cfg.ChopMaxMomentum {
		return 0, 1
	}
	if math.Abs(v.TrendStrength) >= e.cfg.TrendMinSpread {
		return 1, 0
	}
	return 0, 0
}

func (e *Engine) timeFeatures(v *Vector, asOf time.Time) {
	et := asOf.In(market.Eastern())
	hourFrac := float64(et.Hour()) + float64(et.Minute())/60

	v.HourSin = math.Sin(2 * math.Pi * hourFrac / 24)
	v.HourCos = math.Cos(2 * math.Pi * hourFrac / 24)
	v.DowSin = math.Sin(2 * math.Pi * float64(et.Weekday()) / 7)
	v.DowCos = math.Cos(2 * math.Pi * float64(et.Weekday()) / 7)

	switch market.Session(asOf) {
	case market.PhaseOpening:
		v.OpeningHour = 1
	case market.PhaseMidday:
		v.MiddayHour = 1
	case market.PhaseClosing:
		v.ClosingHour = 1
	}
}

// relativeVolume compares the latest bar's volume to the mean of the
// preceding window.
func relativeVolume(volumes []float64, window int) float64 {
	if len(volumes) < window+1 {
		return 1
	}
	mean := 0.0
	for _, vol := range volumes[len(volumes)-1-window : len(volumes)-1] {
		mean += vol
	}
	mean /= float64(window)
	if mean == 0 {
		return 1
	}
	return volumes[len(volumes)-1] / mean
}

// structureBreaks measures how far the latest close sits beyond the
// prior window's extremes, in percent. At most one side is non-zero.
func structureBreaks(bars []market.Bar, window int) (breakout, breakdown float64) {
	if len(bars) < window+1 {
		return 0, 0
	}
	prior := bars[len(bars)-1-window : len(bars)-1]
	hi, lo := prior[0].High, prior[0].Low
	for _, b := range prior[1:] {
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
	}

	lastClose := bars[len(bars)-1].Close
	if hi > 0 && lastClose > hi {
		breakout = (lastClose - hi) / hi * 100
	}
	if lo > 0 && lastClose < lo {
		breakdown = (lo - lastClose) / lo * 100
	}
	return breakout, breakdown
}

// rangeCompression is the ratio of recent average bar range to the
// window average. Below 1 means the tape is coiling.
func rangeCompression(bars []market.Bar, window int) float64 {
	const recent = 5
	if len(bars) < window || window <= recent {
		return 1
	}

	avg := func(bs []market.Bar) float64 {
		sum := 0.0
		for _, b := range bs {
			sum += b.Range()
		}
		return sum / float64(len(bs))
	}

	wide := avg(bars[len(bars)-window:])
	if wide == 0 {
		return 1
	}
	return avg(bars[len(bars)-recent:]) / wide
}
