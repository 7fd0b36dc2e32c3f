// Package indicators implements the technical indicator math used by
// the feature engine. Every calculator returns a result struct that
// carries the computed value together with validity metadata so
// callers can distinguish "not enough data" from a genuine zero.
package indicators

import (
	"math"

	"github.com/alphastack/tradepulse/internal/domain/market"
)

// SMAResult represents the result of a simple moving average calculation
type SMAResult struct {
	Value     float64 `json:"value"`
	Period    int     `json:"period"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateSMA calculates the simple moving average over the trailing period
func CalculateSMA(values []float64, period int) SMAResult {
	result := SMAResult{Period: period, DataCount: len(values)}
	if period <= 0 || len(values) < period {
		return result
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	result.Value = sum / float64(period)
	result.IsValid = true
	return result
}

// EMAResult represents the result of an exponential moving average calculation
type EMAResult struct {
	Value     float64 `json:"value"`
	Period    int     `json:"period"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateEMA calculates the exponential moving average with smoothing
// 2/(period+1), seeded from the SMA of the first period values.
func CalculateEMA(values []float64, period int) EMAResult {
	result := EMAResult{Period: period, DataCount: len(values)}
	if period <= 0 || len(values) < period {
		return result
	}

	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	ema := seed / float64(period)

	alpha := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		ema = alpha*v + (1-alpha)*ema
	}

	result.Value = ema
	result.IsValid = true
	return result
}

// RSIResult represents the result of RSI calculation
type RSIResult struct {
	Value     float64 `json:"value"`
	Period    int     `json:"period"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateRSI calculates the Wilder-smoothed Relative Strength Index.
// A series with no losses returns 100, a series with no gains returns
// 0, and a perfectly flat series returns the neutral 50.
func CalculateRSI(closes []float64, period int) RSIResult {
	result := RSIResult{Value: 50.0, Period: period, DataCount: len(closes)}
	if period <= 0 || len(closes) < period+1 {
		return result
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Wilder's smoothing for the remainder of the series
	alpha := 1.0 / float64(period)
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = avgGain*(1-alpha) + gain*alpha
		avgLoss = avgLoss*(1-alpha) + loss*alpha
	}

	result.IsValid = true
	switch {
	case avgGain == 0 && avgLoss == 0:
		result.Value = 50
	case avgLoss == 0:
		result.Value = 100
	default:
		rs := avgGain / avgLoss
		result.Value = 100 - 100/(1+rs)
	}
	return result
}

// MACDResult represents the MACD line, signal line and histogram
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateMACD calculates MACD(fast, slow, signal) over closes
func CalculateMACD(closes []float64, fast, slow, signal int) MACDResult {
	result := MACDResult{DataCount: len(closes)}
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal {
		return result
	}

	// Build the MACD series bar by bar so the signal line can be
	// smoothed over it.
	macdSeries := make([]float64, 0, len(closes)-slow+1)
	for i := slow; i <= len(closes); i++ {
		f := CalculateEMA(closes[:i], fast)
		s := CalculateEMA(closes[:i], slow)
		if !f.IsValid || !s.IsValid {
			return result
		}
		macdSeries = append(macdSeries, f.Value-s.Value)
	}

	sig := CalculateEMA(macdSeries, signal)
	if !sig.IsValid {
		return result
	}

	result.MACD = macdSeries[len(macdSeries)-1]
	result.Signal = sig.Value
	result.Histogram = result.MACD - result.Signal
	result.IsValid = true
	return result
}

// BollingerResult represents Bollinger band levels plus derived width
// and position metrics
type BollingerResult struct {
	Upper     float64 `json:"upper"`
	Middle    float64 `json:"middle"`
	Lower     float64 `json:"lower"`
	Width     float64 `json:"width"`    // (upper-lower)/middle
	Position  float64 `json:"position"` // 0 at lower band, 1 at upper
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateBollinger calculates period-bar bands at stdDev standard deviations
func CalculateBollinger(closes []float64, period int, stdDev float64) BollingerResult {
	result := BollingerResult{DataCount: len(closes)}
	if period <= 1 || len(closes) < period {
		return result
	}

	window := closes[len(closes)-period:]
	mid := CalculateSMA(closes, period).Value

	variance := 0.0
	for _, v := range window {
		d := v - mid
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(period))

	result.Middle = mid
	result.Upper = mid + stdDev*sd
	result.Lower = mid - stdDev*sd
	if mid != 0 {
		result.Width = (result.Upper - result.Lower) / mid
	}
	if band := result.Upper - result.Lower; band > 0 {
		result.Position = (closes[len(closes)-1] - result.Lower) / band
	} else {
		result.Position = 0.5
	}
	result.IsValid = true
	return result
}

// StochasticResult represents the %K and %D oscillator values
type StochasticResult struct {
	K         float64 `json:"k"`
	D         float64 `json:"d"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateStochastic calculates the fast stochastic oscillator with a
// dPeriod SMA of %K as %D
func CalculateStochastic(bars []market.Bar, kPeriod, dPeriod int) StochasticResult {
	result := StochasticResult{DataCount: len(bars)}
	if kPeriod <= 0 || dPeriod <= 0 || len(bars) < kPeriod+dPeriod-1 {
		return result
	}

	kAt := func(end int) float64 {
		window := bars[end-kPeriod : end]
		hi, lo := window[0].High, window[0].Low
		for _, b := range window[1:] {
			if b.High > hi {
				hi = b.High
			}
			if b.Low < lo {
				lo = b.Low
			}
		}
		if hi == lo {
			return 50
		}
		return 100 * (bars[end-1].Close - lo) / (hi - lo)
	}

	kSum := 0.0
	for i := 0; i < dPeriod; i++ {
		k := kAt(len(bars) - i)
		kSum += k
		if i == 0 {
			result.K = k
		}
	}
	result.D = kSum / float64(dPeriod)
	result.IsValid = true
	return result
}

// ATRResult represents the average true range. A valid zero value
// means the series is genuinely flat, which callers treat as
// untradeable rather than as missing data.
type ATRResult struct {
	Value     float64 `json:"value"`
	Period    int     `json:"period"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateATR calculates the Wilder-smoothed average true range
func CalculateATR(bars []market.Bar, period int) ATRResult {
	result := ATRResult{Period: period, DataCount: len(bars)}
	if period <= 0 || len(bars) < period+1 {
		return result
	}

	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		trs = append(trs, trueRange(bars[i], bars[i-1]))
	}

	atr := 0.0
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)

	alpha := 1.0 / float64(period)
	for _, tr := range trs[period:] {
		atr = atr*(1-alpha) + tr*alpha
	}

	result.Value = atr
	result.IsValid = true
	return result
}

func trueRange(cur, prev market.Bar) float64 {
	tr := cur.High - cur.Low
	if d := math.Abs(cur.High - prev.Close); d > tr {
		tr = d
	}
	if d := math.Abs(cur.Low - prev.Close); d > tr {
		tr = d
	}
	return tr
}

// VWAPResult represents the volume weighted average price over a window
type VWAPResult struct {
	Value     float64 `json:"value"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateVWAP calculates the typical-price VWAP over the trailing
// window bars. A window of 0 uses the whole series. Zero total volume
// is invalid.
func CalculateVWAP(bars []market.Bar, window int) VWAPResult {
	result := VWAPResult{DataCount: len(bars)}
	if len(bars) == 0 {
		return result
	}
	if window <= 0 || window > len(bars) {
		window = len(bars)
	}

	pv, vol := 0.0, 0.0
	for _, b := range bars[len(bars)-window:] {
		typical := (b.High + b.Low + b.Close) / 3
		pv += typical * b.Volume
		vol += b.Volume
	}
	if vol == 0 {
		return result
	}
	result.Value = pv / vol
	result.IsValid = true
	return result
}

// ROCResult represents a rate-of-change calculation in percent
type ROCResult struct {
	Value     float64 `json:"value"`
	Period    int     `json:"period"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateROC calculates the percent change over period bars
func CalculateROC(values []float64, period int) ROCResult {
	result := ROCResult{Period: period, DataCount: len(values)}
	if period <= 0 || len(values) < period+1 {
		return result
	}
	base := values[len(values)-1-period]
	if base == 0 {
		return result
	}
	result.Value = (values[len(values)-1] - base) / base * 100
	result.IsValid = true
	return result
}

// VolatilityResult represents the standard deviation of bar returns
type VolatilityResult struct {
	Value     float64 `json:"value"`
	Period    int     `json:"period"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateRealizedVolatility calculates the population standard
// deviation of simple returns over the trailing period bars
func CalculateRealizedVolatility(closes []float64, period int) VolatilityResult {
	result := VolatilityResult{Period: period, DataCount: len(closes)}
	if period <= 1 || len(closes) < period+1 {
		return result
	}

	rets := make([]float64, 0, period)
	for i := len(closes) - period; i < len(closes); i++ {
		if closes[i-1] == 0 {
			return result
		}
		rets = append(rets, closes[i]/closes[i-1]-1)
	}

	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))

	variance := 0.0
	for _, r := range rets {
		d := r - mean
		variance += d * d
	}
	result.Value = math.Sqrt(variance / float64(len(rets)))
	result.IsValid = true
	return result
}

// ZScoreResult represents a z-score of the latest value against its
// trailing window
type ZScoreResult struct {
	Value     float64 `json:"value"`
	Period    int     `json:"period"`
	IsValid   bool    `json:"is_valid"`
	DataCount int     `json:"data_count"`
}

// CalculateZScore calculates how many standard deviations the latest
// value sits from the mean of the preceding period values. A
// zero-variance window yields a valid zero.
func CalculateZScore(values []float64, period int) ZScoreResult {
	result := ZScoreResult{Period: period, DataCount: len(values)}
	if period <= 1 || len(values) < period+1 {
		return result
	}

	window := values[len(values)-1-period : len(values)-1]
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(period)

	variance := 0.0
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(period))

	result.IsValid = true
	if sd == 0 {
		result.Value = 0
		return result
	}
	result.Value = (values[len(values)-1] - mean) / sd
	return result
}
