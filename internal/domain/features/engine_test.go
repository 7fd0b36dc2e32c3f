package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphastack/tradepulse/internal/domain/market"
)

// synthBars builds a deterministic trending series with mild noise.
func synthBars(n int, start, drift float64) []market.Bar {
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC) // 10:30 ET
	out := make([]market.Bar, n)
	price := start
	for i := range out {
		wobble := 0.3 * math.Sin(float64(i)/3)
		open := price
		price += drift + wobble
		hi := math.Max(open, price) + 0.2
		lo := math.Min(open, price) - 0.2
		out[i] = market.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      open, High: hi, Low: lo, Close: price,
			Volume: 1000 + 10*float64(i%7),
		}
	}
	return out
}

func flatSeries(n int, price float64) []market.Bar {
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	out := make([]market.Bar, n)
	for i := range out {
		out[i] = market.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      price, High: price, Low: price, Close: price,
			Volume: 1000,
		}
	}
	return out
}

func TestComputeRejectsShortWindow(t *testing.T) {
	eng := NewEngine(DefaultConfig())
	_, err := eng.Compute("AAPL", market.Timeframe1m, synthBars(10, 100, 0.1))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestComputeIsDeterministic(t *testing.T) {
	eng := NewEngine(DefaultConfig())
	bars := synthBars(80, 100, 0.1)

	v1, err := eng.Compute("AAPL", market.Timeframe1m, bars)
	require.NoError(t, err)
	v2, err := eng.Compute("AAPL", market.Timeframe1m, bars)
	require.NoError(t, err)

	assert.Equal(t, v1, v2, "same window must yield the identical vector")
	assert.Equal(t, v1.ModelValues(), v2.ModelValues())
}

func TestComputeFlatSeriesFlagsZeroVol(t *testing.T) {
	eng := NewEngine(DefaultConfig())
	v, err := eng.Compute("DEAD", market.Timeframe1m, flatSeries(80, 50))
	require.NoError(t, err)

	assert.True(t, v.ZeroVol)
	assert.Zero(t, v.ATR)
	assert.Zero(t, v.ATRPct)
	assert.InDelta(t, 50.0, v.RSI14, 1e-9, "flat series pins RSI to neutral")
	assert.Equal(t, 1.0, v.RegimeChop)
}

func TestComputeTrendingSeries(t *testing.T) {
	eng := NewEngine(DefaultConfig())
	bars := synthBars(80, 100, 0.2)

	v, err := eng.Compute("AAPL", market.Timeframe1m, bars)
	require.NoError(t, err)

	assert.False(t, v.ZeroVol)
	assert.Greater(t, v.ATR, 0.0)
	assert.Greater(t, v.Momentum15, 0.0)
	assert.Greater(t, v.RSI14, 50.0)
	assert.Equal(t, 1.0, v.SMACrossUp, "rising series keeps short SMA above long")
	assert.Equal(t, 1.0, v.RegimeTrend)
	assert.Zero(t, v.RegimeChop)
	assert.Equal(t, "AAPL", v.Symbol)
	assert.Equal(t, 80, v.BarCount)
}

func TestComputeStampsAsOfAfterLastBar(t *testing.T) {
	eng := NewEngine(DefaultConfig())
	bars := synthBars(80, 100, 0.1)

	v, err := eng.Compute("AAPL", market.Timeframe1m, bars)
	require.NoError(t, err)

	lastOpen := bars[len(bars)-1].Timestamp
	assert.Equal(t, lastOpen.Add(time.Minute), v.AsOf,
		"vector is stamped with the close time of its last bar")
}

func TestComputeNoLookahead(t *testing.T) {
	eng := NewEngine(DefaultConfig())
	bars := synthBars(120, 100, 0.1)

	// The vector at bar 80 must not change when later bars exist.
	v80, err := eng.Compute("AAPL", market.Timeframe1m, bars[:80])
	require.NoError(t, err)

	spiked := make([]market.Bar, len(bars))
	copy(spiked, bars)
	spiked[100].Close *= 2
	spiked[100].High *= 2

	again, err := eng.Compute("AAPL", market.Timeframe1m, spiked[:80])
	require.NoError(t, err)
	assert.Equal(t, v80, again)
}

func TestComputeTimeFeatures(t *testing.T) {
	eng := NewEngine(DefaultConfig())
	bars := synthBars(80, 100, 0.1) // ends 11:49 ET close, midday

	v, err := eng.Compute("AAPL", market.Timeframe1m, bars)
	require.NoError(t, err)

	assert.Equal(t, 1.0, v.MiddayHour)
	assert.Zero(t, v.OpeningHour)
	assert.Zero(t, v.ClosingHour)
	assert.InDelta(t, 1.0, v.HourSin*v.HourSin+v.HourCos*v.HourCos, 1e-9)
}

func TestModelValuesMatchSchema(t *testing.T) {
	eng := NewEngine(DefaultConfig())
	v, err := eng.Compute("AAPL", market.Timeframe1m, synthBars(80, 100, 0.1))
	require.NoError(t, err)

	names := ModelFeatureNames()
	values := v.ModelValues()
	require.Equal(t, len(names), len(values), "schema and values must stay aligned")

	for i, val := range values {
		assert.False(t, math.IsNaN(val), "feature %s is NaN", names[i])
		assert.False(t, math.IsInf(val, 0), "feature %s is infinite", names[i])
	}
}
