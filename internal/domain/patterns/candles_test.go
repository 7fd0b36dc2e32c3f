package patterns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alphastack/tradepulse/internal/domain/market"
)

func bar(i int, o, h, l, c float64) market.Bar {
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	return market.Bar{
		Timestamp: base.Add(time.Duration(i) * time.Minute),
		Open:      o, High: h, Low: l, Close: c, Volume: 1000,
	}
}

// downtrend builds n falling bars ending at the given close.
func downtrend(n int, end float64) []market.Bar {
	out := make([]market.Bar, n)
	price := end + float64(n)
	for i := range out {
		out[i] = bar(i, price, price+0.2, price-1.2, price-1)
		price--
	}
	return out
}

func uptrend(n int, end float64) []market.Bar {
	out := make([]market.Bar, n)
	price := end - float64(n)
	for i := range out {
		out[i] = bar(i, price, price+1.2, price-0.2, price+1)
		price++
	}
	return out
}

func TestDetectHammerInDowntrend(t *testing.T) {
	bars := downtrend(8, 100)
	// Long lower wick, small body near the high.
	bars = append(bars, bar(8, 99.5, 99.7, 96.0, 99.6))

	set := Detect(bars)
	assert.Equal(t, 1.0, set.Hammer)
	assert.Zero(t, set.HangingMan, "hammer shape in a downtrend is not a hanging man")
	assert.Greater(t, set.Bias(), 0.0)
}

func TestDetectShootingStarInUptrend(t *testing.T) {
	bars := uptrend(8, 100)
	// Long upper wick, small body near the low.
	bars = append(bars, bar(8, 100.4, 104.0, 100.3, 100.5))

	set := Detect(bars)
	assert.Equal(t, 1.0, set.ShootingStar)
	assert.Zero(t, set.InvertedHammer)
	assert.Less(t, set.Bias(), 0.0)
}

func TestDetectDojiAndMarubozu(t *testing.T) {
	bars := uptrend(5, 100)
	doji := Detect(append(bars, bar(5, 100, 101, 99, 100.05)))
	assert.Equal(t, 1.0, doji.Doji)

	maru := Detect(append(bars, bar(5, 100, 103.02, 99.99, 103)))
	assert.Equal(t, 1.0, maru.Marubozu)
	assert.Zero(t, maru.Doji)
}

func TestDetectEngulfing(t *testing.T) {
	t.Run("bullish", func(t *testing.T) {
		bars := []market.Bar{
			bar(0, 100, 100.5, 98.9, 99),     // red body 100->99
			bar(1, 98.8, 101.5, 98.7, 101.2), // green body engulfs it
		}
		set := Detect(bars)
		assert.Equal(t, 1.0, set.EngulfingBull)
		assert.Zero(t, set.EngulfingBear)
	})

	t.Run("bearish", func(t *testing.T) {
		bars := []market.Bar{
			bar(0, 99, 100.2, 98.9, 100),
			bar(1, 100.3, 100.4, 98.4, 98.5),
		}
		set := Detect(bars)
		assert.Equal(t, 1.0, set.EngulfingBear)
		assert.Zero(t, set.EngulfingBull)
	})
}

func TestDetectThreeSoldiersAndCrows(t *testing.T) {
	soldiers := []market.Bar{
		bar(0, 100, 101.2, 99.9, 101),
		bar(1, 101, 102.2, 100.9, 102),
		bar(2, 102, 103.2, 101.9, 103),
	}
	assert.Equal(t, 1.0, Detect(soldiers).ThreeSoldiers)

	crows := []market.Bar{
		bar(0, 103, 103.1, 101.8, 102),
		bar(1, 102, 102.1, 100.8, 101),
		bar(2, 101, 101.1, 99.8, 100),
	}
	assert.Equal(t, 1.0, Detect(crows).ThreeCrows)
}

func TestThreeSoldiersRequireSolidBodies(t *testing.T) {
	// Third bar closes a hair higher but is a doji, not a soldier.
	bars := []market.Bar{
		bar(0, 100, 101.2, 99.9, 101),
		bar(1, 101, 102.2, 100.9, 102),
		bar(2, 102, 103.0, 101.0, 102.05),
	}
	assert.Zero(t, Detect(bars).ThreeSoldiers)
}

func TestDetectEmptyAndShort(t *testing.T) {
	assert.Equal(t, Set{}, Detect(nil))
	assert.Equal(t, Set{}, Detect([]market.Bar{bar(0, 100, 101, 99, 100)}))
}

func TestBiasNeutralWhenNoDirectionalPattern(t *testing.T) {
	bars := uptrend(5, 100)
	set := Detect(append(bars, bar(5, 100, 101, 99, 100.05)))
	assert.Zero(t, set.Bias())
}
