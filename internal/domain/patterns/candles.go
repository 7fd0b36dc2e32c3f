// Package patterns detects candlestick formations on sanitized bar
// series. Detection is purely geometric and looks only at the trailing
// bars of the window it is given.
package patterns

import "github.com/alphastack/tradepulse/internal/domain/market"

// Set flags every detected formation on the latest bar(s) of a window.
// Flags are float64 0/1 so they can feed directly into model feature
// vectors without conversion.
type Set struct {
	Hammer         float64 `json:"hammer"`
	InvertedHammer float64 `json:"inverted_hammer"`
	ShootingStar   float64 `json:"shooting_star"`
	HangingMan     float64 `json:"hanging_man"`
	Doji           float64 `json:"doji"`
	SpinningTop    float64 `json:"spinning_top"`
	Marubozu       float64 `json:"marubozu"`
	EngulfingBull  float64 `json:"engulfing_bull"`
	EngulfingBear  float64 `json:"engulfing_bear"`
	ThreeSoldiers  float64 `json:"three_soldiers"`
	ThreeCrows     float64 `json:"three_crows"`
}

// Bias returns a directional score in [-1, 1] summing bullish
// formations against bearish ones.
func (s Set) Bias() float64 {
	bull := s.Hammer + s.InvertedHammer + s.EngulfingBull + s.ThreeSoldiers
	bear := s.ShootingStar + s.HangingMan + s.EngulfingBear + s.ThreeCrows
	total := bull + bear
	if total == 0 {
		return 0
	}
	return (bull - bear) / total
}

const (
	// dojiBodyRatio bounds body/range for a doji.
	dojiBodyRatio = 0.1
	// wickDominance is the minimum wick/body multiple for
	// hammer-family formations.
	wickDominance = 2.0
	// marubozuBodyRatio is the minimum body/range for a marubozu.
	marubozuBodyRatio = 0.95
	// soldierBodyRatio is the minimum body/range for each bar of a
	// three-soldiers or three-crows run, keeping dojis out.
	soldierBodyRatio = 0.3
	// wickSlack absorbs float rounding when a wick and a body come out
	// geometrically equal from different subtractions.
	wickSlack = 1e-9
	// trendLookback is how many bars establish the prior trend for
	// context-dependent formations.
	trendLookback = 5
)

// Detect scans the trailing bars of a window and returns the set of
// formations present. Fewer than two bars yields an empty set.
func Detect(bars []market.Bar) Set {
	var set Set
	if len(bars) < 2 {
		return set
	}

	last := bars[len(bars)-1]
	prev := bars[len(bars)-2]

	rng := last.Range()
	if rng > 0 {
		body := last.Body()
		upper := last.UpperWick()
		lower := last.LowerWick()

		if body <= dojiBodyRatio*rng {
			set.Doji = 1
		} else if body <= 0.3*rng && upper > body && lower > body {
			set.SpinningTop = 1
		}
		if body >= marubozuBodyRatio*rng {
			set.Marubozu = 1
		}

		slack := wickSlack * rng
		hammerShape := lower >= wickDominance*body && upper <= body+slack
		starShape := upper >= wickDominance*body && lower <= body+slack
		down := trendingDown(bars)
		up := trendingUp(bars)

		if hammerShape && down {
			set.Hammer = 1
		}
		if hammerShape && up {
			set.HangingMan = 1
		}
		if starShape && down {
			set.InvertedHammer = 1
		}
		if starShape && up {
			set.ShootingStar = 1
		}
	}

	if engulfs(last, prev) {
		if last.Bullish() && !prev.Bullish() {
			set.EngulfingBull = 1
		}
		if !last.Bullish() && prev.Bullish() {
			set.EngulfingBear = 1
		}
	}

	if len(bars) >= 3 {
		a, b, c := bars[len(bars)-3], bars[len(bars)-2], bars[len(bars)-1]
		if a.Bullish() && b.Bullish() && c.Bullish() &&
			solidBody(a) && solidBody(b) && solidBody(c) &&
			b.Close > a.Close && c.Close > b.Close {
			set.ThreeSoldiers = 1
		}
		if !a.Bullish() && !b.Bullish() && !c.Bullish() &&
			solidBody(a) && solidBody(b) && solidBody(c) &&
			b.Close < a.Close && c.Close < b.Close {
			set.ThreeCrows = 1
		}
	}

	return set
}

// solidBody reports whether the bar's real body dominates its range.
func solidBody(b market.Bar) bool {
	rng := b.Range()
	return rng > 0 && b.Body() >= soldierBodyRatio*rng
}

// engulfs reports whether cur's real body fully contains prev's.
func engulfs(cur, prev market.Bar) bool {
	curTop, curBot := bodyBounds(cur)
	prevTop, prevBot := bodyBounds(prev)
	return cur.Body() > 0 && prev.Body() > 0 &&
		curTop >= prevTop && curBot <= prevBot &&
		(curTop > prevTop || curBot < prevBot)
}

func bodyBounds(b market.Bar) (top, bottom float64) {
	if b.Close >= b.Open {
		return b.Close, b.Open
	}
	return b.Open, b.Close
}

func trendingDown(bars []market.Bar) bool {
	n := len(bars) - 1 // exclude the formation bar itself
	if n < 2 {
		return false
	}
	start := n - trendLookback
	if start < 0 {
		start = 0
	}
	return bars[n-1].Close < bars[start].Close
}

func trendingUp(bars []market.Bar) bool {
	n := len(bars) - 1
	if n < 2 {
		return false
	}
	start := n - trendLookback
	if start < 0 {
		start = 0
	}
	return bars[n-1].Close > bars[start].Close
}
