package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/alphastack/tradepulse/internal/domain/market"
)

// SyntheticProvider generates a deterministic random walk per symbol.
// Every bar is a pure function of (symbol, open timestamp), so any
// requested window lines up with any other window over the same bars.
// Used for demos and as a stand-in vendor when no API keys are set.
type SyntheticProvider struct {
	seed uint64
}

func NewSyntheticProvider(seed uint64) *SyntheticProvider {
	return &SyntheticProvider{seed: seed}
}

func (p *SyntheticProvider) Name() string { return "synthetic" }

func (p *SyntheticProvider) FetchBars(_ context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error) {
	base := p.basePrice(symbol)
	if tf == market.Timeframe1d {
		return p.dailyBars(symbol, base, start, end), nil
	}

	step := tf.Duration()
	var bars []market.Bar
	for ts := start.Truncate(step); !ts.After(end); ts = ts.Add(step) {
		if !market.InRegularSession(ts) {
			continue
		}
		open := p.priceAt(symbol, ts, base)
		cls := p.priceAt(symbol, ts.Add(step), base)
		spread := base * 0.0008 * (1 + p.unit(symbol, ts, 7))
		bars = append(bars, market.Bar{
			Timestamp: ts,
			Open:      open,
			High:      math.Max(open, cls) + spread,
			Low:       math.Min(open, cls) - spread,
			Close:     cls,
			Volume:    5_000 + 20_000*p.unit(symbol, ts, 11),
		})
	}
	return bars, nil
}

// dailyBars emits one bar per weekday, keyed to the 09:30 ET session
// open so the daily series lines up with the intraday walk. A truncated
// daily timestamp falls outside session hours, so the intraday gate
// cannot be reused here.
func (p *SyntheticProvider) dailyBars(symbol string, base float64, start, end time.Time) []market.Bar {
	var bars []market.Bar
	et := start.In(market.Eastern())
	day := time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, market.Eastern())
	for ; !day.After(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		sessionOpen := day.Add(9*time.Hour + 30*time.Minute)
		if sessionOpen.Before(start) || sessionOpen.After(end) {
			continue
		}
		open := p.priceAt(symbol, sessionOpen, base)
		cls := p.priceAt(symbol, day.Add(16*time.Hour), base)
		spread := base * 0.005 * (1 + p.unit(symbol, sessionOpen, 7))
		bars = append(bars, market.Bar{
			Timestamp: sessionOpen,
			Open:      open,
			High:      math.Max(open, cls) + spread,
			Low:       math.Min(open, cls) - spread,
			Close:     cls,
			Volume:    1_500_000 + 4_000_000*p.unit(symbol, sessionOpen, 11),
		})
	}
	return bars
}

// priceAt walks intraday from the session open so a single bad hash
// cannot drift the series across days.
func (p *SyntheticProvider) priceAt(symbol string, ts time.Time, base float64) float64 {
	et := ts.In(market.Eastern())
	sessionOpen := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, market.Eastern())

	drift := (p.unit(symbol, sessionOpen, 3) - 0.5) * 0.0004
	price := base * (1 + 0.02*(p.unit(symbol, sessionOpen, 5)-0.5))
	for t := sessionOpen; t.Before(ts); t = t.Add(time.Minute) {
		ret := drift + (p.unit(symbol, t, 1)-0.5)*0.002
		price *= 1 + ret
	}
	return price
}

func (p *SyntheticProvider) basePrice(symbol string) float64 {
	return 20 + 480*p.hashUnit(symbol, 0)
}

// unit maps (symbol, time, salt) to a stable value in [0, 1).
func (p *SyntheticProvider) unit(symbol string, ts time.Time, salt uint64) float64 {
	return p.hashUnit(symbol, uint64(ts.Unix())*2654435761+salt)
}

func (p *SyntheticProvider) hashUnit(symbol string, mix uint64) float64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	v := h.Sum64() ^ mix ^ p.seed
	v ^= v >> 33
	v *= 0xff51afd7ed558ccd
	v ^= v >> 33
	return float64(v%1_000_000) / 1_000_000
}
