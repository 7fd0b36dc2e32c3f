// Package universe filters the raw symbol list down to the liquid,
// sanely-moving candidates worth scanning in full.
package universe

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/domain/trading"
)

// Candidate is the per-symbol daily snapshot the selector filters on.
type Candidate struct {
	Symbol          string  `json:"symbol"`
	Price           float64 `json:"price"`
	AvgDollarVolume float64 `json:"avg_dollar_volume"`
	ChangePct       float64 `json:"change_pct"` // day change, percent
	ATRPct          float64 `json:"atr_pct"`
	ZeroVol         bool    `json:"zero_vol"`
}

// Exclusion records why a symbol was dropped, mirroring the risk
// layer's rejection style.
type Exclusion struct {
	Symbol string  `json:"symbol"`
	Reason string  `json:"reason"`
	Value  float64 `json:"value"`
	Limit  float64 `json:"limit"`
}

// Config bounds what the selector accepts.
type Config struct {
	MinPrice        float64 `yaml:"min_price"`
	MaxPrice        float64 `yaml:"max_price"`
	MinDollarVolume float64 `yaml:"min_dollar_volume"`
	MinATRPct       float64 `yaml:"min_atr_pct"`

	// Upper volatility bound per posture, percent of price. SAFE keeps
	// a tight band, AGGRESSIVE tolerates wider movers.
	SafeMaxATRPct       float64 `yaml:"safe_max_atr_pct"`
	AggressiveMaxATRPct float64 `yaml:"aggressive_max_atr_pct"`

	// Daily change caps per posture, percent. A move beyond the cap
	// is treated as an unsustainable spike, not an opportunity.
	SafeChangeCap       float64 `yaml:"safe_change_cap"`
	AggressiveChangeCap float64 `yaml:"aggressive_change_cap"`

	MaxSize int `yaml:"max_size"`

	// When dynamic discovery keeps fewer than MinSize symbols, the
	// curated Fallback list backstops the scan so a quiet tape never
	// yields an empty universe.
	MinSize  int      `yaml:"min_size"`
	Fallback []string `yaml:"fallback"`
}

// DefaultConfig returns the production universe filters.
func DefaultConfig() Config {
	return Config{
		MinPrice:            5,
		MaxPrice:            1000,
		MinDollarVolume:     5_000_000,
		MinATRPct:           0.3,
		SafeMaxATRPct:       8,
		AggressiveMaxATRPct: 18,
		SafeChangeCap:       15,
		AggressiveChangeCap: 30,
		MaxSize:             50,
		MinSize:             10,
		Fallback: []string{
			"SPY", "QQQ", "AAPL", "MSFT", "NVDA",
			"AMZN", "META", "TSLA", "GOOGL", "AMD",
		},
	}
}

// Universe sources reported in scan summaries and stamped on signals.
const (
	SourceDynamic  = "dynamic"
	SourceFallback = "fallback"
)

// Selector applies the universe filters. Safe for concurrent use.
type Selector struct {
	cfg   Config
	clock market.Clock
	log   zerolog.Logger
}

// NewSelector creates a Selector. A nil clock defaults to wall time.
func NewSelector(cfg Config, clock market.Clock, log zerolog.Logger) *Selector {
	if clock == nil {
		clock = market.RealClock{}
	}
	return &Selector{
		cfg:   cfg,
		clock: clock,
		log:   log.With().Str("component", "universe").Logger(),
	}
}

// ChangeCap returns the maximum tolerated daily change for the mode at
// the given time. Early-session moves get headroom since the day's
// range is still forming, late-session moves are mostly spent.
func (s *Selector) ChangeCap(mode trading.Mode, at time.Time) float64 {
	base := s.cfg.SafeChangeCap
	if mode == trading.ModeAggressive {
		base = s.cfg.AggressiveChangeCap
	}

	et := at.In(market.Eastern())
	hour := float64(et.Hour()) + float64(et.Minute())/60
	switch {
	case hour < 10:
		return base * 1.67
	case hour < 14:
		return base
	default:
		return base * 0.33
	}
}

// Select filters and ranks candidates, returning the kept set ordered
// by dollar volume, the exclusions with the limit each one hit, and the
// universe source. When the dynamic set comes up short the curated
// fallback symbols top it up and the source flips to "fallback".
func (s *Selector) Select(candidates []Candidate, mode trading.Mode) ([]Candidate, []Exclusion, string) {
	now := s.clock.Now()
	changeCap := s.ChangeCap(mode, now)
	maxATR := s.cfg.SafeMaxATRPct
	if mode == trading.ModeAggressive {
		maxATR = s.cfg.AggressiveMaxATRPct
	}

	kept := make([]Candidate, 0, len(candidates))
	var excluded []Exclusion

	for _, c := range candidates {
		if excl := s.check(c, changeCap, maxATR); excl != nil {
			excluded = append(excluded, *excl)
			continue
		}
		kept = append(kept, c)
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].AvgDollarVolume != kept[j].AvgDollarVolume {
			return kept[i].AvgDollarVolume > kept[j].AvgDollarVolume
		}
		return kept[i].Symbol < kept[j].Symbol
	})

	if s.cfg.MaxSize > 0 && len(kept) > s.cfg.MaxSize {
		kept = kept[:s.cfg.MaxSize]
	}

	source := SourceDynamic
	if len(kept) < s.cfg.MinSize && len(s.cfg.Fallback) > 0 {
		source = SourceFallback
		kept = s.topUp(kept)
	}

	s.log.Info().
		Str("mode", string(mode)).
		Str("source", source).
		Int("in", len(candidates)).
		Int("kept", len(kept)).
		Int("excluded", len(excluded)).
		Float64("change_cap", changeCap).
		Msg("universe selected")

	return kept, excluded, source
}

// nonCommonEquity flags warrant, unit, and rights tickers by their
// auxiliary suffix. Five-letter symbols ending in W, U, or R follow
// the exchange convention for those instruments.
func nonCommonEquity(symbol string) bool {
	for _, suffix := range []string{".WS", ".WT", ".U", ".RT", "+", "="} {
		if strings.HasSuffix(symbol, suffix) {
			return true
		}
	}
	if len(symbol) == 5 {
		switch symbol[4] {
		case 'W', 'U', 'R':
			return true
		}
	}
	return false
}

// topUp appends fallback symbols that did not already qualify. Fallback
// entries carry no daily stats, the per-symbol scan fetches its own
// bars anyway.
func (s *Selector) topUp(kept []Candidate) []Candidate {
	present := make(map[string]bool, len(kept))
	for _, c := range kept {
		present[c.Symbol] = true
	}
	for _, sym := range s.cfg.Fallback {
		if present[sym] {
			continue
		}
		kept = append(kept, Candidate{Symbol: sym})
		if s.cfg.MaxSize > 0 && len(kept) >= s.cfg.MaxSize {
			break
		}
	}
	return kept
}

func (s *Selector) check(c Candidate, changeCap, maxATR float64) *Exclusion {
	switch {
	case nonCommonEquity(c.Symbol):
		return &Exclusion{Symbol: c.Symbol, Reason: "non_common_equity"}
	case c.ZeroVol || c.ATRPct < s.cfg.MinATRPct:
		return &Exclusion{
			Symbol: c.Symbol, Reason: "volatility_floor",
			Value: c.ATRPct, Limit: s.cfg.MinATRPct,
		}
	case maxATR > 0 && c.ATRPct > maxATR:
		return &Exclusion{
			Symbol: c.Symbol, Reason: "volatility_band",
			Value: c.ATRPct, Limit: maxATR,
		}
	case c.Price < s.cfg.MinPrice:
		return &Exclusion{
			Symbol: c.Symbol, Reason: "price_below_min",
			Value: c.Price, Limit: s.cfg.MinPrice,
		}
	case s.cfg.MaxPrice > 0 && c.Price > s.cfg.MaxPrice:
		return &Exclusion{
			Symbol: c.Symbol, Reason: "price_above_max",
			Value: c.Price, Limit: s.cfg.MaxPrice,
		}
	case c.AvgDollarVolume < s.cfg.MinDollarVolume:
		return &Exclusion{
			Symbol: c.Symbol, Reason: "illiquid",
			Value: c.AvgDollarVolume, Limit: s.cfg.MinDollarVolume,
		}
	case math.Abs(c.ChangePct) > changeCap:
		return &Exclusion{
			Symbol: c.Symbol, Reason: "unsustainable_move",
			Value: math.Abs(c.ChangePct), Limit: changeCap,
		}
	}
	return nil
}
