// Package risk converts scored candidates into executable position
// plans, or into structured rejections explaining exactly which limit
// fired. A rejection is a first-class result, never an error.
package risk

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/domain/trading"
)

// ModeParams hold the sizing knobs that differ between risk postures.
type ModeParams struct {
	RiskPct         float64   `yaml:"risk_pct"`       // fraction of equity risked per trade
	StopATRMult     float64   `yaml:"stop_atr_mult"`  // stop distance in ATR multiples
	TimeStopMinutes int       `yaml:"time_stop_minutes"`
	TargetR         []float64 `yaml:"target_r"` // profit targets in R multiples
}

// Config is the full guardrail and sizing configuration.
type Config struct {
	Safe       ModeParams `yaml:"safe"`
	Aggressive ModeParams `yaml:"aggressive"`

	// Hard loss cap per trade: min(fixed, equity fraction), scaled
	// down further when market volatility runs above baseline.
	MaxLossFixedUSD   float64 `yaml:"max_loss_fixed_usd"`
	MaxLossEquityFrac float64 `yaml:"max_loss_equity_frac"`
	BaselineVol       float64 `yaml:"baseline_vol"`
	MinVolAdj         float64 `yaml:"min_vol_adj"`

	// MinConfidenceAdj floors the confidence multiplier on the risk
	// budget. 1 sizes every candidate the same.
	MinConfidenceAdj float64 `yaml:"min_confidence_adj"`

	// Kelly notional ceiling, taken at KellySafetyFrac of full Kelly
	// and hard-capped at KellyMaxFrac of equity. A zero safety
	// fraction disables the cap.
	KellySafetyFrac float64 `yaml:"kelly_safety_frac"`
	KellyMaxFrac    float64 `yaml:"kelly_max_frac"`

	MaxDailyNotional   float64 `yaml:"max_daily_notional"`
	MaxOpenPositions   int     `yaml:"max_open_positions"`
	PDTEquityFloor     float64 `yaml:"pdt_equity_floor"`
	MaxDayTrades       int     `yaml:"max_day_trades"`
	AllowExtendedHours bool    `yaml:"allow_extended_hours"`
	AllowShorts        bool    `yaml:"allow_shorts"`
}

// DefaultConfig returns production guardrails with SAFE and AGGRESSIVE
// postures.
func DefaultConfig() Config {
	return Config{
		Safe: ModeParams{
			RiskPct:         0.005,
			StopATRMult:     1.5,
			TimeStopMinutes: 45,
			TargetR:         []float64{2, 3, 4},
		},
		Aggressive: ModeParams{
			RiskPct:         0.012,
			StopATRMult:     2.0,
			TimeStopMinutes: 25,
			TargetR:         []float64{2, 3, 4},
		},
		MaxLossFixedUSD:   500,
		MaxLossEquityFrac: 0.01,
		BaselineVol:       0.010,
		MinVolAdj:         0.25,
		MinConfidenceAdj:  0.5,
		KellySafetyFrac:   0.25,
		KellyMaxFrac:      0.10,
		MaxDailyNotional:  100_000,
		MaxOpenPositions:  5,
		PDTEquityFloor:    25_000,
		MaxDayTrades:      3,
	}
}

// Params returns the posture parameters for a mode.
func (c Config) Params(mode trading.Mode) ModeParams {
	if mode == trading.ModeAggressive {
		return c.Aggressive
	}
	return c.Safe
}

// Candidate is the minimal scored view the engine sizes from. SwingLow
// and SwingHigh are the recent extremes of the bar window; zero means
// no level is known.
type Candidate struct {
	Symbol      string
	Side        trading.Side
	Entry       float64
	ATR         float64
	RealizedVol float64
	Score       float64
	Confidence  float64
	SwingLow    float64
	SwingHigh   float64
}

// Decision is either an approved plan or a rejection, never both.
type Decision struct {
	Approved  bool               `json:"approved"`
	Plan      *trading.RiskPlan  `json:"plan,omitempty"`
	Rejection *trading.Rejection `json:"rejection,omitempty"`
}

// Engine sizes positions and enforces account guardrails.
type Engine struct {
	cfg   Config
	clock market.Clock
	log   zerolog.Logger
}

// NewEngine creates an Engine. A nil clock defaults to wall time.
func NewEngine(cfg Config, clock market.Clock, log zerolog.Logger) *Engine {
	if clock == nil {
		clock = market.RealClock{}
	}
	return &Engine{
		cfg:   cfg,
		clock: clock,
		log:   log.With().Str("component", "risk_engine").Logger(),
	}
}

// MaxLossCap returns the per-trade loss ceiling for the given equity
// and prevailing volatility. Above-baseline volatility shrinks the cap
// linearly down to the configured floor.
func (e *Engine) MaxLossCap(equity, vol float64) float64 {
	lossCap := e.cfg.MaxLossFixedUSD
	if byEquity := e.cfg.MaxLossEquityFrac * equity; byEquity < lossCap {
		lossCap = byEquity
	}

	adj := 1.0
	if e.cfg.BaselineVol > 0 && vol > e.cfg.BaselineVol {
		adj = 1 - (vol-e.cfg.BaselineVol)/e.cfg.BaselineVol
		if adj < e.cfg.MinVolAdj {
			adj = e.cfg.MinVolAdj
		}
	}
	return lossCap * adj
}

// Plan sizes a candidate against the account, running every guardrail.
// Checks run cheapest-first so rejections name the earliest violated
// limit.
func (e *Engine) Plan(c Candidate, account trading.AccountState, mode trading.Mode) Decision {
	if rej := e.preTradeChecks(c, account); rej != nil {
		e.logRejection(c, rej)
		return Decision{Rejection: rej}
	}

	params := e.cfg.Params(mode)

	stopDistance := params.StopATRMult * c.ATR
	if swing := swingStopDistance(c); swing > 0 && swing < stopDistance {
		stopDistance = swing
	}
	if stopDistance <= 0 {
		rej := &trading.Rejection{
			Blocked: true,
			Reason:  "zero_volatility",
			Fix:     "symbol has no measurable range, exclude it from the universe",
		}
		e.logRejection(c, rej)
		return Decision{Rejection: rej}
	}

	riskBudget := params.RiskPct * account.Equity * e.confidenceAdj(c.Confidence)
	if lossCap := e.MaxLossCap(account.Equity, c.RealizedVol); riskBudget > lossCap {
		riskBudget = lossCap
	}

	shares := int(math.Floor(riskBudget / stopDistance))
	if kellyCap := e.kellyNotionalCap(c.Confidence, params, account.Equity); kellyCap > 0 {
		if maxShares := int(math.Floor(kellyCap / c.Entry)); shares > maxShares {
			shares = maxShares
		}
	}
	if shares < 1 {
		rej := &trading.Rejection{
			Blocked:      true,
			Reason:       "position_below_one_share",
			Fix:          "increase equity or pick a lower-priced symbol",
			CurrentValue: riskBudget / stopDistance,
			MaxAllowed:   1,
		}
		e.logRejection(c, rej)
		return Decision{Rejection: rej}
	}

	notional := float64(shares) * c.Entry
	if notional > account.BuyingPower {
		rej := &trading.Rejection{
			Blocked:      true,
			Reason:       "insufficient_buying_power",
			Fix:          fmt.Sprintf("reduce size below %.0f shares", math.Floor(account.BuyingPower/c.Entry)),
			CurrentValue: notional,
			MaxAllowed:   account.BuyingPower,
		}
		e.logRejection(c, rej)
		return Decision{Rejection: rej}
	}

	if e.cfg.MaxDailyNotional > 0 && account.DailyNotionalUsed+notional > e.cfg.MaxDailyNotional {
		rej := &trading.Rejection{
			Blocked:      true,
			Reason:       "daily_notional_exceeded",
			Fix:          "wait for the next session or raise the daily notional limit",
			CurrentValue: account.DailyNotionalUsed + notional,
			MaxAllowed:   e.cfg.MaxDailyNotional,
		}
		e.logRejection(c, rej)
		return Decision{Rejection: rej}
	}

	plan := buildPlan(c, params, stopDistance, shares, notional)

	e.log.Debug().
		Str("symbol", c.Symbol).
		Str("side", string(c.Side)).
		Int("shares", shares).
		Float64("entry", plan.Entry).
		Float64("stop", plan.Stop).
		Float64("max_loss_usd", plan.MaxLossUSD).
		Msg("position plan approved")

	return Decision{Approved: true, Plan: &plan}
}

// confidenceAdj scales the risk budget linearly from the configured
// floor at zero confidence to the full fraction at one.
func (e *Engine) confidenceAdj(conf float64) float64 {
	floor := e.cfg.MinConfidenceAdj
	if floor <= 0 || floor >= 1 {
		return 1
	}
	conf = math.Max(0, math.Min(1, conf))
	return floor + (1-floor)*conf
}

// kellyNotionalCap derives a notional ceiling from the Kelly fraction
// f = (b*p - q) / b, taking confidence as the win probability and the
// first profit target as the odds. Returns 0 when no cap applies.
func (e *Engine) kellyNotionalCap(conf float64, params ModeParams, equity float64) float64 {
	if e.cfg.KellySafetyFrac <= 0 || conf <= 0 || conf >= 1 || len(params.TargetR) == 0 {
		return 0
	}
	b := params.TargetR[0]
	if b <= 0 {
		return 0
	}
	f := (b*conf - (1 - conf)) / b
	if f <= 0 {
		return 0
	}
	f *= e.cfg.KellySafetyFrac
	if e.cfg.KellyMaxFrac > 0 && f > e.cfg.KellyMaxFrac {
		f = e.cfg.KellyMaxFrac
	}
	return equity * f
}

// swingStopDistance places the stop 1% beyond the recent swing level.
// Returns 0 when no level is known or it sits on the wrong side of the
// entry.
func swingStopDistance(c Candidate) float64 {
	if c.Side == trading.SideShort {
		if c.SwingHigh <= 0 {
			return 0
		}
		return c.SwingHigh*1.01 - c.Entry
	}
	if c.SwingLow <= 0 {
		return 0
	}
	return c.Entry - c.SwingLow*0.99
}

func buildPlan(c Candidate, params ModeParams, stopDistance float64, shares int, notional float64) trading.RiskPlan {
	dir := 1.0
	if c.Side == trading.SideShort {
		dir = -1
	}

	targets := make([]float64, 0, len(params.TargetR))
	for _, r := range params.TargetR {
		targets = append(targets, c.Entry+dir*r*stopDistance)
	}

	return trading.RiskPlan{
		Entry:           c.Entry,
		Stop:            c.Entry - dir*stopDistance,
		Targets:         targets,
		Shares:          shares,
		Notional:        notional,
		RiskPerShare:    stopDistance,
		MaxLossUSD:      float64(shares) * stopDistance,
		TimeStopMinutes: params.TimeStopMinutes,
	}
}

// preTradeChecks covers the account-state guardrails that do not
// depend on sizing.
func (e *Engine) preTradeChecks(c Candidate, account trading.AccountState) *trading.Rejection {
	if c.Entry <= 0 {
		return &trading.Rejection{
			Blocked: true,
			Reason:  "invalid_entry_price",
		}
	}

	if !e.cfg.AllowExtendedHours && !market.InRegularSession(e.clock.Now()) {
		return &trading.Rejection{
			Blocked: true,
			Reason:  "outside_regular_session",
			Fix:     "trade between 09:30 and 16:00 ET, or enable extended hours",
		}
	}

	if c.Side == trading.SideShort && !e.cfg.AllowShorts {
		return &trading.Rejection{
			Blocked: true,
			Reason:  "shorting_disabled",
			Fix:     "enable shorts in the risk configuration",
		}
	}

	if account.Equity < e.cfg.PDTEquityFloor && !account.PatternDayTrader &&
		account.DayTradeCount >= e.cfg.MaxDayTrades {
		return &trading.Rejection{
			Blocked:      true,
			Reason:       "pattern_day_trading_limit",
			Fix:          fmt.Sprintf("keep equity above %.0f or wait for the rolling window to clear", e.cfg.PDTEquityFloor),
			CurrentValue: float64(account.DayTradeCount),
			MaxAllowed:   float64(e.cfg.MaxDayTrades),
		}
	}

	if e.cfg.MaxOpenPositions > 0 && account.OpenPositions >= e.cfg.MaxOpenPositions {
		return &trading.Rejection{
			Blocked:      true,
			Reason:       "max_open_positions",
			Fix:          "close an open position before adding another",
			CurrentValue: float64(account.OpenPositions),
			MaxAllowed:   float64(e.cfg.MaxOpenPositions),
		}
	}

	return nil
}

func (e *Engine) logRejection(c Candidate, rej *trading.Rejection) {
	e.log.Debug().
		Str("symbol", c.Symbol).
		Str("reason", rej.Reason).
		Float64("current", rej.CurrentValue).
		Float64("max", rej.MaxAllowed).
		Msg("candidate rejected")
}
