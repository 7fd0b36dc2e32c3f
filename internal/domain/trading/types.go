// Package trading defines the core entities that flow between the
// scoring, risk, persistence and evaluation layers. Everything here is
// an immutable value once produced.
package trading

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alphastack/tradepulse/internal/domain/features"
)

// Mode selects the risk posture of a scan.
type Mode string

const (
	ModeSafe       Mode = "SAFE"
	ModeAggressive Mode = "AGGRESSIVE"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSafe, ModeAggressive:
		return Mode(s), nil
	}
	return "", fmt.Errorf("trading: unknown mode %q", s)
}

// Side is the trade direction.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Horizon is a named evaluation window for a signal.
type Horizon string

const (
	Horizon30m Horizon = "30m"
	Horizon2h  Horizon = "2h"
	HorizonEOD Horizon = "eod"
)

// Horizons lists every window a stored signal is evaluated at.
func Horizons() []Horizon {
	return []Horizon{Horizon30m, Horizon2h, HorizonEOD}
}

// Duration returns the wall-clock span of the horizon. The end-of-day
// horizon approximates a close 6.5 hours after the open-session
// generation typical for day signals.
func (h Horizon) Duration() time.Duration {
	switch h {
	case Horizon30m:
		return 30 * time.Minute
	case Horizon2h:
		return 2 * time.Hour
	case HorizonEOD:
		return 390 * time.Minute
	default:
		return 30 * time.Minute
	}
}

// Valid reports whether h is a known horizon.
func (h Horizon) Valid() bool {
	switch h {
	case Horizon30m, Horizon2h, HorizonEOD:
		return true
	}
	return false
}

// RiskPlan is the executable sizing attached to an approved signal.
// Targets are ordered nearest first.
type RiskPlan struct {
	Entry           float64   `json:"entry"`
	Stop            float64   `json:"stop"`
	Targets         []float64 `json:"targets"`
	Shares          int       `json:"shares"`
	Notional        float64   `json:"notional"`
	RiskPerShare    float64   `json:"risk_per_share"`
	MaxLossUSD      float64   `json:"max_loss_usd"`
	TimeStopMinutes int       `json:"time_stop_minutes"`
}

// RMultiple converts an exit price into multiples of initial risk for
// the given side.
func (p RiskPlan) RMultiple(side Side, exit float64) float64 {
	if p.RiskPerShare == 0 {
		return 0
	}
	if side == SideShort {
		return (p.Entry - exit) / p.RiskPerShare
	}
	return (exit - p.Entry) / p.RiskPerShare
}

// Rejection explains why a candidate was refused, with the concrete
// limit that fired and a suggested fix. It is a first-class result,
// not an error.
type Rejection struct {
	Blocked      bool    `json:"blocked"`
	Reason       string  `json:"reason"`
	Fix          string  `json:"fix,omitempty"`
	CurrentValue float64 `json:"current_value,omitempty"`
	MaxAllowed   float64 `json:"max_allowed,omitempty"`
}

// Signal is an immutable snapshot of one scored, risk-approved
// candidate. Its feature vector is frozen at generation time.
type Signal struct {
	ID             uuid.UUID       `json:"id"`
	Symbol         string          `json:"symbol"`
	GeneratedAt    time.Time       `json:"generated_at"`
	Mode           Mode            `json:"mode"`
	Side           Side            `json:"side"`
	Score          float64         `json:"score"`      // 0..1 composite
	Confidence     float64         `json:"confidence"` // 0..1
	ScoreSource    string          `json:"score_source"`
	UniverseSource string          `json:"universe_source"`
	Features       features.Vector `json:"features"`
	Risk           RiskPlan        `json:"risk"`
	ThesisTags     []string        `json:"thesis_tags,omitempty"`
}

// ExitReason labels how an evaluated signal resolved.
type ExitReason string

const (
	ExitStop    ExitReason = "stop"
	ExitTarget  ExitReason = "target"
	ExitTime    ExitReason = "time"
	ExitHorizon ExitReason = "horizon"
)

// Outcome is the realized result of one signal at one horizon. The
// pair (SignalID, Horizon) is unique.
type Outcome struct {
	SignalID    uuid.UUID  `json:"signal_id"`
	Symbol      string     `json:"symbol"`
	Horizon     Horizon    `json:"horizon"`
	EvaluatedAt time.Time  `json:"evaluated_at"`
	ExitPrice   float64    `json:"exit_price"`
	ExitReason  ExitReason `json:"exit_reason"`
	GrossPct    float64    `json:"gross_pct"` // raw price move, percent
	NetPct      float64    `json:"net_pct"`   // after spread, commission, slippage
	RMultiple   float64    `json:"r_multiple"`
	Win         bool       `json:"win"`
}

// Period names the aggregation window of a performance snapshot.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodAllTime Period = "all_time"
)

// ParsePeriod validates a period string.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDaily, PeriodAllTime:
		return Period(s), nil
	}
	return "", fmt.Errorf("trading: unknown period %q", s)
}

// Performance aggregates outcomes over a window.
type Performance struct {
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	Mode         Mode      `json:"mode,omitempty"`
	Period       Period    `json:"period,omitempty"`
	Horizon      Horizon   `json:"horizon,omitempty"`
	SampleSize   int       `json:"sample_size"`
	WinRate      float64   `json:"win_rate"`
	AvgReturnPct float64   `json:"avg_return_pct"`
	Sharpe       float64   `json:"sharpe"`
	Sortino      float64   `json:"sortino"`
	Calmar       float64   `json:"calmar"`
	MaxDrawdown  float64   `json:"max_drawdown"`
	ProfitFactor float64   `json:"profit_factor"`
}

// AccountState is the broker-side snapshot the risk engine checks
// guardrails against.
type AccountState struct {
	Equity            float64 `json:"equity"`
	BuyingPower       float64 `json:"buying_power"`
	DailyNotionalUsed float64 `json:"daily_notional_used"`
	DayTradeCount     int     `json:"day_trade_count"`
	OpenPositions     int     `json:"open_positions"`
	PatternDayTrader  bool    `json:"pattern_day_trader"`
}
