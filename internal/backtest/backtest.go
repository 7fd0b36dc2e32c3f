// Package backtest replays the scan-score-risk pipeline bar by bar
// over historical data. Feature windows are sliced so a decision at
// bar i can only ever see bars up to i, making lookahead structurally
// impossible rather than a convention.
package backtest

import (
	"context"
	"time"

	"github.com/alphastack/tradepulse/internal/application/stats"
	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/domain/trading"
)

// DataSource supplies historical bars. The market data chain satisfies
// this.
type DataSource interface {
	FetchBars(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error)
}

// Config drives one backtest run.
type Config struct {
	Symbols        []string         `yaml:"symbols"`
	Timeframe      market.Timeframe `yaml:"timeframe"`
	Start          time.Time        `yaml:"start"`
	End            time.Time        `yaml:"end"`
	InitialEquity  float64          `yaml:"initial_equity"`
	Mode           trading.Mode     `yaml:"mode"`
	ScoreThreshold float64          `yaml:"score_threshold"`
	CooldownBars   int              `yaml:"cooldown_bars"`
	Costs          stats.CostModel  `yaml:"costs"`
}

// DefaultConfig returns a SAFE-mode intraday run template. Symbols,
// start and end still need to be set.
func DefaultConfig() Config {
	return Config{
		Timeframe:      market.Timeframe1m,
		InitialEquity:  25_000,
		Mode:           trading.ModeSafe,
		ScoreThreshold: 0.6,
		CooldownBars:   10,
		Costs:          stats.DefaultCostModel(),
	}
}

// Trade is one closed simulated position.
type Trade struct {
	Symbol     string             `json:"symbol"`
	Side       trading.Side       `json:"side"`
	EntryTime  time.Time          `json:"entry_time"`
	ExitTime   time.Time          `json:"exit_time"`
	Entry      float64            `json:"entry"`
	Exit       float64            `json:"exit"`
	Shares     int                `json:"shares"`
	ExitReason trading.ExitReason `json:"exit_reason"`
	GrossPct   float64            `json:"gross_pct"`
	NetPct     float64            `json:"net_pct"`
	RMultiple  float64            `json:"r_multiple"`
	PnLUSD     float64            `json:"pnl_usd"`
	Score      float64            `json:"score"`
}

// EquityPoint is one mark on the portfolio equity curve, taken at
// trade exits.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// Result is the full output of a run.
type Result struct {
	Config       Config              `json:"config"`
	Trades       []Trade             `json:"trades"`
	EquityCurve  []EquityPoint       `json:"equity_curve"`
	StartEquity  float64             `json:"start_equity"`
	EndEquity    float64             `json:"end_equity"`
	Performance  trading.Performance `json:"performance"`
	BarsReplayed int                 `json:"bars_replayed"`
	Rejections   map[string]int      `json:"rejections"` // guardrail reason counts
}

// stepClock feeds the simulated bar time into session-aware
// components.
type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time { return c.t }
