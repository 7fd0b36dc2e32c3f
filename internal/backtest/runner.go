package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/alphastack/tradepulse/internal/application/stats"
	"github.com/alphastack/tradepulse/internal/domain/features"
	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/domain/risk"
	"github.com/alphastack/tradepulse/internal/domain/scoring"
	"github.com/alphastack/tradepulse/internal/domain/trading"
)

// Runner replays one configuration. Symbols are simulated
// independently against the starting equity, then trades merge into a
// single chronological curve.
type Runner struct {
	cfg     Config
	source  DataSource
	engine  *features.Engine
	scorer  scoring.Scorer
	riskCfg risk.Config
	log     zerolog.Logger
}

// NewRunner wires a backtest run.
func NewRunner(cfg Config, source DataSource, engine *features.Engine, scorer scoring.Scorer, riskCfg risk.Config, log zerolog.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		source:  source,
		engine:  engine,
		scorer:  scorer,
		riskCfg: riskCfg,
		log:     log.With().Str("component", "backtest").Logger(),
	}
}

// Run executes the backtest. Bars before Start are fetched as warmup
// so the first tradable bar already has a full feature window.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if len(r.cfg.Symbols) == 0 {
		return nil, fmt.Errorf("backtest: no symbols configured")
	}
	if !r.cfg.End.After(r.cfg.Start) {
		return nil, fmt.Errorf("backtest: end %s not after start %s", r.cfg.End, r.cfg.Start)
	}

	result := &Result{
		Config:      r.cfg,
		StartEquity: r.cfg.InitialEquity,
		Rejections:  make(map[string]int),
	}

	warmup := time.Duration(r.engine.Config().MinBars()+5) * r.cfg.Timeframe.Duration()

	symbols := append([]string(nil), r.cfg.Symbols...)
	sort.Strings(symbols)

	var trades []Trade
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := r.source.FetchBars(ctx, symbol, r.cfg.Timeframe, r.cfg.Start.Add(-warmup), r.cfg.End)
		if err != nil {
			return nil, fmt.Errorf("backtest: fetch %s: %w", symbol, err)
		}
		bars, dropped := market.Sanitize(raw)
		if len(dropped) > 0 {
			r.log.Warn().Str("symbol", symbol).Int("dropped", len(dropped)).Msg("dirty bars dropped")
		}

		symTrades, replayed := r.replaySymbol(symbol, bars, result.Rejections)
		trades = append(trades, symTrades...)
		result.BarsReplayed += replayed
	}

	sort.Slice(trades, func(i, j int) bool {
		if !trades[i].ExitTime.Equal(trades[j].ExitTime) {
			return trades[i].ExitTime.Before(trades[j].ExitTime)
		}
		return trades[i].Symbol < trades[j].Symbol
	})
	result.Trades = trades

	equity := r.cfg.InitialEquity
	returns := make([]float64, 0, len(trades))
	for _, tr := range trades {
		equity += tr.PnLUSD
		returns = append(returns, tr.NetPct)
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Time: tr.ExitTime, Equity: equity})
	}
	result.EndEquity = equity

	if perf, err := stats.Aggregate(returns); err == nil {
		perf.WindowStart = r.cfg.Start
		perf.WindowEnd = r.cfg.End
		perf.Mode = r.cfg.Mode
		result.Performance = perf
	}

	r.log.Info().
		Int("symbols", len(symbols)).
		Int("trades", len(trades)).
		Int("bars", result.BarsReplayed).
		Float64("end_equity", equity).
		Msg("backtest complete")

	return result, nil
}

// openPosition tracks one simulated holding.
type openPosition struct {
	plan      trading.RiskPlan
	side      trading.Side
	score     float64
	entryTime time.Time
	entryBar  int
	timeStop  time.Time
}

// replaySymbol walks the bars once. The feature window at bar i is
// bars[:i+1], so later bars are unreachable by construction.
func (r *Runner) replaySymbol(symbol string, bars []market.Bar, rejections map[string]int) ([]Trade, int) {
	minBars := r.engine.Config().MinBars()
	if len(bars) <= minBars {
		return nil, 0
	}

	clock := &stepClock{}
	riskEngine := risk.NewEngine(r.riskCfg, clock, r.log)

	account := trading.AccountState{
		Equity:      r.cfg.InitialEquity,
		BuyingPower: r.cfg.InitialEquity,
	}

	var trades []Trade
	var open *openPosition
	lastExitBar := -1 << 30
	replayed := 0

	for i := minBars; i < len(bars); i++ {
		bar := bars[i]
		if bar.Timestamp.Before(r.cfg.Start) {
			continue
		}
		replayed++
		clock.t = bar.Timestamp.Add(r.cfg.Timeframe.Duration())

		if open != nil {
			if trade, closed := r.tryClose(symbol, open, bar, i); closed {
				trades = append(trades, trade)
				account.Equity += trade.PnLUSD
				account.BuyingPower = account.Equity
				open = nil
				lastExitBar = i
			}
			continue
		}

		if i-lastExitBar <= r.cfg.CooldownBars || i+1 >= len(bars) {
			continue
		}

		window := bars[:i+1]
		vector, err := r.engine.Compute(symbol, r.cfg.Timeframe, window)
		if err != nil {
			continue
		}
		if vector.ZeroVol {
			continue
		}

		scored := r.scorer.Score(vector, r.cfg.Mode)
		if scored.Score < r.cfg.ScoreThreshold {
			continue
		}

		// Fill at the next bar's open with slippage against us.
		fill := r.fillPrice(bars[i+1].Open, scored.Side)

		swingLow, swingHigh := swingLevels(window, swingLookback)
		decision := riskEngine.Plan(risk.Candidate{
			Symbol:      symbol,
			Side:        scored.Side,
			Entry:       fill,
			ATR:         vector.ATR,
			RealizedVol: vector.RealizedVol,
			Score:       scored.Score,
			Confidence:  scored.Confidence,
			SwingLow:    swingLow,
			SwingHigh:   swingHigh,
		}, account, r.cfg.Mode)

		if !decision.Approved {
			rejections[decision.Rejection.Reason]++
			continue
		}

		entryTime := bars[i+1].Timestamp
		open = &openPosition{
			plan:      *decision.Plan,
			side:      scored.Side,
			score:     scored.Score,
			entryTime: entryTime,
			entryBar:  i + 1,
			timeStop:  entryTime.Add(time.Duration(decision.Plan.TimeStopMinutes) * time.Minute),
		}
	}

	// Force-close anything still open at the last bar.
	if open != nil {
		last := len(bars) - 1
		trade := r.closeTrade(symbol, open, bars[last].Close, trading.ExitHorizon, bars[last].Timestamp)
		trades = append(trades, trade)
	}

	return trades, replayed
}

// tryClose checks the exit ladder on one bar: stop first, then target,
// then time stop.
func (r *Runner) tryClose(symbol string, pos *openPosition, bar market.Bar, barIdx int) (Trade, bool) {
	if barIdx < pos.entryBar {
		return Trade{}, false
	}

	closeTime := bar.Timestamp.Add(r.cfg.Timeframe.Duration())

	if pos.side == trading.SideLong {
		if bar.Low <= pos.plan.Stop {
			return r.closeTrade(symbol, pos, pos.plan.Stop, trading.ExitStop, closeTime), true
		}
		if len(pos.plan.Targets) > 0 && bar.High >= pos.plan.Targets[0] {
			return r.closeTrade(symbol, pos, pos.plan.Targets[0], trading.ExitTarget, closeTime), true
		}
	} else {
		if bar.High >= pos.plan.Stop {
			return r.closeTrade(symbol, pos, pos.plan.Stop, trading.ExitStop, closeTime), true
		}
		if len(pos.plan.Targets) > 0 && bar.Low <= pos.plan.Targets[0] {
			return r.closeTrade(symbol, pos, pos.plan.Targets[0], trading.ExitTarget, closeTime), true
		}
	}

	if pos.plan.TimeStopMinutes > 0 && !bar.Timestamp.Before(pos.timeStop) {
		return r.closeTrade(symbol, pos, bar.Close, trading.ExitTime, closeTime), true
	}
	return Trade{}, false
}

func (r *Runner) closeTrade(symbol string, pos *openPosition, exit float64, reason trading.ExitReason, at time.Time) Trade {
	// Targets are limit orders and fill at their price. Stop, time,
	// and horizon exits cross the spread as market orders.
	if reason != trading.ExitTarget {
		exit = r.fillPrice(exit, opposite(pos.side))
	}

	dir := 1.0
	if pos.side == trading.SideShort {
		dir = -1
	}
	grossPct := dir * (exit - pos.plan.Entry) / pos.plan.Entry * 100
	netPct := grossPct - r.spreadAndCommissionPct(pos.plan.Notional)
	pnl := dir*(exit-pos.plan.Entry)*float64(pos.plan.Shares) - 2*r.cfg.Costs.CommissionUSD

	return Trade{
		Symbol:     symbol,
		Side:       pos.side,
		EntryTime:  pos.entryTime,
		ExitTime:   at,
		Entry:      pos.plan.Entry,
		Exit:       exit,
		Shares:     pos.plan.Shares,
		ExitReason: reason,
		GrossPct:   grossPct,
		NetPct:     netPct,
		RMultiple:  pos.plan.RMultiple(pos.side, exit),
		PnLUSD:     pnl,
		Score:      pos.score,
	}
}

// fillPrice applies slippage against the trade direction. Slippage is
// charged here on each fill, so the net calculation only adds spread
// and commission.
func (r *Runner) fillPrice(price float64, side trading.Side) float64 {
	slip := r.cfg.Costs.SlippageBps / 10_000
	if side == trading.SideShort {
		return price * (1 - slip)
	}
	return price * (1 + slip)
}

func (r *Runner) spreadAndCommissionPct(notional float64) float64 {
	pct := r.cfg.Costs.SpreadBps / 100
	if notional > 0 {
		pct += 2 * r.cfg.Costs.CommissionUSD / notional * 100
	}
	return pct
}

// swingLookback bounds how many trailing bars set the swing levels
// offered to the risk engine.
const swingLookback = 20

func swingLevels(bars []market.Bar, n int) (low, high float64) {
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	for _, b := range bars {
		if low == 0 || b.Low < low {
			low = b.Low
		}
		if b.High > high {
			high = b.High
		}
	}
	return low, high
}

func opposite(side trading.Side) trading.Side {
	if side == trading.SideLong {
		return trading.SideShort
	}
	return trading.SideLong
}
