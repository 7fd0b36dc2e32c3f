package stats

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/domain/trading"
)

var (
	// ErrHorizonNotElapsed is returned when the bar series does not
	// yet reach the horizon deadline.
	ErrHorizonNotElapsed = errors.New("stats: horizon not elapsed")
	// ErrNoBars is returned when no bars fall after signal
	// generation.
	ErrNoBars = errors.New("stats: no bars after signal generation")
)

// CostModel approximates round-trip execution friction.
type CostModel struct {
	SpreadBps     float64 `yaml:"spread_bps"`
	SlippageBps   float64 `yaml:"slippage_bps"`
	CommissionUSD float64 `yaml:"commission_usd"` // per side
}

// DefaultCostModel returns retail-grade execution assumptions.
func DefaultCostModel() CostModel {
	return CostModel{
		SpreadBps:     3,
		SlippageBps:   2,
		CommissionUSD: 0,
	}
}

// RoundTripPct converts the model into a percent drag on one trade of
// the given notional.
func (c CostModel) RoundTripPct(notional float64) float64 {
	pct := (c.SpreadBps + c.SlippageBps) / 100
	if notional > 0 {
		pct += 2 * c.CommissionUSD / notional * 100
	}
	return pct
}

// Evaluator resolves stored signals into outcomes once their horizon
// has elapsed.
type Evaluator struct {
	costs CostModel
	// winThresholdPct is the minimum net gain that counts as a win.
	// Trades inside the noise band are labeled losses.
	winThresholdPct float64
	log             zerolog.Logger
}

// NewEvaluator creates an Evaluator with the given cost model.
func NewEvaluator(costs CostModel, winThresholdPct float64, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		costs:           costs,
		winThresholdPct: winThresholdPct,
		log:             log.With().Str("component", "evaluator").Logger(),
	}
}

// Evaluate replays the bars after the signal until the horizon
// deadline, honoring the plan's stop, first target and time stop. The
// stop wins when stop and target print in the same bar. The same
// signal and horizon always produce the same outcome.
func (e *Evaluator) Evaluate(sig trading.Signal, horizon trading.Horizon, bars []market.Bar) (trading.Outcome, error) {
	if !horizon.Valid() {
		return trading.Outcome{}, fmt.Errorf("stats: invalid horizon %q", horizon)
	}

	deadline := sig.GeneratedAt.Add(horizon.Duration())
	var timeStopAt time.Time
	if sig.Risk.TimeStopMinutes > 0 {
		timeStopAt = sig.GeneratedAt.Add(time.Duration(sig.Risk.TimeStopMinutes) * time.Minute)
	}

	exitPrice := 0.0
	var exitReason trading.ExitReason
	reachedDeadline := false
	sawBar := false

	for _, bar := range bars {
		if !bar.Timestamp.After(sig.GeneratedAt) {
			continue
		}
		if bar.Timestamp.After(deadline) {
			reachedDeadline = true
			break
		}
		sawBar = true

		if price, hit := stopHit(sig, bar); hit {
			exitPrice, exitReason = price, trading.ExitStop
			break
		}
		if price, hit := targetHit(sig, bar); hit {
			exitPrice, exitReason = price, trading.ExitTarget
			break
		}
		if !timeStopAt.IsZero() && !bar.Timestamp.Before(timeStopAt) {
			exitPrice, exitReason = bar.Close, trading.ExitTime
			break
		}

		// Provisional horizon exit at the close of the last bar
		// inside the window.
		exitPrice, exitReason = bar.Close, trading.ExitHorizon
	}

	if !sawBar {
		return trading.Outcome{}, fmt.Errorf("%w: signal %s", ErrNoBars, sig.ID)
	}
	if exitReason == trading.ExitHorizon && !reachedDeadline {
		lastTS := bars[len(bars)-1].Timestamp
		return trading.Outcome{}, fmt.Errorf("%w: deadline %s, bars end %s",
			ErrHorizonNotElapsed, deadline.Format(time.RFC3339), lastTS.Format(time.RFC3339))
	}

	return e.buildOutcome(sig, horizon, deadline, exitPrice, exitReason), nil
}

func (e *Evaluator) buildOutcome(sig trading.Signal, horizon trading.Horizon, evaluatedAt time.Time, exitPrice float64, reason trading.ExitReason) trading.Outcome {
	grossPct := 0.0
	if sig.Risk.Entry > 0 {
		grossPct = (exitPrice - sig.Risk.Entry) / sig.Risk.Entry * 100
		if sig.Side == trading.SideShort {
			grossPct = -grossPct
		}
	}
	netPct := grossPct - e.costs.RoundTripPct(sig.Risk.Notional)

	outcome := trading.Outcome{
		SignalID:    sig.ID,
		Symbol:      sig.Symbol,
		Horizon:     horizon,
		EvaluatedAt: evaluatedAt,
		ExitPrice:   exitPrice,
		ExitReason:  reason,
		GrossPct:    grossPct,
		NetPct:      netPct,
		RMultiple:   sig.Risk.RMultiple(sig.Side, exitPrice),
		Win:         netPct > e.winThresholdPct,
	}

	e.log.Debug().
		Str("symbol", sig.Symbol).
		Str("horizon", string(horizon)).
		Str("exit_reason", string(reason)).
		Float64("net_pct", netPct).
		Bool("win", outcome.Win).
		Msg("signal evaluated")

	return outcome
}

func stopHit(sig trading.Signal, bar market.Bar) (float64, bool) {
	if sig.Side == trading.SideShort {
		if bar.High >= sig.Risk.Stop {
			return sig.Risk.Stop, true
		}
		return 0, false
	}
	if bar.Low <= sig.Risk.Stop {
		return sig.Risk.Stop, true
	}
	return 0, false
}

func targetHit(sig trading.Signal, bar market.Bar) (float64, bool) {
	if len(sig.Risk.Targets) == 0 {
		return 0, false
	}
	first := sig.Risk.Targets[0]
	if sig.Side == trading.SideShort {
		if bar.Low <= first {
			return first, true
		}
		return 0, false
	}
	if bar.High >= first {
		return first, true
	}
	return 0, false
}
