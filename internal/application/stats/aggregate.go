// Package stats evaluates stored signals against realized prices and
// aggregates outcomes into performance metrics. The same aggregation
// path serves live stats and backtest summaries so the two never
// drift.
package stats

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/alphastack/tradepulse/internal/domain/trading"
)

// ErrInsufficientSample is returned when a window holds fewer than two
// outcomes. Ratios over one data point are noise, not statistics.
var ErrInsufficientSample = errors.New("stats: insufficient sample")

// periodsPerYear annualizes per-trade ratios assuming one aggregate
// period per trading day.
const periodsPerYear = 252

// Aggregate computes performance metrics over net percent returns in
// chronological order. Needs at least two returns.
func Aggregate(returns []float64) (trading.Performance, error) {
	if len(returns) < 2 {
		return trading.Performance{}, fmt.Errorf("%w: got %d outcomes, need at least 2",
			ErrInsufficientSample, len(returns))
	}

	n := float64(len(returns))
	wins, sum := 0, 0.0
	grossGain, grossLoss := 0.0, 0.0
	for _, r := range returns {
		sum += r
		if r > 0 {
			wins++
			grossGain += r
		} else {
			grossLoss -= r
		}
	}
	mean := sum / n

	variance := 0.0
	downside := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
		if r < 0 {
			downside += r * r
		}
	}
	std := math.Sqrt(variance / (n - 1))
	downsideDev := math.Sqrt(downside / n)

	perf := trading.Performance{
		SampleSize:   len(returns),
		WinRate:      float64(wins) / n,
		AvgReturnPct: mean,
		MaxDrawdown:  maxDrawdown(returns),
	}

	annual := math.Sqrt(periodsPerYear)
	if std > 0 {
		perf.Sharpe = mean / std * annual
	}
	if downsideDev > 0 {
		perf.Sortino = mean / downsideDev * annual
	}
	if perf.MaxDrawdown > 0 {
		perf.Calmar = mean * periodsPerYear / perf.MaxDrawdown
	}
	if grossLoss > 0 {
		perf.ProfitFactor = grossGain / grossLoss
	} else if grossGain > 0 {
		perf.ProfitFactor = math.Inf(1)
	}

	return perf, nil
}

// maxDrawdown compounds the percent returns into an equity curve and
// returns the deepest peak-to-trough decline, in percent.
func maxDrawdown(returns []float64) float64 {
	equity := 1.0
	peak := 1.0
	worst := 0.0
	for _, r := range returns {
		equity *= 1 + r/100
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak * 100; dd > worst {
			worst = dd
		}
	}
	return worst
}

// AggregateOutcomes splits outcomes by horizon and aggregates each
// bucket, stamping the window bounds. Buckets below the minimum sample
// are skipped rather than reported as zeros.
func AggregateOutcomes(outcomes []trading.Outcome, start, end time.Time) map[trading.Horizon]trading.Performance {
	byHorizon := make(map[trading.Horizon][]float64)
	for _, o := range outcomes {
		byHorizon[o.Horizon] = append(byHorizon[o.Horizon], o.NetPct)
	}

	result := make(map[trading.Horizon]trading.Performance, len(byHorizon))
	for horizon, rets := range byHorizon {
		perf, err := Aggregate(rets)
		if err != nil {
			continue
		}
		perf.Horizon = horizon
		perf.WindowStart = start
		perf.WindowEnd = end
		result[horizon] = perf
	}
	return result
}
