package scan

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphastack/tradepulse/internal/application/universe"
	"github.com/alphastack/tradepulse/internal/domain/features"
	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/domain/risk"
	"github.com/alphastack/tradepulse/internal/domain/scoring"
	"github.com/alphastack/tradepulse/internal/domain/trading"
	"github.com/alphastack/tradepulse/internal/metrics"
)

// fixtureSource serves canned bars keyed by symbol and timeframe.
type fixtureSource struct {
	bars map[string]map[market.Timeframe][]market.Bar
}

func (f *fixtureSource) FetchBars(_ context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error) {
	var out []market.Bar
	for _, b := range f.bars[symbol][tf] {
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// memorySink collects signals in memory.
type memorySink struct {
	mu      sync.Mutex
	signals []trading.Signal
}

func (m *memorySink) SaveSignal(_ context.Context, sig trading.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, sig)
	return nil
}

var scanNow = time.Date(2025, 6, 2, 13, 0, 0, 0, market.Eastern())

// dailyBars builds n prior daily closes ending yesterday, with the
// final day's change set in percent.
func dailyBars(base, lastChangePct float64, n int) []market.Bar {
	out := make([]market.Bar, n)
	day := time.Date(2025, 6, 1, 16, 0, 0, 0, market.Eastern())
	for i := n - 1; i >= 0; i-- {
		day = day.AddDate(0, 0, -1)
		for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, -1)
		}
		cls := base
		if i == n-1 {
			cls = base * (1 + lastChangePct/100)
		}
		out[i] = market.Bar{
			Timestamp: day,
			Open:      cls - 0.5, High: cls + 1.5, Low: cls - 1.5, Close: cls,
			Volume: 1_000_000,
		}
	}
	// Restore chronological order after walking backwards.
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// intradayBars builds minute bars ending at scanNow.
func intradayBars(start, drift float64, n int) []market.Bar {
	out := make([]market.Bar, n)
	price := start
	first := scanNow.Add(-time.Duration(n) * time.Minute)
	for i := range out {
		wobble := 0.1 * math.Sin(float64(i)/3)
		o := price
		price += drift + wobble
		out[i] = market.Bar{
			Timestamp: first.Add(time.Duration(i) * time.Minute),
			Open:      o,
			High:      math.Max(o, price) + 0.1,
			Low:       math.Min(o, price) - 0.1,
			Close:     price,
			Volume:    2000 + 30*float64(i%7),
		}
	}
	return out
}

func flatBars(price float64, n int) []market.Bar {
	out := make([]market.Bar, n)
	first := scanNow.Add(-time.Duration(n) * time.Minute)
	for i := range out {
		out[i] = market.Bar{
			Timestamp: first.Add(time.Duration(i) * time.Minute),
			Open:      price, High: price, Low: price, Close: price,
			Volume: 1000,
		}
	}
	return out
}

func testAccount() trading.AccountState {
	return trading.AccountState{
		Equity:      50_000,
		BuyingPower: 100_000,
	}
}

func newTestPipeline(cfg Config, source *fixtureSource, sink SignalSink) *Pipeline {
	clock := market.FixedClock{T: scanNow}
	ucfg := universe.DefaultConfig()
	ucfg.Fallback = nil
	return NewPipeline(
		cfg,
		source,
		universe.NewSelector(ucfg, clock, zerolog.Nop()),
		features.NewEngine(features.DefaultConfig()),
		scoring.NewRuleScorer(scoring.DefaultRuleWeights()),
		risk.NewEngine(risk.DefaultConfig(), clock, zerolog.Nop()),
		sink,
		metrics.NewRegistry(),
		clock,
		zerolog.Nop(),
	)
}

func TestRunEmitsSignalAndFiltersSpike(t *testing.T) {
	source := &fixtureSource{bars: map[string]map[market.Timeframe][]market.Bar{
		"TREND": {
			market.Timeframe1d: dailyBars(100, 2, 30),
			market.Timeframe1m: intradayBars(100, 0.08, 180),
		},
		"SPIKE": {
			market.Timeframe1d: dailyBars(30, 1487, 30),
			market.Timeframe1m: intradayBars(30, 0.5, 180),
		},
	}}
	sink := &memorySink{}

	cfg := DefaultConfig()
	cfg.Symbols = []string{"TREND", "SPIKE"}
	cfg.ScoreThreshold = 0.2

	p := newTestPipeline(cfg, source, sink)
	defer p.Close()

	report, err := p.Run(context.Background(), trading.ModeSafe, testAccount())
	require.NoError(t, err)

	assert.Equal(t, 1, report.UniverseSize)
	assert.Equal(t, universe.SourceDynamic, report.UniverseSource)
	var spikeExcluded bool
	for _, ex := range report.Exclusions {
		if ex.Symbol == "SPIKE" && ex.Reason == "unsustainable_move" {
			spikeExcluded = true
		}
	}
	assert.True(t, spikeExcluded, "the parabolic mover must not reach scoring")

	require.NotEmpty(t, report.Signals)
	sig := report.Signals[0]
	assert.Equal(t, "TREND", sig.Symbol)
	assert.Equal(t, trading.SideLong, sig.Side)
	assert.Equal(t, universe.SourceDynamic, sig.UniverseSource)
	assert.Greater(t, sig.Risk.Shares, 0)
	assert.False(t, sig.GeneratedAt.After(scanNow))
	assert.Equal(t, sink.signals, report.Signals)
}

func TestRunCountsGuardrailRejections(t *testing.T) {
	source := &fixtureSource{bars: map[string]map[market.Timeframe][]market.Bar{
		"TREND": {
			market.Timeframe1d: dailyBars(100, 2, 30),
			market.Timeframe1m: intradayBars(100, 0.08, 180),
		},
	}}
	sink := &memorySink{}

	cfg := DefaultConfig()
	cfg.Symbols = []string{"TREND"}
	cfg.ScoreThreshold = 0.2

	p := newTestPipeline(cfg, source, sink)
	defer p.Close()

	account := testAccount()
	account.OpenPositions = 5

	report, err := p.Run(context.Background(), trading.ModeSafe, account)
	require.NoError(t, err)
	assert.Empty(t, report.Signals)
	assert.Equal(t, 1, report.Rejections["max_open_positions"])
}

func TestRunSkipsZeroVolatility(t *testing.T) {
	source := &fixtureSource{bars: map[string]map[market.Timeframe][]market.Bar{
		"HALT": {
			market.Timeframe1d: dailyBars(100, 2, 30),
			market.Timeframe1m: flatBars(100, 180),
		},
	}}
	sink := &memorySink{}

	cfg := DefaultConfig()
	cfg.Symbols = []string{"HALT"}
	cfg.ScoreThreshold = 0

	p := newTestPipeline(cfg, source, sink)
	defer p.Close()

	report, err := p.Run(context.Background(), trading.ModeSafe, testAccount())
	require.NoError(t, err)
	assert.Empty(t, report.Signals)
	assert.Equal(t, 1, report.Rejections["zero_volatility"])
}

func TestRunReportsInsufficientData(t *testing.T) {
	source := &fixtureSource{bars: map[string]map[market.Timeframe][]market.Bar{
		"THIN": {
			market.Timeframe1d: dailyBars(100, 2, 30),
			market.Timeframe1m: intradayBars(100, 0.05, 10),
		},
	}}
	sink := &memorySink{}

	cfg := DefaultConfig()
	cfg.Symbols = []string{"THIN"}

	p := newTestPipeline(cfg, source, sink)
	defer p.Close()

	report, err := p.Run(context.Background(), trading.ModeSafe, testAccount())
	require.NoError(t, err)
	assert.Empty(t, report.Signals)
	assert.Equal(t, 1, report.Rejections["insufficient_data"])
}

func TestRunRequiresSymbols(t *testing.T) {
	p := newTestPipeline(DefaultConfig(), &fixtureSource{}, &memorySink{})
	defer p.Close()

	_, err := p.Run(context.Background(), trading.ModeSafe, testAccount())
	assert.Error(t, err)
}

// faultySource fails intraday fetches for selected symbols.
type faultySource struct {
	inner *fixtureSource
	fail  map[string]bool
}

func (f *faultySource) FetchBars(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error) {
	if f.fail[symbol] && tf == market.Timeframe1m {
		return nil, errors.New("vendor outage")
	}
	return f.inner.FetchBars(ctx, symbol, tf, start, end)
}

func TestRunLogsSymbolErrors(t *testing.T) {
	inner := &fixtureSource{bars: map[string]map[market.Timeframe][]market.Bar{
		"FLKY": {
			market.Timeframe1d: dailyBars(100, 2, 30),
		},
	}}
	source := &faultySource{inner: inner, fail: map[string]bool{"FLKY": true}}

	var buf bytes.Buffer
	clock := market.FixedClock{T: scanNow}
	ucfg := universe.DefaultConfig()
	ucfg.Fallback = nil

	cfg := DefaultConfig()
	cfg.Symbols = []string{"FLKY"}

	p := NewPipeline(
		cfg,
		source,
		universe.NewSelector(ucfg, clock, zerolog.Nop()),
		features.NewEngine(features.DefaultConfig()),
		scoring.NewRuleScorer(scoring.DefaultRuleWeights()),
		risk.NewEngine(risk.DefaultConfig(), clock, zerolog.Nop()),
		&memorySink{},
		metrics.NewRegistry(),
		clock,
		zerolog.New(&buf),
	)
	defer p.Close()

	report, err := p.Run(context.Background(), trading.ModeSafe, testAccount())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Contains(t, buf.String(), "symbol scan failed")
	assert.Contains(t, buf.String(), "FLKY")
}

func TestRunCountsModelFallbacks(t *testing.T) {
	source := &fixtureSource{bars: map[string]map[market.Timeframe][]market.Bar{
		"TREND": {
			market.Timeframe1d: dailyBars(100, 2, 30),
			market.Timeframe1m: intradayBars(100, 0.08, 180),
		},
	}}

	clock := market.FixedClock{T: scanNow}
	ucfg := universe.DefaultConfig()
	ucfg.Fallback = nil

	cfg := DefaultConfig()
	cfg.Symbols = []string{"TREND"}
	cfg.ScoreThreshold = 0.2

	// A blended scorer with no published artifact must degrade to
	// rules and surface the fallback in the counter.
	blend := scoring.NewBlendScorer(
		scoring.NewRuleScorer(scoring.DefaultRuleWeights()),
		&scoring.ArtifactHolder{}, 0.4, zerolog.Nop())
	reg := metrics.NewRegistry()

	p := NewPipeline(
		cfg,
		source,
		universe.NewSelector(ucfg, clock, zerolog.Nop()),
		features.NewEngine(features.DefaultConfig()),
		blend,
		risk.NewEngine(risk.DefaultConfig(), clock, zerolog.Nop()),
		&memorySink{},
		reg,
		clock,
		zerolog.Nop(),
	)
	defer p.Close()

	_, err := p.Run(context.Background(), trading.ModeSafe, testAccount())
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.ModelFallbacks))
}
