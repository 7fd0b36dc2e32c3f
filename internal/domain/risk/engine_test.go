package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/domain/trading"
)

// middayClock pins the session check to a Monday 11:00 ET.
func middayClock() market.Clock {
	return market.FixedClock{T: time.Date(2025, 6, 2, 11, 0, 0, 0, market.Eastern())}
}

func testConfig() Config {
	cfg := DefaultConfig()
	// 1% per trade with a 2x ATR stop keeps the arithmetic legible.
	cfg.Safe = ModeParams{
		RiskPct:         0.01,
		StopATRMult:     2.0,
		TimeStopMinutes: 45,
		TargetR:         []float64{2, 3, 4},
	}
	cfg.MaxLossFixedUSD = 1000
	cfg.MaxLossEquityFrac = 0.01
	// Flat sizing keeps the share arithmetic legible.
	cfg.MinConfidenceAdj = 1
	cfg.KellySafetyFrac = 0
	return cfg
}

func healthyAccount() trading.AccountState {
	return trading.AccountState{
		Equity:      10_000,
		BuyingPower: 20_000,
	}
}

func longCandidate() Candidate {
	return Candidate{
		Symbol:      "AAPL",
		Side:        trading.SideLong,
		Entry:       100,
		ATR:         1.0,
		RealizedVol: 0.008,
		Score:       0.8,
		Confidence:  0.7,
	}
}

func TestPlanFixedFractionalSizing(t *testing.T) {
	eng := NewEngine(testConfig(), middayClock(), zerolog.Nop())

	// 10k equity at 1% risks $100. Entry 100 with a 2-point stop
	// distance gives exactly 50 shares.
	decision := eng.Plan(longCandidate(), healthyAccount(), trading.ModeSafe)
	require.True(t, decision.Approved)
	require.NotNil(t, decision.Plan)
	require.Nil(t, decision.Rejection)

	plan := decision.Plan
	assert.Equal(t, 50, plan.Shares)
	assert.InDelta(t, 98.0, plan.Stop, 1e-9)
	assert.InDelta(t, 100.0, plan.MaxLossUSD, 1e-9)
	assert.InDelta(t, 5000.0, plan.Notional, 1e-9)
	assert.Equal(t, 45, plan.TimeStopMinutes)
	require.Len(t, plan.Targets, 3)
	assert.InDelta(t, 104.0, plan.Targets[0], 1e-9)
	assert.InDelta(t, 106.0, plan.Targets[1], 1e-9)
	assert.InDelta(t, 108.0, plan.Targets[2], 1e-9)
}

func TestPlanShortSideMirrorsLevels(t *testing.T) {
	cfg := testConfig()
	cfg.AllowShorts = true
	eng := NewEngine(cfg, middayClock(), zerolog.Nop())

	c := longCandidate()
	c.Side = trading.SideShort

	decision := eng.Plan(c, healthyAccount(), trading.ModeSafe)
	require.True(t, decision.Approved)
	assert.InDelta(t, 102.0, decision.Plan.Stop, 1e-9)
	assert.InDelta(t, 96.0, decision.Plan.Targets[0], 1e-9)
}

func TestPlanMaxLossNeverExceedsCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLossFixedUSD = 40 // tighter than the 1% risk budget
	eng := NewEngine(cfg, middayClock(), zerolog.Nop())

	decision := eng.Plan(longCandidate(), healthyAccount(), trading.ModeSafe)
	require.True(t, decision.Approved)
	assert.LessOrEqual(t, decision.Plan.MaxLossUSD, 40.0)
	assert.Equal(t, 20, decision.Plan.Shares)
}

func TestPlanConfidenceScalesBudget(t *testing.T) {
	cfg := testConfig()
	cfg.MinConfidenceAdj = 0.5
	cfg.MaxLossFixedUSD = 10_000 // keep the loss cap out of the way
	eng := NewEngine(cfg, middayClock(), zerolog.Nop())

	strong := longCandidate()
	strong.Confidence = 1.0
	weak := longCandidate()
	weak.Confidence = 0.0

	// Budget 100 at full confidence, floored at 50 with none.
	assert.Equal(t, 50, eng.Plan(strong, healthyAccount(), trading.ModeSafe).Plan.Shares)
	assert.Equal(t, 25, eng.Plan(weak, healthyAccount(), trading.ModeSafe).Plan.Shares)
}

func TestPlanKellyCapBoundsNotional(t *testing.T) {
	cfg := testConfig()
	cfg.KellySafetyFrac = 0.25
	cfg.KellyMaxFrac = 0.10
	eng := NewEngine(cfg, middayClock(), zerolog.Nop())

	// Confidence 0.7 against 2R odds is deep enough into positive
	// Kelly to hit the 10% equity ceiling: $1000 notional, 10 shares.
	decision := eng.Plan(longCandidate(), healthyAccount(), trading.ModeSafe)
	require.True(t, decision.Approved)
	assert.Equal(t, 10, decision.Plan.Shares)
	assert.InDelta(t, 1000.0, decision.Plan.Notional, 1e-9)
}

func TestPlanSwingStopTightensATRStop(t *testing.T) {
	eng := NewEngine(testConfig(), middayClock(), zerolog.Nop())

	c := longCandidate()
	c.SwingLow = 99.5 // stop at 98.505, tighter than the 98.0 ATR stop

	decision := eng.Plan(c, healthyAccount(), trading.ModeSafe)
	require.True(t, decision.Approved)
	assert.InDelta(t, 98.505, decision.Plan.Stop, 1e-9)
	assert.InDelta(t, 1.495, decision.Plan.RiskPerShare, 1e-9)

	// A swing level further away than the ATR stop is ignored.
	c.SwingLow = 90
	decision = eng.Plan(c, healthyAccount(), trading.ModeSafe)
	require.True(t, decision.Approved)
	assert.InDelta(t, 98.0, decision.Plan.Stop, 1e-9)
}

func TestMaxLossCapVolatilityAdjustment(t *testing.T) {
	eng := NewEngine(testConfig(), middayClock(), zerolog.Nop())

	// At or below baseline vol the cap is untouched.
	assert.InDelta(t, 100.0, eng.MaxLossCap(10_000, 0.010), 1e-9)
	assert.InDelta(t, 100.0, eng.MaxLossCap(10_000, 0.002), 1e-9)

	// 50% above baseline shrinks the cap by half.
	assert.InDelta(t, 50.0, eng.MaxLossCap(10_000, 0.015), 1e-9)

	// Extreme volatility bottoms out at the floor.
	assert.InDelta(t, 25.0, eng.MaxLossCap(10_000, 0.050), 1e-9)
}

func TestPlanRejectsZeroVolatility(t *testing.T) {
	eng := NewEngine(testConfig(), middayClock(), zerolog.Nop())

	c := longCandidate()
	c.ATR = 0

	decision := eng.Plan(c, healthyAccount(), trading.ModeSafe)
	require.False(t, decision.Approved)
	require.NotNil(t, decision.Rejection)
	assert.Equal(t, "zero_volatility", decision.Rejection.Reason)
}

func TestPlanRejectsBuyingPower(t *testing.T) {
	eng := NewEngine(testConfig(), middayClock(), zerolog.Nop())

	account := healthyAccount()
	account.BuyingPower = 3000 // plan wants 5000 notional

	decision := eng.Plan(longCandidate(), account, trading.ModeSafe)
	require.False(t, decision.Approved)
	rej := decision.Rejection
	assert.Equal(t, "insufficient_buying_power", rej.Reason)
	assert.InDelta(t, 5000.0, rej.CurrentValue, 1e-9)
	assert.InDelta(t, 3000.0, rej.MaxAllowed, 1e-9)
	assert.NotEmpty(t, rej.Fix)
}

func TestPlanRejectsDailyNotional(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDailyNotional = 6000
	eng := NewEngine(cfg, middayClock(), zerolog.Nop())

	account := healthyAccount()
	account.DailyNotionalUsed = 2000 // 2000 + 5000 > 6000

	decision := eng.Plan(longCandidate(), account, trading.ModeSafe)
	require.False(t, decision.Approved)
	assert.Equal(t, "daily_notional_exceeded", decision.Rejection.Reason)
	assert.InDelta(t, 7000.0, decision.Rejection.CurrentValue, 1e-9)
	assert.InDelta(t, 6000.0, decision.Rejection.MaxAllowed, 1e-9)
}

func TestPlanRejectsPatternDayTradingLimit(t *testing.T) {
	eng := NewEngine(testConfig(), middayClock(), zerolog.Nop())

	account := healthyAccount()
	account.DayTradeCount = 3

	decision := eng.Plan(longCandidate(), account, trading.ModeSafe)
	require.False(t, decision.Approved)
	assert.Equal(t, "pattern_day_trading_limit", decision.Rejection.Reason)

	// Flagged PDT accounts and accounts above the floor are exempt.
	account.PatternDayTrader = true
	assert.True(t, eng.Plan(longCandidate(), account, trading.ModeSafe).Approved)

	account.PatternDayTrader = false
	account.Equity = 30_000
	assert.True(t, eng.Plan(longCandidate(), account, trading.ModeSafe).Approved)
}

func TestPlanRejectsOutsideSession(t *testing.T) {
	cfg := testConfig()
	preMarket := market.FixedClock{T: time.Date(2025, 6, 2, 8, 0, 0, 0, market.Eastern())}
	eng := NewEngine(cfg, preMarket, zerolog.Nop())

	decision := eng.Plan(longCandidate(), healthyAccount(), trading.ModeSafe)
	require.False(t, decision.Approved)
	assert.Equal(t, "outside_regular_session", decision.Rejection.Reason)

	cfg.AllowExtendedHours = true
	eng = NewEngine(cfg, preMarket, zerolog.Nop())
	assert.True(t, eng.Plan(longCandidate(), healthyAccount(), trading.ModeSafe).Approved)
}

func TestPlanRejectsShortsWhenDisabled(t *testing.T) {
	eng := NewEngine(testConfig(), middayClock(), zerolog.Nop())

	c := longCandidate()
	c.Side = trading.SideShort

	decision := eng.Plan(c, healthyAccount(), trading.ModeSafe)
	require.False(t, decision.Approved)
	assert.Equal(t, "shorting_disabled", decision.Rejection.Reason)
}

func TestPlanRejectsMaxOpenPositions(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOpenPositions = 2
	eng := NewEngine(cfg, middayClock(), zerolog.Nop())

	account := healthyAccount()
	account.OpenPositions = 2

	decision := eng.Plan(longCandidate(), account, trading.ModeSafe)
	require.False(t, decision.Approved)
	assert.Equal(t, "max_open_positions", decision.Rejection.Reason)
}

func TestPlanRejectsSubShareBudget(t *testing.T) {
	eng := NewEngine(testConfig(), middayClock(), zerolog.Nop())

	c := longCandidate()
	c.Entry = 5000
	c.ATR = 100 // stop distance 200, budget 100

	decision := eng.Plan(c, healthyAccount(), trading.ModeSafe)
	require.False(t, decision.Approved)
	assert.Equal(t, "position_below_one_share", decision.Rejection.Reason)
}

func TestAggressiveModeTightensTimeStop(t *testing.T) {
	cfg := DefaultConfig()
	eng := NewEngine(cfg, middayClock(), zerolog.Nop())

	decision := eng.Plan(longCandidate(), healthyAccount(), trading.ModeAggressive)
	require.True(t, decision.Approved)
	assert.Equal(t, 25, decision.Plan.TimeStopMinutes)
	assert.InDelta(t, 2.0, decision.Plan.RiskPerShare, 1e-9, "aggressive stop is 2x ATR")
}
