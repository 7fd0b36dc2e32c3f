package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphastack/tradepulse/internal/domain/features"
	"github.com/alphastack/tradepulse/internal/domain/trading"
)

func newMockStore(t *testing.T) (*SignalStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewSignalStore(sqlxDB, 5*time.Second, zerolog.Nop()), mock
}

func sampleSignal() trading.Signal {
	return trading.Signal{
		ID:             uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2"),
		Symbol:         "AAPL",
		GeneratedAt:    time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC),
		Mode:           trading.ModeSafe,
		Side:           trading.SideLong,
		Score:          0.72,
		Confidence:     0.61,
		ScoreSource:    "rules",
		UniverseSource: "dynamic",
		Features:       features.Vector{Symbol: "AAPL", Price: 187.5, RSI14: 55},
		Risk: trading.RiskPlan{
			Entry: 187.5, Stop: 185.2, Targets: []float64{192.1, 194.4, 196.7},
			Shares: 43, RiskPerShare: 2.3, MaxLossUSD: 98.9, TimeStopMinutes: 45,
		},
		ThesisTags: []string{"momentum", "volume_surge"},
	}
}

func TestSaveSignalInsertsSnapshot(t *testing.T) {
	s, mock := newMockStore(t)
	sig := sampleSignal()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO signals")).
		WithArgs(sig.ID, sig.Symbol, sig.GeneratedAt, sig.Mode, sig.Side,
			sig.Score, sig.Confidence, sig.ScoreSource, sig.UniverseSource,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SaveSignal(context.Background(), sig))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveOutcomeIdempotentOnConflict(t *testing.T) {
	s, mock := newMockStore(t)
	out := trading.Outcome{
		SignalID:    sampleSignal().ID,
		Symbol:      "AAPL",
		Horizon:     trading.Horizon30m,
		EvaluatedAt: time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC),
		ExitPrice:   189.1,
		ExitReason:  trading.ExitTarget,
		GrossPct:    0.85,
		NetPct:      0.80,
		RMultiple:   0.7,
		Win:         true,
	}

	// Second insert hits ON CONFLICT DO NOTHING and affects zero rows.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outcomes")).
		WithArgs(out.SignalID, out.Symbol, out.Horizon, out.EvaluatedAt,
			out.ExitPrice, out.ExitReason, out.GrossPct, out.NetPct,
			out.RMultiple, out.Win).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outcomes")).
		WithArgs(out.SignalID, out.Symbol, out.Horizon, out.EvaluatedAt,
			out.ExitPrice, out.ExitReason, out.GrossPct, out.NetPct,
			out.RMultiple, out.Win).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.SaveOutcome(context.Background(), out))
	require.NoError(t, s.SaveOutcome(context.Background(), out))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSignalRoundTripsSnapshots(t *testing.T) {
	s, mock := newMockStore(t)
	sig := sampleSignal()

	featuresJSON, err := json.Marshal(sig.Features)
	require.NoError(t, err)
	riskJSON, err := json.Marshal(sig.Risk)
	require.NoError(t, err)
	tagsJSON, err := json.Marshal(sig.ThesisTags)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"id", "symbol", "generated_at", "mode", "side", "score", "confidence",
		"score_source", "universe_source", "features", "risk_plan", "thesis_tags",
	}).AddRow(sig.ID, sig.Symbol, sig.GeneratedAt, string(sig.Mode), string(sig.Side),
		sig.Score, sig.Confidence, sig.ScoreSource, sig.UniverseSource,
		featuresJSON, riskJSON, tagsJSON)

	mock.ExpectQuery(regexp.QuoteMeta("FROM signals")).
		WithArgs(sig.ID).
		WillReturnRows(rows)

	got, err := s.GetSignal(context.Background(), sig.ID)
	require.NoError(t, err)
	assert.Equal(t, sig, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSignalNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM signals")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetSignal(context.Background(), id)
	assert.ErrorIs(t, err, ErrSignalNotFound)
}

func TestSavePerformanceSupersedesPriorRow(t *testing.T) {
	s, mock := newMockStore(t)
	perf := trading.Performance{
		WindowStart: time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Horizon:     trading.Horizon30m,
		SampleSize:  40,
		WinRate:     0.55,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE performance SET superseded = TRUE")).
		WithArgs(trading.ModeSafe, trading.PeriodDaily, perf.Horizon).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO performance")).
		WithArgs(trading.ModeSafe, trading.PeriodDaily, perf.Horizon, perf.WindowEnd, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SavePerformance(context.Background(), trading.ModeSafe, trading.PeriodDaily, perf))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestPerformanceReturnsCurrentRows(t *testing.T) {
	s, mock := newMockStore(t)
	perf := trading.Performance{Horizon: trading.Horizon2h, SampleSize: 12, WinRate: 0.5, Sharpe: 1.1}
	metricsJSON, err := json.Marshal(perf)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"horizon", "metrics"}).
		AddRow(string(trading.Horizon2h), metricsJSON)

	mock.ExpectQuery(regexp.QuoteMeta("FROM performance")).
		WithArgs(trading.ModeAggressive, trading.PeriodAllTime).
		WillReturnRows(rows)

	got, err := s.LatestPerformance(context.Background(), trading.ModeAggressive, trading.PeriodAllTime)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, perf, got[trading.Horizon2h])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrainingSamplesJoinFrozenFeatures(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	vec := features.Vector{Symbol: "AAPL", Price: 187.5, RSI14: 58, Momentum15: 0.4}
	featuresJSON, err := json.Marshal(vec)
	require.NoError(t, err)
	at := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"features", "win", "generated_at"}).
		AddRow(featuresJSON, true, at).
		AddRow(featuresJSON, false, at.Add(time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta("JOIN signals")).
		WithArgs(since).
		WillReturnRows(rows)

	samples, err := s.TrainingSamples(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, vec.ModelValues(), samples[0].Features)
	assert.Equal(t, 1.0, samples[0].Label)
	assert.Equal(t, 0.0, samples[1].Label)
	assert.Equal(t, at, samples[0].At)
	assert.NoError(t, mock.ExpectationsWereMet())
}
