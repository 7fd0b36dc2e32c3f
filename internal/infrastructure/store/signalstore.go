package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/alphastack/tradepulse/internal/application/learn"
	"github.com/alphastack/tradepulse/internal/domain/features"
	"github.com/alphastack/tradepulse/internal/domain/trading"
)

var (
	// ErrDuplicateSignal means a signal with the same ID already exists.
	// Signals are write-once, so this is a caller bug, not a retry case.
	ErrDuplicateSignal = errors.New("store: duplicate signal")

	// ErrSignalNotFound is returned by point lookups.
	ErrSignalNotFound = errors.New("store: signal not found")
)

// SignalStore persists signals and their evaluated outcomes in
// PostgreSQL.
type SignalStore struct {
	db      *sqlx.DB
	timeout time.Duration
	log     zerolog.Logger
}

func NewSignalStore(db *sqlx.DB, timeout time.Duration, log zerolog.Logger) *SignalStore {
	return &SignalStore{
		db:      db,
		timeout: timeout,
		log:     log.With().Str("component", "signal_store").Logger(),
	}
}

// EnsureSchema creates tables and indexes if they do not exist.
func (s *SignalStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveSignal writes one signal with its frozen feature and risk
// snapshots.
func (s *SignalStore) SaveSignal(ctx context.Context, sig trading.Signal) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	featuresJSON, err := json.Marshal(sig.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	riskJSON, err := json.Marshal(sig.Risk)
	if err != nil {
		return fmt.Errorf("marshal risk plan: %w", err)
	}
	tagsJSON, err := json.Marshal(sig.ThesisTags)
	if err != nil {
		return fmt.Errorf("marshal thesis tags: %w", err)
	}

	query := `
		INSERT INTO signals (id, symbol, generated_at, mode, side, score, confidence, score_source, universe_source, features, risk_plan, thesis_tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.db.ExecContext(ctx, query,
		sig.ID, sig.Symbol, sig.GeneratedAt, sig.Mode, sig.Side,
		sig.Score, sig.Confidence, sig.ScoreSource, sig.UniverseSource,
		featuresJSON, riskJSON, tagsJSON)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateSignal, sig.ID)
		}
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// SaveOutcome records one evaluated horizon for a signal. A replayed
// evaluation of the same (signal, horizon) is a no-op.
func (s *SignalStore) SaveOutcome(ctx context.Context, out trading.Outcome) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO outcomes (signal_id, symbol, horizon, evaluated_at, exit_price, exit_reason, gross_pct, net_pct, r_multiple, win)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (signal_id, horizon) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		out.SignalID, out.Symbol, out.Horizon, out.EvaluatedAt,
		out.ExitPrice, out.ExitReason, out.GrossPct, out.NetPct,
		out.RMultiple, out.Win)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.log.Debug().
			Str("signal_id", out.SignalID.String()).
			Str("horizon", string(out.Horizon)).
			Msg("outcome already recorded")
	}
	return nil
}

// GetSignal loads one signal by ID.
func (s *SignalStore) GetSignal(ctx context.Context, id uuid.UUID) (trading.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT id, symbol, generated_at, mode, side, score, confidence, score_source, universe_source, features, risk_plan, thesis_tags
		FROM signals
		WHERE id = $1`

	sig, err := scanSignal(s.db.QueryRowxContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return trading.Signal{}, fmt.Errorf("%w: %s", ErrSignalNotFound, id)
		}
		return trading.Signal{}, fmt.Errorf("get signal: %w", err)
	}
	return sig, nil
}

// RecentSignals returns signals generated at or after since, newest
// first.
func (s *SignalStore) RecentSignals(ctx context.Context, since time.Time, limit int) ([]trading.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT id, symbol, generated_at, mode, side, score, confidence, score_source, universe_source, features, risk_plan, thesis_tags
		FROM signals
		WHERE generated_at >= $1
		ORDER BY generated_at DESC
		LIMIT $2`

	rows, err := s.db.QueryxContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent signals: %w", err)
	}
	defer rows.Close()

	var signals []trading.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return signals, nil
}

// OutcomesSince returns outcomes evaluated at or after since, oldest
// first so aggregation windows read naturally.
func (s *SignalStore) OutcomesSince(ctx context.Context, since time.Time) ([]trading.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT signal_id, symbol, horizon, evaluated_at, exit_price, exit_reason, gross_pct, net_pct, r_multiple, win
		FROM outcomes
		WHERE evaluated_at >= $1
		ORDER BY evaluated_at ASC`

	rows, err := s.db.QueryxContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []trading.Outcome
	for rows.Next() {
		var out trading.Outcome
		if err := rows.Scan(
			&out.SignalID, &out.Symbol, &out.Horizon, &out.EvaluatedAt,
			&out.ExitPrice, &out.ExitReason, &out.GrossPct, &out.NetPct,
			&out.RMultiple, &out.Win); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcomes = append(outcomes, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

// SavePerformance records a recomputed snapshot for (mode, period,
// horizon). The previous current row is flagged superseded rather than
// rewritten, so history stays queryable.
func (s *SignalStore) SavePerformance(ctx context.Context, mode trading.Mode, period trading.Period, perf trading.Performance) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	metricsJSON, err := json.Marshal(perf)
	if err != nil {
		return fmt.Errorf("marshal performance: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin performance tx: %w", err)
	}
	defer tx.Rollback()

	supersede := `
		UPDATE performance SET superseded = TRUE
		WHERE mode = $1 AND period = $2 AND horizon = $3 AND NOT superseded`
	if _, err := tx.ExecContext(ctx, supersede, mode, period, perf.Horizon); err != nil {
		return fmt.Errorf("supersede performance: %w", err)
	}

	insert := `
		INSERT INTO performance (mode, period, horizon, computed_at, metrics)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, insert, mode, period, perf.Horizon, perf.WindowEnd, metricsJSON); err != nil {
		return fmt.Errorf("insert performance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit performance: %w", err)
	}
	return nil
}

// LatestPerformance returns the current snapshot per horizon for the
// given mode and period. Horizons never computed are absent.
func (s *SignalStore) LatestPerformance(ctx context.Context, mode trading.Mode, period trading.Period) (map[trading.Horizon]trading.Performance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT horizon, metrics
		FROM performance
		WHERE mode = $1 AND period = $2 AND NOT superseded
		ORDER BY horizon ASC`

	rows, err := s.db.QueryxContext(ctx, query, mode, period)
	if err != nil {
		return nil, fmt.Errorf("query performance: %w", err)
	}
	defer rows.Close()

	result := make(map[trading.Horizon]trading.Performance)
	for rows.Next() {
		var (
			horizon     trading.Horizon
			metricsJSON []byte
		)
		if err := rows.Scan(&horizon, &metricsJSON); err != nil {
			return nil, fmt.Errorf("scan performance: %w", err)
		}
		var perf trading.Performance
		if err := json.Unmarshal(metricsJSON, &perf); err != nil {
			return nil, fmt.Errorf("unmarshal performance: %w", err)
		}
		result[horizon] = perf
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate performance: %w", err)
	}
	return result, nil
}

// TrainingSamples joins evaluated outcomes to their frozen feature
// snapshots. One signal can contribute one row per evaluated horizon.
func (s *SignalStore) TrainingSamples(ctx context.Context, since time.Time) ([]learn.Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT s.features, o.win, s.generated_at
		FROM outcomes o
		JOIN signals s ON s.id = o.signal_id
		WHERE o.evaluated_at >= $1
		ORDER BY s.generated_at ASC`

	rows, err := s.db.QueryxContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query training samples: %w", err)
	}
	defer rows.Close()

	var samples []learn.Sample
	for rows.Next() {
		var (
			featuresJSON []byte
			win          bool
			at           time.Time
		)
		if err := rows.Scan(&featuresJSON, &win, &at); err != nil {
			return nil, fmt.Errorf("scan training sample: %w", err)
		}

		var vec features.Vector
		if err := json.Unmarshal(featuresJSON, &vec); err != nil {
			return nil, fmt.Errorf("unmarshal feature snapshot: %w", err)
		}

		label := 0.0
		if win {
			label = 1.0
		}
		samples = append(samples, learn.Sample{
			Features: vec.ModelValues(),
			Label:    label,
			At:       at,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training samples: %w", err)
	}
	return samples, nil
}

// rowScanner covers both sqlx.Row and sqlx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSignal(row rowScanner) (trading.Signal, error) {
	var (
		sig          trading.Signal
		featuresJSON []byte
		riskJSON     []byte
		tagsJSON     []byte
	)
	if err := row.Scan(
		&sig.ID, &sig.Symbol, &sig.GeneratedAt, &sig.Mode, &sig.Side,
		&sig.Score, &sig.Confidence, &sig.ScoreSource, &sig.UniverseSource,
		&featuresJSON, &riskJSON, &tagsJSON); err != nil {
		return trading.Signal{}, err
	}

	if err := json.Unmarshal(featuresJSON, &sig.Features); err != nil {
		return trading.Signal{}, fmt.Errorf("unmarshal features: %w", err)
	}
	if err := json.Unmarshal(riskJSON, &sig.Risk); err != nil {
		return trading.Signal{}, fmt.Errorf("unmarshal risk plan: %w", err)
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &sig.ThesisTags); err != nil {
			return trading.Signal{}, fmt.Errorf("unmarshal thesis tags: %w", err)
		}
	}
	return sig, nil
}
