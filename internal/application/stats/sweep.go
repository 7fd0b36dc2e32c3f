package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alphastack/tradepulse/internal/domain/market"
	"github.com/alphastack/tradepulse/internal/domain/trading"
)

// SignalLedger is the store surface the sweep needs: signals to grade,
// outcomes already graded, and a place to record new ones.
type SignalLedger interface {
	RecentSignals(ctx context.Context, since time.Time, limit int) ([]trading.Signal, error)
	OutcomesSince(ctx context.Context, since time.Time) ([]trading.Outcome, error)
	SaveOutcome(ctx context.Context, out trading.Outcome) error
}

// BarSource provides the price history to grade against.
type BarSource interface {
	FetchBars(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error)
}

// SweepConfig bounds one evaluation pass.
type SweepConfig struct {
	LookbackHours int              `yaml:"lookback_hours"`
	Timeframe     market.Timeframe `yaml:"timeframe"`
	MaxSignals    int              `yaml:"max_signals"`
}

func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		LookbackHours: 48,
		Timeframe:     market.Timeframe1m,
		MaxSignals:    500,
	}
}

// SweepReport summarizes one pass.
type SweepReport struct {
	SignalsChecked int `json:"signals_checked"`
	Evaluated      int `json:"evaluated"`
	Pending        int `json:"pending"` // horizons not yet elapsed
	Errors         int `json:"errors"`
}

// Sweeper grades stored signals whose horizons have elapsed and writes
// the outcomes back. Reruns are safe: already-graded pairs are skipped
// here and deduplicated again by the store.
type Sweeper struct {
	cfg       SweepConfig
	ledger    SignalLedger
	source    BarSource
	evaluator *Evaluator
	clock     market.Clock
	log       zerolog.Logger
}

func NewSweeper(cfg SweepConfig, ledger SignalLedger, source BarSource, evaluator *Evaluator, clock market.Clock, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		cfg:       cfg,
		ledger:    ledger,
		source:    source,
		evaluator: evaluator,
		clock:     clock,
		log:       log.With().Str("component", "outcome_sweep").Logger(),
	}
}

type horizonKey struct {
	id      uuid.UUID
	horizon trading.Horizon
}

// Run grades every unevaluated (signal, horizon) pair inside the
// lookback window.
func (s *Sweeper) Run(ctx context.Context) (*SweepReport, error) {
	now := s.clock.Now()
	since := now.Add(-time.Duration(s.cfg.LookbackHours) * time.Hour)

	signals, err := s.ledger.RecentSignals(ctx, since, s.cfg.MaxSignals)
	if err != nil {
		return nil, fmt.Errorf("stats: load signals: %w", err)
	}
	graded, err := s.ledger.OutcomesSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("stats: load outcomes: %w", err)
	}

	done := make(map[horizonKey]bool, len(graded))
	for _, out := range graded {
		done[horizonKey{out.SignalID, out.Horizon}] = true
	}

	report := &SweepReport{SignalsChecked: len(signals)}
	for _, sig := range signals {
		if err := s.gradeSignal(ctx, sig, now, done, report); err != nil {
			return report, err
		}
	}

	s.log.Info().
		Int("checked", report.SignalsChecked).
		Int("evaluated", report.Evaluated).
		Int("pending", report.Pending).
		Int("errors", report.Errors).
		Msg("outcome sweep complete")
	return report, nil
}

func (s *Sweeper) gradeSignal(ctx context.Context, sig trading.Signal, now time.Time, done map[horizonKey]bool, report *SweepReport) error {
	var bars []market.Bar
	barsLoaded := false

	for _, horizon := range trading.Horizons() {
		if done[horizonKey{sig.ID, horizon}] {
			continue
		}
		if now.Before(sig.GeneratedAt.Add(horizon.Duration())) {
			report.Pending++
			continue
		}

		if !barsLoaded {
			raw, err := s.source.FetchBars(ctx, sig.Symbol, s.cfg.Timeframe, sig.GeneratedAt, now)
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("bar fetch failed")
				report.Errors++
				return nil
			}
			bars, _ = market.Sanitize(raw)
			barsLoaded = true
		}

		out, err := s.evaluator.Evaluate(sig, horizon, bars)
		if err != nil {
			if errors.Is(err, ErrHorizonNotElapsed) || errors.Is(err, ErrNoBars) {
				report.Pending++
				continue
			}
			report.Errors++
			s.log.Warn().Err(err).Str("signal_id", sig.ID.String()).Msg("evaluation failed")
			continue
		}

		if err := s.ledger.SaveOutcome(ctx, out); err != nil {
			return fmt.Errorf("stats: save outcome: %w", err)
		}
		report.Evaluated++
	}
	return nil
}
