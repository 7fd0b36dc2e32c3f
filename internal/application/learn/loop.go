package learn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/alphastack/tradepulse/internal/domain/features"
	"github.com/alphastack/tradepulse/internal/domain/scoring"
	"github.com/alphastack/tradepulse/internal/metrics"
)

// SampleSource supplies labeled training rows, usually backed by the
// signal store's evaluated outcomes.
type SampleSource interface {
	TrainingSamples(ctx context.Context, since time.Time) ([]Sample, error)
}

// LoopConfig tunes the retraining cadence.
type LoopConfig struct {
	IntervalHours int `yaml:"interval_hours"`
	LookbackDays  int `yaml:"lookback_days"`
}

// DefaultLoopConfig retrains nightly over a 60 day window.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		IntervalHours: 24,
		LookbackDays:  60,
	}
}

// Interval returns time between retrain cycles.
func (c LoopConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// Lookback returns how far back training samples reach.
func (c LoopConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// Loop periodically retrains the model and publishes accepted
// artifacts without interrupting in-flight scans.
type Loop struct {
	cfg     LoopConfig
	source  SampleSource
	trainer *Trainer
	store   *ArtifactStore
	holder  *scoring.ArtifactHolder
	reg     *metrics.Registry
	log     zerolog.Logger
}

// NewLoop wires the retraining loop. A nil registry disables counters.
func NewLoop(cfg LoopConfig, source SampleSource, trainer *Trainer, store *ArtifactStore, holder *scoring.ArtifactHolder, reg *metrics.Registry, log zerolog.Logger) *Loop {
	return &Loop{
		cfg:     cfg,
		source:  source,
		trainer: trainer,
		store:   store,
		holder:  holder,
		reg:     reg,
		log:     log.With().Str("component", "learning_loop").Logger(),
	}
}

// Restore loads the last published artifact from disk into the holder.
// Missing artifacts are fine, scoring simply stays on rules.
func (l *Loop) Restore() error {
	artifact, err := l.store.LoadCurrent()
	if err != nil {
		if errors.Is(err, ErrNoArtifact) {
			l.log.Info().Msg("no artifact on disk, scoring on rules")
			return nil
		}
		return err
	}
	l.holder.Publish(artifact)
	l.log.Info().Str("version", artifact.Version).Msg("artifact restored")
	return nil
}

// Run retrains on the configured cadence until the context ends. The
// first cycle runs immediately.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval())
	defer ticker.Stop()

	for {
		if err := l.RunOnce(ctx); err != nil {
			l.log.Warn().Err(err).Msg("retrain cycle failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single train-validate-publish cycle. A model
// that fails the gate leaves the current artifact in place.
func (l *Loop) RunOnce(ctx context.Context) error {
	since := time.Now().Add(-l.cfg.Lookback())
	samples, err := l.source.TrainingSamples(ctx, since)
	if err != nil {
		return fmt.Errorf("learn: load samples: %w", err)
	}

	version := fmt.Sprintf("v%s", time.Now().UTC().Format("20060102-150405"))
	artifact, err := l.trainer.Train(samples, features.ModelFeatureNames(), version)
	if err != nil {
		if errors.Is(err, ErrModelRejected) || errors.Is(err, ErrNotEnoughSamples) {
			l.log.Info().Err(err).Msg("keeping previous artifact")
			return nil
		}
		return err
	}

	if err := l.store.Save(artifact); err != nil {
		return err
	}
	l.holder.Publish(artifact)
	if l.reg != nil {
		l.reg.ModelPublishes.Inc()
	}

	l.log.Info().
		Str("version", artifact.Version).
		Int("samples", len(samples)).
		Float64("val_accuracy", artifact.ValAccuracy).
		Msg("new artifact published")
	return nil
}
