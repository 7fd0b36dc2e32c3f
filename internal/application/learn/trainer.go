// Package learn closes the loop from realized outcomes back into the
// scorer. It trains a logistic model on labeled feature snapshots,
// validates it on a held-out time slice, and publishes the artifact
// only when it beats the acceptance gate.
package learn

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/alphastack/tradepulse/internal/domain/scoring"
)

var (
	// ErrNotEnoughSamples is returned when the labeled set is below
	// the training minimum.
	ErrNotEnoughSamples = errors.New("learn: not enough samples")
	// ErrModelRejected is returned when a trained model fails the
	// validation gate and must not be published.
	ErrModelRejected = errors.New("learn: model rejected by validation gate")
)

// Sample is one labeled training row: the feature snapshot frozen at
// signal time and whether the trade won net of costs.
type Sample struct {
	Features []float64 `json:"features"`
	Label    float64   `json:"label"` // 1 win, 0 loss
	At       time.Time `json:"at"`
}

// TrainConfig tunes the trainer and its acceptance gate.
type TrainConfig struct {
	LearningRate float64 `yaml:"learning_rate"`
	Iterations   int     `yaml:"iterations"`
	L2           float64 `yaml:"l2"`
	ValFraction  float64 `yaml:"val_fraction"`
	MinSamples   int     `yaml:"min_samples"`
	MinAccuracy  float64 `yaml:"min_accuracy"`
}

// DefaultTrainConfig returns conservative training defaults.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		LearningRate: 0.1,
		Iterations:   400,
		L2:           0.001,
		ValFraction:  0.2,
		MinSamples:   200,
		MinAccuracy:  0.55,
	}
}

// Trainer fits logistic models. Training is fully deterministic:
// zero-initialized weights, fixed iteration count, time-ordered data.
type Trainer struct {
	cfg TrainConfig
	log zerolog.Logger
}

// NewTrainer creates a Trainer.
func NewTrainer(cfg TrainConfig, log zerolog.Logger) *Trainer {
	return &Trainer{
		cfg: cfg,
		log: log.With().Str("component", "trainer").Logger(),
	}
}

// Train fits a model and validates it on the chronologically last
// slice of the data. The split is by time, never random, so the
// validation set always postdates the training set.
func (t *Trainer) Train(samples []Sample, featureNames []string, version string) (*scoring.Artifact, error) {
	if len(samples) < t.cfg.MinSamples {
		return nil, fmt.Errorf("%w: have %d, need %d",
			ErrNotEnoughSamples, len(samples), t.cfg.MinSamples)
	}
	dim := len(featureNames)
	for i, s := range samples {
		if len(s.Features) != dim {
			return nil, fmt.Errorf("learn: sample %d has %d features, schema has %d",
				i, len(s.Features), dim)
		}
	}

	ordered := make([]Sample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].At.Before(ordered[j].At)
	})

	split := len(ordered) - int(float64(len(ordered))*t.cfg.ValFraction)
	if split < 1 || split >= len(ordered) {
		return nil, fmt.Errorf("%w: validation split leaves no data", ErrNotEnoughSamples)
	}
	train, val := ordered[:split], ordered[split:]

	means, stds := standardization(train, dim)
	weights, bias := t.fit(train, means, stds, dim)

	artifact := &scoring.Artifact{
		Version:      version,
		TrainedAt:    time.Now().UTC(),
		FeatureNames: featureNames,
		Weights:      weights,
		Bias:         bias,
		Means:        means,
		Stds:         stds,
		SampleSize:   len(train),
	}

	accuracy, baseRate := validate(artifact, val)
	artifact.ValAccuracy = accuracy
	artifact.ValBaseRate = baseRate

	t.log.Info().
		Str("version", version).
		Int("train", len(train)).
		Int("val", len(val)).
		Float64("val_accuracy", accuracy).
		Float64("val_base_rate", baseRate).
		Msg("model trained")

	// The gate: beat the configured floor and the naive base rate,
	// otherwise the rules keep scoring alone.
	if accuracy < t.cfg.MinAccuracy || accuracy < baseRate {
		return nil, fmt.Errorf("%w: accuracy %.3f, floor %.3f, base rate %.3f",
			ErrModelRejected, accuracy, t.cfg.MinAccuracy, baseRate)
	}
	return artifact, nil
}

// fit runs batch gradient descent on standardized features.
func (t *Trainer) fit(train []Sample, means, stds []float64, dim int) ([]float64, float64) {
	weights := make([]float64, dim)
	bias := 0.0
	n := float64(len(train))

	rows := make([][]float64, len(train))
	for i, s := range train {
		row := make([]float64, dim)
		for j, x := range s.Features {
			sd := stds[j]
			if sd == 0 {
				sd = 1
			}
			row[j] = (x - means[j]) / sd
		}
		rows[i] = row
	}

	gradW := make([]float64, dim)
	for iter := 0; iter < t.cfg.Iterations; iter++ {
		for j := range gradW {
			gradW[j] = 0
		}
		gradB := 0.0

		for i, row := range rows {
			z := bias
			for j, x := range row {
				z += weights[j] * x
			}
			residual := 1/(1+math.Exp(-z)) - train[i].Label
			for j, x := range row {
				gradW[j] += residual * x
			}
			gradB += residual
		}

		for j := range weights {
			weights[j] -= t.cfg.LearningRate * (gradW[j]/n + t.cfg.L2*weights[j])
		}
		bias -= t.cfg.LearningRate * gradB / n
	}
	return weights, bias
}

func standardization(train []Sample, dim int) (means, stds []float64) {
	means = make([]float64, dim)
	stds = make([]float64, dim)
	n := float64(len(train))

	for _, s := range train {
		for j, x := range s.Features {
			means[j] += x
		}
	}
	for j := range means {
		means[j] /= n
	}

	for _, s := range train {
		for j, x := range s.Features {
			d := x - means[j]
			stds[j] += d * d
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
	}
	return means, stds
}

// validate scores the held-out slice at the 0.5 threshold and returns
// accuracy plus the majority-class base rate.
func validate(artifact *scoring.Artifact, val []Sample) (accuracy, baseRate float64) {
	if len(val) == 0 {
		return 0, 0
	}

	correct, wins := 0, 0
	for _, s := range val {
		p := artifact.Predict(s.Features)
		predicted := 0.0
		if p >= 0.5 {
			predicted = 1
		}
		if predicted == s.Label {
			correct++
		}
		if s.Label == 1 {
			wins++
		}
	}

	n := float64(len(val))
	accuracy = float64(correct) / n
	baseRate = float64(wins) / n
	if baseRate < 0.5 {
		baseRate = 1 - baseRate
	}
	return accuracy, baseRate
}
