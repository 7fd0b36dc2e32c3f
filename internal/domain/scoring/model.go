package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/alphastack/tradepulse/internal/domain/features"
	"github.com/alphastack/tradepulse/internal/domain/trading"
)

// Artifact is a trained logistic model plus everything needed to apply
// it: the feature schema it was fitted on and the standardization
// statistics. Artifacts are immutable once published.
type Artifact struct {
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	FeatureNames []string  `json:"feature_names"`
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	Means        []float64 `json:"means"`
	Stds         []float64 `json:"stds"`

	// Validation metrics from the held-out tail of the training set.
	SampleSize  int     `json:"sample_size"`
	ValAccuracy float64 `json:"val_accuracy"`
	ValBaseRate float64 `json:"val_base_rate"`
}

// Validate checks internal consistency and schema compatibility with
// the current feature engine.
func (a *Artifact) Validate() error {
	n := len(a.FeatureNames)
	if n == 0 {
		return fmt.Errorf("scoring: artifact %s has empty schema", a.Version)
	}
	if len(a.Weights) != n || len(a.Means) != n || len(a.Stds) != n {
		return fmt.Errorf("scoring: artifact %s schema size mismatch: %d names, %d weights, %d means, %d stds",
			a.Version, n, len(a.Weights), len(a.Means), len(a.Stds))
	}

	current := features.ModelFeatureNames()
	if len(current) != n {
		return fmt.Errorf("scoring: artifact %s trained on %d features, engine produces %d",
			a.Version, n, len(current))
	}
	for i, name := range a.FeatureNames {
		if current[i] != name {
			return fmt.Errorf("scoring: artifact %s feature %d is %q, engine has %q",
				a.Version, i, name, current[i])
		}
	}
	return nil
}

// Predict returns the win probability for one raw feature row.
func (a *Artifact) Predict(raw []float64) float64 {
	z := a.Bias
	for i, x := range raw {
		sd := a.Stds[i]
		if sd == 0 {
			sd = 1
		}
		z += a.Weights[i] * (x - a.Means[i]) / sd
	}
	return sigmoid(z)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// ModelScorer applies a validated artifact to feature vectors.
type ModelScorer struct {
	artifact *Artifact
}

// NewModelScorer wraps an artifact after validating it against the
// live feature schema.
func NewModelScorer(artifact *Artifact) (*ModelScorer, error) {
	if artifact == nil {
		return nil, fmt.Errorf("scoring: nil artifact")
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	return &ModelScorer{artifact: artifact}, nil
}

func (s *ModelScorer) Name() Source { return SourceModel }

// Version returns the wrapped artifact version.
func (s *ModelScorer) Version() string { return s.artifact.Version }

// Score predicts the win probability for the vector. Side still comes
// from momentum direction since the model predicts outcome quality,
// not direction.
func (s *ModelScorer) Score(v features.Vector, _ trading.Mode) Result {
	p := s.artifact.Predict(v.ModelValues())
	return Result{
		Symbol:     v.Symbol,
		Score:      p,
		Side:       directionOf(v),
		Confidence: confidenceFromProbability(p),
		Source:     SourceModel,
		Timestamp:  v.AsOf,
		Breakdown:  map[string]float64{"model_probability": p},
	}
}

// confidenceFromProbability maps distance from the 0.5 decision
// boundary into 0..1.
func confidenceFromProbability(p float64) float64 {
	return clamp01(2 * math.Abs(p-0.5))
}
