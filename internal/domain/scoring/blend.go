package scoring

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/alphastack/tradepulse/internal/domain/features"
	"github.com/alphastack/tradepulse/internal/domain/trading"
)

// ArtifactProvider exposes the currently published model artifact.
// Current returns nil when no healthy artifact exists.
type ArtifactProvider interface {
	Current() *Artifact
}

// StaticArtifact is an ArtifactProvider pinned to one artifact. Test
// and backtest helper.
type StaticArtifact struct {
	A *Artifact
}

func (s StaticArtifact) Current() *Artifact { return s.A }

// ArtifactHolder is a swappable ArtifactProvider. The learning loop
// publishes new artifacts through it without interrupting scans.
type ArtifactHolder struct {
	ptr atomic.Pointer[Artifact]
}

// Publish atomically swaps in a new artifact.
func (h *ArtifactHolder) Publish(a *Artifact) {
	h.ptr.Store(a)
}

// Current returns the latest published artifact, nil before the first
// publish.
func (h *ArtifactHolder) Current() *Artifact {
	return h.ptr.Load()
}

// BlendScorer combines the rule table and the trained model. When no
// healthy artifact is available it degrades to rules alone, so scoring
// never blocks on the learning loop.
type BlendScorer struct {
	rules       *RuleScorer
	provider    ArtifactProvider
	modelWeight float64
	log         zerolog.Logger
}

// NewBlendScorer creates a BlendScorer. modelWeight is the model share
// of the blend in [0, 1], clamped.
func NewBlendScorer(rules *RuleScorer, provider ArtifactProvider, modelWeight float64, log zerolog.Logger) *BlendScorer {
	if modelWeight < 0 {
		modelWeight = 0
	}
	if modelWeight > 1 {
		modelWeight = 1
	}
	return &BlendScorer{
		rules:       rules,
		provider:    provider,
		modelWeight: modelWeight,
		log:         log.With().Str("component", "blend_scorer").Logger(),
	}
}

func (s *BlendScorer) Name() Source { return SourceBlended }

// Score blends rule and model scores. Direction always comes from the
// rule scorer since it is transparent and auditable.
func (s *BlendScorer) Score(v features.Vector, mode trading.Mode) Result {
	ruleResult := s.rules.Score(v, mode)

	artifact := s.currentArtifact()
	if artifact == nil {
		s.log.Debug().Str("symbol", v.Symbol).Msg("no model artifact, scoring on rules")
		return ruleResult
	}

	modelScorer, err := NewModelScorer(artifact)
	if err != nil {
		s.log.Warn().Err(err).Str("version", artifact.Version).
			Msg("artifact failed validation, falling back to rules")
		return ruleResult
	}
	modelResult := modelScorer.Score(v, mode)

	w := s.modelWeight
	blended := ruleResult // keep side, tags and rule breakdown
	blended.Source = SourceBlended
	blended.Score = clamp01(w*modelResult.Score + (1-w)*ruleResult.Score)
	blended.Confidence = clamp01(w*modelResult.Confidence + (1-w)*ruleResult.Confidence)
	blended.Breakdown["model_probability"] = modelResult.Score
	blended.Breakdown["rule_score"] = ruleResult.Score
	return blended
}

func (s *BlendScorer) currentArtifact() *Artifact {
	if s.provider == nil {
		return nil
	}
	return s.provider.Current()
}
