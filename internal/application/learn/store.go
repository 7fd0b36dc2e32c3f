package learn

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/alphastack/tradepulse/internal/domain/scoring"
)

// ErrNoArtifact is returned when no published artifact exists yet.
var ErrNoArtifact = errors.New("learn: no artifact on disk")

const currentName = "current.json"

// ArtifactStore persists model artifacts as JSON files under one
// directory. Writes are atomic: a temp file is renamed over the
// target, so a reader never observes a partial artifact.
type ArtifactStore struct {
	dir string
	log zerolog.Logger
}

// NewArtifactStore creates the store directory if needed.
func NewArtifactStore(dir string, log zerolog.Logger) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("learn: create artifact dir: %w", err)
	}
	return &ArtifactStore{
		dir: dir,
		log: log.With().Str("component", "artifact_store").Logger(),
	}, nil
}

// Save writes the artifact under its version name and repoints the
// current file at it.
func (s *ArtifactStore) Save(artifact *scoring.Artifact) error {
	if err := artifact.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("learn: marshal artifact: %w", err)
	}

	versioned := filepath.Join(s.dir, artifact.Version+".json")
	if err := writeAtomic(versioned, data); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(s.dir, currentName), data); err != nil {
		return err
	}

	s.log.Info().
		Str("version", artifact.Version).
		Str("path", versioned).
		Float64("val_accuracy", artifact.ValAccuracy).
		Msg("artifact saved")
	return nil
}

// LoadCurrent reads the currently published artifact.
func (s *ArtifactStore) LoadCurrent() (*scoring.Artifact, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, currentName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoArtifact
		}
		return nil, fmt.Errorf("learn: read artifact: %w", err)
	}

	var artifact scoring.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("learn: decode artifact: %w", err)
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	return &artifact, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*.tmp")
	if err != nil {
		return fmt.Errorf("learn: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("learn: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("learn: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("learn: rename temp file: %w", err)
	}
	return nil
}
