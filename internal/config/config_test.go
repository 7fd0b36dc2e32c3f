package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0.6, cfg.Scan.ScoreThreshold)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
log_level: debug
scan:
  symbols: [AAPL, MSFT]
  score_threshold: 0.7
  workers: 4
learn:
  model_weight: 0.5
database:
  query_timeout_secs: 10
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Scan.Symbols)
	assert.Equal(t, 0.7, cfg.Scan.ScoreThreshold)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.Equal(t, 0.5, cfg.Learn.ModelWeight)
	assert.Equal(t, 10*time.Second, cfg.Database.QueryTimeout())

	// Untouched sections keep their defaults.
	assert.Equal(t, Default().Risk, cfg.Risk)
	assert.Equal(t, Default().Rules, cfg.Rules)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Learn.ModelWeight = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Scan.ScoreThreshold = -0.1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Database.QueryTimeoutSecs = 0
	assert.Error(t, cfg.Validate())
}
