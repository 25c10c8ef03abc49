package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/agripipe/internal/cleaning"
	"github.com/agrisense/agripipe/pkg/constants"
	"github.com/agrisense/agripipe/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agripipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err) // explicit file must exist

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, constants.DefaultZScoreThreshold, cfg.Pipeline.ZScoreThreshold)
	assert.Equal(t, constants.DefaultMissingPolicy, cfg.Pipeline.MissingValuePolicy)
	assert.Equal(t, constants.RollingWindowDays, cfg.Pipeline.WindowDays)
	assert.Equal(t, "memory", cfg.Storage.History)
	assert.Equal(t, constants.DefaultProcessedDir, cfg.Output.ProcessedDir)
	assert.False(t, cfg.Pipeline.StrictSchema)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
pipeline:
  zscore_threshold: 2.5
  missing_value_policy: drop
  strict_schema: true
  run_timeout: 5m
  value_ranges:
    temperature:
      min: -10
      max: 60
storage:
  history: timescaledb
  timescaledb:
    host: db.internal
    port: 5433
output:
  processed_dir: /data/processed
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2.5, cfg.Pipeline.ZScoreThreshold)
	assert.True(t, cfg.Pipeline.StrictSchema)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.RunTimeout)
	assert.Equal(t, "timescaledb", cfg.Storage.History)
	assert.Equal(t, "db.internal", cfg.Storage.TimescaleDB.Host)
	assert.Equal(t, 5433, cfg.Storage.TimescaleDB.Port)
	assert.Equal(t, "/data/processed", cfg.Output.ProcessedDir)

	cleanerCfg := cfg.CleanerConfig()
	assert.Equal(t, cleaning.PolicyDrop, cleanerCfg.MissingValuePolicy)

	validatorCfg := cfg.ValidatorConfig()
	assert.Equal(t, -10.0, validatorCfg.ValueRanges[models.ReadingTypeTemperature].Min)
	// Types not overridden keep their defaults.
	assert.Equal(t, 100.0, validatorCfg.ValueRanges[models.ReadingTypeHumidity].Max)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, "storage:\n  history: cassandra\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "pipeline:\n  missing_value_policy: interpolate\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "pipeline:\n  value_ranges:\n    wind_speed:\n      min: 0\n      max: 1\n"))
	require.Error(t, err)
}
