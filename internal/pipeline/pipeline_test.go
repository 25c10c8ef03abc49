package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/agripipe/internal/cleaning"
	"github.com/agrisense/agripipe/internal/enrichment"
	"github.com/agrisense/agripipe/internal/export"
	"github.com/agrisense/agripipe/internal/observability/metrics"
	"github.com/agrisense/agripipe/internal/storage"
	"github.com/agrisense/agripipe/internal/validation"
	"github.com/agrisense/agripipe/pkg/constants"
	"github.com/agrisense/agripipe/pkg/errors"
	"github.com/agrisense/agripipe/pkg/models"
)

type memCheckpoint struct {
	saved map[string]string
}

func (c *memCheckpoint) Load(ctx context.Context, pipeline string) (string, error) {
	return c.saved[pipeline], nil
}

func (c *memCheckpoint) Save(ctx context.Context, pipeline, date string) error {
	if c.saved == nil {
		c.saved = map[string]string{}
	}
	c.saved[pipeline] = date
	return nil
}

func (c *memCheckpoint) Close() error { return nil }

type testEnv struct {
	pipeline   *Pipeline
	history    *storage.MemoryHistory
	checkpoint *memCheckpoint
	outputDir  string
	reportPath string
}

func newTestEnv(t *testing.T, strict bool) *testEnv {
	t.Helper()
	logger := logrus.New()
	dir := t.TempDir()

	outputDir := filepath.Join(dir, "processed")
	reportPath := filepath.Join(dir, "report.csv")

	writer, err := storage.NewPartitionedWriter(&storage.PartitionedWriterConfig{BaseDir: outputDir}, logger)
	require.NoError(t, err)
	emitter, err := export.NewCSVReportEmitter(reportPath, logger)
	require.NoError(t, err)

	history := storage.NewMemoryHistory()
	checkpoint := &memCheckpoint{}

	p, err := New(
		&Config{Name: "test", PersistHistory: true},
		Dependencies{
			Cleaner:   cleaning.NewCleaner(nil, logger),
			Enricher:  enrichment.NewEnricher(nil, logger),
			Validator: validation.NewValidator(&validation.Config{StrictSchema: strict}, logger),
			History:   history,
			Recorder:  history,
			Writer:    writer,
			Emitter:   emitter,
			Checkpoint: checkpoint,
			Metrics:   metrics.NewPipelineMetrics(),
			Calibration: models.CalibrationMap{
				"s1": {SensorID: "s1", Offset: 0, Scale: 1},
			},
		},
		logger,
	)
	require.NoError(t, err)

	return &testEnv{
		pipeline:   p,
		history:    history,
		checkpoint: checkpoint,
		outputDir:  outputDir,
		reportPath: reportPath,
	}
}

func rawReading(sensorID string, hour int, value float64) models.Reading {
	return models.Reading{
		SensorID:    sensorID,
		Timestamp:   time.Date(2025, 6, 1, hour, 0, 0, 0, constants.Timezone()),
		ReadingType: models.ReadingTypeSoilMoisture,
		Value:       value,
	}
}

func TestRunEndToEnd(t *testing.T) {
	env := newTestEnv(t, false)

	var batch []models.Reading
	for hour := 0; hour < 12; hour++ {
		batch = append(batch, rawReading("s1", hour, 40+float64(hour)))
	}
	batch = append(batch, batch[0]) // duplicate

	result, err := env.pipeline.Run(context.Background(), batch)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, result.RunID, result.Report.RunID)
	assert.Equal(t, 13, result.Cleaning.Input)
	assert.Equal(t, 12, result.Written)
	assert.Equal(t, 1, result.Cleaning.DuplicatesRemoved)

	// Partition and report are on disk.
	_, err = os.Stat(filepath.Join(env.outputDir, "date=2025-06-01", "sensor_id=s1", "data.parquet"))
	assert.NoError(t, err)
	data, err := os.ReadFile(env.reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2025-06-01,s1,soil_moisture")

	// The batch was persisted back to history and the checkpoint advanced.
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, constants.Timezone())
	stored, err := env.history.Fetch(context.Background(), "s1", models.ReadingTypeSoilMoisture, from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, stored, 12)
	assert.Equal(t, "2025-06-01", env.checkpoint.saved["test"])
}

func TestRunStrictSchemaLeavesNoOutput(t *testing.T) {
	env := newTestEnv(t, true)

	batch := []models.Reading{
		rawReading("s1", 1, 40),
		rawReading("", 2, 41), // empty sensor_id trips the schema check
	}

	result, err := env.pipeline.Run(context.Background(), batch)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.IsSchemaViolation(err))

	// No partitions, no report, no history writes.
	_, err = os.Stat(env.outputDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(env.reportPath)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, env.checkpoint.saved)
}

func TestRunEmptyBatch(t *testing.T) {
	env := newTestEnv(t, false)

	result, err := env.pipeline.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Written)
	assert.Empty(t, result.Report.Rows)

	// The report is still emitted, headers only.
	data, err := os.ReadFile(env.reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "missing_pct")
}

func TestNewRequiresCoreDependencies(t *testing.T) {
	_, err := New(nil, Dependencies{}, logrus.New())
	require.Error(t, err)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	env := newTestEnv(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.pipeline.Run(ctx, []models.Reading{rawReading("s1", 1, 40)})
	require.Error(t, err)
}
