package cleaning

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/agrisense/agripipe/pkg/constants"
	"github.com/agrisense/agripipe/pkg/errors"
	"github.com/agrisense/agripipe/pkg/models"
)

func testReading(sensorID string, hour int, value float64) models.Reading {
	return models.Reading{
		SensorID:    sensorID,
		Timestamp:   time.Date(2025, 6, 1, hour, 0, 0, 0, constants.Timezone()),
		ReadingType: models.ReadingTypeTemperature,
		Value:       value,
	}
}

func TestNewCleaner(t *testing.T) {
	cleaner := NewCleaner(nil, nil)
	require.NotNil(t, cleaner)

	assert.Equal(t, constants.DefaultZScoreThreshold, cleaner.config.ZScoreThreshold)
	assert.Equal(t, PolicyForwardFill, cleaner.config.MissingValuePolicy)
}

func TestCleanEmptyBatch(t *testing.T) {
	cleaner := NewCleaner(nil, logrus.New())

	cleaned, report, err := cleaner.Clean(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, cleaned)
	assert.Equal(t, 0, report.Input)
	assert.Equal(t, 0, report.Dropped)
}

func TestCleanDeduplicateKeepsFirst(t *testing.T) {
	cleaner := NewCleaner(nil, logrus.New())

	batch := []models.Reading{
		testReading("s1", 1, 10),
		testReading("s1", 1, 99), // same key, later occurrence
		testReading("s1", 2, 11),
	}

	cleaned, report, err := cleaner.Clean(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, cleaned, 2)

	assert.Equal(t, 1, report.DuplicatesRemoved)
	assert.Equal(t, 10.0, cleaned[0].Value)
	assert.Equal(t, 11.0, cleaned[1].Value)
}

func TestCleanRowCountInvariant(t *testing.T) {
	cleaner := NewCleaner(nil, logrus.New())

	batch := []models.Reading{
		testReading("s1", 1, 10),
		testReading("s1", 1, 10),
		testReading("s1", 2, math.NaN()),
		testReading("s2", 0, math.NaN()), // leading missing, no prior to fill from
		testReading("s1", 3, 12),
	}

	cleaned, report, err := cleaner.Clean(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, len(batch), len(cleaned)+report.Dropped)
	assert.Equal(t, report.Dropped, report.DuplicatesRemoved+report.MissingDropped)
}

func TestCleanForwardFill(t *testing.T) {
	cleaner := NewCleaner(&Config{MissingValuePolicy: PolicyForwardFill}, logrus.New())

	batch := []models.Reading{
		testReading("s1", 1, 20),
		testReading("s1", 2, math.NaN()),
		testReading("s1", 3, 22),
		testReading("s2", 1, math.NaN()), // nothing before it in the series
	}

	cleaned, report, err := cleaner.Clean(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, cleaned, 3)

	assert.Equal(t, 1, report.Imputed)
	assert.Equal(t, 1, report.MissingDropped)
	assert.Equal(t, 20.0, cleaned[1].Value)
}

func TestCleanDropPolicy(t *testing.T) {
	cleaner := NewCleaner(&Config{MissingValuePolicy: PolicyDrop}, logrus.New())

	batch := []models.Reading{
		testReading("s1", 1, 20),
		testReading("s1", 2, math.NaN()),
		testReading("s1", 3, 22),
	}

	cleaned, report, err := cleaner.Clean(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, cleaned, 2)

	assert.Equal(t, 0, report.Imputed)
	assert.Equal(t, 1, report.MissingDropped)
}

func TestCleanUnknownReadingTypeStrict(t *testing.T) {
	cleaner := NewCleaner(&Config{StrictSchema: true}, logrus.New())

	batch := []models.Reading{
		{
			SensorID:    "s1",
			Timestamp:   time.Now(),
			ReadingType: "pressure",
			Value:       3.4,
		},
	}

	cleaned, report, err := cleaner.Clean(context.Background(), batch)
	require.Error(t, err)

	assert.True(t, errors.IsSchemaViolation(err))
	assert.Nil(t, cleaned)
	assert.Nil(t, report)
}

func TestCleanUnknownReadingTypeAdvisory(t *testing.T) {
	cleaner := NewCleaner(nil, logrus.New())

	batch := []models.Reading{
		testReading("s1", 1, 10),
		{
			SensorID:    "s2",
			Timestamp:   time.Date(2025, 6, 1, 2, 0, 0, 0, constants.Timezone()),
			ReadingType: "pressure",
			Value:       3.4,
		},
	}

	cleaned, report, err := cleaner.Clean(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, cleaned, 1)

	assert.Equal(t, 1, report.TypeViolations)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, []string{"reading_type"}, report.SchemaErrors)
	assert.Equal(t, len(batch), len(cleaned)+report.Dropped)
}

func TestCleanWinsorizeClampsOutlier(t *testing.T) {
	cleaner := NewCleaner(nil, logrus.New())

	var batch []models.Reading
	values := make([]float64, 0, 21)
	for i := 0; i < 20; i++ {
		batch = append(batch, testReading("s1", i, 10))
		values = append(values, 10)
	}
	batch = append(batch, testReading("s1", 21, 100))
	values = append(values, 100)

	mean := stat.Mean(values, nil)
	stddev := stat.StdDev(values, nil)
	require.Greater(t, (100-mean)/stddev, constants.DefaultZScoreThreshold)

	cleaned, report, err := cleaner.Clean(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, cleaned, 21)

	assert.Equal(t, 1, report.Corrected)
	assert.InDelta(t, mean+constants.DefaultZScoreThreshold*stddev, cleaned[20].Value, 1e-9)
}

func TestCleanWinsorizeSkipsConstantSeries(t *testing.T) {
	cleaner := NewCleaner(nil, logrus.New())

	batch := []models.Reading{
		testReading("s1", 1, 5),
		testReading("s1", 2, 5),
		testReading("s1", 3, 5),
	}

	cleaned, report, err := cleaner.Clean(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Corrected)
	for _, r := range cleaned {
		assert.Equal(t, 5.0, r.Value)
	}
}

func TestCleanIdempotentOnCleanData(t *testing.T) {
	cleaner := NewCleaner(nil, logrus.New())

	batch := []models.Reading{
		testReading("s1", 1, 10),
		testReading("s1", 1, 10),
		testReading("s1", 2, math.NaN()),
		testReading("s1", 3, 12),
	}

	once, _, err := cleaner.Clean(context.Background(), batch)
	require.NoError(t, err)

	twice, report, err := cleaner.Clean(context.Background(), once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, 0, report.Dropped)
}
