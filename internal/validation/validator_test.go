package validation

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/agripipe/internal/cleaning"
	"github.com/agrisense/agripipe/pkg/constants"
	"github.com/agrisense/agripipe/pkg/errors"
	"github.com/agrisense/agripipe/pkg/models"
)

func enrichedReading(sensorID string, hour int, value float64) models.Reading {
	ts := time.Date(2025, 6, 1, hour, 0, 0, 0, constants.Timezone())
	return models.Reading{
		SensorID:    sensorID,
		Timestamp:   ts,
		ReadingType: models.ReadingTypeHumidity,
		Value:       value,
		Date:        ts.Format(constants.DateLayout),
	}
}

func fullDay(sensorID string) []models.Reading {
	readings := make([]models.Reading, 0, 24)
	for hour := 0; hour < 24; hour++ {
		readings = append(readings, enrichedReading(sensorID, hour, 50))
	}
	return readings
}

func TestValidateEmptyBatch(t *testing.T) {
	validator := NewValidator(nil, logrus.New())

	report, err := validator.Validate(context.Background(), nil, nil, nil)
	require.NoError(t, err)

	assert.Empty(t, report.Rows)
	assert.Empty(t, report.SchemaErrors)
}

func TestValidateFullCoverageHasNoGaps(t *testing.T) {
	validator := NewValidator(nil, logrus.New())

	report, err := validator.Validate(context.Background(), fullDay("s1"), nil, nil)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)

	row := report.Rows[0]
	assert.Equal(t, 24, row.TotalReadings)
	assert.Empty(t, row.Gaps)
	assert.Equal(t, 0.0, row.MissingPct)
}

func TestValidateGapSpansMerge(t *testing.T) {
	validator := NewValidator(nil, logrus.New())

	// Present at hours 0, 1, 2, 5, 6 and 23.
	var batch []models.Reading
	for _, hour := range []int{0, 1, 2, 5, 6, 23} {
		batch = append(batch, enrichedReading("s1", hour, 50))
	}

	report, err := validator.Validate(context.Background(), batch, nil, nil)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)

	gaps := report.Rows[0].Gaps
	require.Len(t, gaps, 2)

	assert.Equal(t, 2, gaps[0].Hours)
	assert.Equal(t, 3, gaps[0].Start.Hour())
	assert.Equal(t, 16, gaps[1].Hours)
	assert.Equal(t, 7, gaps[1].Start.Hour())
	assert.Equal(t, "2025-06-01T03:00:00+05:30/2h", gaps[0].String())
}

func TestValidateMissingPct(t *testing.T) {
	validator := NewValidator(nil, logrus.New())

	batch := []models.Reading{
		enrichedReading("s1", 1, 50),
		enrichedReading("s1", 2, 50),
		enrichedReading("s1", 3, 50),
	}
	cleaningReport := &cleaning.Report{
		DroppedByGroup: map[models.GroupKey]int{
			batch[0].Group(): 1,
		},
	}

	report, err := validator.Validate(context.Background(), batch, cleaningReport, nil)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)

	assert.InDelta(t, 0.25, report.Rows[0].MissingPct, 1e-9)
}

func TestValidateAnomalyPctAndOutOfRange(t *testing.T) {
	validator := NewValidator(nil, logrus.New())

	batch := []models.Reading{
		enrichedReading("s1", 1, 50),
		enrichedReading("s1", 2, 50),
		enrichedReading("s1", 3, 130), // humidity above 100
		enrichedReading("s1", 4, 50),
	}
	batch[2].AnomalousReading = true

	report, err := validator.Validate(context.Background(), batch, nil, nil)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)

	assert.InDelta(t, 0.25, report.Rows[0].AnomalyPct, 1e-9)
	assert.Equal(t, 1, report.Rows[0].OutOfRange)
}

func TestValidateMergesCleaningSchemaErrors(t *testing.T) {
	validator := NewValidator(nil, logrus.New())

	cleaningReport := &cleaning.Report{SchemaErrors: []string{"reading_type"}}

	report, err := validator.Validate(context.Background(), fullDay("s1"), cleaningReport, nil)
	require.NoError(t, err)

	assert.Contains(t, report.SchemaErrors, "reading_type")
}

func TestValidateAdvisorySchemaErrors(t *testing.T) {
	validator := NewValidator(nil, logrus.New())

	batch := fullDay("s1")
	batch[3].SensorID = ""

	report, err := validator.Validate(context.Background(), batch, nil, nil)
	require.NoError(t, err)

	assert.Contains(t, report.SchemaErrors, "sensor_id")
}

func TestValidateStrictSchemaHalts(t *testing.T) {
	validator := NewValidator(&Config{StrictSchema: true}, logrus.New())

	batch := fullDay("s1")
	batch[3].SensorID = ""

	report, err := validator.Validate(context.Background(), batch, nil, nil)
	require.Error(t, err)

	assert.True(t, errors.IsSchemaViolation(err))
	assert.Nil(t, report)
}

func TestValidateRowOrderDeterministic(t *testing.T) {
	validator := NewValidator(nil, logrus.New())

	batch := append(fullDay("s2"), fullDay("s1")...)

	first, err := validator.Validate(context.Background(), batch, nil, nil)
	require.NoError(t, err)
	second, err := validator.Validate(context.Background(), batch, nil, nil)
	require.NoError(t, err)

	require.Len(t, first.Rows, 2)
	assert.Equal(t, "s1", first.Rows[0].SensorID)
	assert.Equal(t, "s2", first.Rows[1].SensorID)
	assert.Equal(t, first.Rows, second.Rows)
}

func TestValidateDoesNotMutateInput(t *testing.T) {
	validator := NewValidator(nil, logrus.New())

	batch := fullDay("s1")
	before := make([]models.Reading, len(batch))
	copy(before, batch)

	_, err := validator.Validate(context.Background(), batch, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, before, batch)
}
