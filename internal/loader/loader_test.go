package loader

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/agripipe/pkg/errors"
	"github.com/agrisense/agripipe/pkg/models"
)

func TestReadBatch(t *testing.T) {
	l := NewCSVLoader(logrus.New())

	input := strings.Join([]string{
		"sensor_id,timestamp,reading_type,value,field_id",
		"s1,2025-06-01T06:00:00,soil_moisture,41.5,f7",
		"s1,2025-06-01T07:00:00,soil_moisture,,f7",
		"s2,2025-06-01T06:00:00+05:30,temperature,not-a-number,f9",
	}, "\n")

	readings, err := l.Read(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, readings, 3)

	assert.Equal(t, "s1", readings[0].SensorID)
	assert.Equal(t, models.ReadingTypeSoilMoisture, readings[0].ReadingType)
	assert.Equal(t, 41.5, readings[0].Value)
	assert.Equal(t, "f7", readings[0].Attributes["field_id"])

	// Zoneless timestamps are taken as already +05:30.
	_, offset := readings[0].Timestamp.Zone()
	assert.Equal(t, 19800, offset)
	assert.Equal(t, "2025-06-01T06:00:00+05:30", readings[0].Timestamp.Format(time.RFC3339))

	// Empty and unparseable values both come through as missing.
	assert.True(t, math.IsNaN(readings[1].Value))
	assert.True(t, math.IsNaN(readings[2].Value))
}

func TestReadEmptyInput(t *testing.T) {
	l := NewCSVLoader(logrus.New())

	readings, err := l.Read(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, readings)

	readings, err = l.Read(context.Background(), strings.NewReader("sensor_id,timestamp,reading_type,value\n"))
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestReadMissingColumn(t *testing.T) {
	l := NewCSVLoader(logrus.New())

	input := "sensor_id,timestamp,value\ns1,2025-06-01T06:00:00,41.5\n"

	_, err := l.Read(context.Background(), strings.NewReader(input))
	require.Error(t, err)
	assert.True(t, errors.IsSchemaViolation(err))
}

func TestReadInvalidTimestamp(t *testing.T) {
	l := NewCSVLoader(logrus.New())

	input := "sensor_id,timestamp,reading_type,value\ns1,yesterday,soil_moisture,41.5\n"

	_, err := l.Read(context.Background(), strings.NewReader(input))
	require.Error(t, err)
	assert.True(t, errors.IsSchemaViolation(err))
}

func TestReadUnknownReadingTypePassesThrough(t *testing.T) {
	l := NewCSVLoader(logrus.New())

	input := "sensor_id,timestamp,reading_type,value\ns1,2025-06-01T06:00:00,wind_speed,3.2\n"

	readings, err := l.Read(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, models.ReadingType("wind_speed"), readings[0].ReadingType)
}

func TestReadCalibration(t *testing.T) {
	input := strings.Join([]string{
		"sensor_id,offset,scale",
		"s1,2.0,10.0",
		"s2,-1.5,1.0",
		"s1,3.0,10.0", // last row wins
	}, "\n")

	calibration, err := ReadCalibration(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, calibration, 2)

	assert.Equal(t, 3.0, calibration["s1"].Offset)
	assert.Equal(t, 1.0, calibration["s2"].Scale)
}

func TestReadCalibrationMissingColumn(t *testing.T) {
	input := "sensor_id,offset\ns1,2.0\n"

	_, err := ReadCalibration(strings.NewReader(input))
	require.Error(t, err)
	assert.True(t, errors.IsSchemaViolation(err))
}
