package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/agripipe/pkg/models"
)

func TestPartitionedWriterLayout(t *testing.T) {
	base := t.TempDir()
	writer, err := NewPartitionedWriter(&PartitionedWriterConfig{BaseDir: base}, logrus.New())
	require.NoError(t, err)

	normalized := 4.15
	batch := []models.Reading{
		memReading("s1", 1, 6, 41.5),
		memReading("s1", 1, 7, 42.0),
		memReading("s2", 1, 6, 55.0),
		memReading("s1", 2, 6, 40.0),
	}
	batch[0].NormalizedValue = &normalized

	err = writer.Write(context.Background(), batch)
	require.NoError(t, err)

	for _, partition := range []string{
		"date=2025-06-01/sensor_id=s1/data.parquet",
		"date=2025-06-01/sensor_id=s2/data.parquet",
		"date=2025-06-02/sensor_id=s1/data.parquet",
	} {
		_, err := os.Stat(filepath.Join(base, partition))
		assert.NoError(t, err, partition)
	}

	rows, err := parquet.ReadFile[parquetRow](filepath.Join(base, "date=2025-06-01/sensor_id=s1/data.parquet"))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "s1", rows[0].SensorID)
	assert.Equal(t, "2025-06-01", rows[0].Date)
	assert.Equal(t, 41.5, rows[0].Value)
	require.NotNil(t, rows[0].NormalizedValue)
	assert.Equal(t, 4.15, *rows[0].NormalizedValue)
	assert.Nil(t, rows[0].Rolling7dAvg)
}

func TestPartitionedWriterCleansStaging(t *testing.T) {
	base := t.TempDir()
	writer, err := NewPartitionedWriter(&PartitionedWriterConfig{BaseDir: base}, logrus.New())
	require.NoError(t, err)

	err = writer.Write(context.Background(), []models.Reading{memReading("s1", 1, 6, 41.5)})
	require.NoError(t, err)

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".staging-")
	}
}

func TestPartitionedWriterEmptyBatch(t *testing.T) {
	base := t.TempDir()
	writer, err := NewPartitionedWriter(&PartitionedWriterConfig{BaseDir: base}, logrus.New())
	require.NoError(t, err)

	err = writer.Write(context.Background(), nil)
	require.NoError(t, err)

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
