package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/agripipe/pkg/constants"
	"github.com/agrisense/agripipe/pkg/models"
)

func sampleReport() *models.ValidationReport {
	gapStart := time.Date(2025, 6, 1, 3, 0, 0, 0, constants.Timezone())
	return &models.ValidationReport{
		RunID:       "run-1",
		GeneratedAt: time.Now().UTC(),
		Rows: []models.ReportRow{
			{
				Date:          "2025-06-01",
				SensorID:      "s1",
				ReadingType:   models.ReadingTypeSoilMoisture,
				TotalReadings: 22,
				MissingPct:    0.25,
				AnomalyPct:    0.045455,
				Gaps: []models.GapSpan{
					{Start: gapStart, Hours: 2},
				},
				SchemaErrors: []string{"sensor_id", "value"},
			},
		},
	}
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer

	err := WriteReport(context.Background(), &buf, sampleReport())
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, reportColumns, records[0])
	assert.Equal(t, "2025-06-01", records[1][0])
	assert.Equal(t, "s1", records[1][1])
	assert.Equal(t, "soil_moisture", records[1][2])
	assert.Equal(t, "0.250000", records[1][3])
	assert.Equal(t, "2025-06-01T03:00:00+05:30/2h", records[1][5])
	assert.Equal(t, "sensor_id;value", records[1][6])
}

func TestEmitCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts", "report.csv")
	emitter, err := NewCSVReportEmitter(path, logrus.New())
	require.NoError(t, err)

	err = emitter.Emit(context.Background(), sampleReport())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "coverage_gap_hours")
}

func TestNewCSVReportEmitterRequiresPath(t *testing.T) {
	_, err := NewCSVReportEmitter("", logrus.New())
	require.Error(t, err)
}
