package loader

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agrisense/agripipe/pkg/constants"
	"github.com/agrisense/agripipe/pkg/errors"
	"github.com/agrisense/agripipe/pkg/models"
)

// recognized input columns; anything else is passed through unexamined in
// Reading.Attributes.
const (
	columnSensorID    = "sensor_id"
	columnTimestamp   = "timestamp"
	columnReadingType = "reading_type"
	columnValue       = "value"
)

// timestamp layouts accepted for raw input. Layouts without zone information
// are interpreted in the fixed +05:30 offset: the pipeline assumes such
// timestamps are already local to it.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// CSVLoader reads a raw reading batch from a CSV file. The loader does not
// validate reading types; the cleaner owns schema failures.
type CSVLoader struct {
	logger   *logrus.Logger
	location *time.Location
}

// NewCSVLoader creates a new CSV batch loader.
func NewCSVLoader(logger *logrus.Logger) *CSVLoader {
	if logger == nil {
		logger = logrus.New()
	}
	return &CSVLoader{logger: logger, location: constants.Timezone()}
}

// Load reads the batch at path. An empty file with a valid header yields an
// empty batch, not an error.
func (l *CSVLoader) Load(ctx context.Context, path string) ([]models.Reading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			"failed to open batch file")
	}
	defer f.Close()

	readings, err := l.Read(ctx, f)
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"path":     path,
		"readings": len(readings),
	}).Info("Batch loaded")

	return readings, nil
}

// Read parses a raw batch from r.
func (l *CSVLoader) Read(ctx context.Context, r io.Reader) ([]models.Reading, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return []models.Reading{}, nil
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			"failed to read batch header")
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, required := range []string{columnSensorID, columnTimestamp, columnReadingType, columnValue} {
		if _, ok := index[required]; !ok {
			return nil, errors.NewSchemaViolation(errors.CodeMissingColumn,
				"missing required column").WithDetails(required)
		}
	}

	var readings []models.Reading
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
				"failed to read batch row")
		}

		reading, err := l.parseRow(header, index, record)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}

	if readings == nil {
		readings = []models.Reading{}
	}
	return readings, nil
}

func (l *CSVLoader) parseRow(header []string, index map[string]int, record []string) (models.Reading, error) {
	reading := models.Reading{
		SensorID:    record[index[columnSensorID]],
		ReadingType: models.ReadingType(record[index[columnReadingType]]),
	}

	ts, err := l.parseTimestamp(record[index[columnTimestamp]])
	if err != nil {
		return models.Reading{}, errors.NewSchemaViolation(errors.CodeInvalidTimestamp,
			"unparseable timestamp").WithDetails(record[index[columnTimestamp]])
	}
	reading.Timestamp = ts

	raw := record[index[columnValue]]
	if raw == "" {
		reading.Value = math.NaN()
	} else {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			reading.Value = math.NaN()
		} else {
			reading.Value = value
		}
	}

	for i, name := range header {
		switch name {
		case columnSensorID, columnTimestamp, columnReadingType, columnValue:
		default:
			if reading.Attributes == nil {
				reading.Attributes = make(map[string]string)
			}
			reading.Attributes[name] = record[i]
		}
	}

	return reading, nil
}

func (l *CSVLoader) parseTimestamp(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		ts, err := time.ParseInLocation(layout, raw, l.location)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
