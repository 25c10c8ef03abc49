package export

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/agrisense/agripipe/pkg/errors"
	"github.com/agrisense/agripipe/pkg/models"
)

// reportColumns is the fixed schema of the flat quality report.
var reportColumns = []string{
	"date",
	"sensor_id",
	"reading_type",
	"missing_pct",
	"anomaly_pct",
	"coverage_gap_hours",
	"schema_errors",
}

// CSVReportEmitter serializes a validation report as a fixed-schema CSV, one
// row per (date, sensor_id, reading_type) group.
type CSVReportEmitter struct {
	path   string
	logger *logrus.Logger
}

// NewCSVReportEmitter creates an emitter writing to path.
func NewCSVReportEmitter(path string, logger *logrus.Logger) (*CSVReportEmitter, error) {
	if path == "" {
		return nil, errors.NewConfigurationError(errors.CodeMissingConfig, "report path is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CSVReportEmitter{path: path, logger: logger}, nil
}

// Emit writes the report to the configured path.
func (e *CSVReportEmitter) Emit(ctx context.Context, report *models.ValidationReport) error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			"failed to create report directory")
	}

	f, err := os.Create(e.path)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			"failed to create report file")
	}
	defer f.Close()

	if err := WriteReport(ctx, f, report); err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"run_id": report.RunID,
		"rows":   len(report.Rows),
		"path":   e.path,
	}).Info("Quality report emitted")

	return nil
}

// WriteReport streams the report rows as CSV to w.
func WriteReport(ctx context.Context, w io.Writer, report *models.ValidationReport) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(reportColumns); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			"failed to write report header")
	}

	for i := range report.Rows {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		row := &report.Rows[i]
		record := []string{
			row.Date,
			row.SensorID,
			string(row.ReadingType),
			strconv.FormatFloat(row.MissingPct, 'f', 6, 64),
			strconv.FormatFloat(row.AnomalyPct, 'f', 6, 64),
			row.GapsColumn(),
			row.SchemaErrorsColumn(),
		}
		if err := cw.Write(record); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
				"failed to write report row")
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			"failed to flush report")
	}
	return nil
}
