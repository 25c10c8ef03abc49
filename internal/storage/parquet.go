package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"

	"github.com/agrisense/agripipe/pkg/errors"
	"github.com/agrisense/agripipe/pkg/models"
)

// PartitionedWriterConfig holds configuration for the partitioned writer.
type PartitionedWriterConfig struct {
	BaseDir string `json:"base_dir" yaml:"base_dir"`
}

// PartitionedWriter persists an enriched batch as snappy-compressed Parquet
// files partitioned by date and sensor:
//
//	<base>/date=<YYYY-MM-DD>/sensor_id=<id>/data.parquet
//
// Writes are staged under a run-scoped temporary directory and moved into
// place only after every partition has been written, so a failed run leaves
// no new partition files behind.
type PartitionedWriter struct {
	config *PartitionedWriterConfig
	logger *logrus.Logger
}

// parquetRow is the flat columnar layout of one enriched reading. Timestamps
// are serialized in ISO-8601 form carrying the fixed +05:30 offset.
type parquetRow struct {
	SensorID         string   `parquet:"sensor_id"`
	Timestamp        string   `parquet:"timestamp"`
	ReadingType      string   `parquet:"reading_type"`
	Value            float64  `parquet:"value"`
	Date             string   `parquet:"date"`
	AnomalousReading bool     `parquet:"anomalous_reading"`
	NormalizedValue  *float64 `parquet:"normalized_value,optional"`
	DailyAvg         *float64 `parquet:"daily_avg,optional"`
	Rolling7dAvg     *float64 `parquet:"rolling_7d_avg,optional"`
}

// NewPartitionedWriter creates a new partitioned Parquet writer.
func NewPartitionedWriter(config *PartitionedWriterConfig, logger *logrus.Logger) (*PartitionedWriter, error) {
	if config == nil || config.BaseDir == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "base directory is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &PartitionedWriter{config: config, logger: logger}, nil
}

// Write persists the batch, all partitions or none.
func (w *PartitionedWriter) Write(ctx context.Context, batch []models.Reading) error {
	if len(batch) == 0 {
		return nil
	}

	partitions := make(map[models.GroupKey][]parquetRow)
	for i := range batch {
		key := models.GroupKey{Date: batch[i].Date, SensorID: batch[i].SensorID}
		partitions[key] = append(partitions[key], toParquetRow(&batch[i]))
	}

	staging, err := os.MkdirTemp(w.config.BaseDir, ".staging-")
	if err != nil {
		if mkErr := os.MkdirAll(w.config.BaseDir, 0o755); mkErr != nil {
			return errors.WrapError(mkErr, errors.ErrorTypeStorage, errors.CodeWriteFailed,
				"failed to create output directory")
		}
		staging, err = os.MkdirTemp(w.config.BaseDir, ".staging-")
		if err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
				"failed to create staging directory")
		}
	}
	defer os.RemoveAll(staging)

	for key, rows := range partitions {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := w.writePartition(staging, key, rows); err != nil {
			return err
		}
	}

	if err := w.promote(staging, partitions); err != nil {
		return err
	}

	w.logger.WithFields(logrus.Fields{
		"partitions": len(partitions),
		"readings":   len(batch),
		"base_dir":   w.config.BaseDir,
	}).Info("Partitioned batch written")

	return nil
}

func (w *PartitionedWriter) writePartition(staging string, key models.GroupKey, rows []parquetRow) error {
	dir := filepath.Join(staging, partitionPath(key))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			"failed to create partition directory")
	}

	f, err := os.Create(filepath.Join(dir, "data.parquet"))
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			"failed to create partition file")
	}

	pw := parquet.NewGenericWriter[parquetRow](f, parquet.Compression(&parquet.Snappy))
	if _, err := pw.Write(rows); err != nil {
		f.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			"failed to write parquet rows")
	}
	if err := pw.Close(); err != nil {
		f.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			"failed to finalize parquet file")
	}
	if err := f.Close(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			"failed to close partition file")
	}

	return nil
}

// promote moves every staged partition into its final location.
func (w *PartitionedWriter) promote(staging string, partitions map[models.GroupKey][]parquetRow) error {
	for key := range partitions {
		final := filepath.Join(w.config.BaseDir, partitionPath(key))
		if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
				"failed to create partition parent")
		}
		if err := os.RemoveAll(final); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
				"failed to replace existing partition")
		}
		if err := os.Rename(filepath.Join(staging, partitionPath(key)), final); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
				"failed to promote partition")
		}
	}
	return nil
}

func partitionPath(key models.GroupKey) string {
	return filepath.Join(
		fmt.Sprintf("date=%s", key.Date),
		fmt.Sprintf("sensor_id=%s", key.SensorID),
	)
}

func toParquetRow(r *models.Reading) parquetRow {
	return parquetRow{
		SensorID:         r.SensorID,
		Timestamp:        r.Timestamp.Format(time.RFC3339),
		ReadingType:      string(r.ReadingType),
		Value:            r.Value,
		Date:             r.Date,
		AnomalousReading: r.AnomalousReading,
		NormalizedValue:  r.NormalizedValue,
		DailyAvg:         r.DailyAvg,
		Rolling7dAvg:     r.Rolling7dAvg,
	}
}
