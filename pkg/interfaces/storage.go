package interfaces

import (
	"context"
	"time"

	"github.com/agrisense/agripipe/pkg/models"
)

// HistoryProvider supplies prior readings for rolling-window computations.
// Implementations are read-only; returning an empty slice for a range with no
// history is not an error.
type HistoryProvider interface {
	// Fetch returns the readings for one (sensor_id, reading_type) series
	// whose timestamps fall within [from, to] inclusive.
	Fetch(ctx context.Context, sensorID string, readingType models.ReadingType, from, to time.Time) ([]models.Reading, error)
}

// HistoryRecorder persists processed readings back to the history store so
// later runs can use them for rolling-window computations.
type HistoryRecorder interface {
	Insert(ctx context.Context, batch []models.Reading) error
}

// BatchWriter persists an enriched, validated batch to partitioned columnar
// storage. Writes are all-or-nothing per run: a failed run must leave no new
// partition files behind.
type BatchWriter interface {
	Write(ctx context.Context, batch []models.Reading) error
}

// ReportEmitter serializes a validation report to a fixed-schema tabular
// output, one row per (date, sensor_id, reading_type) group.
type ReportEmitter interface {
	Emit(ctx context.Context, report *models.ValidationReport) error
}

// CheckpointStore records ingestion progress so independent runs can resume
// from the last processed date.
type CheckpointStore interface {
	Load(ctx context.Context, pipeline string) (string, error)
	Save(ctx context.Context, pipeline, date string) error
	Close() error
}

// ArchiveSink uploads run artifacts (partition files, reports) to durable
// remote storage after a successful run.
type ArchiveSink interface {
	Upload(ctx context.Context, localPath, remoteKey string) error
}
