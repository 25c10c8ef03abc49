package models

import (
	"fmt"
	"strings"
	"time"
)

// GapSpan is a contiguous run of expected hours with no matching reading.
// Consecutive missing hours are merged into a single span.
type GapSpan struct {
	Start time.Time `json:"start"`
	Hours int       `json:"hours"`
}

// String renders the span as start/duration, e.g.
// "2025-06-01T03:00:00+05:30/2h".
func (g GapSpan) String() string {
	return fmt.Sprintf("%s/%dh", g.Start.Format(time.RFC3339), g.Hours)
}

// ReportRow holds the profiling aggregates for one (date, sensor_id,
// reading_type) group.
type ReportRow struct {
	Date        string      `json:"date"`
	SensorID    string      `json:"sensor_id"`
	ReadingType ReadingType `json:"reading_type"`

	TotalReadings int     `json:"total_readings"`
	MissingPct    float64 `json:"missing_pct"`
	AnomalyPct    float64 `json:"anomaly_pct"`

	// OutOfRange counts post-cleaning values outside the configured
	// [min,max] for the reading type. Kept distinct from both the anomaly
	// percentage and schema errors.
	OutOfRange int `json:"out_of_range"`

	Gaps         []GapSpan `json:"coverage_gap_hours,omitempty"`
	SchemaErrors []string  `json:"schema_errors,omitempty"`
}

// GapsColumn serializes the gap spans for the flat tabular report.
func (r *ReportRow) GapsColumn() string {
	if len(r.Gaps) == 0 {
		return ""
	}
	parts := make([]string, len(r.Gaps))
	for i, g := range r.Gaps {
		parts[i] = g.String()
	}
	return strings.Join(parts, ";")
}

// SchemaErrorsColumn serializes the schema error set for the flat report.
func (r *ReportRow) SchemaErrorsColumn() string {
	return strings.Join(r.SchemaErrors, ";")
}

// ValidationReport is the data-quality report produced once per pipeline run.
// It is created fresh per run and immutable once emitted. GeneratedAt is the
// only field derived from the wall clock; every statistical field is a pure
// function of the run's input.
type ValidationReport struct {
	RunID       string      `json:"run_id"`
	GeneratedAt time.Time   `json:"generated_at"`
	Rows        []ReportRow `json:"rows"`

	// SchemaErrors aggregates column-level violations across the batch.
	SchemaErrors []string `json:"schema_errors,omitempty"`

	// Warnings carries non-blocking data-quality notes raised during
	// enrichment (missing calibration, zero scale).
	Warnings []QualityWarning `json:"warnings,omitempty"`
}

// HasSchemaErrors reports whether any column-level violation was recorded.
func (vr *ValidationReport) HasSchemaErrors() bool {
	return len(vr.SchemaErrors) > 0
}

// QualityWarning is a non-blocking data-quality note. Warnings are recorded
// in the report and never halt the run.
type QualityWarning struct {
	SensorID string `json:"sensor_id"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}
