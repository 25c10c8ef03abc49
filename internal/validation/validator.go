package validation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agrisense/agripipe/internal/cleaning"
	"github.com/agrisense/agripipe/pkg/constants"
	"github.com/agrisense/agripipe/pkg/errors"
	"github.com/agrisense/agripipe/pkg/models"
)

// Range is the configured plausible [Min, Max] interval for a reading type.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Validator runs schema checks, range checks, hourly coverage-gap detection
// and profiling over an enriched batch. Validation is advisory by default:
// violations are recorded in the report and the pipeline continues. With
// StrictSchema enabled a schema check failure halts the run.
type Validator struct {
	logger *logrus.Logger
	config *Config
}

// Config contains validator configuration.
type Config struct {
	ValueRanges  map[models.ReadingType]Range `json:"value_ranges" yaml:"value_ranges"`
	StrictSchema bool                         `json:"strict_schema" yaml:"strict_schema"`

	location *time.Location
}

// NewValidator creates a new validator.
func NewValidator(config *Config, logger *logrus.Logger) *Validator {
	if config == nil {
		config = getDefaultConfig()
	}
	if config.ValueRanges == nil {
		config.ValueRanges = DefaultValueRanges()
	}
	if config.location == nil {
		config.location = constants.Timezone()
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Validator{logger: logger, config: config}
}

func getDefaultConfig() *Config {
	return &Config{
		ValueRanges: DefaultValueRanges(),
		location:    constants.Timezone(),
	}
}

// DefaultValueRanges returns the plausible value range per reading type.
func DefaultValueRanges() map[models.ReadingType]Range {
	return map[models.ReadingType]Range{
		models.ReadingTypeTemperature:  {Min: -40, Max: 85},
		models.ReadingTypeHumidity:     {Min: 0, Max: 100},
		models.ReadingTypeSoilMoisture: {Min: 0, Max: 100},
		models.ReadingTypeLight:        {Min: 0, Max: 200000},
		models.ReadingTypeBattery:      {Min: 0, Max: 100},
	}
}

// groupStats accumulates per-(date, sensor, reading_type) profiling state.
type groupStats struct {
	total        int
	anomalies    int
	outOfRange   int
	dropped      int
	hoursPresent map[int]bool
	schemaErrors map[string]bool
}

// Validate profiles the enriched batch into a fresh ValidationReport. The
// input is never mutated; the same batch, cleaning report and warnings always
// produce an identical report apart from the generation timestamp. An empty
// batch yields a report with all-zero counters, not an error.
func (v *Validator) Validate(ctx context.Context, enriched []models.Reading, cleaningReport *cleaning.Report, warnings []models.QualityWarning) (*models.ValidationReport, error) {
	report := &models.ValidationReport{
		GeneratedAt: time.Now().UTC(),
		Warnings:    warnings,
	}

	groups := make(map[models.GroupKey]*groupStats)
	batchErrors := make(map[string]bool)

	for i := range enriched {
		r := &enriched[i]
		g := v.group(groups, r.Group())
		g.total++

		for _, column := range v.checkSchema(r) {
			g.schemaErrors[column] = true
			batchErrors[column] = true
		}

		if r.AnomalousReading {
			g.anomalies++
		}
		if rng, ok := v.config.ValueRanges[r.ReadingType]; ok {
			if r.Value < rng.Min || r.Value > rng.Max {
				g.outOfRange++
			}
		}
		g.hoursPresent[r.Timestamp.In(v.config.location).Hour()] = true
	}

	if cleaningReport != nil {
		for key, dropped := range cleaningReport.DroppedByGroup {
			v.group(groups, key).dropped = dropped
		}
		for _, column := range cleaningReport.SchemaErrors {
			batchErrors[column] = true
		}
	}

	report.SchemaErrors = sortedKeys(batchErrors)

	if v.config.StrictSchema && len(report.SchemaErrors) > 0 {
		return nil, errors.NewSchemaViolation(errors.CodeSchemaCheckFailed,
			"schema validation failed in strict mode").
			WithDetails(fmt.Sprintf("columns: %v", report.SchemaErrors))
	}

	report.Rows = v.buildRows(groups)

	v.logger.WithFields(logrus.Fields{
		"groups":        len(report.Rows),
		"schema_errors": len(report.SchemaErrors),
	}).Info("Batch validation completed")

	return report, nil
}

// checkSchema returns the names of columns this reading violates.
func (v *Validator) checkSchema(r *models.Reading) []string {
	var columns []string
	if r.SensorID == "" {
		columns = append(columns, "sensor_id")
	}
	if r.Timestamp.IsZero() {
		columns = append(columns, "timestamp")
	}
	if !r.ReadingType.Valid() {
		columns = append(columns, "reading_type")
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		columns = append(columns, "value")
	}
	if r.Date == "" {
		columns = append(columns, "date")
	}
	if r.NormalizedValue != nil && (math.IsNaN(*r.NormalizedValue) || math.IsInf(*r.NormalizedValue, 0)) {
		columns = append(columns, "normalized_value")
	}
	return columns
}

func (v *Validator) buildRows(groups map[models.GroupKey]*groupStats) []models.ReportRow {
	rows := make([]models.ReportRow, 0, len(groups))

	for key, g := range groups {
		row := models.ReportRow{
			Date:          key.Date,
			SensorID:      key.SensorID,
			ReadingType:   key.ReadingType,
			TotalReadings: g.total,
			OutOfRange:    g.outOfRange,
			SchemaErrors:  sortedKeys(g.schemaErrors),
		}

		if g.total+g.dropped > 0 {
			row.MissingPct = float64(g.dropped) / float64(g.total+g.dropped)
		}
		if g.total > 0 {
			row.AnomalyPct = float64(g.anomalies) / float64(g.total)
			row.Gaps = v.detectGaps(key, g.hoursPresent)
		}

		rows = append(rows, row)
	}

	sort.Slice(rows, func(a, b int) bool {
		if rows[a].Date != rows[b].Date {
			return rows[a].Date < rows[b].Date
		}
		if rows[a].SensorID != rows[b].SensorID {
			return rows[a].SensorID < rows[b].SensorID
		}
		return rows[a].ReadingType < rows[b].ReadingType
	})

	return rows
}

func (v *Validator) group(groups map[models.GroupKey]*groupStats, key models.GroupKey) *groupStats {
	g := groups[key]
	if g == nil {
		g = &groupStats{
			hoursPresent: make(map[int]bool),
			schemaErrors: make(map[string]bool),
		}
		groups[key] = g
	}
	return g
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
