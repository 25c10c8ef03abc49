package cleaning

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/agrisense/agripipe/pkg/constants"
	"github.com/agrisense/agripipe/pkg/errors"
	"github.com/agrisense/agripipe/pkg/models"
)

// MissingValuePolicy controls how rows with a missing value are handled.
type MissingValuePolicy string

const (
	// PolicyDrop removes rows with a missing value.
	PolicyDrop MissingValuePolicy = "drop"
	// PolicyForwardFill imputes a missing value from the most recent prior
	// value of the same (sensor_id, reading_type) series in the batch,
	// ordered by timestamp. Rows with no prior value are dropped.
	PolicyForwardFill MissingValuePolicy = "forward_fill"
)

// Cleaner deduplicates a batch, applies the configured missing-value policy
// and winsorizes statistical outliers per (sensor_id, reading_type) group.
type Cleaner struct {
	logger *logrus.Logger
	config *Config
}

// Config contains cleaner configuration.
type Config struct {
	ZScoreThreshold    float64            `json:"zscore_threshold" yaml:"zscore_threshold"`
	MissingValuePolicy MissingValuePolicy `json:"missing_value_policy" yaml:"missing_value_policy"`

	// StrictSchema makes an unrecognized reading_type halt the run. When
	// false such rows are dropped and the violation is recorded for the
	// quality report instead.
	StrictSchema bool `json:"strict_schema" yaml:"strict_schema"`
}

// Report summarizes what the cleaner did to a batch. For every batch,
// len(cleaned) + Dropped == len(input).
type Report struct {
	Input             int `json:"input"`
	Dropped           int `json:"dropped"`
	DuplicatesRemoved int `json:"duplicates_removed"`
	MissingDropped    int `json:"missing_dropped"`
	TypeViolations    int `json:"type_violations"`
	Imputed           int `json:"imputed"`
	Corrected         int `json:"corrected"`

	// SchemaErrors names the columns violated by rows the cleaner dropped,
	// for the validator to fold into the run report.
	SchemaErrors []string `json:"schema_errors,omitempty"`

	// DroppedByGroup counts dropped rows per (date, sensor_id, reading_type)
	// for the validator's missing_pct profiling. Dates are derived in the
	// pipeline's fixed +05:30 offset.
	DroppedByGroup map[models.GroupKey]int `json:"-"`
}

// NewCleaner creates a new cleaner.
func NewCleaner(config *Config, logger *logrus.Logger) *Cleaner {
	if config == nil {
		config = getDefaultConfig()
	}
	if config.ZScoreThreshold <= 0 {
		config.ZScoreThreshold = constants.DefaultZScoreThreshold
	}
	if config.MissingValuePolicy == "" {
		config.MissingValuePolicy = PolicyForwardFill
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Cleaner{logger: logger, config: config}
}

func getDefaultConfig() *Config {
	return &Config{
		ZScoreThreshold:    constants.DefaultZScoreThreshold,
		MissingValuePolicy: PolicyForwardFill,
	}
}

// Clean runs deduplication, missing-value handling and outlier winsorization
// over the batch, in that order. Input order is preserved in the output. An
// empty batch is not an error. Rows with an unrecognized reading_type halt
// the run in strict mode and are dropped with a recorded schema error
// otherwise.
func (c *Cleaner) Clean(ctx context.Context, batch []models.Reading) ([]models.Reading, *Report, error) {
	report := &Report{
		Input:          len(batch),
		DroppedByGroup: make(map[models.GroupKey]int),
	}

	if len(batch) == 0 {
		return []models.Reading{}, report, nil
	}

	typed, err := c.checkReadingTypes(batch, report)
	if err != nil {
		return nil, nil, err
	}

	cleaned := c.deduplicate(typed, report)
	cleaned = c.applyMissingPolicy(cleaned, report)
	c.winsorize(cleaned, report)

	report.Dropped = report.DuplicatesRemoved + report.MissingDropped + report.TypeViolations

	c.logger.WithFields(logrus.Fields{
		"input":      report.Input,
		"cleaned":    len(cleaned),
		"dropped":    report.Dropped,
		"duplicates": report.DuplicatesRemoved,
		"imputed":    report.Imputed,
		"corrected":  report.Corrected,
	}).Info("Batch cleaning completed")

	return cleaned, report, nil
}

// checkReadingTypes enforces the reading_type enum. Strict mode halts on the
// first violation; otherwise violating rows are dropped and the column is
// recorded as a schema error.
func (c *Cleaner) checkReadingTypes(batch []models.Reading, report *Report) ([]models.Reading, error) {
	out := make([]models.Reading, 0, len(batch))
	for i := range batch {
		if batch[i].ReadingType.Valid() {
			out = append(out, batch[i])
			continue
		}
		if c.config.StrictSchema {
			return nil, errors.NewSchemaViolation(errors.CodeUnknownReadingType,
				fmt.Sprintf("unrecognized reading_type %q", batch[i].ReadingType)).
				WithContext("sensor_id", batch[i].SensorID)
		}
		report.TypeViolations++
		report.DroppedByGroup[dropGroup(&batch[i])]++
		if len(report.SchemaErrors) == 0 {
			report.SchemaErrors = []string{"reading_type"}
		}
		c.logger.WithFields(logrus.Fields{
			"sensor_id":    batch[i].SensorID,
			"reading_type": batch[i].ReadingType,
		}).Warn("Dropped reading with unrecognized type")
	}
	return out, nil
}

// deduplicate collapses rows sharing (sensor_id, timestamp, reading_type),
// keeping the first occurrence in input order.
func (c *Cleaner) deduplicate(batch []models.Reading, report *Report) []models.Reading {
	seen := make(map[models.ReadingKey]struct{}, len(batch))
	out := make([]models.Reading, 0, len(batch))

	for _, r := range batch {
		key := r.Key()
		if _, ok := seen[key]; ok {
			report.DuplicatesRemoved++
			report.DroppedByGroup[dropGroup(&r)]++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}

	return out
}

func (c *Cleaner) applyMissingPolicy(batch []models.Reading, report *Report) []models.Reading {
	if c.config.MissingValuePolicy == PolicyForwardFill {
		c.forwardFill(batch, report)
	}

	out := make([]models.Reading, 0, len(batch))
	for _, r := range batch {
		if r.Missing() {
			report.MissingDropped++
			report.DroppedByGroup[dropGroup(&r)]++
			continue
		}
		out = append(out, r)
	}

	return out
}

// forwardFill imputes missing values in place from the most recent prior
// value of the same series, ordered by timestamp. Rows that still have no
// value afterwards are dropped by the caller.
func (c *Cleaner) forwardFill(batch []models.Reading, report *Report) {
	bySeries := make(map[models.SeriesKey][]int)
	for i := range batch {
		bySeries[batch[i].Series()] = append(bySeries[batch[i].Series()], i)
	}

	for _, indices := range bySeries {
		sort.SliceStable(indices, func(a, b int) bool {
			return batch[indices[a]].Timestamp.Before(batch[indices[b]].Timestamp)
		})

		last := math.NaN()
		for _, i := range indices {
			if batch[i].Missing() {
				if !math.IsNaN(last) {
					batch[i].Value = last
					report.Imputed++
				}
				continue
			}
			last = batch[i].Value
		}
	}
}

// winsorize clamps outliers to mean ± threshold·stddev within each
// (sensor_id, reading_type) group. Groups smaller than two readings have no
// computable z-score and are left untouched.
func (c *Cleaner) winsorize(batch []models.Reading, report *Report) {
	bySeries := make(map[models.SeriesKey][]int)
	for i := range batch {
		bySeries[batch[i].Series()] = append(bySeries[batch[i].Series()], i)
	}

	for series, indices := range bySeries {
		if len(indices) < 2 {
			continue
		}

		values := make([]float64, len(indices))
		for j, i := range indices {
			values[j] = batch[i].Value
		}

		mean := stat.Mean(values, nil)
		stddev := stat.StdDev(values, nil)
		if stddev == 0 {
			continue
		}

		lower := mean - c.config.ZScoreThreshold*stddev
		upper := mean + c.config.ZScoreThreshold*stddev

		for _, i := range indices {
			z := (batch[i].Value - mean) / stddev
			if math.Abs(z) <= c.config.ZScoreThreshold {
				continue
			}
			corrected := upper
			if z < 0 {
				corrected = lower
			}
			c.logger.WithFields(logrus.Fields{
				"sensor_id":    series.SensorID,
				"reading_type": series.ReadingType,
				"value":        batch[i].Value,
				"corrected":    corrected,
				"zscore":       z,
			}).Debug("Winsorized outlier")
			batch[i].Value = corrected
			report.Corrected++
		}
	}
}

// dropGroup derives the reporting group for a dropped row. Dropped rows never
// reach the enricher, so the calendar date comes straight from the timestamp.
func dropGroup(r *models.Reading) models.GroupKey {
	return models.GroupKey{
		Date:        r.Timestamp.In(constants.Timezone()).Format(constants.DateLayout),
		SensorID:    r.SensorID,
		ReadingType: r.ReadingType,
	}
}
