package enrichment

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/agrisense/agripipe/pkg/constants"
	"github.com/agrisense/agripipe/pkg/errors"
	"github.com/agrisense/agripipe/pkg/interfaces"
	"github.com/agrisense/agripipe/pkg/models"
)

// Enricher computes the derived fields of a cleaned batch: standardized
// timestamps, daily averages, rolling 7-day averages, window-based anomaly
// flags and calibration-normalized values.
//
// Timestamps are converted to the fixed +05:30 offset before any calendar
// derivation. Input timestamps lacking timezone information are assumed to
// already be in +05:30; the loader attaches that offset when parsing, so the
// enricher never re-interprets wall-clock values.
type Enricher struct {
	logger *logrus.Logger
	config *Config
}

// Config contains enricher configuration.
type Config struct {
	ZScoreThreshold float64 `json:"zscore_threshold" yaml:"zscore_threshold"`
	WindowDays      int     `json:"window_days" yaml:"window_days"`

	location *time.Location
}

// Report carries the data-quality notes raised during enrichment. Notes are
// advisory; they are folded into the validation report and never halt a run.
type Report struct {
	Warnings           []models.QualityWarning `json:"warnings,omitempty"`
	CalibrationMissing int                     `json:"calibration_missing"`
	ZeroScale          int                     `json:"zero_scale"`
}

// NewEnricher creates a new enricher.
func NewEnricher(config *Config, logger *logrus.Logger) *Enricher {
	if config == nil {
		config = getDefaultConfig()
	}
	if config.ZScoreThreshold <= 0 {
		config.ZScoreThreshold = constants.DefaultZScoreThreshold
	}
	if config.WindowDays <= 0 {
		config.WindowDays = constants.RollingWindowDays
	}
	if config.location == nil {
		config.location = constants.Timezone()
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Enricher{logger: logger, config: config}
}

func getDefaultConfig() *Config {
	return &Config{
		ZScoreThreshold: constants.DefaultZScoreThreshold,
		WindowDays:      constants.RollingWindowDays,
		location:        constants.Timezone(),
	}
}

// seriesData buckets a series' values by calendar date, batch and history
// kept separate: daily averages come from the batch alone, rolling windows
// draw on both.
type seriesData struct {
	batchByDay   map[string][]float64
	historyByDay map[string][]float64
	dailyAvg     map[string]float64
}

// Enrich returns a new batch with every derived field populated. The rolling
// window covers the trailing WindowDays calendar days ending on the row's
// date, inclusive of the current day; days with no data are excluded from the
// average, never zero-filled. The rolling average is nil when the window
// holds no sample from any day before the row's own date.
func (e *Enricher) Enrich(ctx context.Context, cleaned []models.Reading, history interfaces.HistoryProvider, calibration models.CalibrationMap) ([]models.Reading, *Report, error) {
	report := &Report{}

	if len(cleaned) == 0 {
		return []models.Reading{}, report, nil
	}

	enriched := make([]models.Reading, len(cleaned))
	copy(enriched, cleaned)

	for i := range enriched {
		ts := enriched[i].Timestamp.In(e.config.location)
		enriched[i].Timestamp = ts
		enriched[i].Date = ts.Format(constants.DateLayout)
	}

	series, err := e.collectSeries(ctx, enriched, history)
	if err != nil {
		return nil, nil, err
	}

	warned := make(map[string]bool)
	for i := range enriched {
		r := &enriched[i]
		data := series[r.Series()]

		avg := data.dailyAvg[r.Date]
		r.DailyAvg = &avg

		window, priorSamples := e.windowValues(data, r.Date)
		if priorSamples > 0 {
			rolling := stat.Mean(window, nil)
			r.Rolling7dAvg = &rolling
		} else {
			r.Rolling7dAvg = nil
		}

		r.AnomalousReading = e.flagAnomaly(r.Value, window)

		e.normalize(r, calibration, report, warned)
	}

	e.logger.WithFields(logrus.Fields{
		"readings":            len(enriched),
		"series":              len(series),
		"calibration_missing": report.CalibrationMissing,
		"zero_scale":          report.ZeroScale,
	}).Info("Batch enrichment completed")

	return enriched, report, nil
}

// collectSeries buckets the batch by series and day, computes per-day batch
// averages and pulls the prior window days from the history provider.
func (e *Enricher) collectSeries(ctx context.Context, batch []models.Reading, history interfaces.HistoryProvider) (map[models.SeriesKey]*seriesData, error) {
	series := make(map[models.SeriesKey]*seriesData)

	for i := range batch {
		key := batch[i].Series()
		data := series[key]
		if data == nil {
			data = &seriesData{
				batchByDay:   make(map[string][]float64),
				historyByDay: make(map[string][]float64),
				dailyAvg:     make(map[string]float64),
			}
			series[key] = data
		}
		data.batchByDay[batch[i].Date] = append(data.batchByDay[batch[i].Date], batch[i].Value)
	}

	for key, data := range series {
		for day, values := range data.batchByDay {
			data.dailyAvg[day] = stat.Mean(values, nil)
		}

		minDay := earliestDay(data.batchByDay)
		from := startOfDay(minDay, e.config.location).AddDate(0, 0, -(e.config.WindowDays - 1))
		to := startOfDay(minDay, e.config.location).Add(-time.Nanosecond)

		if history == nil || !to.After(from) {
			continue
		}

		prior, err := history.Fetch(ctx, key.SensorID, key.ReadingType, from, to)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
				"failed to fetch rolling-window history")
		}
		for j := range prior {
			day := prior[j].Timestamp.In(e.config.location).Format(constants.DateLayout)
			data.historyByDay[day] = append(data.historyByDay[day], prior[j].Value)
		}
	}

	return series, nil
}

// windowValues gathers the values of the trailing window ending on day,
// current day included, and counts how many of them predate the current day.
func (e *Enricher) windowValues(data *seriesData, day string) (values []float64, priorSamples int) {
	end, err := time.ParseInLocation(constants.DateLayout, day, e.config.location)
	if err != nil {
		return nil, 0
	}

	for k := 0; k < e.config.WindowDays; k++ {
		d := end.AddDate(0, 0, -k).Format(constants.DateLayout)
		dayValues := append([]float64(nil), data.batchByDay[d]...)
		dayValues = append(dayValues, data.historyByDay[d]...)
		if k > 0 {
			priorSamples += len(dayValues)
		}
		values = append(values, dayValues...)
	}

	return values, priorSamples
}

// flagAnomaly recomputes the z-score of value against the rolling window's
// own mean and stddev. The flag marks the reading for downstream analytics
// and never mutates the value.
func (e *Enricher) flagAnomaly(value float64, window []float64) bool {
	if len(window) < 2 {
		return false
	}
	stddev := stat.StdDev(window, nil)
	if stddev == 0 {
		return false
	}
	z := (value - stat.Mean(window, nil)) / stddev
	return math.Abs(z) > e.config.ZScoreThreshold
}

// normalize applies the sensor's calibration record. Missing calibration and
// zero scale both leave NormalizedValue nil and raise a data-quality warning;
// division by zero never propagates as NaN or Inf into output.
func (e *Enricher) normalize(r *models.Reading, calibration models.CalibrationMap, report *Report, warned map[string]bool) {
	cal, ok := calibration[r.SensorID]
	if !ok {
		r.NormalizedValue = nil
		report.CalibrationMissing++
		if !warned[r.SensorID+"/missing"] {
			warned[r.SensorID+"/missing"] = true
			report.Warnings = append(report.Warnings, models.QualityWarning{
				SensorID: r.SensorID,
				Code:     errors.CodeMissingCalibration,
				Message:  "no calibration record for sensor, normalization skipped",
			})
			e.logger.WithField("sensor_id", r.SensorID).Warn("Missing calibration record")
		}
		return
	}

	if cal.Scale == 0 {
		r.NormalizedValue = nil
		report.ZeroScale++
		if !warned[r.SensorID+"/zero"] {
			warned[r.SensorID+"/zero"] = true
			report.Warnings = append(report.Warnings, models.QualityWarning{
				SensorID: r.SensorID,
				Code:     errors.CodeZeroScale,
				Message:  "calibration scale is zero, normalization skipped",
			})
			e.logger.WithField("sensor_id", r.SensorID).Warn("Zero calibration scale")
		}
		return
	}

	normalized := (r.Value - cal.Offset) / cal.Scale
	r.NormalizedValue = &normalized
}

func earliestDay(byDay map[string][]float64) string {
	min := ""
	for day := range byDay {
		if min == "" || day < min {
			min = day
		}
	}
	return min
}

func startOfDay(day string, loc *time.Location) time.Time {
	t, err := time.ParseInLocation(constants.DateLayout, day, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}
