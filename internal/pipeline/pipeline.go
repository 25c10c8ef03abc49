package pipeline

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/agrisense/agripipe/internal/cleaning"
	"github.com/agrisense/agripipe/internal/enrichment"
	"github.com/agrisense/agripipe/internal/observability/metrics"
	"github.com/agrisense/agripipe/internal/validation"
	"github.com/agrisense/agripipe/pkg/constants"
	"github.com/agrisense/agripipe/pkg/errors"
	"github.com/agrisense/agripipe/pkg/interfaces"
	"github.com/agrisense/agripipe/pkg/models"
)

// Config tunes one pipeline instance.
type Config struct {
	// Name identifies the pipeline in logs and checkpoint keys.
	Name string `json:"name" yaml:"name"`
	// RunTimeout bounds a whole run. Zero disables the bound.
	RunTimeout time.Duration `json:"run_timeout" yaml:"run_timeout"`
	// PersistHistory writes the enriched batch back to the history store
	// after a successful run.
	PersistHistory bool `json:"persist_history" yaml:"persist_history"`
}

// Dependencies are the collaborators a pipeline runs with. Cleaner, Enricher,
// Validator, History, Writer and Emitter are required; the rest are optional.
type Dependencies struct {
	Cleaner     *cleaning.Cleaner
	Enricher    *enrichment.Enricher
	Validator   *validation.Validator
	History     interfaces.HistoryProvider
	Writer      interfaces.BatchWriter
	Emitter     interfaces.ReportEmitter
	Recorder    interfaces.HistoryRecorder
	Checkpoint  interfaces.CheckpointStore
	Metrics     *metrics.PipelineMetrics
	Calibration models.CalibrationMap
}

// Pipeline runs one batch through clean, enrich, validate and persist. A
// halting failure in any stage aborts the run before anything is written, so
// a failed run leaves no partition files and no report.
type Pipeline struct {
	config *Config
	deps   Dependencies
	logger *logrus.Logger
}

// Result summarizes a completed run.
type Result struct {
	RunID    string                   `json:"run_id"`
	Report   *models.ValidationReport `json:"report"`
	Cleaning *cleaning.Report         `json:"cleaning"`
	Written  int                      `json:"written"`
	Duration time.Duration            `json:"duration"`
}

// New creates a pipeline. Config may be nil for defaults.
func New(config *Config, deps Dependencies, logger *logrus.Logger) (*Pipeline, error) {
	if config == nil {
		config = &Config{}
	}
	if config.Name == "" {
		config.Name = constants.AppName
	}
	if logger == nil {
		logger = logrus.New()
	}
	if deps.Cleaner == nil || deps.Enricher == nil || deps.Validator == nil {
		return nil, errors.NewConfigurationError(errors.CodeMissingConfig,
			"pipeline requires a cleaner, an enricher and a validator")
	}
	if deps.History == nil || deps.Writer == nil || deps.Emitter == nil {
		return nil, errors.NewConfigurationError(errors.CodeMissingConfig,
			"pipeline requires a history provider, a batch writer and a report emitter")
	}
	return &Pipeline{config: config, deps: deps, logger: logger}, nil
}

// Run processes one raw batch end to end and returns the run summary. The
// returned report is the same report handed to the emitter.
func (p *Pipeline) Run(ctx context.Context, batch []models.Reading) (*Result, error) {
	runID := uuid.New().String()
	started := time.Now()

	if p.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.RunTimeout)
		defer cancel()
	}

	log := p.logger.WithFields(logrus.Fields{
		"pipeline": p.config.Name,
		"run_id":   runID,
	})
	log.WithField("readings", len(batch)).Info("Pipeline run started")
	p.observeStage("ingested", len(batch))

	cleaned, cleaningReport, err := p.deps.Cleaner.Clean(ctx, batch)
	if err != nil {
		return nil, p.fail(log, started, "cleaning failed", err)
	}
	p.observeStage("cleaned", len(cleaned))
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveCleaning(cleaningReport.Dropped, cleaningReport.Corrected)
	}

	enriched, enrichmentReport, err := p.deps.Enricher.Enrich(ctx, cleaned, p.deps.History, p.deps.Calibration)
	if err != nil {
		return nil, p.fail(log, started, "enrichment failed", err)
	}
	p.observeStage("enriched", len(enriched))

	report, err := p.deps.Validator.Validate(ctx, enriched, cleaningReport, enrichmentReport.Warnings)
	if err != nil {
		return nil, p.fail(log, started, "validation failed", err)
	}
	report.RunID = runID
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveValidation(countAnomalies(enriched), gapHours(report), len(report.SchemaErrors))
	}

	if err := p.deps.Writer.Write(ctx, enriched); err != nil {
		return nil, p.fail(log, started, "batch write failed", err)
	}
	if err := p.deps.Emitter.Emit(ctx, report); err != nil {
		return nil, p.fail(log, started, "report emit failed", err)
	}

	if p.config.PersistHistory && p.deps.Recorder != nil {
		if err := p.deps.Recorder.Insert(ctx, enriched); err != nil {
			return nil, p.fail(log, started, "history persist failed", err)
		}
	}
	if p.deps.Checkpoint != nil {
		if date := latestDate(enriched); date != "" {
			if err := p.deps.Checkpoint.Save(ctx, p.config.Name, date); err != nil {
				return nil, p.fail(log, started, "checkpoint save failed", err)
			}
		}
	}

	duration := time.Since(started)
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveRun("success", duration)
	}
	log.WithFields(logrus.Fields{
		"written":  len(enriched),
		"groups":   len(report.Rows),
		"duration": duration,
	}).Info("Pipeline run completed")

	return &Result{
		RunID:    runID,
		Report:   report,
		Cleaning: cleaningReport,
		Written:  len(enriched),
		Duration: duration,
	}, nil
}

// fail records the failed run and returns the stage error. Stage errors that
// already carry a typed classification pass through unchanged so callers can
// still distinguish schema violations from operational failures.
func (p *Pipeline) fail(log *logrus.Entry, started time.Time, message string, err error) error {
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveRun("failed", time.Since(started))
	}
	log.WithError(err).Error("Pipeline run failed")
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, message)
}

func (p *Pipeline) observeStage(stage string, readings int) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveStage(stage, readings)
	}
}

func countAnomalies(readings []models.Reading) int {
	count := 0
	for _, r := range readings {
		if r.AnomalousReading {
			count++
		}
	}
	return count
}

func gapHours(report *models.ValidationReport) int {
	hours := 0
	for _, row := range report.Rows {
		for _, gap := range row.Gaps {
			hours += gap.Hours
		}
	}
	return hours
}

func latestDate(readings []models.Reading) string {
	latest := ""
	for _, r := range readings {
		if r.Date > latest {
			latest = r.Date
		}
	}
	return latest
}
