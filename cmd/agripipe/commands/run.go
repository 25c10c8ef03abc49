package commands

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/agrisense/agripipe/internal/cleaning"
	"github.com/agrisense/agripipe/internal/config"
	"github.com/agrisense/agripipe/internal/enrichment"
	"github.com/agrisense/agripipe/internal/export"
	"github.com/agrisense/agripipe/internal/loader"
	"github.com/agrisense/agripipe/internal/observability/metrics"
	"github.com/agrisense/agripipe/internal/pipeline"
	"github.com/agrisense/agripipe/internal/storage"
	"github.com/agrisense/agripipe/internal/validation"
	"github.com/agrisense/agripipe/pkg/constants"
	"github.com/agrisense/agripipe/pkg/models"
)

type RunOptions struct {
	ConfigFile      string
	InputFile       string
	CalibrationFile string
	OutputDir       string
	ReportPath      string
	Strict          bool
	PersistHistory  bool
	MetricsAddr     string
}

func NewRunCmd() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline on a raw batch",
		Long: `Run a raw daily batch through cleaning, enrichment and validation, then
write the partitioned Parquet dataset and the data quality report.`,
		Example: `  # Process a daily batch
  agripipe run --input readings_2025-06-01.csv --calibration calibration.csv

  # Halt on schema violations instead of reporting them
  agripipe run --input readings.csv --strict

  # Write outputs somewhere else
  agripipe run --input readings.csv --output-dir /data/processed --report /tmp/report.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "Config file (default ./agripipe.yaml)")
	cmd.Flags().StringVarP(&opts.InputFile, "input", "i", "", "Raw batch CSV file (required)")
	cmd.Flags().StringVar(&opts.CalibrationFile, "calibration", "", "Calibration CSV file")
	cmd.Flags().StringVarP(&opts.OutputDir, "output-dir", "o", "", "Partitioned dataset directory")
	cmd.Flags().StringVar(&opts.ReportPath, "report", "", "Quality report path")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Treat schema violations as fatal")
	cmd.Flags().BoolVar(&opts.PersistHistory, "persist-history", false, "Write the processed batch back to the history store")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-listen", "", "Serve Prometheus metrics on this address for the duration of the run")

	cmd.MarkFlagRequired("input")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return err
	}
	applyRunOverrides(cmd, opts, cfg)

	logger := newLogger(cfg)
	ctx := cmd.Context()

	calibration := models.CalibrationMap{}
	if path := calibrationPath(opts.CalibrationFile, cfg); path != "" {
		calibration, err = loader.LoadCalibration(path)
		if err != nil {
			return err
		}
	}

	history, err := openHistory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer history.close()

	checkpoint, err := openCheckpoint(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if checkpoint != nil {
		defer checkpoint.Close()
		if last, err := checkpoint.Load(ctx, constants.AppName); err == nil && last != "" {
			logger.WithField("last_date", last).Info("Resuming after checkpoint")
		}
	}

	writer, err := storage.NewPartitionedWriter(&storage.PartitionedWriterConfig{BaseDir: cfg.Output.ProcessedDir}, logger)
	if err != nil {
		return err
	}
	emitter, err := export.NewCSVReportEmitter(cfg.Output.ReportPath, logger)
	if err != nil {
		return err
	}

	pipelineMetrics := metrics.NewPipelineMetrics()
	if opts.MetricsAddr != "" {
		serveMetrics(opts.MetricsAddr, pipelineMetrics, logger)
	}

	p, err := pipeline.New(
		&pipeline.Config{
			RunTimeout:     cfg.Pipeline.RunTimeout,
			PersistHistory: cfg.Storage.PersistHistory,
		},
		pipeline.Dependencies{
			Cleaner:     cleaning.NewCleaner(cfg.CleanerConfig(), logger),
			Enricher:    enrichment.NewEnricher(cfg.EnricherConfig(), logger),
			Validator:   validation.NewValidator(cfg.ValidatorConfig(), logger),
			History:     history.provider,
			Recorder:    history.recorder,
			Writer:      writer,
			Emitter:     emitter,
			Checkpoint:  checkpoint,
			Metrics:     pipelineMetrics,
			Calibration: calibration,
		},
		logger,
	)
	if err != nil {
		return err
	}

	batch, err := loader.NewCSVLoader(logger).Load(ctx, opts.InputFile)
	if err != nil {
		return err
	}

	result, err := p.Run(ctx, batch)
	if err != nil {
		return err
	}

	if err := archiveArtifacts(ctx, cfg, logger); err != nil {
		return err
	}

	fmt.Printf("Run %s completed\n", result.RunID)
	fmt.Printf("  Readings:  %d in, %d written (%d dropped)\n",
		result.Cleaning.Input, result.Written, result.Cleaning.Dropped)
	fmt.Printf("  Groups:    %d\n", len(result.Report.Rows))
	fmt.Printf("  Dataset:   %s\n", cfg.Output.ProcessedDir)
	fmt.Printf("  Report:    %s\n", cfg.Output.ReportPath)
	return nil
}

// applyRunOverrides lets command-line flags win over the config file.
func applyRunOverrides(cmd *cobra.Command, opts *RunOptions, cfg *config.Config) {
	if opts.OutputDir != "" {
		cfg.Output.ProcessedDir = opts.OutputDir
	}
	if opts.ReportPath != "" {
		cfg.Output.ReportPath = opts.ReportPath
	}
	if cmd.Flags().Changed("strict") {
		cfg.Pipeline.StrictSchema = opts.Strict
	}
	if cmd.Flags().Changed("persist-history") {
		cfg.Storage.PersistHistory = opts.PersistHistory
	}
}

func calibrationPath(flagPath string, cfg *config.Config) string {
	if flagPath != "" {
		return flagPath
	}
	return cfg.Pipeline.CalibrationPath
}

// serveMetrics exposes the run's metric registry for scraping. The listener
// lives only as long as the process.
func serveMetrics(addr string, m *metrics.PipelineMetrics, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.WithError(err).Warn("Metrics listener stopped")
		}
	}()
}

// archiveArtifacts uploads the quality report and the freshly written
// partitions to S3 when archiving is on.
func archiveArtifacts(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	if !cfg.Storage.Archive.Enabled {
		return nil
	}
	archive, err := storage.NewS3Archive(cfg.ArchiveConfig(), logger)
	if err != nil {
		return err
	}

	if err := archive.Upload(ctx, cfg.Output.ReportPath, filepath.Base(cfg.Output.ReportPath)); err != nil {
		return err
	}

	return filepath.WalkDir(cfg.Output.ProcessedDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(cfg.Output.ProcessedDir, path)
		if err != nil {
			return err
		}
		return archive.Upload(ctx, path, filepath.ToSlash(rel))
	})
}
