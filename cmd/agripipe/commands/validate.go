package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agrisense/agripipe/internal/cleaning"
	"github.com/agrisense/agripipe/internal/config"
	"github.com/agrisense/agripipe/internal/enrichment"
	"github.com/agrisense/agripipe/internal/export"
	"github.com/agrisense/agripipe/internal/loader"
	"github.com/agrisense/agripipe/internal/validation"
	"github.com/agrisense/agripipe/pkg/models"
)

type ValidateOptions struct {
	ConfigFile      string
	InputFile       string
	CalibrationFile string
	OutputFile      string
	Strict          bool
}

// NewValidateCmd builds the check-only command: it runs the quality stages
// against a raw batch and emits the report without writing any partitions.
func NewValidateCmd() *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a raw batch without writing the dataset",
		Long: `Run a raw batch through cleaning, enrichment and validation and print the
data quality report. No partition files are written.`,
		Example: `  # Inspect a batch before processing it
  agripipe validate --input readings.csv

  # Fail on schema violations
  agripipe validate --input readings.csv --strict

  # Save the report
  agripipe validate --input readings.csv --output report.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "Config file (default ./agripipe.yaml)")
	cmd.Flags().StringVarP(&opts.InputFile, "input", "i", "", "Raw batch CSV file (required)")
	cmd.Flags().StringVar(&opts.CalibrationFile, "calibration", "", "Calibration CSV file")
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "-", "Report output (- for stdout)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Treat schema violations as fatal")

	cmd.MarkFlagRequired("input")

	return cmd
}

func runValidate(cmd *cobra.Command, opts *ValidateOptions) error {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("strict") {
		cfg.Pipeline.StrictSchema = opts.Strict
	}

	logger := newLogger(cfg)
	ctx := cmd.Context()

	calibration := models.CalibrationMap{}
	if path := calibrationPath(opts.CalibrationFile, cfg); path != "" {
		calibration, err = loader.LoadCalibration(path)
		if err != nil {
			return err
		}
	}

	batch, err := loader.NewCSVLoader(logger).Load(ctx, opts.InputFile)
	if err != nil {
		return err
	}

	history, err := openHistory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer history.close()

	cleaned, cleaningReport, err := cleaning.NewCleaner(cfg.CleanerConfig(), logger).Clean(ctx, batch)
	if err != nil {
		return err
	}
	enriched, enrichmentReport, err := enrichment.NewEnricher(cfg.EnricherConfig(), logger).Enrich(ctx, cleaned, history.provider, calibration)
	if err != nil {
		return err
	}
	report, err := validation.NewValidator(cfg.ValidatorConfig(), logger).Validate(ctx, enriched, cleaningReport, enrichmentReport.Warnings)
	if err != nil {
		return err
	}

	if opts.OutputFile == "-" || opts.OutputFile == "" {
		if err := export.WriteReport(ctx, os.Stdout, report); err != nil {
			return err
		}
	} else {
		emitter, err := export.NewCSVReportEmitter(opts.OutputFile, logger)
		if err != nil {
			return err
		}
		if err := emitter.Emit(ctx, report); err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stderr, "Checked %d readings: %d kept, %d dropped, %d schema errors\n",
		cleaningReport.Input, len(enriched), cleaningReport.Dropped, len(report.SchemaErrors))
	return nil
}
