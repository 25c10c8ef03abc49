package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agrisense/agripipe/cmd/agripipe/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "agripipe",
		Short: "Agricultural sensor batch pipeline",
		Long: `A batch pipeline for daily agricultural sensor readings: cleans raw
batches, enriches them with calibration and rolling statistics, validates data
quality and persists a partitioned dataset alongside a quality report.`,
		Version: "0.1.0",
	}

	rootCmd.AddCommand(commands.NewRunCmd())
	rootCmd.AddCommand(commands.NewValidateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
