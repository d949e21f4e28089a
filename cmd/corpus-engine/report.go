// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/corpus-engine/internal/audit"
)

// --- report subcommand ---

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a recorded run summary from the audit store",
	Long: `Report reads the audit store and prints one run's summary: input and
cluster counts, merges per strategy, abstracts recovered per source, and
exclusions. Defaults to the most recent run; use --run for an earlier one.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().String("audit-dir", "", "directory of audit artifacts (default audit)")
	reportCmd.Flags().String("run", "", "run ID to report (default: latest)")
	reportCmd.Flags().String("format", "table", "output format: table, json, or yaml")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	dirs := dirsFromFlags(cmd)

	store, err := audit.NewStore(dirs.audit)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	runID, _ := cmd.Flags().GetString("run")
	if runID == "" {
		if runID, err = store.LatestRunID(ctx); err != nil {
			return err
		}
	}

	summary, err := store.Summary(ctx, runID)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "table", "":
		fmt.Println(audit.RenderSummaryTable(summary))
	case "json":
		return printJSON(summary)
	case "yaml":
		data, err := yaml.Marshal(summary)
		if err != nil {
			return fmt.Errorf("marshaling summary: %w", err)
		}
		fmt.Print(string(data))
	default:
		return fmt.Errorf("unsupported format %q: use table, json, or yaml", format)
	}
	return nil
}
