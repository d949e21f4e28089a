// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pdiddy/corpus-engine/internal/audit"
)

const lockFile = "corpus-engine.lock"

// --- run subcommand ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: dedupe then enrich",
	Long: `Run executes deduplication and abstract enrichment as one run: a single
run ID ties together the corpus outputs, the audit artifacts, and the store
rows. The workspace is locked for the duration so concurrent runs cannot
interleave their writes.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().String("exports-dir", "", "directory of source exports (default exports)")
	runCmd.Flags().String("corpus-dir", "", "directory for corpus outputs (default corpus)")
	runCmd.Flags().String("audit-dir", "", "directory for audit artifacts (default audit)")
	runCmd.Flags().Int("workers", 0, "concurrent record lookups (default 4)")
	runCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 30s)")
	runCmd.Flags().Bool("json", false, "print the final summary as JSON")

	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	dirs := dirsFromFlags(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(dirs.audit, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dirs.audit, err)
	}
	lock := flock.New(filepath.Join(dirs.audit, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring workspace lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another run holds the workspace lock")
	}
	defer lock.Unlock()

	runID := uuid.NewString()
	log := newLogger().With().Str("run_id", runID).Logger()

	store, err := audit.NewStore(dirs.audit)
	if err != nil {
		return err
	}
	defer store.Close()

	d, err := dedupeStage(ctx, runID, time.Now(), dirs, store, log, os.Stdout)
	if err != nil {
		return err
	}
	d, err = enrichStage(ctx, d, dirs, enrichConfig(cmd), store, log, os.Stdout)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return printJSON(d.Summary())
	}
	fmt.Println(audit.RenderSummaryTable(d.Summary()))
	return nil
}
