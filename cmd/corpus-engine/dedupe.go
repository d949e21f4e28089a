// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/corpus-engine/internal/audit"
	"github.com/pdiddy/corpus-engine/internal/dedup"
	"github.com/pdiddy/corpus-engine/internal/ingest"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

const (
	defaultExportsDir = "exports"
	defaultCorpusDir  = "corpus"
	defaultAuditDir   = "audit"
)

// workspaceDirs are the three directories a run touches: search exports in,
// corpus and audit artifacts out.
type workspaceDirs struct {
	exports string
	corpus  string
	audit   string
}

func dirsFromFlags(cmd *cobra.Command) workspaceDirs {
	return workspaceDirs{
		exports: stringSetting(cmd, "exports-dir", "ingest.exports_dir", defaultExportsDir),
		corpus:  stringSetting(cmd, "corpus-dir", "audit.corpus_dir", defaultCorpusDir),
		audit:   stringSetting(cmd, "audit-dir", "audit.audit_dir", defaultAuditDir),
	}
}

// --- dedupe subcommand ---

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Resolve duplicate records across source exports into clusters",
	Long: `Dedupe loads per-source record exports, resolves records that refer to
the same publication into clusters by exact identifier and title matching,
and writes the deduplicated corpus with a full merge audit trail.

Outputs: corpus/deduplicated_records.json, audit/deduplication_log.csv,
audit/deduplication_stats.json, and a run row in audit/corpus.db.`,
	RunE: runDedupe,
}

func init() {
	dedupeCmd.Flags().String("exports-dir", "", "directory of source exports (default exports)")
	dedupeCmd.Flags().String("corpus-dir", "", "directory for corpus outputs (default corpus)")
	dedupeCmd.Flags().String("audit-dir", "", "directory for audit artifacts (default audit)")
	dedupeCmd.Flags().Bool("json", false, "print the run summary as JSON")

	rootCmd.AddCommand(dedupeCmd)
}

func runDedupe(cmd *cobra.Command, args []string) error {
	dirs := dirsFromFlags(cmd)
	runID := uuid.NewString()
	log := newLogger().With().Str("run_id", runID).Logger()

	store, err := audit.NewStore(dirs.audit)
	if err != nil {
		return err
	}
	defer store.Close()

	d, err := dedupeStage(context.Background(), runID, time.Now(), dirs, store, log, os.Stdout)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return printJSON(d.Summary())
	}
	return nil
}

// dedupeStage ingests the exports, resolves clusters, and writes the dedupe
// artifacts plus the run's audit row. The run command reuses it under a
// shared run ID.
func dedupeStage(ctx context.Context, runID string, started time.Time, dirs workspaceDirs, store *audit.Store, log zerolog.Logger, w io.Writer) (audit.RunData, error) {
	ing, err := ingest.LoadDir(dirs.exports, log)
	if err != nil {
		return audit.RunData{}, err
	}
	if len(ing.Records) == 0 {
		return audit.RunData{}, fmt.Errorf("no records found in %s", dirs.exports)
	}
	for _, skip := range ing.Skipped {
		fmt.Fprintf(w, "warning: skipped record in %s: %s\n", skip.File, skip.Reason)
	}

	res := dedup.Resolve(ing.Records, dedupConfig(), w)

	d := audit.RunData{
		RunID:            runID,
		StartedAt:        started,
		InputRecords:     len(ing.Records),
		PerSourceInput:   perSourceCounts(ing.PerSource),
		SkippedAtIngest:  len(ing.Skipped),
		Clusters:         res.Clusters,
		MergeLog:         res.MergeLog,
		MergesByStrategy: res.MergesByStrategy,
		PreprintLinks:    res.PreprintLinks,
	}

	if err := os.MkdirAll(dirs.corpus, 0o755); err != nil {
		return d, fmt.Errorf("creating %s: %w", dirs.corpus, err)
	}
	if err := audit.WriteRecords(dirs.corpus, res.Clusters); err != nil {
		return d, err
	}
	if err := audit.WriteMergeLogCSV(dirs.audit, res.MergeLog, ing.Records); err != nil {
		return d, err
	}
	if err := audit.WriteStats(dirs.audit, d.Summary()); err != nil {
		return d, err
	}
	if err := store.RecordRun(ctx, d); err != nil {
		return d, err
	}

	fmt.Fprintf(w, "\ndeduplicated: %d records -> %d clusters (%d duplicates removed)\n",
		len(ing.Records), len(res.Clusters), res.DuplicatesRemoved(len(ing.Records)))
	return d, nil
}

func dedupConfig() types.DedupConfig {
	cfg := types.DedupConfig{
		MinAbstractLength:   viper.GetInt("dedup.min_abstract_length"),
		PreprintDOIPrefixes: viper.GetStringSlice("dedup.preprint_doi_prefixes"),
	}
	if viper.IsSet("dedup.source_priority") {
		var priority map[types.SourceType]int
		if err := viper.UnmarshalKey("dedup.source_priority", &priority); err == nil {
			cfg.SourcePriority = priority
		}
	}
	return cfg
}

func perSourceCounts(m map[types.SourceType]int) map[string]int {
	out := make(map[string]int, len(m))
	for s, n := range m {
		out[string(s)] = n
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
