// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/corpus-engine/internal/audit"
	"github.com/pdiddy/corpus-engine/internal/enrich"
	"github.com/pdiddy/corpus-engine/internal/secrets"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

const defaultUserAgent = "corpus-engine/0.1"

// --- enrich subcommand ---

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Recover missing abstracts from external bibliographic APIs",
	Long: `Enrich reads the deduplicated corpus and walks an ordered chain of
bibliographic sources (Semantic Scholar, CrossRef, PubMed, arXiv) for every
record still missing an abstract. Records the chain cannot recover are
excluded with an audit note and written to a separate file; nothing is
silently dropped.

By default enrich updates the most recently recorded run; use --run to
target an earlier one.`,
	RunE: runEnrich,
}

func init() {
	enrichCmd.Flags().String("corpus-dir", "", "directory for corpus outputs (default corpus)")
	enrichCmd.Flags().String("audit-dir", "", "directory for audit artifacts (default audit)")
	enrichCmd.Flags().Int("workers", 0, "concurrent record lookups (default 4)")
	enrichCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 30s)")
	enrichCmd.Flags().String("run", "", "run ID to update (default: latest)")
	enrichCmd.Flags().Bool("json", false, "print the run summary as JSON")

	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, args []string) error {
	dirs := dirsFromFlags(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := audit.NewStore(dirs.audit)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, _ := cmd.Flags().GetString("run")
	if runID == "" {
		if runID, err = store.LatestRunID(ctx); err != nil {
			return fmt.Errorf("no run to enrich (run dedupe first): %w", err)
		}
	}
	d, err := store.LoadRun(ctx, runID)
	if err != nil {
		return err
	}

	log := newLogger().With().Str("run_id", runID).Logger()
	d, err = enrichStage(ctx, d, dirs, enrichConfig(cmd), store, log, os.Stdout)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return printJSON(d.Summary())
	}
	return nil
}

// enrichStage walks the enrichment chain for every cluster missing an
// abstract, rewrites the corpus outputs, and updates the run's audit row.
// On cancellation the partial results are still written before the error
// is returned.
func enrichStage(ctx context.Context, d audit.RunData, dirs workspaceDirs, cfg types.EnrichConfig, store *audit.Store, log zerolog.Logger, w io.Writer) (audit.RunData, error) {
	clusters, err := audit.ReadRecords(dirs.corpus)
	if err != nil {
		return d, err
	}

	chain, err := enrich.NewChain(cfg, log)
	if err != nil {
		return d, err
	}
	pipe := &enrich.Pipeline{Chain: chain, Workers: cfg.Workers, Log: log}

	res, runErr := pipe.Run(ctx, clusters)

	d.Clusters = res.Enriched
	d.Excluded = res.Excluded
	d.Attempts = res.Attempts
	d.RecoveredBySource = res.Recovered

	if err := audit.WriteRecords(dirs.corpus, res.Enriched); err != nil {
		return d, err
	}
	if err := audit.WriteExcluded(dirs.corpus, res.Excluded); err != nil {
		return d, err
	}
	if err := audit.WriteEnrichmentLog(dirs.audit, res.Attempts); err != nil {
		return d, err
	}
	if err := audit.WriteStats(dirs.audit, d.Summary()); err != nil {
		return d, err
	}
	// Record with a fresh context so an interrupted run still lands in the
	// store.
	if err := store.RecordRun(context.Background(), d); err != nil {
		return d, err
	}

	for _, service := range res.Disabled {
		fmt.Fprintf(w, "warning: %s disabled after repeated failures\n", service)
	}
	recovered := 0
	for _, n := range res.Recovered {
		recovered += n
	}
	fmt.Fprintf(w, "enriched: %d abstracts recovered, %d records excluded\n",
		recovered, len(res.Excluded))

	if runErr != nil {
		return d, fmt.Errorf("enrichment interrupted: %w", runErr)
	}
	return d, nil
}

func enrichConfig(cmd *cobra.Command) types.EnrichConfig {
	workers, _ := cmd.Flags().GetInt("workers")
	if workers == 0 {
		workers = viper.GetInt("enrich.workers")
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = viper.GetDuration("enrich.timeout")
	}

	cfg := types.EnrichConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   timeout,
			UserAgent: defaultUserAgent,
		},
		Chain:                 viper.GetStringSlice("enrich.chain"),
		Workers:               workers,
		OutageThreshold:       viper.GetInt("enrich.outage_threshold"),
		MinAbstractLength:     viper.GetInt("enrich.min_abstract_length"),
		SemanticScholarAPIKey: viper.GetString("enrich.semantic_scholar_api_key"),
		NCBIAPIKey:            viper.GetString("enrich.ncbi_api_key"),
		CrossRefMailto:        viper.GetString("enrich.crossref_mailto"),
	}
	if ua := viper.GetString("enrich.user_agent"); ua != "" {
		cfg.UserAgent = ua
	}
	cfg.Retry.MaxAttempts = viper.GetInt("enrich.retry.max_attempts")
	cfg.Retry.BaseDelay = viper.GetDuration("enrich.retry.base_delay")
	if viper.IsSet("enrich.rate_limits") {
		var limits map[string]types.RateLimitConfig
		if err := viper.UnmarshalKey("enrich.rate_limits", &limits); err == nil {
			cfg.RateLimits = limits
		}
	}

	secrets.Apply(loadedSecrets, &cfg)
	return cfg
}
