// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package audit turns the merge and enrichment logs into the run's audit
// trail: a structured summary, the workspace artifact files, and a SQLite
// store for cross-run reporting.
// Implements: prd005-audit (R1-R3);
//
//	docs/ARCHITECTURE § Audit Trail.
package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Workspace artifact filenames. The names match the exports the screening
// tools downstream already consume, so they are not configurable.
const (
	RecordsFile   = "deduplicated_records.json"
	ExcludedFile  = "excluded_no_abstract.json"
	MergeLogFile  = "deduplication_log.csv"
	StatsFile     = "deduplication_stats.json"
	EnrichLogFile = "enrichment_log.json"
)

// RunData collects one run's stage outputs for summarizing and persistence.
// The dedupe stage fills the clustering fields; the enrich stage re-records
// the same run with the enrichment fields added.
type RunData struct {
	RunID     string
	StartedAt time.Time

	// InputRecords counts records that passed ingestion validation.
	InputRecords    int
	PerSourceInput  map[string]int
	SkippedAtIngest int

	// Clusters holds the surviving output records; Excluded the clusters
	// dropped for a missing abstract.
	Clusters []types.ClusterRecord
	Excluded []types.ExcludedRecord

	MergeLog         []types.MergeLogEntry
	MergesByStrategy map[string]int
	PreprintLinks    int

	Attempts          []types.EnrichmentAttempt
	RecoveredBySource map[string]int
}

// Summary derives the run summary (prd005-audit R2.1-R2.4). Counts are
// computed from the data itself so a summary rebuilt from the store always
// agrees with the artifact files.
func (d RunData) Summary() types.Summary {
	withAbstract := 0
	for i := range d.Clusters {
		if d.Clusters[i].Abstract != "" {
			withAbstract++
		}
	}
	recovered := 0
	for _, n := range d.RecoveredBySource {
		recovered += n
	}
	clusters := len(d.Clusters) + len(d.Excluded)

	return types.Summary{
		RunID:               d.RunID,
		InputRecords:        d.InputRecords,
		PerSourceInput:      d.PerSourceInput,
		SkippedAtIngest:     d.SkippedAtIngest,
		Clusters:            clusters,
		DuplicatesRemoved:   d.InputRecords - clusters,
		MergesByStrategy:    d.MergesByStrategy,
		PreprintLinks:       d.PreprintLinks,
		AbstractFromMembers: withAbstract - recovered,
		RecoveredBySource:   d.RecoveredBySource,
		Excluded:            len(d.Excluded),
		Output:              withAbstract,
	}
}

// WriteRecords writes the corpus to corpusDir/deduplicated_records.json.
// This file is also the handoff the enrich stage reads back.
func WriteRecords(corpusDir string, clusters []types.ClusterRecord) error {
	if clusters == nil {
		clusters = []types.ClusterRecord{}
	}
	return writeJSON(filepath.Join(corpusDir, RecordsFile), clusters)
}

// ReadRecords loads corpusDir/deduplicated_records.json.
func ReadRecords(corpusDir string) ([]types.ClusterRecord, error) {
	path := filepath.Join(corpusDir, RecordsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var clusters []types.ClusterRecord
	if err := json.Unmarshal(data, &clusters); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return clusters, nil
}

// WriteExcluded writes corpusDir/excluded_no_abstract.json (prd004-enrich
// R4.2: excluded records are published, never silently dropped).
func WriteExcluded(corpusDir string, excluded []types.ExcludedRecord) error {
	if excluded == nil {
		excluded = []types.ExcludedRecord{}
	}
	return writeJSON(filepath.Join(corpusDir, ExcludedFile), excluded)
}

// WriteStats writes the summary to auditDir/deduplication_stats.json.
func WriteStats(auditDir string, summary types.Summary) error {
	return writeJSON(filepath.Join(auditDir, StatsFile), summary)
}

// WriteEnrichmentLog writes auditDir/enrichment_log.json, one entry per
// (record, source) lookup including failures (prd005-audit R1.3).
func WriteEnrichmentLog(auditDir string, attempts []types.EnrichmentAttempt) error {
	if attempts == nil {
		attempts = []types.EnrichmentAttempt{}
	}
	return writeJSON(filepath.Join(auditDir, EnrichLogFile), attempts)
}

// WriteMergeLogCSV writes auditDir/deduplication_log.csv, one row per union.
// Rows carry the merged record's source and title so a reviewer can audit a
// merge without opening the source exports; records supplies that lookup.
func WriteMergeLogCSV(auditDir string, log []types.MergeLogEntry, records []types.RawRecord) error {
	byID := make(map[string]*types.RawRecord, len(records))
	for i := range records {
		byID[records[i].ID] = &records[i]
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	header := []string{"cluster_id", "record_id", "merged_into", "strategy", "matched_key", "record_source", "record_title"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, e := range log {
		var source, title string
		if rec, ok := byID[e.RecordID]; ok {
			source, title = string(rec.Source), rec.Title
		}
		row := []string{
			strconv.Itoa(e.ClusterID), e.RecordID, e.MergedInto,
			string(e.Strategy), e.MatchedKey, source, title,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}

	path := filepath.Join(auditDir, MergeLogFile)
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}
