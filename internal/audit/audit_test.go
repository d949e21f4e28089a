package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// --- test helpers ---

func sampleRun() RunData {
	return RunData{
		RunID:        "run-001",
		StartedAt:    time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC),
		InputRecords: 5,
		PerSourceInput: map[string]int{
			"pubmed": 2,
			"scopus": 2,
			"arxiv":  1,
		},
		SkippedAtIngest: 1,
		Clusters: []types.ClusterRecord{
			{
				ClusterID: 0,
				Representative: types.RawRecord{
					ID: "pubmed-00001", Source: types.SourcePubMed,
					Title: "Sleep and memory consolidation",
				},
				DOI: "10.1000/sleep1",
				Members: []types.MemberRef{
					{RecordID: "pubmed-00001", Source: types.SourcePubMed},
					{RecordID: "scopus-00001", Source: types.SourceScopus},
				},
				Abstract:       "Sleep supports consolidation of declarative memory.",
				AbstractSource: "pubmed",
			},
			{
				ClusterID: 1,
				Representative: types.RawRecord{
					ID: "pubmed-00002", Source: types.SourcePubMed,
					Title: "Gut microbiome diversity",
				},
				DOI: "10.1000/gut1",
				Members: []types.MemberRef{
					{RecordID: "pubmed-00002", Source: types.SourcePubMed},
					{RecordID: "scopus-00002", Source: types.SourceScopus},
				},
				Abstract:       "We characterize microbiome diversity in a large cohort.",
				AbstractSource: "crossref",
			},
		},
		Excluded: []types.ExcludedRecord{
			{
				ClusterRecord: types.ClusterRecord{
					ClusterID: 2,
					Representative: types.RawRecord{
						ID: "arxiv-00001", Source: types.SourceArxiv,
						Title: "Graph transformers at scale",
					},
					ArxivID: "2301.07041",
				},
				ExclusionCode: types.ExclusionNoAbstract,
				Note:          "all enrichment sources exhausted",
			},
		},
		MergeLog: []types.MergeLogEntry{
			{ClusterID: 0, RecordID: "scopus-00001", MergedInto: "pubmed-00001",
				Strategy: types.MatchDOI, MatchedKey: "10.1000/sleep1"},
			{ClusterID: 1, RecordID: "scopus-00002", MergedInto: "pubmed-00002",
				Strategy: types.MatchTitle, MatchedKey: "gut microbiome diversity"},
		},
		MergesByStrategy: map[string]int{"doi": 1, "title": 1},
		Attempts: []types.EnrichmentAttempt{
			{ClusterID: 1, Source: "semantic_scholar_doi", Outcome: types.OutcomeNotFound},
			{ClusterID: 1, Source: "crossref", Outcome: types.OutcomeSuccess,
				Abstract: "We characterize microbiome diversity in a large cohort."},
			{ClusterID: 2, Source: "arxiv", Outcome: types.OutcomeError,
				Error: "connection refused"},
		},
		RecoveredBySource: map[string]int{"crossref": 1},
	}
}

func sampleRawRecords() []types.RawRecord {
	return []types.RawRecord{
		{ID: "pubmed-00001", Source: types.SourcePubMed, Title: "Sleep and memory consolidation"},
		{ID: "pubmed-00002", Source: types.SourcePubMed, Title: "Gut microbiome diversity"},
		{ID: "scopus-00001", Source: types.SourceScopus, Title: "Sleep and Memory Consolidation."},
		{ID: "scopus-00002", Source: types.SourceScopus, Title: "Gut Microbiome Diversity"},
		{ID: "arxiv-00001", Source: types.SourceArxiv, Title: "Graph transformers at scale"},
	}
}

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func countRows(t *testing.T, store *Store, table, runID string) int {
	t.Helper()
	var n int
	err := store.db.QueryRow(
		`SELECT count(*) FROM `+table+` WHERE run_id = ?`, runID,
	).Scan(&n)
	if err != nil {
		t.Fatalf("counting %s rows: %v", table, err)
	}
	return n
}

// --- summary tests ---

func TestRunDataSummary(t *testing.T) {
	sum := sampleRun().Summary()

	if sum.RunID != "run-001" {
		t.Errorf("RunID = %q, want run-001", sum.RunID)
	}
	if sum.InputRecords != 5 {
		t.Errorf("InputRecords = %d, want 5", sum.InputRecords)
	}
	if sum.SkippedAtIngest != 1 {
		t.Errorf("SkippedAtIngest = %d, want 1", sum.SkippedAtIngest)
	}
	if sum.Clusters != 3 {
		t.Errorf("Clusters = %d, want 3 (2 output + 1 excluded)", sum.Clusters)
	}
	if sum.DuplicatesRemoved != 2 {
		t.Errorf("DuplicatesRemoved = %d, want 2", sum.DuplicatesRemoved)
	}
	if sum.PreprintLinks != 0 {
		t.Errorf("PreprintLinks = %d, want 0", sum.PreprintLinks)
	}
	if sum.AbstractFromMembers != 1 {
		t.Errorf("AbstractFromMembers = %d, want 1", sum.AbstractFromMembers)
	}
	if sum.Excluded != 1 {
		t.Errorf("Excluded = %d, want 1", sum.Excluded)
	}
	if sum.Output != 2 {
		t.Errorf("Output = %d, want 2", sum.Output)
	}
	if !reflect.DeepEqual(sum.MergesByStrategy, map[string]int{"doi": 1, "title": 1}) {
		t.Errorf("MergesByStrategy = %v", sum.MergesByStrategy)
	}
	if !reflect.DeepEqual(sum.RecoveredBySource, map[string]int{"crossref": 1}) {
		t.Errorf("RecoveredBySource = %v", sum.RecoveredBySource)
	}
}

func TestRunDataSummaryBeforeEnrichment(t *testing.T) {
	// The dedupe stage records the run before enrichment: all clusters still
	// present, no exclusions, no recovery counts, one cluster lacking an
	// abstract.
	d := sampleRun()
	d.Clusters[1].Abstract = ""
	d.Clusters[1].AbstractSource = ""
	d.Clusters = append(d.Clusters, d.Excluded[0].ClusterRecord)
	d.Excluded = nil
	d.Attempts = nil
	d.RecoveredBySource = nil

	sum := d.Summary()
	if sum.Clusters != 3 {
		t.Errorf("Clusters = %d, want 3", sum.Clusters)
	}
	if sum.DuplicatesRemoved != 2 {
		t.Errorf("DuplicatesRemoved = %d, want 2", sum.DuplicatesRemoved)
	}
	if sum.AbstractFromMembers != 1 {
		t.Errorf("AbstractFromMembers = %d, want 1", sum.AbstractFromMembers)
	}
	if sum.Output != 1 {
		t.Errorf("Output = %d, want 1 (only abstract-complete records)", sum.Output)
	}
	if sum.Excluded != 0 {
		t.Errorf("Excluded = %d, want 0", sum.Excluded)
	}
}

// --- artifact writer tests ---

func TestWriteAndReadRecords(t *testing.T) {
	dir := t.TempDir()
	d := sampleRun()

	if err := WriteRecords(dir, d.Clusters); err != nil {
		t.Fatal(err)
	}

	got, err := ReadRecords(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].ClusterID != 0 || got[1].ClusterID != 1 {
		t.Errorf("cluster IDs = %d, %d", got[0].ClusterID, got[1].ClusterID)
	}
	if got[1].AbstractSource != "crossref" {
		t.Errorf("AbstractSource = %q, want crossref", got[1].AbstractSource)
	}
	if len(got[0].Members) != 2 {
		t.Errorf("got %d members, want 2", len(got[0].Members))
	}
}

func TestWriteRecordsEmptyIsArray(t *testing.T) {
	dir := t.TempDir()
	if err := WriteRecords(dir, nil); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, RecordsFile))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("empty corpus should serialize as [], got %s", data)
	}
}

func TestReadRecordsMissingFile(t *testing.T) {
	_, err := ReadRecords(t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing records file")
	}
	if !strings.Contains(err.Error(), RecordsFile) {
		t.Errorf("error = %q, should name the records file", err.Error())
	}
}

func TestWriteExcluded(t *testing.T) {
	dir := t.TempDir()
	d := sampleRun()

	if err := WriteExcluded(dir, d.Excluded); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ExcludedFile))
	if err != nil {
		t.Fatal(err)
	}
	var got []types.ExcludedRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d excluded records, want 1", len(got))
	}
	if got[0].ExclusionCode != types.ExclusionNoAbstract {
		t.Errorf("ExclusionCode = %q, want %q", got[0].ExclusionCode, types.ExclusionNoAbstract)
	}
	if got[0].Note == "" {
		t.Error("exclusion note missing")
	}
}

func TestWriteStats(t *testing.T) {
	dir := t.TempDir()
	sum := sampleRun().Summary()

	if err := WriteStats(dir, sum); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, StatsFile))
	if err != nil {
		t.Fatal(err)
	}
	var got types.Summary
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Clusters != 3 || got.Output != 2 {
		t.Errorf("Clusters = %d, Output = %d", got.Clusters, got.Output)
	}
	if got.RecoveredBySource["crossref"] != 1 {
		t.Errorf("RecoveredBySource = %v", got.RecoveredBySource)
	}
}

func TestWriteEnrichmentLog(t *testing.T) {
	dir := t.TempDir()
	d := sampleRun()

	if err := WriteEnrichmentLog(dir, d.Attempts); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, EnrichLogFile))
	if err != nil {
		t.Fatal(err)
	}
	var got []types.EnrichmentAttempt
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d attempts, want 3", len(got))
	}
	if got[1].Outcome != types.OutcomeSuccess || got[1].Abstract == "" {
		t.Errorf("attempt[1] = %+v, want success with abstract", got[1])
	}
	if got[2].Outcome != types.OutcomeError || got[2].Error == "" {
		t.Errorf("attempt[2] = %+v, want error with message", got[2])
	}
}

func TestWriteMergeLogCSV(t *testing.T) {
	dir := t.TempDir()
	d := sampleRun()

	if err := WriteMergeLogCSV(dir, d.MergeLog, sampleRawRecords()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, MergeLogFile))
	if err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}

	wantHeader := []string{"cluster_id", "record_id", "merged_into", "strategy", "matched_key", "record_source", "record_title"}
	if !reflect.DeepEqual(rows[0], wantHeader) {
		t.Errorf("header = %v", rows[0])
	}

	first := rows[1]
	if first[0] != "0" || first[1] != "scopus-00001" || first[2] != "pubmed-00001" {
		t.Errorf("row 1 = %v", first)
	}
	if first[3] != "doi" || first[4] != "10.1000/sleep1" {
		t.Errorf("row 1 strategy/key = %v", first)
	}
	// The source and title columns describe the merged record, looked up
	// from the raw input.
	if first[5] != "scopus" || first[6] != "Sleep and Memory Consolidation." {
		t.Errorf("row 1 source/title = %q, %q", first[5], first[6])
	}
}

func TestWriteMergeLogCSVUnknownRecord(t *testing.T) {
	dir := t.TempDir()
	log := []types.MergeLogEntry{
		{ClusterID: 0, RecordID: "ghost-00001", MergedInto: "pubmed-00001",
			Strategy: types.MatchDOI, MatchedKey: "10.1000/x"},
	}

	if err := WriteMergeLogCSV(dir, log, nil); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, MergeLogFile))
	if err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[1][5] != "" || rows[1][6] != "" {
		t.Errorf("unknown record should leave source/title empty: %v", rows[1])
	}
}

// --- store schema tests ---

func TestNewStoreCreatesSchema(t *testing.T) {
	store, _ := testStore(t)

	tables := []string{"runs", "merge_log", "enrichment_log", "excluded"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type='table' AND name = ?`, table,
		).Scan(&count)
		if err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if count == 0 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestNewStoreCreatesDBFile(t *testing.T) {
	_, dir := testStore(t)

	if _, err := os.Stat(filepath.Join(dir, dbFile)); os.IsNotExist(err) {
		t.Errorf("database file not created in %s", dir)
	}
}

func TestNewStoreCreatesAuditDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audit")
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Errorf("audit directory not created at %s", dir)
	}
}

// --- store record/read tests ---

func TestRecordRunRoundTrip(t *testing.T) {
	store, _ := testStore(t)
	d := sampleRun()

	if err := store.RecordRun(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	got, err := store.Summary(context.Background(), d.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, d.Summary()) {
		t.Errorf("stored summary:\n  got  %+v\n  want %+v", got, d.Summary())
	}
}

func TestRecordRunPersistsLogs(t *testing.T) {
	store, _ := testStore(t)
	d := sampleRun()

	if err := store.RecordRun(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	if n := countRows(t, store, "merge_log", d.RunID); n != 2 {
		t.Errorf("merge_log rows = %d, want 2", n)
	}
	if n := countRows(t, store, "enrichment_log", d.RunID); n != 3 {
		t.Errorf("enrichment_log rows = %d, want 3", n)
	}
	if n := countRows(t, store, "excluded", d.RunID); n != 1 {
		t.Errorf("excluded rows = %d, want 1", n)
	}

	var outcome, errText string
	err := store.db.QueryRow(
		`SELECT outcome, error FROM enrichment_log WHERE run_id = ? AND source = 'arxiv'`,
		d.RunID,
	).Scan(&outcome, &errText)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != "error" || errText != "connection refused" {
		t.Errorf("arxiv attempt = %q / %q", outcome, errText)
	}
}

func TestRecordRunReplacesOnRerecord(t *testing.T) {
	store, _ := testStore(t)

	// The dedupe stage records first, without enrichment data.
	first := sampleRun()
	first.Clusters = append(first.Clusters, first.Excluded[0].ClusterRecord)
	first.Excluded = nil
	first.Attempts = nil
	first.RecoveredBySource = nil
	if err := store.RecordRun(context.Background(), first); err != nil {
		t.Fatal(err)
	}

	// The enrich stage re-records the same run with full data.
	full := sampleRun()
	if err := store.RecordRun(context.Background(), full); err != nil {
		t.Fatal(err)
	}

	var runs int
	if err := store.db.QueryRow(`SELECT count(*) FROM runs`).Scan(&runs); err != nil {
		t.Fatal(err)
	}
	if runs != 1 {
		t.Errorf("runs rows = %d, want 1", runs)
	}
	if n := countRows(t, store, "merge_log", full.RunID); n != 2 {
		t.Errorf("merge_log rows = %d, want 2 (not duplicated)", n)
	}
	if n := countRows(t, store, "enrichment_log", full.RunID); n != 3 {
		t.Errorf("enrichment_log rows = %d, want 3", n)
	}

	got, err := store.Summary(context.Background(), full.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Excluded != 1 || got.Output != 2 {
		t.Errorf("summary not updated: Excluded = %d, Output = %d", got.Excluded, got.Output)
	}
}

func TestLoadRun(t *testing.T) {
	store, _ := testStore(t)
	d := sampleRun()
	ctx := context.Background()

	if err := store.RecordRun(ctx, d); err != nil {
		t.Fatal(err)
	}

	got, err := store.LoadRun(ctx, d.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if got.RunID != d.RunID {
		t.Errorf("RunID = %q, want %q", got.RunID, d.RunID)
	}
	if !got.StartedAt.Equal(d.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, d.StartedAt)
	}
	if got.InputRecords != d.InputRecords {
		t.Errorf("InputRecords = %d, want %d", got.InputRecords, d.InputRecords)
	}
	if !reflect.DeepEqual(got.PerSourceInput, d.PerSourceInput) {
		t.Errorf("PerSourceInput = %v, want %v", got.PerSourceInput, d.PerSourceInput)
	}
	if !reflect.DeepEqual(got.MergeLog, d.MergeLog) {
		t.Errorf("MergeLog = %v, want %v", got.MergeLog, d.MergeLog)
	}
	if got.PreprintLinks != d.PreprintLinks {
		t.Errorf("PreprintLinks = %d, want %d", got.PreprintLinks, d.PreprintLinks)
	}
}

func TestLoadRunKeepsMergeLogAcrossRerecord(t *testing.T) {
	// The enrich stage reloads a run, adds its results, and records the
	// run again; the merge rows written by the dedupe stage must survive.
	store, _ := testStore(t)
	d := sampleRun()
	ctx := context.Background()

	if err := store.RecordRun(ctx, d); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadRun(ctx, d.RunID)
	if err != nil {
		t.Fatal(err)
	}
	loaded.Clusters = d.Clusters
	loaded.Excluded = d.Excluded
	loaded.Attempts = d.Attempts
	loaded.RecoveredBySource = d.RecoveredBySource
	if err := store.RecordRun(ctx, loaded); err != nil {
		t.Fatal(err)
	}

	if n := countRows(t, store, "merge_log", d.RunID); n != len(d.MergeLog) {
		t.Errorf("merge_log rows after re-record = %d, want %d", n, len(d.MergeLog))
	}
}

func TestLoadRunUnknownRun(t *testing.T) {
	store, _ := testStore(t)

	_, err := store.LoadRun(context.Background(), "run-missing")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestLatestRunID(t *testing.T) {
	store, _ := testStore(t)

	first := sampleRun()
	second := sampleRun()
	second.RunID = "run-002"
	second.StartedAt = first.StartedAt.Add(time.Hour)

	for _, d := range []RunData{first, second} {
		if err := store.RecordRun(context.Background(), d); err != nil {
			t.Fatal(err)
		}
	}

	id, err := store.LatestRunID(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id != "run-002" {
		t.Errorf("LatestRunID = %q, want run-002", id)
	}
}

func TestLatestRunIDEmptyStore(t *testing.T) {
	store, _ := testStore(t)

	_, err := store.LatestRunID(context.Background())
	if err == nil {
		t.Fatal("expected error for empty store")
	}
	if !strings.Contains(err.Error(), "no runs") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestSummaryUnknownRun(t *testing.T) {
	store, _ := testStore(t)

	_, err := store.Summary(context.Background(), "run-nope")
	if err == nil {
		t.Fatal("expected error for unknown run")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %q, want 'not found'", err.Error())
	}
}

// --- render tests ---

func TestRenderSummaryTable(t *testing.T) {
	out := RenderSummaryTable(sampleRun().Summary())

	for _, want := range []string{
		"run-001",
		"input records",
		"pubmed",
		"merged by doi",
		"recovered via crossref",
		"output records",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}
