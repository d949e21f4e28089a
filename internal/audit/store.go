// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

const dbFile = "corpus.db"

// Store persists run summaries and the raw logs across runs, backing the
// report command.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the audit SQLite database at auditDir/corpus.db
// and bootstraps the schema (prd005-audit R3.1).
func NewStore(auditDir string) (*Store, error) {
	if err := os.MkdirAll(auditDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	dbPath := filepath.Join(auditDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			input_records INTEGER,
			per_source_input TEXT,
			skipped_at_ingest INTEGER,
			clusters INTEGER,
			duplicates_removed INTEGER,
			merges_by_strategy TEXT,
			preprint_links INTEGER,
			abstract_from_members INTEGER,
			recovered_by_source TEXT,
			excluded_no_abstract INTEGER,
			output_records INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS merge_log (
			run_id TEXT NOT NULL REFERENCES runs(id),
			cluster_id INTEGER NOT NULL,
			record_id TEXT NOT NULL,
			merged_into TEXT NOT NULL,
			strategy TEXT NOT NULL,
			matched_key TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_merge_log_run ON merge_log(run_id)`,
		`CREATE TABLE IF NOT EXISTS enrichment_log (
			run_id TEXT NOT NULL REFERENCES runs(id),
			cluster_id INTEGER NOT NULL,
			source TEXT NOT NULL,
			outcome TEXT NOT NULL,
			abstract TEXT,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_enrichment_log_run ON enrichment_log(run_id)`,
		`CREATE TABLE IF NOT EXISTS excluded (
			run_id TEXT NOT NULL REFERENCES runs(id),
			cluster_id INTEGER NOT NULL,
			title TEXT,
			doi TEXT,
			exclusion_code TEXT NOT NULL,
			note TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_excluded_run ON excluded(run_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	return nil
}

// RecordRun persists one run's summary and logs. Recording the same run ID
// again replaces its rows: the enrich stage updates the row the dedupe stage
// wrote (prd005-audit R3.2).
func (s *Store) RecordRun(ctx context.Context, d RunData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"merge_log", "enrichment_log", "excluded"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, d.RunID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	sum := d.Summary()
	perSourceJSON, _ := json.Marshal(sum.PerSourceInput)
	byStrategyJSON, _ := json.Marshal(sum.MergesByStrategy)
	recoveredJSON, _ := json.Marshal(sum.RecoveredBySource)

	startedAt := d.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, input_records, per_source_input,
			skipped_at_ingest, clusters, duplicates_removed, merges_by_strategy,
			preprint_links, abstract_from_members, recovered_by_source,
			excluded_no_abstract, output_records)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			input_records=excluded.input_records,
			per_source_input=excluded.per_source_input,
			skipped_at_ingest=excluded.skipped_at_ingest,
			clusters=excluded.clusters,
			duplicates_removed=excluded.duplicates_removed,
			merges_by_strategy=excluded.merges_by_strategy,
			preprint_links=excluded.preprint_links,
			abstract_from_members=excluded.abstract_from_members,
			recovered_by_source=excluded.recovered_by_source,
			excluded_no_abstract=excluded.excluded_no_abstract,
			output_records=excluded.output_records`,
		sum.RunID, startedAt.UTC().Format(time.RFC3339Nano), sum.InputRecords,
		string(perSourceJSON), sum.SkippedAtIngest, sum.Clusters,
		sum.DuplicatesRemoved, string(byStrategyJSON), sum.PreprintLinks,
		sum.AbstractFromMembers, string(recoveredJSON), sum.Excluded, sum.Output,
	)
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	if err := insertMergeLog(ctx, tx, d.RunID, d.MergeLog); err != nil {
		return err
	}
	if err := insertAttempts(ctx, tx, d.RunID, d.Attempts); err != nil {
		return err
	}
	if err := insertExcluded(ctx, tx, d.RunID, d.Excluded); err != nil {
		return err
	}

	return tx.Commit()
}

func insertMergeLog(ctx context.Context, tx *sql.Tx, runID string, log []types.MergeLogEntry) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO merge_log (run_id, cluster_id, record_id, merged_into, strategy, matched_key)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing merge_log insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range log {
		_, err := stmt.ExecContext(ctx,
			runID, e.ClusterID, e.RecordID, e.MergedInto, string(e.Strategy), e.MatchedKey)
		if err != nil {
			return fmt.Errorf("inserting merge of %s: %w", e.RecordID, err)
		}
	}
	return nil
}

func insertAttempts(ctx context.Context, tx *sql.Tx, runID string, attempts []types.EnrichmentAttempt) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO enrichment_log (run_id, cluster_id, source, outcome, abstract, error)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing enrichment_log insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range attempts {
		_, err := stmt.ExecContext(ctx,
			runID, a.ClusterID, a.Source, string(a.Outcome), a.Abstract, a.Error)
		if err != nil {
			return fmt.Errorf("inserting attempt for cluster %d: %w", a.ClusterID, err)
		}
	}
	return nil
}

func insertExcluded(ctx context.Context, tx *sql.Tx, runID string, excluded []types.ExcludedRecord) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO excluded (run_id, cluster_id, title, doi, exclusion_code, note)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing excluded insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range excluded {
		_, err := stmt.ExecContext(ctx,
			runID, e.ClusterID, e.Representative.Title, e.DOI, e.ExclusionCode, e.Note)
		if err != nil {
			return fmt.Errorf("inserting exclusion of cluster %d: %w", e.ClusterID, err)
		}
	}
	return nil
}

// Summary reads one run's summary back from the store.
func (s *Store) Summary(ctx context.Context, runID string) (types.Summary, error) {
	var (
		sum        types.Summary
		perSource  sql.NullString
		byStrategy sql.NullString
		recovered  sql.NullString
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, input_records, per_source_input, skipped_at_ingest, clusters,
			duplicates_removed, merges_by_strategy, preprint_links,
			abstract_from_members, recovered_by_source, excluded_no_abstract,
			output_records
		 FROM runs WHERE id = ?`, runID,
	).Scan(
		&sum.RunID, &sum.InputRecords, &perSource, &sum.SkippedAtIngest,
		&sum.Clusters, &sum.DuplicatesRemoved, &byStrategy, &sum.PreprintLinks,
		&sum.AbstractFromMembers, &recovered, &sum.Excluded, &sum.Output,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.Summary{}, fmt.Errorf("run %s not found", runID)
		}
		return types.Summary{}, fmt.Errorf("looking up run: %w", err)
	}

	if perSource.Valid {
		json.Unmarshal([]byte(perSource.String), &sum.PerSourceInput)
	}
	if byStrategy.Valid {
		json.Unmarshal([]byte(byStrategy.String), &sum.MergesByStrategy)
	}
	if recovered.Valid {
		json.Unmarshal([]byte(recovered.String), &sum.RecoveredBySource)
	}

	return sum, nil
}

// LoadRun reconstructs a recorded run so a later stage can update it in
// place. Only run-level counts and the merge log live in the store; the
// clusters themselves are read from the workspace files.
func (s *Store) LoadRun(ctx context.Context, runID string) (RunData, error) {
	sum, err := s.Summary(ctx, runID)
	if err != nil {
		return RunData{}, err
	}

	var startedAt string
	if err := s.db.QueryRowContext(ctx,
		`SELECT started_at FROM runs WHERE id = ?`, runID).Scan(&startedAt); err != nil {
		return RunData{}, fmt.Errorf("reading run start time: %w", err)
	}
	started, _ := time.Parse(time.RFC3339Nano, startedAt)

	d := RunData{
		RunID:            sum.RunID,
		StartedAt:        started,
		InputRecords:     sum.InputRecords,
		PerSourceInput:   sum.PerSourceInput,
		SkippedAtIngest:  sum.SkippedAtIngest,
		MergesByStrategy: sum.MergesByStrategy,
		PreprintLinks:    sum.PreprintLinks,
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT cluster_id, record_id, merged_into, strategy, matched_key
		 FROM merge_log WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return RunData{}, fmt.Errorf("reading merge log: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e        types.MergeLogEntry
			strategy string
		)
		if err := rows.Scan(&e.ClusterID, &e.RecordID, &e.MergedInto, &strategy, &e.MatchedKey); err != nil {
			return RunData{}, fmt.Errorf("scanning merge row: %w", err)
		}
		e.Strategy = types.MatchStrategy(strategy)
		d.MergeLog = append(d.MergeLog, e)
	}

	return d, rows.Err()
}

// LatestRunID returns the ID of the most recently started run.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", errors.New("no runs recorded")
		}
		return "", fmt.Errorf("querying runs: %w", err)
	}
	return id, nil
}
