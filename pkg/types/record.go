// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the corpus-engine pipeline.
// Implements: prd001-ingest (RawRecord, R2.1-R2.4);
//
//	prd003-dedup (ClusterRecord, MergeLogEntry, R1.1-R1.5, R4.1-R4.3);
//	prd004-enrich (EnrichmentAttempt, R3.1-R3.4);
//	prd005-audit (Summary, R1.1-R1.6).
//
// See docs/ARCHITECTURE § Data Structures, § Audit Trail.
package types

import "encoding/json"

// SourceType identifies a literature database that contributed records.
// The set is fixed: source identity drives representative selection, so an
// unrecognized source is rejected at ingestion (prd001-ingest R2.3).
type SourceType string

const (
	SourcePubMed          SourceType = "pubmed"
	SourceScopus          SourceType = "scopus"
	SourceSemanticScholar SourceType = "semantic_scholar"
	SourceBiorxivMedrxiv  SourceType = "biorxiv_medrxiv"
	SourceSpringerNature  SourceType = "springernature"
	SourceArxiv           SourceType = "arxiv"
	SourceGoogleScholar   SourceType = "google_scholar"
)

// DefaultSourcePriority ranks sources for representative selection
// (prd003-dedup R3.1). Lower rank wins: curated indexes first, then the
// citation graph, then preprint servers, then scraped sources.
var DefaultSourcePriority = map[SourceType]int{
	SourcePubMed:          1,
	SourceScopus:          2,
	SourceSemanticScholar: 3,
	SourceBiorxivMedrxiv:  4,
	SourceSpringerNature:  5,
	SourceArxiv:           6,
	SourceGoogleScholar:   7,
}

// KnownSource reports whether s names one of the enumerated literature
// databases.
func KnownSource(s SourceType) bool {
	_, ok := DefaultSourcePriority[s]
	return ok
}

// RawRecord is one bibliographic record as emitted by a source collector.
// Immutable once ingested; all identifier fields are optional except Title.
// Per prd001-ingest R2.1, the raw source payload is retained for provenance.
type RawRecord struct {
	// ID is the run-scoped record identifier assigned at ingestion
	// (deterministic from export-file order, e.g. "pubmed-00042").
	ID string `json:"id" yaml:"id"`

	// Source is the originating literature database.
	Source SourceType `json:"source_db" yaml:"source_db"`

	// Title is the record title as exported. Required.
	Title string `json:"title" yaml:"title"`

	// Abstract is the abstract text, if the source provided one.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// DOI is the raw DOI string, possibly URL-prefixed.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// PMID is the raw PubMed identifier.
	PMID string `json:"pmid,omitempty" yaml:"pmid,omitempty"`

	// ArxivID is the raw arXiv identifier, possibly version-suffixed.
	ArxivID string `json:"arxiv_id,omitempty" yaml:"arxiv_id,omitempty"`

	// Year is the publication year as exported (string: sources disagree on
	// formats like "2024" vs "2024-03").
	Year string `json:"year,omitempty" yaml:"year,omitempty"`

	// Venue is the journal or repository name.
	Venue string `json:"venue,omitempty" yaml:"venue,omitempty"`

	// Raw preserves the source-specific payload verbatim.
	Raw json.RawMessage `json:"raw,omitempty" yaml:"-"`
}

// MatchStrategy names the key type that triggered a merge
// (prd003-dedup R2.2). The resolver applies strategies in this order:
// DOI, PMID, arXiv, title; PreprintLink annotates representative promotion.
type MatchStrategy string

const (
	MatchDOI          MatchStrategy = "doi"
	MatchPMID         MatchStrategy = "pmid"
	MatchArxiv        MatchStrategy = "arxiv"
	MatchTitle        MatchStrategy = "title"
	MatchPreprintLink MatchStrategy = "preprint_link"
)

// MergeLogEntry records one union performed by the resolver. Append-only;
// together the entries reproduce the clustering decisions without
// re-execution (prd005-audit R1.2).
type MergeLogEntry struct {
	// ClusterID is the final cluster the two records ended in.
	ClusterID int `json:"cluster_id" yaml:"cluster_id"`

	// RecordID is the record that joined an existing group.
	RecordID string `json:"record_id" yaml:"record_id"`

	// MergedInto is the first-seen record of the matching group.
	MergedInto string `json:"merged_into" yaml:"merged_into"`

	// Strategy is the key type that matched.
	Strategy MatchStrategy `json:"strategy" yaml:"strategy"`

	// MatchedKey is the normalized key value both records share.
	MatchedKey string `json:"matched_key" yaml:"matched_key"`
}

// MemberRef is the provenance entry for one cluster member
// (prd003-dedup R4.2).
type MemberRef struct {
	RecordID string     `json:"record_id" yaml:"record_id"`
	Source   SourceType `json:"source_db" yaml:"source_db"`
	DOI      string     `json:"doi,omitempty" yaml:"doi,omitempty"`
	PMID     string     `json:"pmid,omitempty" yaml:"pmid,omitempty"`
	ArxivID  string     `json:"arxiv_id,omitempty" yaml:"arxiv_id,omitempty"`
}

// ClusterRecord is the output unit: one per cluster of records resolved to
// the same publication. Per prd003-dedup R4.1-R4.3 it carries the chosen
// representative, full member provenance, the merged abstract, and any
// linked preprint DOI.
type ClusterRecord struct {
	// ClusterID is unique and deterministic within a run (sequential in
	// first-seen order).
	ClusterID int `json:"cluster_id" yaml:"cluster_id"`

	// Representative is the record chosen to stand for the cluster.
	Representative RawRecord `json:"representative" yaml:"representative"`

	// DOI, PMID, and ArxivID are the cluster-level identifiers, backfilled
	// from any member when the representative lacks one. DOI prefers a
	// published (non-preprint) DOI. Enrichment tier gating reads these.
	DOI     string `json:"doi,omitempty" yaml:"doi,omitempty"`
	PMID    string `json:"pmid,omitempty" yaml:"pmid,omitempty"`
	ArxivID string `json:"arxiv_id,omitempty" yaml:"arxiv_id,omitempty"`

	// Members lists every source record in the cluster, including the
	// representative, in first-seen order.
	Members []MemberRef `json:"members" yaml:"members"`

	// Abstract is the selected abstract: the longest member abstract, or the
	// enrichment result when no member supplied one. Empty only on excluded
	// records.
	Abstract string `json:"abstract" yaml:"abstract"`

	// AbstractSource says where the abstract came from: a member source name,
	// or an enrichment source (e.g. "crossref").
	AbstractSource string `json:"abstract_source,omitempty" yaml:"abstract_source,omitempty"`

	// PreprintDOI is the linked preprint DOI when the cluster joined a
	// preprint to its published version (prd003-dedup R3.3).
	PreprintDOI string `json:"preprint_doi,omitempty" yaml:"preprint_doi,omitempty"`
}

// Identifier helpers used by enrichment tier gating (prd004-enrich R2.2).
// They read the cluster-level identifiers, so a PMID contributed by any
// member makes the PubMed tier eligible.

// HasDOI reports whether the cluster carries a DOI.
func (c *ClusterRecord) HasDOI() bool { return c.DOI != "" }

// HasPMID reports whether the cluster carries a PMID.
func (c *ClusterRecord) HasPMID() bool { return c.PMID != "" }

// HasArxivID reports whether the cluster carries an arXiv ID.
func (c *ClusterRecord) HasArxivID() bool { return c.ArxivID != "" }

// ExclusionNoAbstract marks a record excluded because no abstract could be
// recovered from any member or enrichment source (prd004-enrich R4.1).
const ExclusionNoAbstract = "EC_NO_ABSTRACT"

// ExcludedRecord is a ClusterRecord that left the pipeline, with the reason
// preserved for the audit trail. Never silently dropped (prd004-enrich R4.2).
type ExcludedRecord struct {
	ClusterRecord `yaml:",inline"`

	// ExclusionCode is the machine-readable marker (e.g. EC_NO_ABSTRACT).
	ExclusionCode string `json:"exclusion_code" yaml:"exclusion_code"`

	// Note explains the exclusion (sources tried, cancellation).
	Note string `json:"note" yaml:"note"`
}

// AttemptOutcome classifies one enrichment lookup (prd004-enrich R3.2).
type AttemptOutcome string

const (
	// OutcomeSuccess: the source returned a usable abstract.
	OutcomeSuccess AttemptOutcome = "success"
	// OutcomeNotFound: the source does not know the record (permanent).
	OutcomeNotFound AttemptOutcome = "not_found"
	// OutcomeError: transient failure that survived all retries.
	OutcomeError AttemptOutcome = "error"
	// OutcomeSkipped: tier not consulted because its service was disabled
	// for the remainder of the run.
	OutcomeSkipped AttemptOutcome = "skipped"
)

// EnrichmentAttempt records one (record, source) lookup, kept even on
// failure (prd004-enrich R3.1, prd005-audit R1.3).
type EnrichmentAttempt struct {
	ClusterID int            `json:"cluster_id" yaml:"cluster_id"`
	Source    string         `json:"source" yaml:"source"`
	Outcome   AttemptOutcome `json:"outcome" yaml:"outcome"`

	// Abstract is the recovered text on success.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Error is the final error text on a transient failure.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// SkippedRecord is an input record excluded at ingestion (malformed input,
// prd001-ingest R3.1): it never enters clustering.
type SkippedRecord struct {
	Source SourceType `json:"source_db" yaml:"source_db"`
	Title  string     `json:"title" yaml:"title"`
	File   string     `json:"file" yaml:"file"`
	Reason string     `json:"reason" yaml:"reason"`
}

// Summary aggregates one run's decisions (prd005-audit R2.1-R2.4).
// Together with the merge log and enrichment log it reproduces the run.
type Summary struct {
	RunID        string `json:"run_id" yaml:"run_id"`
	InputRecords int    `json:"input_records" yaml:"input_records"`

	// PerSourceInput counts ingested records per literature database.
	PerSourceInput map[string]int `json:"per_source_input" yaml:"per_source_input"`

	// SkippedAtIngest counts malformed records excluded before clustering.
	SkippedAtIngest int `json:"skipped_at_ingest" yaml:"skipped_at_ingest"`

	Clusters          int `json:"clusters" yaml:"clusters"`
	DuplicatesRemoved int `json:"duplicates_removed" yaml:"duplicates_removed"`

	// MergesByStrategy counts unions per match strategy.
	MergesByStrategy map[string]int `json:"merges_by_strategy" yaml:"merges_by_strategy"`

	// PreprintLinks counts clusters where a published record was promoted
	// over a preprint.
	PreprintLinks int `json:"preprint_links" yaml:"preprint_links"`

	// AbstractFromMembers counts clusters whose abstract came from a member.
	AbstractFromMembers int `json:"abstract_from_members" yaml:"abstract_from_members"`

	// RecoveredBySource counts abstracts recovered per enrichment source.
	RecoveredBySource map[string]int `json:"recovered_by_source" yaml:"recovered_by_source"`

	// Excluded counts records excluded for a missing abstract.
	Excluded int `json:"excluded_no_abstract" yaml:"excluded_no_abstract"`

	// Output counts final abstract-complete records.
	Output int `json:"output_records" yaml:"output_records"`
}
