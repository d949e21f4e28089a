package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "corpus-engine/0.1"). CrossRef's polite pool additionally wants a
	// mailto contact appended; see EnrichConfig.CrossRefMailto.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// IngestConfig holds settings for export loading.
// Per prd001-ingest R1.1-R1.3.
type IngestConfig struct {
	// ExportsDir is the directory of per-source record exports (*.json, *.yaml).
	ExportsDir string `json:"exports_dir" yaml:"exports_dir"`
}

// DedupConfig holds settings for identity resolution.
// Per prd003-dedup R3.1-R3.4.
type DedupConfig struct {
	// SourcePriority ranks sources for representative selection; lower rank
	// wins. Empty means DefaultSourcePriority.
	SourcePriority map[SourceType]int `json:"source_priority,omitempty" yaml:"source_priority,omitempty"`

	// PreprintDOIPrefixes identifies preprint-server DOIs for
	// preprint/publication linking (default: 10.1101/, 10.48550/arxiv).
	PreprintDOIPrefixes []string `json:"preprint_doi_prefixes,omitempty" yaml:"preprint_doi_prefixes,omitempty"`

	// MinAbstractLength is the shortest abstract considered present
	// (default 10 characters); shorter text is treated as absent.
	MinAbstractLength int `json:"min_abstract_length" yaml:"min_abstract_length"`
}

// DefaultPreprintDOIPrefixes covers bioRxiv/medRxiv and arXiv DataCite DOIs.
var DefaultPreprintDOIPrefixes = []string{"10.1101/", "10.48550/arxiv"}

// DefaultMinAbstractLength is the present/absent threshold in characters.
const DefaultMinAbstractLength = 10

// RetryConfig controls backoff on transient enrichment failures.
// Per prd004-enrich R5.1-R5.3.
type RetryConfig struct {
	// MaxAttempts is the retry ceiling per (record, source) lookup (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// BaseDelay is the first backoff delay; it doubles per retry (default 2s).
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`
}

// RateLimitConfig is the token-bucket setting for one external service.
// Per prd004-enrich R6.1: one limiter instance per service per run, shared
// by every concurrent lookup against that service.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate (default per service, see
	// DefaultRateLimits).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// Burst is the bucket size (default 1).
	Burst int `json:"burst" yaml:"burst" mapstructure:"burst"`
}

// DefaultRateLimits is conservative against published public quotas.
var DefaultRateLimits = map[string]RateLimitConfig{
	"semantic_scholar": {RequestsPerSecond: 1, Burst: 1},
	"crossref":         {RequestsPerSecond: 2, Burst: 1},
	"pubmed":           {RequestsPerSecond: 3, Burst: 1},
	"arxiv":            {RequestsPerSecond: 1, Burst: 1},
}

// EnrichConfig holds settings for the abstract enrichment stage.
// Per prd004-enrich R2.1, R5.1-R6.3.
type EnrichConfig struct {
	HTTPConfig `yaml:",inline"`

	// Chain orders the enrichment tiers. Empty means the default chain:
	// semantic_scholar_doi, crossref, pubmed, arxiv, semantic_scholar_title.
	Chain []string `json:"chain,omitempty" yaml:"chain,omitempty"`

	// Workers bounds concurrent record lookups (default 4).
	Workers int `json:"workers" yaml:"workers"`

	// Retry controls transient-failure backoff.
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// RateLimits overrides per-service token buckets.
	RateLimits map[string]RateLimitConfig `json:"rate_limits,omitempty" yaml:"rate_limits,omitempty"`

	// OutageThreshold is the consecutive-failure count after which a source
	// is disabled for the rest of the run (default 5).
	OutageThreshold int `json:"outage_threshold" yaml:"outage_threshold"`

	// MinAbstractLength mirrors DedupConfig: shorter enrichment results do
	// not count as recovered.
	MinAbstractLength int `json:"min_abstract_length" yaml:"min_abstract_length"`

	// SemanticScholarAPIKey raises the Semantic Scholar quota when set.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty"`

	// NCBIAPIKey raises the E-utilities quota when set.
	NCBIAPIKey string `json:"ncbi_api_key,omitempty" yaml:"ncbi_api_key,omitempty"`

	// CrossRefMailto is the contact address for CrossRef's polite pool.
	CrossRefMailto string `json:"crossref_mailto,omitempty" yaml:"crossref_mailto,omitempty"`
}

// DefaultChain is the tier order when EnrichConfig.Chain is empty.
var DefaultChain = []string{
	"semantic_scholar_doi",
	"crossref",
	"pubmed",
	"arxiv",
	"semantic_scholar_title",
}

// AuditConfig holds settings for audit outputs.
// Per prd005-audit R3.1-R3.3.
type AuditConfig struct {
	// CorpusDir receives deduplicated_records.json and
	// excluded_no_abstract.json.
	CorpusDir string `json:"corpus_dir" yaml:"corpus_dir"`

	// AuditDir receives deduplication_log.csv, deduplication_stats.json,
	// enrichment_log.json, and the SQLite store corpus.db.
	AuditDir string `json:"audit_dir" yaml:"audit_dir"`
}

// LoggingConfig controls the structured run log.
type LoggingConfig struct {
	// Level is the zerolog level name: trace, debug, info, warn, error
	// (default info).
	Level string `json:"level" yaml:"level"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Ingest  IngestConfig  `json:"ingest" yaml:"ingest"`
	Dedup   DedupConfig   `json:"dedup" yaml:"dedup"`
	Enrich  EnrichConfig  `json:"enrich" yaml:"enrich"`
	Audit   AuditConfig   `json:"audit" yaml:"audit"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}
