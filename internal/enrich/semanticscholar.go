// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/corpus-engine/internal/httputil"
	"github.com/pdiddy/corpus-engine/internal/normalize"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// semanticScholarAPIBase is the Semantic Scholar Graph API root. Declared
// as a var so tests can substitute an httptest server.
var semanticScholarAPIBase = "https://api.semanticscholar.org/graph/v1"

// ServiceSemanticScholar groups the DOI and title tiers under one rate
// limit and one breaker: both hit the same API quota.
const ServiceSemanticScholar = "semantic_scholar"

// s2Fields limits paper payloads to what enrichment needs.
const s2Fields = "paperId,title,abstract"

// maxBodySize caps response bodies read from external services.
const maxBodySize = 10 << 20

type s2Paper struct {
	PaperID  string `json:"paperId"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
}

type s2SearchResponse struct {
	Total int       `json:"total"`
	Data  []s2Paper `json:"data"`
}

// SemanticScholarDOI resolves abstracts by DOI through the Graph API paper
// endpoint (prd004-enrich R2.1).
type SemanticScholarDOI struct {
	Client      *http.Client
	APIKey      string
	UserAgent   string
	MaxAttempts int
	Gate        httputil.Gate
}

var _ Source = (*SemanticScholarDOI)(nil)

// Name returns the tier identifier.
func (s *SemanticScholarDOI) Name() string { return "semantic_scholar_doi" }

// Service returns the shared rate-limit domain.
func (s *SemanticScholarDOI) Service() string { return ServiceSemanticScholar }

// Eligible requires a cluster-level DOI.
func (s *SemanticScholarDOI) Eligible(rec types.ClusterRecord) bool { return rec.HasDOI() }

// Fetch looks the paper up by DOI and returns its abstract.
func (s *SemanticScholarDOI) Fetch(ctx context.Context, rec types.ClusterRecord) (string, error) {
	doi := normalize.DOI(rec.DOI)
	reqURL := fmt.Sprintf("%s/paper/DOI:%s?fields=%s", semanticScholarAPIBase, url.PathEscape(doi), s2Fields)

	resp, err := s2Do(ctx, s.Client, reqURL, s.APIKey, s.UserAgent, s.MaxAttempts, s.Gate)
	if err != nil {
		return "", fmt.Errorf("semantic scholar request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("DOI %s: %w", doi, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("semantic scholar returned HTTP %d", resp.StatusCode)
	}

	var paper s2Paper
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&paper); err != nil {
		return "", fmt.Errorf("parsing semantic scholar response: %w", err)
	}

	abstract := strings.TrimSpace(paper.Abstract)
	if abstract == "" {
		return "", fmt.Errorf("DOI %s has no abstract: %w", doi, ErrNotFound)
	}
	return abstract, nil
}

// SemanticScholarTitle is the last-resort tier for clusters that carry no
// DOI and no PMID: a relevance search on the representative title, accepted
// only when a hit's title matches the cluster's (prd004-enrich R2.5). Title
// search is fuzzy, so a hit with a diverging title is a miss, never a wrong
// abstract.
type SemanticScholarTitle struct {
	Client      *http.Client
	APIKey      string
	UserAgent   string
	MaxAttempts int
	Gate        httputil.Gate
}

var _ Source = (*SemanticScholarTitle)(nil)

// Name returns the tier identifier.
func (s *SemanticScholarTitle) Name() string { return "semantic_scholar_title" }

// Service returns the shared rate-limit domain.
func (s *SemanticScholarTitle) Service() string { return ServiceSemanticScholar }

// Eligible requires a representative title that survives normalization, on
// a cluster with neither DOI nor PMID. Identifier-bearing clusters already
// had their precise lookups; a fuzzy search adds only mismatch risk there.
func (s *SemanticScholarTitle) Eligible(rec types.ClusterRecord) bool {
	if rec.HasDOI() || rec.HasPMID() {
		return false
	}
	return normalize.Title(rec.Representative.Title) != ""
}

// Fetch searches by title and returns the abstract of the first hit whose
// title matches the cluster's.
func (s *SemanticScholarTitle) Fetch(ctx context.Context, rec types.ClusterRecord) (string, error) {
	title := rec.Representative.Title
	params := url.Values{
		"query":  {title},
		"fields": {s2Fields},
		"limit":  {"3"},
	}
	reqURL := semanticScholarAPIBase + "/paper/search?" + params.Encode()

	resp, err := s2Do(ctx, s.Client, reqURL, s.APIKey, s.UserAgent, s.MaxAttempts, s.Gate)
	if err != nil {
		return "", fmt.Errorf("semantic scholar search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("semantic scholar returned HTTP %d", resp.StatusCode)
	}

	var sr s2SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&sr); err != nil {
		return "", fmt.Errorf("parsing semantic scholar response: %w", err)
	}

	want := normalize.Title(title)
	for _, hit := range sr.Data {
		if !titlesMatch(want, normalize.Title(hit.Title)) {
			continue
		}
		if abstract := strings.TrimSpace(hit.Abstract); abstract != "" {
			return abstract, nil
		}
	}
	return "", fmt.Errorf("no title match for %q: %w", title, ErrNotFound)
}

// titlesMatch accepts an exact normalized match or an 80% token overlap,
// which tolerates subtitle and punctuation drift without accepting a
// different paper.
func titlesMatch(want, got string) bool {
	if want == "" || got == "" {
		return false
	}
	if want == got {
		return true
	}

	wantTokens := strings.Fields(want)
	gotTokens := strings.Fields(got)
	if len(wantTokens) == 0 || len(gotTokens) == 0 {
		return false
	}

	set := make(map[string]bool, len(wantTokens))
	for _, tok := range wantTokens {
		set[tok] = true
	}
	shared := 0
	for _, tok := range gotTokens {
		if set[tok] {
			shared++
		}
	}

	longer := len(wantTokens)
	if len(gotTokens) > longer {
		longer = len(gotTokens)
	}
	return float64(shared) >= 0.8*float64(longer)
}

// s2Do issues one authenticated, paced, retried GET against the Graph API.
func s2Do(ctx context.Context, client *http.Client, reqURL, apiKey, userAgent string, maxAttempts int, gate httputil.Gate) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	return httputil.DoWithRetry(ctx, client, req, maxAttempts, gate)
}
