// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pdiddy/corpus-engine/internal/httputil"
	"github.com/pdiddy/corpus-engine/internal/normalize"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// crossrefAPIBase is the CrossRef works endpoint. Declared as a var so
// tests can substitute an httptest server.
var crossrefAPIBase = "https://api.crossref.org/works"

// ServiceCrossRef is the rate-limit domain for the CrossRef tier.
const ServiceCrossRef = "crossref"

// CrossRef API JSON structures. Abstracts arrive as JATS XML fragments.
type crossrefResponse struct {
	Message crossrefWork `json:"message"`
}

type crossrefWork struct {
	DOI      string   `json:"DOI"`
	Title    []string `json:"title"`
	Abstract string   `json:"abstract"`
}

// CrossRef resolves abstracts by DOI from the works API (prd004-enrich
// R2.2), flattening the JATS markup CrossRef serves to plain text.
type CrossRef struct {
	Client    *http.Client
	UserAgent string

	// Mailto joins CrossRef's polite pool; appended to the User-Agent
	// when set.
	Mailto string

	MaxAttempts int
	Gate        httputil.Gate
}

var _ Source = (*CrossRef)(nil)

// Name returns the tier identifier.
func (c *CrossRef) Name() string { return "crossref" }

// Service returns the rate-limit domain.
func (c *CrossRef) Service() string { return ServiceCrossRef }

// Eligible requires a cluster-level DOI.
func (c *CrossRef) Eligible(rec types.ClusterRecord) bool { return rec.HasDOI() }

// Fetch looks the work up by DOI and returns its abstract.
func (c *CrossRef) Fetch(ctx context.Context, rec types.ClusterRecord) (string, error) {
	doi := normalize.DOI(rec.DOI)
	reqURL := crossrefAPIBase + "/" + url.PathEscape(doi)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	ua := c.UserAgent
	if c.Mailto != "" {
		ua = fmt.Sprintf("%s (mailto:%s)", ua, c.Mailto)
	}
	req.Header.Set("User-Agent", ua)

	resp, err := httputil.DoWithRetry(ctx, c.Client, req, c.MaxAttempts, c.Gate)
	if err != nil {
		return "", fmt.Errorf("crossref request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("DOI %s: %w", doi, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("crossref returned HTTP %d", resp.StatusCode)
	}

	var cr crossrefResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&cr); err != nil {
		return "", fmt.Errorf("parsing crossref response: %w", err)
	}

	abstract := cleanMarkup(cr.Message.Abstract)
	if abstract == "" {
		return "", fmt.Errorf("DOI %s has no abstract: %w", doi, ErrNotFound)
	}
	return abstract, nil
}
