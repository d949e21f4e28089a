// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pdiddy/corpus-engine/internal/httputil"
	"github.com/pdiddy/corpus-engine/internal/normalize"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// arxivAPIBase is the arXiv Atom query endpoint. Declared as a var so
// tests can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// ServiceArxiv is the rate-limit domain for the arXiv tier.
const ServiceArxiv = "arxiv"

// arXiv Atom feed structures. The summary element is the abstract.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID      string `xml:"id"`
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
}

// Arxiv recovers preprint abstracts from the arXiv Atom API (prd004-enrich
// R2.4).
type Arxiv struct {
	Client      *http.Client
	UserAgent   string
	MaxAttempts int
	Gate        httputil.Gate
}

var _ Source = (*Arxiv)(nil)

// Name returns the tier identifier.
func (a *Arxiv) Name() string { return "arxiv" }

// Service returns the rate-limit domain.
func (a *Arxiv) Service() string { return ServiceArxiv }

// Eligible requires a cluster-level arXiv ID.
func (a *Arxiv) Eligible(rec types.ClusterRecord) bool { return rec.HasArxivID() }

// Fetch queries the feed for the bare (version-stripped) identifier and
// returns the entry summary.
func (a *Arxiv) Fetch(ctx context.Context, rec types.ClusterRecord) (string, error) {
	id := normalize.ArxivID(rec.ArxivID)
	params := url.Values{
		"id_list":     {id},
		"max_results": {"1"},
	}
	reqURL := arxivAPIBase + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", a.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, a.Client, req, a.MaxAttempts, a.Gate)
	if err != nil {
		return "", fmt.Errorf("arxiv request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("arxiv returned HTTP %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&feed); err != nil {
		return "", fmt.Errorf("parsing arxiv feed: %w", err)
	}

	// An unknown identifier yields an error entry with an empty summary.
	for _, entry := range feed.Entries {
		if abstract := cleanMarkup(entry.Summary); abstract != "" {
			return abstract, nil
		}
	}
	return "", fmt.Errorf("arxiv ID %s: %w", id, ErrNotFound)
}
