// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/corpus-engine/internal/httputil"
	"github.com/pdiddy/corpus-engine/internal/normalize"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// pubmedAPIBase is the NCBI E-utilities efetch endpoint. Declared as a var
// so tests can substitute an httptest server.
var pubmedAPIBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"

// ServicePubMed is the rate-limit domain for the PubMed tier.
const ServicePubMed = "pubmed"

// E-utilities efetch XML structures. AbstractText sections can carry
// inline markup, so they are captured raw and flattened afterwards.
type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Sections []pubmedAbstractText `xml:"MedlineCitation>Article>Abstract>AbstractText"`
}

type pubmedAbstractText struct {
	Label string `xml:"Label,attr"`
	Text  string `xml:",innerxml"`
}

// PubMed fetches abstracts by PMID through E-utilities efetch
// (prd004-enrich R2.3). Structured abstracts keep their section labels:
// "BACKGROUND: ... METHODS: ...".
type PubMed struct {
	Client *http.Client

	// APIKey raises the E-utilities ceiling from 3 to 10 requests per
	// second when set.
	APIKey string

	UserAgent   string
	MaxAttempts int
	Gate        httputil.Gate
}

var _ Source = (*PubMed)(nil)

// Name returns the tier identifier.
func (p *PubMed) Name() string { return "pubmed" }

// Service returns the rate-limit domain.
func (p *PubMed) Service() string { return ServicePubMed }

// Eligible requires a cluster-level PMID.
func (p *PubMed) Eligible(rec types.ClusterRecord) bool { return rec.HasPMID() }

// Fetch retrieves the article record and assembles its abstract sections.
func (p *PubMed) Fetch(ctx context.Context, rec types.ClusterRecord) (string, error) {
	pmid := normalize.PMID(rec.PMID)
	params := url.Values{
		"db":      {"pubmed"},
		"id":      {pmid},
		"retmode": {"xml"},
		"rettype": {"abstract"},
	}
	if p.APIKey != "" {
		params.Set("api_key", p.APIKey)
	}
	reqURL := pubmedAPIBase + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, p.Client, req, p.MaxAttempts, p.Gate)
	if err != nil {
		return "", fmt.Errorf("pubmed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pubmed returned HTTP %d", resp.StatusCode)
	}

	var set pubmedArticleSet
	if err := xml.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&set); err != nil {
		return "", fmt.Errorf("parsing pubmed response: %w", err)
	}

	// An unknown PMID yields an empty article set, not an HTTP error.
	var parts []string
	for _, article := range set.Articles {
		for _, sec := range article.Sections {
			text := cleanMarkup(sec.Text)
			if text == "" {
				continue
			}
			if sec.Label != "" {
				text = sec.Label + ": " + text
			}
			parts = append(parts, text)
		}
		if len(parts) > 0 {
			break
		}
	}

	abstract := strings.Join(parts, " ")
	if abstract == "" {
		return "", fmt.Errorf("PMID %s has no abstract: %w", pmid, ErrNotFound)
	}
	return abstract, nil
}
