// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize canonicalizes bibliographic identifiers and titles into
// comparison keys for exact matching. All functions are total, pure, and
// idempotent: normalizing an already-normalized value returns it unchanged,
// and absent input stays absent.
// Implements: prd002-normalize (R1-R5);
//
//	docs/ARCHITECTURE § Normalization.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// doiURLPrefixes are the URL forms sources wrap DOIs in. Matched
// case-insensitively; only the first match is stripped.
var doiURLPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
}

var (
	htmlTagRE      = regexp.MustCompile(`<[^>]+>`)
	nonWordRE      = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	whitespaceRE   = regexp.MustCompile(`\s+`)
	arxivVersionRE = regexp.MustCompile(`v\d+$`)
)

// DOI strips a doi.org / dx.doi.org URL wrapper and lower-cases the
// remainder. Empty input returns empty.
func DOI(doi string) string {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return ""
	}
	lower := strings.ToLower(doi)
	for _, prefix := range doiURLPrefixes {
		if strings.HasPrefix(lower, prefix) {
			doi = doi[len(prefix):]
			break
		}
	}
	return strings.ToLower(strings.TrimSpace(doi))
}

// PMID keeps digits only. A value with no digits normalizes to absent.
func PMID(pmid string) string {
	var b strings.Builder
	for _, r := range pmid {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ArxivID strips a trailing version suffix (v1, v2, ...) and lower-cases,
// so "2301.07041v2" and "2301.07041" compare equal.
func ArxivID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	return strings.ToLower(arxivVersionRE.ReplaceAllString(id, ""))
}

// Title canonicalizes a title for exact matching: Unicode NFC, lower-case,
// HTML tags stripped (some Semantic Scholar exports embed them),
// punctuation removed, whitespace runs collapsed, ends trimmed.
func Title(title string) string {
	if title == "" {
		return ""
	}
	title = norm.NFC.String(title)
	title = strings.ToLower(title)
	title = htmlTagRE.ReplaceAllString(title, "")
	title = nonWordRE.ReplaceAllString(title, "")
	title = whitespaceRE.ReplaceAllString(title, " ")
	return strings.TrimSpace(title)
}

// Keys holds the derived comparison keys for one record. An empty field
// means the key is absent and never participates in matching.
type Keys struct {
	DOI   string
	PMID  string
	Arxiv string
	Title string
}

// For derives all four comparison keys from a record.
func For(rec *types.RawRecord) Keys {
	return Keys{
		DOI:   DOI(rec.DOI),
		PMID:  PMID(rec.PMID),
		Arxiv: ArxivID(rec.ArxivID),
		Title: Title(rec.Title),
	}
}

// IsPreprintDOI reports whether doi (in any accepted raw form) belongs to a
// preprint server, per the configured prefix set. Prefixes are compared
// against the normalized DOI.
func IsPreprintDOI(doi string, prefixes []string) bool {
	ndoi := DOI(doi)
	if ndoi == "" {
		return false
	}
	for _, p := range prefixes {
		if strings.HasPrefix(ndoi, p) {
			return true
		}
	}
	return false
}
