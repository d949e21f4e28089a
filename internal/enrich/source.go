// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package enrich implements prd004-enrich: abstract recovery for clusters
// that survive deduplication without one, through an ordered chain of
// external metadata services with shared rate limits and per-service
// outage tracking.
//
// See docs/ARCHITECTURE § Abstract Enrichment for the stage contract.
package enrich

import (
	"context"
	"errors"
	"html"
	"regexp"
	"strings"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// ErrNotFound reports that a service answered and definitively holds no
// abstract for the record. It is a permanent miss for that tier: the chain
// moves on immediately, without retry and without charging the service an
// outage failure.
var ErrNotFound = errors.New("abstract not found")

// A Source recovers abstracts from one external metadata service. Fetch is
// called only when Eligible reports the cluster carries the identifier the
// tier keys on. Implementations pace themselves through the shared limiter
// gate and return ErrNotFound (possibly wrapped) on a definitive miss; any
// other error counts as an outage-class failure against the service.
type Source interface {
	// Name is the tier identifier used in attempt records and the chain
	// configuration.
	Name() string

	// Service groups tiers that hit the same upstream API under one rate
	// limit and one outage breaker.
	Service() string

	// Eligible reports whether the cluster carries the identifier this
	// tier needs.
	Eligible(rec types.ClusterRecord) bool

	// Fetch returns the recovered abstract as plain text.
	Fetch(ctx context.Context, rec types.ClusterRecord) (string, error)
}

var (
	markupTagRE   = regexp.MustCompile(`<[^>]+>`)
	markupSpaceRE = regexp.MustCompile(`\s+`)
)

// cleanMarkup flattens a JATS or HTML abstract fragment to plain text:
// tags become spaces, entities are decoded, and whitespace runs collapse.
func cleanMarkup(s string) string {
	s = markupTagRE.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(markupSpaceRE.ReplaceAllString(s, " "))
}
