// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dedup

import (
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/corpus-engine/internal/normalize"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// selector builds one ClusterRecord per component: representative choice,
// preprint promotion, identifier backfill, and merged abstract.
// Per prd003-dedup R3.1-R3.4.
type selector struct {
	records     []types.RawRecord
	keys        []normalize.Keys
	priority    map[types.SourceType]int
	prefixes    []string
	minAbstract int
}

// promotion reports whether a published record displaced a preprint.
type promotion struct {
	linked           bool
	preprintRecordID string
}

// build assembles the ClusterRecord for the members (record indices in
// first-seen order) of cluster cid.
func (s *selector) build(cid int, members []int) (types.ClusterRecord, promotion) {
	repIdx, promo := s.pickRepresentative(members)

	cr := types.ClusterRecord{
		ClusterID:      cid,
		Representative: s.records[repIdx],
	}

	for _, m := range members {
		rec := &s.records[m]
		cr.Members = append(cr.Members, types.MemberRef{
			RecordID: rec.ID,
			Source:   rec.Source,
			DOI:      rec.DOI,
			PMID:     rec.PMID,
			ArxivID:  rec.ArxivID,
		})
	}

	s.backfillIdentifiers(&cr, members)

	if promo.linked {
		cr.PreprintDOI = s.firstPreprintDOI(members)
	}

	// The merged abstract is the longest useful member abstract, whichever
	// member supplied it (prd003-dedup R3.2); ties keep the earlier member.
	bestLen := 0
	for _, m := range members {
		rec := &s.records[m]
		if !usefulAbstract(rec.Abstract, s.minAbstract) {
			continue
		}
		if n := utf8.RuneCountInString(rec.Abstract); n > bestLen {
			bestLen = n
			cr.Abstract = rec.Abstract
			cr.AbstractSource = string(rec.Source)
		}
	}

	return cr, promo
}

// pickRepresentative returns the member index with the best-ranked source.
// When the cluster holds both a preprint DOI and a published DOI, the
// candidate set narrows to published-DOI holders regardless of source rank
// (prd003-dedup R3.3). Rank ties break by record ID, which encodes
// first-seen ingest order.
func (s *selector) pickRepresentative(members []int) (int, promotion) {
	candidates := members
	var promo promotion

	published, preprint := s.splitByDOIKind(members)
	if len(published) > 0 && len(preprint) > 0 {
		candidates = published
		promo.linked = true
		promo.preprintRecordID = s.records[preprint[0]].ID
	}

	best := candidates[0]
	for _, m := range candidates[1:] {
		if s.better(m, best) {
			best = m
		}
	}
	return best, promo
}

// better reports whether record a outranks record b for representative
// selection.
func (s *selector) better(a, b int) bool {
	pa, pb := s.rank(a), s.rank(b)
	if pa != pb {
		return pa < pb
	}
	return s.records[a].ID < s.records[b].ID
}

// rank returns the source priority, with unranked sources last.
func (s *selector) rank(i int) int {
	if p, ok := s.priority[s.records[i].Source]; ok {
		return p
	}
	return 99
}

// splitByDOIKind partitions DOI-bearing members into published and preprint
// holders, preserving first-seen order.
func (s *selector) splitByDOIKind(members []int) (published, preprint []int) {
	for _, m := range members {
		doi := s.keys[m].DOI
		if doi == "" {
			continue
		}
		if normalize.IsPreprintDOI(doi, s.prefixes) {
			preprint = append(preprint, m)
		} else {
			published = append(published, m)
		}
	}
	return published, preprint
}

// firstPreprintDOI returns the first-seen preprint DOI in raw form.
func (s *selector) firstPreprintDOI(members []int) string {
	for _, m := range members {
		if s.keys[m].DOI != "" && normalize.IsPreprintDOI(s.keys[m].DOI, s.prefixes) {
			return s.records[m].DOI
		}
	}
	return ""
}

// backfillIdentifiers fills cluster-level DOI/PMID/ArxivID from members so
// enrichment can use an identifier any member contributed. The DOI prefers
// the first published DOI over a preprint one.
func (s *selector) backfillIdentifiers(cr *types.ClusterRecord, members []int) {
	published, preprint := s.splitByDOIKind(members)
	switch {
	case len(published) > 0:
		cr.DOI = s.records[published[0]].DOI
	case len(preprint) > 0:
		cr.DOI = s.records[preprint[0]].DOI
	}
	for _, m := range members {
		if cr.PMID == "" && s.keys[m].PMID != "" {
			cr.PMID = s.records[m].PMID
		}
		if cr.ArxivID == "" && s.keys[m].Arxiv != "" {
			cr.ArxivID = s.records[m].ArxivID
		}
	}
}

// usefulAbstract applies the minimum-length rule: text at or below the
// threshold counts as absent.
func usefulAbstract(text string, min int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) > min
}
