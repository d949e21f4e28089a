// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dedup resolves duplicate bibliographic records across literature
// databases into canonical clusters. Matching is conservative: exact
// normalized keys only, no fuzzy comparison, so every merge is attributable
// to a single key in the audit log.
// Implements: prd003-dedup (R1-R4);
//
//	docs/ARCHITECTURE § Identity Resolution.
package dedup

import (
	"fmt"
	"io"

	"github.com/pdiddy/corpus-engine/internal/normalize"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Result holds the finalized clusters and the merge audit trail.
type Result struct {
	// Clusters are the output records, one per cluster, in cluster-ID order.
	Clusters []types.ClusterRecord

	// MergeLog has one entry per union performed, in pass order. Appending
	// finished when clusters were finalized; the log is read-only afterward.
	MergeLog []types.MergeLogEntry

	// MergesByStrategy counts effective unions per match strategy.
	MergesByStrategy map[string]int

	// PreprintLinks counts clusters where a published record was promoted
	// over a preprint counterpart.
	PreprintLinks int
}

// DuplicatesRemoved is the number of input records folded into other
// records' clusters.
func (r Result) DuplicatesRemoved(inputCount int) int {
	return inputCount - len(r.Clusters)
}

// pass pairs a match strategy with the key it compares.
type pass struct {
	strategy types.MatchStrategy
	key      func(k normalize.Keys) string
}

// passes are applied in fixed order so the audit log is reproducible:
// identifier passes first, title last (prd003-dedup R2.2). The final
// partition does not depend on this order, only the logged pairs do.
var passes = []pass{
	{types.MatchDOI, func(k normalize.Keys) string { return k.DOI }},
	{types.MatchPMID, func(k normalize.Keys) string { return k.PMID }},
	{types.MatchArxiv, func(k normalize.Keys) string { return k.Arxiv }},
	{types.MatchTitle, func(k normalize.Keys) string { return k.Title }},
}

// Resolve partitions records into clusters by transitive closure over
// shared normalized keys, then selects representatives and merges member
// fields. Records must arrive in canonical ingest order; ties break toward
// earlier records. Progress lines go to w.
//
// The partition is permutation-independent; representative selection and
// logged merge pairs are deterministic for a given input order
// (prd003-dedup R2.4).
func Resolve(records []types.RawRecord, cfg types.DedupConfig, w io.Writer) Result {
	priority := cfg.SourcePriority
	if len(priority) == 0 {
		priority = types.DefaultSourcePriority
	}
	prefixes := cfg.PreprintDOIPrefixes
	if len(prefixes) == 0 {
		prefixes = types.DefaultPreprintDOIPrefixes
	}
	minAbstract := cfg.MinAbstractLength
	if minAbstract <= 0 {
		minAbstract = types.DefaultMinAbstractLength
	}

	keys := make([]normalize.Keys, len(records))
	for i := range records {
		keys[i] = normalize.For(&records[i])
	}

	uf := newUnionFind(len(records))
	var mergeLog []types.MergeLogEntry
	byStrategy := make(map[string]int)

	// Each pass groups records by one key. The first record seen with a key
	// anchors the group; later holders union into it. A union that finds the
	// two already connected (via an earlier pass) logs nothing, so the log
	// carries exactly input-count minus cluster-count entries.
	for _, p := range passes {
		anchors := make(map[string]int, len(records))
		for i := range records {
			k := p.key(keys[i])
			if k == "" {
				continue
			}
			a, seen := anchors[k]
			if !seen {
				anchors[k] = i
				continue
			}
			if uf.union(a, i) {
				mergeLog = append(mergeLog, types.MergeLogEntry{
					RecordID:   records[i].ID,
					MergedInto: records[a].ID,
					Strategy:   p.strategy,
					MatchedKey: k,
				})
				byStrategy[string(p.strategy)]++
			}
		}
	}

	// Finalize: number components in first-seen order and gather members.
	clusterOf := make([]int, len(records))
	var memberLists [][]int
	rootToCluster := make(map[int]int)
	for i := range records {
		root := uf.find(i)
		cid, ok := rootToCluster[root]
		if !ok {
			cid = len(memberLists)
			rootToCluster[root] = cid
			memberLists = append(memberLists, nil)
		}
		clusterOf[i] = cid
		memberLists[cid] = append(memberLists[cid], i)
	}

	// Backfill cluster IDs into the merge log now that components exist.
	idxByID := make(map[string]int, len(records))
	for i := range records {
		idxByID[records[i].ID] = i
	}
	for i := range mergeLog {
		mergeLog[i].ClusterID = clusterOf[idxByID[mergeLog[i].RecordID]]
	}

	sel := selector{
		records:     records,
		keys:        keys,
		priority:    priority,
		prefixes:    prefixes,
		minAbstract: minAbstract,
	}

	result := Result{
		MergeLog:         mergeLog,
		MergesByStrategy: byStrategy,
	}
	for cid, members := range memberLists {
		cr, promoted := sel.build(cid, members)
		if promoted.linked {
			result.PreprintLinks++
			result.MergeLog = append(result.MergeLog, types.MergeLogEntry{
				ClusterID:  cid,
				RecordID:   cr.Representative.ID,
				MergedInto: promoted.preprintRecordID,
				Strategy:   types.MatchPreprintLink,
				MatchedKey: cr.PreprintDOI,
			})
		}
		result.Clusters = append(result.Clusters, cr)
	}

	fmt.Fprintf(w, "resolved %d records into %d clusters (%d duplicates removed)\n",
		len(records), len(result.Clusters), len(records)-len(result.Clusters))
	for _, p := range passes {
		if n := byStrategy[string(p.strategy)]; n > 0 {
			fmt.Fprintf(w, "  %-7s merges: %d\n", p.strategy, n)
		}
	}
	if result.PreprintLinks > 0 {
		fmt.Fprintf(w, "  preprint links: %d\n", result.PreprintLinks)
	}

	return result
}
