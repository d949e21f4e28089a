// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

const defaultWorkers = 4

// Pipeline fans cluster enrichment across a bounded worker pool
// (prd004-enrich R1.1, R4.1-R4.3). Workers share the chain's per-service
// limiter buckets, so adding workers never raises the request rate seen by
// any upstream API.
type Pipeline struct {
	Chain   *Chain
	Workers int
	Log     zerolog.Logger
}

// Result carries the enrichment phase outputs. Enriched holds every
// cluster with an abstract, pre-existing or recovered; Excluded holds the
// rest, each with an audit note. Both are ordered by cluster ID regardless
// of worker completion order.
type Result struct {
	Enriched []types.ClusterRecord
	Excluded []types.ExcludedRecord
	Attempts []types.EnrichmentAttempt

	// Recovered counts recoveries per tier name.
	Recovered map[string]int

	// Disabled lists services the breaker tripped during the run.
	Disabled []string
}

// Run enriches every cluster missing an abstract. Clusters that already
// carry one pass through untouched. Cancellation drains cleanly: in-flight
// lookups finish or time out individually, and any cluster not completed
// lands in Excluded with an audit note rather than vanishing. The returned
// error is the context's, if it ended early.
func (p *Pipeline) Run(ctx context.Context, clusters []types.ClusterRecord) (Result, error) {
	workers := p.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	res := Result{Recovered: make(map[string]int)}

	var pending []types.ClusterRecord
	for _, rec := range clusters {
		if usable(rec.Abstract, p.Chain.MinAbstract) {
			res.Enriched = append(res.Enriched, rec)
			continue
		}
		pending = append(pending, rec)
	}

	p.Log.Info().
		Int("clusters", len(clusters)).
		Int("missing_abstract", len(pending)).
		Int("workers", workers).
		Msg("starting abstract enrichment")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, rec := range pending {
		rec := rec // per-iteration copy: module now compiles as go1.21, pre-loopvar semantics
		g.Go(func() error {
			text, tier, attempts, err := p.Chain.Enrich(gctx, rec)

			mu.Lock()
			defer mu.Unlock()
			res.Attempts = append(res.Attempts, attempts...)
			switch {
			case err != nil:
				res.Excluded = append(res.Excluded, types.ExcludedRecord{
					ClusterRecord: rec,
					ExclusionCode: types.ExclusionNoAbstract,
					Note:          "enrichment cancelled before completion",
				})
			case text != "":
				rec.Abstract = text
				rec.AbstractSource = tier
				res.Enriched = append(res.Enriched, rec)
				res.Recovered[tier]++
			default:
				res.Excluded = append(res.Excluded, types.ExcludedRecord{
					ClusterRecord: rec,
					ExclusionCode: types.ExclusionNoAbstract,
					Note:          "all enrichment sources exhausted",
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	sort.Slice(res.Enriched, func(i, j int) bool {
		return res.Enriched[i].ClusterID < res.Enriched[j].ClusterID
	})
	sort.Slice(res.Excluded, func(i, j int) bool {
		return res.Excluded[i].ClusterID < res.Excluded[j].ClusterID
	})
	// Stable keeps each cluster's attempts in chain order.
	sort.SliceStable(res.Attempts, func(i, j int) bool {
		return res.Attempts[i].ClusterID < res.Attempts[j].ClusterID
	})
	res.Disabled = p.Chain.Breaker.Open()

	recovered := 0
	for _, n := range res.Recovered {
		recovered += n
	}
	p.Log.Info().
		Int("recovered", recovered).
		Int("excluded", len(res.Excluded)).
		Strs("disabled_services", res.Disabled).
		Msg("enrichment complete")

	return res, ctx.Err()
}
