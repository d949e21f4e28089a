// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// recoverByID serves a canned abstract for specific cluster IDs and a miss
// for everything else.
type recoverByID struct {
	name      string
	service   string
	abstracts map[int]string
}

func (r *recoverByID) Name() string { return r.name }

func (r *recoverByID) Service() string { return r.service }

func (r *recoverByID) Eligible(types.ClusterRecord) bool { return true }

func (r *recoverByID) Fetch(_ context.Context, rec types.ClusterRecord) (string, error) {
	if text, ok := r.abstracts[rec.ClusterID]; ok {
		return text, nil
	}
	return "", ErrNotFound
}

func TestPipelineRun(t *testing.T) {
	long := strings.Repeat("a", 100)
	clusters := []types.ClusterRecord{
		{ClusterID: 0, Abstract: long, AbstractSource: "pubmed", Representative: types.RawRecord{ID: "pubmed-00001"}},
		{ClusterID: 1, Representative: types.RawRecord{ID: "scopus-00001"}},
		{ClusterID: 2, Representative: types.RawRecord{ID: "scopus-00002"}},
	}

	src := &recoverByID{
		name:      "fake_tier",
		service:   "fake",
		abstracts: map[int]string{1: strings.Repeat("b", 60)},
	}
	p := &Pipeline{
		Chain:   testChain([]Source{src}, 5),
		Workers: 2,
		Log:     zerolog.Nop(),
	}

	res, err := p.Run(context.Background(), clusters)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if len(res.Enriched) != 2 {
		t.Fatalf("enriched = %d, want 2", len(res.Enriched))
	}
	// Cluster 0 passes through untouched; cluster 1 gains the fake tier's text.
	if res.Enriched[0].ClusterID != 0 || res.Enriched[0].Abstract != long {
		t.Errorf("cluster 0 = %+v, want unchanged pass-through", res.Enriched[0])
	}
	if res.Enriched[0].AbstractSource != "pubmed" {
		t.Errorf("cluster 0 abstract source = %q, want preserved", res.Enriched[0].AbstractSource)
	}
	if res.Enriched[1].ClusterID != 1 || res.Enriched[1].AbstractSource != "fake_tier" {
		t.Errorf("cluster 1 = %+v, want recovery attributed to fake_tier", res.Enriched[1])
	}

	if len(res.Excluded) != 1 {
		t.Fatalf("excluded = %d, want 1", len(res.Excluded))
	}
	exc := res.Excluded[0]
	if exc.ClusterID != 2 {
		t.Errorf("excluded cluster = %d, want 2", exc.ClusterID)
	}
	if exc.ExclusionCode != types.ExclusionNoAbstract {
		t.Errorf("exclusion code = %q, want %q", exc.ExclusionCode, types.ExclusionNoAbstract)
	}
	if exc.Note != "all enrichment sources exhausted" {
		t.Errorf("note = %q", exc.Note)
	}

	if res.Recovered["fake_tier"] != 1 {
		t.Errorf("recovered = %v, want fake_tier:1", res.Recovered)
	}

	// Attempts cover only the two clusters that needed enrichment.
	for _, a := range res.Attempts {
		if a.ClusterID == 0 {
			t.Errorf("cluster 0 should not have attempts: %+v", a)
		}
	}
	if len(res.Attempts) != 2 {
		t.Errorf("attempts = %d, want 2", len(res.Attempts))
	}
}

func TestPipelineOutputOrderedByCluster(t *testing.T) {
	var clusters []types.ClusterRecord
	abstracts := make(map[int]string)
	for i := 0; i < 20; i++ {
		clusters = append(clusters, types.ClusterRecord{ClusterID: i})
		abstracts[i] = strings.Repeat("x", 20+i)
	}

	src := &recoverByID{name: "fake_tier", service: "fake", abstracts: abstracts}
	p := &Pipeline{
		Chain:   testChain([]Source{src}, 5),
		Workers: 8,
		Log:     zerolog.Nop(),
	}

	res, err := p.Run(context.Background(), clusters)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(res.Enriched) != 20 {
		t.Fatalf("enriched = %d, want 20", len(res.Enriched))
	}
	for i, rec := range res.Enriched {
		if rec.ClusterID != i {
			t.Fatalf("position %d holds cluster %d; output must be ordered", i, rec.ClusterID)
		}
	}
}

func TestPipelineCancellationExcludesPending(t *testing.T) {
	clusters := []types.ClusterRecord{
		{ClusterID: 0},
		{ClusterID: 1},
	}
	src := &recoverByID{name: "fake_tier", service: "fake", abstracts: map[int]string{0: strings.Repeat("x", 40)}}
	p := &Pipeline{
		Chain:   testChain([]Source{src}, 5),
		Workers: 2,
		Log:     zerolog.Nop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Run(ctx, clusters)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	// Both records land in Excluded with the cancellation note; none vanish.
	if len(res.Excluded) != 2 {
		t.Fatalf("excluded = %d, want 2", len(res.Excluded))
	}
	for _, exc := range res.Excluded {
		if exc.Note != "enrichment cancelled before completion" {
			t.Errorf("note = %q", exc.Note)
		}
		if exc.ExclusionCode != types.ExclusionNoAbstract {
			t.Errorf("exclusion code = %q", exc.ExclusionCode)
		}
	}
}
