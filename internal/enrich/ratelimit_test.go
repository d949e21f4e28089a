// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"context"
	"testing"

	"golang.org/x/time/rate"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

func TestNewLimitersDefaults(t *testing.T) {
	l := NewLimiters(nil)

	tests := []struct {
		service string
		rps     rate.Limit
	}{
		{"semantic_scholar", 1},
		{"crossref", 2},
		{"pubmed", 3},
		{"arxiv", 1},
	}
	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			lim, ok := l.buckets[tt.service]
			if !ok {
				t.Fatalf("no bucket for %s", tt.service)
			}
			if lim.Limit() != tt.rps {
				t.Errorf("rate = %v, want %v", lim.Limit(), tt.rps)
			}
			if lim.Burst() != 1 {
				t.Errorf("burst = %d, want 1", lim.Burst())
			}
		})
	}
}

func TestNewLimitersOverrides(t *testing.T) {
	l := NewLimiters(map[string]types.RateLimitConfig{
		"pubmed": {RequestsPerSecond: 10, Burst: 3},
		"extra":  {RequestsPerSecond: 0.5},
	})

	if got := l.buckets["pubmed"].Limit(); got != 10 {
		t.Errorf("pubmed rate = %v, want 10", got)
	}
	if got := l.buckets["pubmed"].Burst(); got != 3 {
		t.Errorf("pubmed burst = %d, want 3", got)
	}

	// A service outside the defaults still gets a bucket.
	extra, ok := l.buckets["extra"]
	if !ok {
		t.Fatal("no bucket for extra service")
	}
	if extra.Limit() != 0.5 || extra.Burst() != 1 {
		t.Errorf("extra = (%v, %d), want (0.5, 1)", extra.Limit(), extra.Burst())
	}

	// Partial override keeps the default for the untouched field.
	if got := l.buckets["crossref"].Limit(); got != 2 {
		t.Errorf("crossref rate = %v, want default 2", got)
	}
}

func TestRateLimitsNCBIKeyRaisesPubMed(t *testing.T) {
	limits := rateLimits(types.EnrichConfig{
		NCBIAPIKey: "key",
		RateLimits: map[string]types.RateLimitConfig{
			"crossref": {RequestsPerSecond: 5},
		},
	})

	if got := limits["pubmed"]; got.RequestsPerSecond != 10 || got.Burst != 1 {
		t.Errorf("pubmed = %+v, want keyed quota (10, 1)", got)
	}
	if got := limits["crossref"].RequestsPerSecond; got != 5 {
		t.Errorf("crossref = %v, want override preserved", got)
	}

	// Without a key the overrides pass through untouched.
	if got := rateLimits(types.EnrichConfig{}); got != nil {
		t.Errorf("limits without key = %v, want nil", got)
	}

	// An explicit pubmed entry beats the keyed quota.
	limits = rateLimits(types.EnrichConfig{
		NCBIAPIKey: "key",
		RateLimits: map[string]types.RateLimitConfig{
			"pubmed": {RequestsPerSecond: 2},
		},
	})
	if got := limits["pubmed"].RequestsPerSecond; got != 2 {
		t.Errorf("pubmed = %v, want explicit override to win", got)
	}
}

func TestLimitersUnknownServiceUnpaced(t *testing.T) {
	l := NewLimiters(nil)
	if err := l.Wait(context.Background(), "never-configured"); err != nil {
		t.Errorf("Wait on unknown service: %v", err)
	}
}

func TestLimitersGate(t *testing.T) {
	l := NewLimiters(map[string]types.RateLimitConfig{"fake": {RequestsPerSecond: 100, Burst: 1}})
	gate := l.Gate("fake")
	if err := gate(context.Background()); err != nil {
		t.Errorf("gate: %v", err)
	}
}
