// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"reflect"
	"testing"
)

func TestBreakerTripsAtThreshold(t *testing.T) {
	b := NewBreaker(3)

	if !b.Allow("pubmed") {
		t.Fatal("fresh breaker should allow")
	}
	if b.Failure("pubmed") {
		t.Error("failure 1 should not trip")
	}
	if b.Failure("pubmed") {
		t.Error("failure 2 should not trip")
	}
	if !b.Failure("pubmed") {
		t.Error("failure 3 should trip")
	}
	if b.Allow("pubmed") {
		t.Error("tripped service should be disallowed")
	}
	// Only the tripping call reports true.
	if b.Failure("pubmed") {
		t.Error("post-trip failure should not report a fresh trip")
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := NewBreaker(2)

	b.Failure("crossref")
	b.Success("crossref")
	if b.Failure("crossref") {
		t.Error("count should have reset; one failure must not trip")
	}
	if !b.Failure("crossref") {
		t.Error("two consecutive failures should trip")
	}
}

func TestBreakerServicesIndependent(t *testing.T) {
	b := NewBreaker(1)

	b.Failure("arxiv")
	if b.Allow("arxiv") {
		t.Error("arxiv should be disabled")
	}
	if !b.Allow("pubmed") {
		t.Error("pubmed should be unaffected")
	}
}

func TestBreakerOpenSorted(t *testing.T) {
	b := NewBreaker(1)
	b.Failure("pubmed")
	b.Failure("arxiv")

	if got, want := b.Open(), []string{"arxiv", "pubmed"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Open() = %v, want %v", got, want)
	}
}

func TestBreakerDefaultThreshold(t *testing.T) {
	b := NewBreaker(0)
	for i := 0; i < defaultOutageThreshold-1; i++ {
		if b.Failure("semantic_scholar") {
			t.Fatalf("tripped after %d failures, want %d", i+1, defaultOutageThreshold)
		}
	}
	if !b.Failure("semantic_scholar") {
		t.Errorf("did not trip at %d failures", defaultOutageThreshold)
	}
}
