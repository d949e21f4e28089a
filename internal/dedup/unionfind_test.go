// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dedup

import "testing"

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(5)

	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			if i != j && uf.sameSet(i, j) {
				t.Fatalf("fresh sets %d and %d already joined", i, j)
			}
		}
	}

	if !uf.union(0, 1) {
		t.Error("union(0,1) = false on first join")
	}
	if uf.union(1, 0) {
		t.Error("union(1,0) = true on repeat join")
	}
	if !uf.union(2, 3) {
		t.Error("union(2,3) = false on first join")
	}
	if !uf.union(1, 2) {
		t.Error("union(1,2) = false when bridging two sets")
	}

	// Transitivity: 0..3 now share a set, 4 stays apart.
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if !uf.sameSet(i, j) {
				t.Errorf("sameSet(%d,%d) = false after bridging", i, j)
			}
		}
		if uf.sameSet(i, 4) {
			t.Errorf("sameSet(%d,4) = true, want isolated", i)
		}
	}

	if uf.find(0) != uf.find(3) {
		t.Error("find roots differ within one set")
	}
}
