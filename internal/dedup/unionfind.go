// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dedup

// unionFind is a disjoint-set forest over record indices with path
// compression and union by rank. Connected components after all merge
// passes are the clusters (prd003-dedup R2.1).
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	u := &unionFind{
		parent: make([]int, n),
		rank:   make([]int, n),
	}
	for i := range u.parent {
		u.parent[i] = i
	}
	return u
}

// find returns the root of x, compressing the path as it walks.
func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

// union joins the sets containing a and b. It reports false when the two
// were already in the same set, so callers log one merge per effective union.
func (u *unionFind) union(a, b int) bool {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return false
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
	return true
}

// sameSet reports whether a and b share a root.
func (u *unionFind) sameSet(a, b int) bool {
	return u.find(a) == u.find(b)
}
