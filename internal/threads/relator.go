// Package threads groups PIDs into thread groups after ingestion.
//
// strace reports CLONE_THREAD for threads it saw being created, but threads
// that already existed when tracing started show up as unrelated PIDs with
// no parent. Such threads betray their group by synchronizing on the same
// private futex addresses: FUTEX_*_PRIVATE words live in one address space,
// so two orphans touching the same one share that address space.
//
//	explicit edges (clone + CLONE_THREAD)   futex edges (orphans only)
//	        1 ── 3                          20 ── 21 (0x5600a0)
//	            │                                 │
//	            ▼                                 ▼
//	       union-find over PIDs ───────► groups ──► Registry.SetThreadGroup
//
// Grouping is transitive: if A and B share an address and B and C share
// another, all three end up in one group.
package threads

import (
	"slices"

	"github.com/rs/zerolog"

	"github.com/mrzor/strace-summary/internal/registry"
)

// unionFind is a disjoint-set forest keyed by PID.
type unionFind struct {
	parent map[int]int
	rank   map[int]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[int]int), rank: make(map[int]int)}
}

func (u *unionFind) find(x int) int {
	p, ok := u.parent[x]
	if !ok {
		u.parent[x] = x
		return x
	}
	if p == x {
		return x
	}
	root := u.find(p)
	u.parent[x] = root
	return root
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}

// groups returns every set with more than one member, members ascending and
// groups ordered by their smallest PID.
func (u *unionFind) groups() [][]int {
	byRoot := make(map[int][]int)
	for x := range u.parent {
		r := u.find(x)
		byRoot[r] = append(byRoot[r], x)
	}
	var out [][]int
	for _, members := range byRoot {
		if len(members) < 2 {
			continue
		}
		slices.Sort(members)
		out = append(out, members)
	}
	slices.SortFunc(out, func(a, b []int) int { return a[0] - b[0] })
	return out
}

// Relate computes thread groups from explicit thread clones and shared
// private futex addresses between orphan PIDs, then writes them back as
// symmetric sibling sets. It must run once, after ingestion and before the
// registry is frozen. Returns the groups written.
func Relate(reg *registry.Registry, logger zerolog.Logger) [][]int {
	uf := newUnionFind()
	byAddr := make(map[string][]int) // futex address -> orphan PIDs

	for _, p := range reg.Processes() {
		for _, sib := range p.ThreadPIDs() {
			uf.union(p.PID, sib)
		}
		if p.HasParent() {
			continue
		}
		for addr := range p.FutexAddrs {
			byAddr[addr] = append(byAddr[addr], p.PID)
		}
	}

	futexEdges := 0
	for _, pids := range byAddr {
		for _, pid := range pids[1:] {
			if uf.find(pid) != uf.find(pids[0]) {
				futexEdges++
			}
			uf.union(pids[0], pid)
		}
	}

	groups := uf.groups()
	for _, members := range groups {
		reg.SetThreadGroup(members)
	}

	logger.Debug().
		Int("groups", len(groups)).
		Int("futex_edges", futexEdges).
		Msg("thread groups related")
	return groups
}
