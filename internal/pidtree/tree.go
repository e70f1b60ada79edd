// Package pidtree assembles the process forest of a trace.
//
// Every thread group becomes one node, named after its leader: the member
// whose parent lies outside the group, earliest first. The other members
// are listed on the node as threads. Nodes live in one arena slice and refer
// to each other by index.
//
//	Nodes: [0]{PID 1, Threads [3]}  [1]{PID 2}  [2]{PID 4}
//	Roots: [0]
//	        0 ── children ──► 1, 2
//
// Lineage comes from the first clone observed for a PID, so a cycle can only
// appear through inconsistent input. Cycles are broken by promoting the
// earliest node not reachable from a root to a root of its own, which keeps
// every PID in the forest exactly once.
package pidtree

import (
	"cmp"
	"slices"

	"github.com/mrzor/strace-summary/internal/parser"
	"github.com/mrzor/strace-summary/internal/registry"
)

// Node is one thread group in the forest.
type Node struct {
	PID      int   // group leader
	Threads  []int // other members, ascending
	Parent   int   // index of the parent node, -1 for roots
	Children []int // node indices ordered by start time, then PID
	Depth    int
	Start    parser.Timestamp // earliest start among members
}

// Forest is the arena of nodes plus the indices of its roots.
type Forest struct {
	Nodes []Node
	Roots []int

	index map[int]int // member PID -> node
}

// Lookup returns the node index holding pid, either as leader or thread.
func (f *Forest) Lookup(pid int) (int, bool) {
	i, ok := f.index[pid]
	return i, ok
}

// Walk visits every node depth first, roots and children in order.
func (f *Forest) Walk(fn func(idx int, n *Node)) {
	var stack []int
	for i := len(f.Roots) - 1; i >= 0; i-- {
		stack = append(stack, f.Roots[i])
	}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &f.Nodes[idx]
		fn(idx, n)
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// group is a thread group before it is placed in the arena.
type group struct {
	leader  *registry.Process
	members []int
	start   parser.Timestamp
}

// Build assembles the forest from a registry whose thread groups have been
// related.
func Build(reg *registry.Registry) *Forest {
	procs := reg.Processes()
	groupOf := make(map[int]int, len(procs)) // PID -> group index
	var groups []group

	for _, p := range procs {
		if _, done := groupOf[p.PID]; done {
			continue
		}
		members := collectGroup(reg, p.PID)
		gi := len(groups)
		for _, m := range members {
			groupOf[m] = gi
		}
		groups = append(groups, newGroup(reg, members, groupOf, gi))
	}

	order := make([]int, len(groups))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		return byStart(groups[a].start, groups[a].leader.PID, groups[b].start, groups[b].leader.PID)
	})

	f := &Forest{
		Nodes: make([]Node, len(groups)),
		index: make(map[int]int, len(procs)),
	}
	nodeOf := make([]int, len(groups)) // group index -> node index
	for ni, gi := range order {
		nodeOf[gi] = ni
		g := groups[gi]
		threads := make([]int, 0, len(g.members)-1)
		for _, m := range g.members {
			f.index[m] = ni
			if m != g.leader.PID {
				threads = append(threads, m)
			}
		}
		f.Nodes[ni] = Node{
			PID:     g.leader.PID,
			Threads: threads,
			Parent:  -1,
			Start:   g.start,
		}
	}

	for ni := range f.Nodes {
		leader := reg.Get(f.Nodes[ni].PID)
		if !leader.HasParent() {
			continue
		}
		pi, ok := f.index[leader.ParentPID]
		if !ok || pi == ni {
			continue
		}
		f.Nodes[ni].Parent = pi
		f.Nodes[pi].Children = append(f.Nodes[pi].Children, ni)
	}
	// Nodes are in start order, so appended children already are too.

	f.assignDepths()
	return f
}

// assignDepths walks from the roots and promotes unreachable nodes, which
// can only sit on a parent cycle, to roots.
func (f *Forest) assignDepths() {
	visited := make([]bool, len(f.Nodes))
	visit := func(root int) {
		stack := []int{root}
		f.Nodes[root].Depth = 0
		visited[root] = true
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, c := range f.Nodes[idx].Children {
				if visited[c] {
					continue
				}
				visited[c] = true
				f.Nodes[c].Depth = f.Nodes[idx].Depth + 1
				stack = append(stack, c)
			}
		}
	}

	for i := range f.Nodes {
		if f.Nodes[i].Parent == -1 {
			f.Roots = append(f.Roots, i)
			visit(i)
		}
	}
	// Every unvisited node hangs below a parent cycle. Node indices follow
	// start order, so the smallest index on the cycle is its earliest node.
	for i := range f.Nodes {
		if visited[i] {
			continue
		}
		head := slices.Min(f.cycleAbove(i))
		parent := f.Nodes[head].Parent
		f.Nodes[parent].Children = slices.DeleteFunc(f.Nodes[parent].Children, func(c int) bool { return c == head })
		f.Nodes[head].Parent = -1
		f.Roots = append(f.Roots, head)
		visit(head)
	}
}

// cycleAbove follows parents from idx until an index repeats and returns
// the indices of that cycle.
func (f *Forest) cycleAbove(idx int) []int {
	pos := make(map[int]int)
	var path []int
	cur := idx
	for cur != -1 {
		if at, seen := pos[cur]; seen {
			return path[at:]
		}
		pos[cur] = len(path)
		path = append(path, cur)
		cur = f.Nodes[cur].Parent
	}
	return []int{idx}
}

// collectGroup returns pid and every PID reachable over thread edges,
// ascending.
func collectGroup(reg *registry.Registry, pid int) []int {
	seen := map[int]bool{pid: true}
	queue := []int{pid}
	for len(queue) > 0 {
		p := reg.Get(queue[0])
		queue = queue[1:]
		if p == nil {
			continue
		}
		for t := range p.Threads {
			if !seen[t] {
				seen[t] = true
				queue = append(queue, t)
			}
		}
	}
	members := make([]int, 0, len(seen))
	for m := range seen {
		members = append(members, m)
	}
	slices.Sort(members)
	return members
}

// newGroup picks the leader of members: among those whose parent is not in
// the same group, the earliest to start, then the lowest PID.
func newGroup(reg *registry.Registry, members []int, groupOf map[int]int, gi int) group {
	var (
		leader    *registry.Process
		fallback  *registry.Process
		start     parser.Timestamp
		haveStart bool
	)
	for _, m := range members {
		p := reg.Get(m)
		if p == nil {
			continue
		}
		if !haveStart || p.Start < start {
			start, haveStart = p.Start, true
		}
		if fallback == nil || byStart(p.Start, p.PID, fallback.Start, fallback.PID) < 0 {
			fallback = p
		}
		if p.HasParent() {
			if g, ok := groupOf[p.ParentPID]; ok && g == gi {
				continue
			}
		}
		if leader == nil || byStart(p.Start, p.PID, leader.Start, leader.PID) < 0 {
			leader = p
		}
	}
	if leader == nil {
		leader = fallback
	}
	return group{leader: leader, members: members, start: start}
}

func byStart(sa parser.Timestamp, pa int, sb parser.Timestamp, pb int) int {
	if c := cmp.Compare(sa, sb); c != 0 {
		return c
	}
	return cmp.Compare(pa, pb)
}
