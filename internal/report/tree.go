package report

import (
	"cmp"
	"slices"

	"github.com/mrzor/strace-summary/internal/parser"
	"github.com/mrzor/strace-summary/internal/pidtree"
	"github.com/mrzor/strace-summary/internal/registry"
)

// TreeRow is one thread group of the tree view, in display order.
type TreeRow struct {
	PID     int
	Threads []int
	Cmdline string
	Start   parser.Timestamp
	Depth   int
	Last    bool   // no later sibling at this depth
	Rails   []bool // per ancestor level below the root: a later sibling follows
}

// TreeReport is the result of the tree query.
type TreeReport struct {
	Rows []TreeRow
}

// Tree lays out the forest restricted to the selection. A node is kept when
// any of its members is selected; kept nodes hang under their nearest kept
// ancestor.
func Tree(reg *registry.Registry, forest *pidtree.Forest, sel Selection) (*TreeReport, error) {
	if len(sel.PIDs) == 0 || len(forest.Nodes) == 0 {
		return nil, ErrNoData
	}

	kept := make([]bool, len(forest.Nodes))
	for _, pid := range sel.PIDs {
		if idx, ok := forest.Lookup(pid); ok {
			kept[idx] = true
		}
	}

	// nearest returns the closest kept nodes below the given indices.
	var nearest func(indices []int) []int
	nearest = func(indices []int) []int {
		var out []int
		for _, idx := range indices {
			if kept[idx] {
				out = append(out, idx)
				continue
			}
			out = append(out, nearest(forest.Nodes[idx].Children)...)
		}
		return out
	}
	// keptChildren flattens skipped levels and restores start-then-PID
	// order across them.
	keptChildren := func(indices []int) []int {
		out := nearest(indices)
		slices.SortStableFunc(out, func(a, b int) int {
			na, nb := &forest.Nodes[a], &forest.Nodes[b]
			if c := cmp.Compare(na.Start, nb.Start); c != 0 {
				return c
			}
			return cmp.Compare(na.PID, nb.PID)
		})
		return out
	}

	rep := &TreeReport{}
	var visit func(idx, depth int, last bool, rails []bool)
	visit = func(idx, depth int, last bool, rails []bool) {
		n := &forest.Nodes[idx]
		row := TreeRow{
			PID:     n.PID,
			Threads: n.Threads,
			Start:   n.Start,
			Depth:   depth,
			Last:    last,
			Rails:   rails,
		}
		if p := reg.Get(n.PID); p != nil {
			row.Cmdline = p.Cmdline()
		}
		rep.Rows = append(rep.Rows, row)

		childRails := rails
		if depth > 0 {
			childRails = append(slices.Clone(rails), !last)
		}
		children := keptChildren(n.Children)
		for i, c := range children {
			visit(c, depth+1, i == len(children)-1, childRails)
		}
	}

	roots := keptChildren(forest.Roots)
	for i, r := range roots {
		visit(r, 0, i == len(roots)-1, nil)
	}
	if len(rep.Rows) == 0 {
		return nil, ErrNoData
	}
	return rep, nil
}
