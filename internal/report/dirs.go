package report

import (
	"cmp"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/mrzor/strace-summary/internal/parser"
	"github.com/mrzor/strace-summary/internal/registry"
)

// DirStats accumulates the opens below a path, including the path itself.
type DirStats struct {
	Count int
	Total time.Duration
	First parser.Timestamp
	Last  parser.Timestamp
	PID   int // first process to open something below the path
}

func (s *DirStats) add(pid int, at parser.Timestamp, d time.Duration) {
	if s.Count == 0 || at < s.First {
		s.First = at
		s.PID = pid
	}
	if s.Count == 0 || at > s.Last {
		s.Last = at
	}
	s.Count++
	s.Total += d
}

// dirNode is one path component in the trie arena.
type dirNode struct {
	name     string
	parent   int            // -1 for the root
	children map[string]int // component -> node index
	stats    DirStats
}

// DirTree is a prefix trie of opened paths. Node 0 is "/".
type DirTree struct {
	nodes []dirNode
}

// NewDirTree returns a trie holding only the root.
func NewDirTree() *DirTree {
	return &DirTree{nodes: []dirNode{{name: "/", parent: -1}}}
}

// Add charges one open of p to every prefix of p. Relative paths are cleaned
// and rooted at "/".
func (t *DirTree) Add(p string, pid int, at parser.Timestamp, d time.Duration) {
	clean := path.Clean("/" + p)
	cur := 0
	t.nodes[0].stats.add(pid, at, d)
	for _, part := range strings.Split(clean[1:], "/") {
		if part == "" {
			continue
		}
		next, ok := t.nodes[cur].children[part]
		if !ok {
			next = len(t.nodes)
			t.nodes = append(t.nodes, dirNode{name: part, parent: cur})
			if t.nodes[cur].children == nil {
				t.nodes[cur].children = make(map[string]int)
			}
			t.nodes[cur].children[part] = next
		}
		cur = next
		t.nodes[cur].stats.add(pid, at, d)
	}
}

// Root returns the totals of every open added.
func (t *DirTree) Root() DirStats {
	return t.nodes[0].stats
}

// Lookup returns the stats of a cleaned absolute path.
func (t *DirTree) Lookup(p string) (DirStats, bool) {
	cur := 0
	for _, part := range strings.Split(path.Clean("/" + p)[1:], "/") {
		if part == "" {
			continue
		}
		next, ok := t.nodes[cur].children[part]
		if !ok {
			return DirStats{}, false
		}
		cur = next
	}
	return t.nodes[cur].stats, true
}

// path rebuilds the full path of node i.
func (t *DirTree) path(i int) string {
	if i == 0 {
		return "/"
	}
	var parts []string
	for ; i > 0; i = t.nodes[i].parent {
		parts = append(parts, t.nodes[i].name)
	}
	slices.Reverse(parts)
	return "/" + strings.Join(parts, "/")
}

// DirRow is one directory of the report.
type DirRow struct {
	Path string
	DirStats
}

// Rows returns every directory, meaning every node with at least one child.
func (t *DirTree) Rows() []DirRow {
	var rows []DirRow
	for i, n := range t.nodes {
		if len(n.children) > 0 {
			rows = append(rows, DirRow{Path: t.path(i), DirStats: n.stats})
		}
	}
	return rows
}

// DirectoryReport is the result of the directories query.
type DirectoryReport struct {
	Root DirStats
	Rows []DirRow
}

// Directories rolls the file opens of the selection up by directory.
func Directories(reg *registry.Registry, sel Selection, key SortKey, count int) (*DirectoryReport, error) {
	tree := NewDirTree()
	for _, pid := range sel.PIDs {
		p := reg.Get(pid)
		if p == nil {
			continue
		}
		for _, f := range p.FileOpens {
			tree.Add(f.Path, pid, f.Time, f.Duration)
		}
	}
	rows := tree.Rows()
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	var primary func(a, b DirRow) int
	switch key {
	case SortCount:
		primary = func(a, b DirRow) int { return cmp.Compare(b.Count, a.Count) }
	case SortDuration:
		primary = func(a, b DirRow) int { return cmp.Compare(b.Total, a.Total) }
	case SortPID:
		primary = func(a, b DirRow) int { return cmp.Compare(a.PID, b.PID) }
	case SortTime:
		primary = func(a, b DirRow) int { return cmp.Compare(a.First, b.First) }
	default:
		return nil, fmt.Errorf("directories cannot be sorted by %q", key)
	}
	slices.SortFunc(rows, func(a, b DirRow) int {
		if c := primary(a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})

	return &DirectoryReport{Root: tree.Root(), Rows: truncate(rows, count)}, nil
}
