package report

import (
	"fmt"
	"slices"

	"github.com/mrzor/strace-summary/internal/registry"
)

// SelectOptions describes which PIDs a report covers.
type SelectOptions struct {
	PIDs    []int                         // requested PIDs; empty means every PID
	Filter  func(*registry.Process) bool // optional predicate applied before expansion
	Related bool                          // add parents and children
	Threads bool                          // add thread siblings
}

// Selection is the resolved PID set of a report.
type Selection struct {
	PIDs    []int // ascending
	Missing []int // requested PIDs that never appeared in the trace
}

// Warnings returns one message per requested PID without data.
func (s Selection) Warnings() []string {
	out := make([]string, 0, len(s.Missing))
	for _, pid := range s.Missing {
		out = append(out, fmt.Sprintf("No data found for PID %d", pid))
	}
	return out
}

// Select resolves opts against reg.
func Select(reg *registry.Registry, opts SelectOptions) Selection {
	var sel Selection
	var base []int
	if len(opts.PIDs) == 0 {
		base = reg.PIDs()
	} else {
		seen := make(map[int]bool, len(opts.PIDs))
		for _, pid := range opts.PIDs {
			if seen[pid] {
				continue
			}
			seen[pid] = true
			if reg.Get(pid) == nil {
				sel.Missing = append(sel.Missing, pid)
				continue
			}
			base = append(base, pid)
		}
		slices.Sort(sel.Missing)
	}

	if opts.Filter != nil {
		base = slices.DeleteFunc(base, func(pid int) bool {
			return !opts.Filter(reg.Get(pid))
		})
	}

	sel.PIDs = Expand(reg, base, opts.Related, opts.Threads)
	return sel
}

// Expand grows pids with relatives until nothing changes: related adds
// parents and children, threads adds thread siblings. The result is sorted,
// contains pids, and expanding it again yields the same set.
func Expand(reg *registry.Registry, pids []int, related, threads bool) []int {
	in := make(map[int]bool, len(pids))
	queue := make([]int, 0, len(pids))
	for _, pid := range pids {
		if !in[pid] {
			in[pid] = true
			queue = append(queue, pid)
		}
	}

	push := func(pid int) {
		if !in[pid] && reg.Get(pid) != nil {
			in[pid] = true
			queue = append(queue, pid)
		}
	}

	for len(queue) > 0 && (related || threads) {
		p := reg.Get(queue[0])
		queue = queue[1:]
		if p == nil {
			continue
		}
		if related {
			if p.HasParent() {
				push(p.ParentPID)
			}
			for _, c := range p.ChildPIDs() {
				push(c)
			}
		}
		if threads {
			for _, t := range p.ThreadPIDs() {
				push(t)
			}
		}
	}

	out := make([]int, 0, len(in))
	for pid := range in {
		out = append(out, pid)
	}
	slices.Sort(out)
	return out
}
