package report

import (
	"cmp"
	"slices"
	"time"

	"github.com/mrzor/strace-summary/internal/registry"
)

// StatsRow is one line of a per-syscall statistics table.
type StatsRow struct {
	Name    string
	Count   int
	Total   time.Duration
	Max     time.Duration
	Mean    time.Duration
	Min     time.Duration
	Errors  int
	Errnos  map[string]int
	Wait    bool
	Buckets [registry.NumBuckets]int
}

// StatsTable turns per-syscall aggregates into rows ordered by total time,
// then count, then name.
func StatsTable(stats map[string]*registry.SyscallStats) []StatsRow {
	rows := make([]StatsRow, 0, len(stats))
	for name, s := range stats {
		rows = append(rows, StatsRow{
			Name:    name,
			Count:   s.Count,
			Total:   s.Total,
			Max:     s.Max,
			Mean:    s.Mean(),
			Min:     s.Min,
			Errors:  s.ErrorCount(),
			Errnos:  s.Errors,
			Wait:    IsWait(name),
			Buckets: s.Buckets,
		})
	}
	slices.SortFunc(rows, func(a, b StatsRow) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return rows
}

// MergeStats folds the syscall statistics of every PID in pids.
func MergeStats(reg *registry.Registry, pids []int) map[string]*registry.SyscallStats {
	merged := make(map[string]*registry.SyscallStats)
	for _, pid := range pids {
		p := reg.Get(pid)
		if p == nil {
			continue
		}
		for name, s := range p.Syscalls {
			m := merged[name]
			if m == nil {
				m = &registry.SyscallStats{}
				merged[name] = m
			}
			m.Merge(s)
		}
	}
	return merged
}
