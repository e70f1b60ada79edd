package report

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/mrzor/strace-summary/internal/parser"
	"github.com/mrzor/strace-summary/internal/registry"
)

// PidSummary is the headline view of one process.
type PidSummary struct {
	PID       int
	ParentPID int // 0 when unknown
	Program   string
	Cmdline   string

	Syscalls   int
	Errors     int
	ActiveTime time.Duration
	WaitTime   time.Duration
	TotalTime  time.Duration // ActiveTime + WaitTime
	UserTime   time.Duration // lifetime not spent in syscalls, never negative

	Start    parser.Timestamp
	End      parser.Timestamp
	Lifetime time.Duration

	Children []int
	Threads  []int
	Execs    []registry.Exec
	Exit     *registry.ExitStatus
}

// Summarize computes the summary of p.
func Summarize(p *registry.Process) PidSummary {
	active, wait := Split(p)
	total := active + wait
	lifetime := p.Lifetime()
	return PidSummary{
		PID:        p.PID,
		ParentPID:  p.ParentPID,
		Program:    p.Program,
		Cmdline:    p.Cmdline(),
		Syscalls:   p.SyscallCount(),
		Errors:     p.ErrorCount(),
		ActiveTime: active,
		WaitTime:   wait,
		TotalTime:  total,
		UserTime:   max(lifetime-total, 0),
		Start:      p.Start,
		End:        p.End,
		Lifetime:   lifetime,
		Children:   p.ChildPIDs(),
		Threads:    p.ThreadPIDs(),
		Execs:      p.Execs,
		Exit:       p.Exit,
	}
}

// SummaryReport is the result of the summary and list-pids queries.
type SummaryReport struct {
	Start     parser.Timestamp
	End       parser.Timestamp
	Elapsed   time.Duration // real time between first and last line
	Processes int           // PIDs in the selection
	Syscalls  int           // syscalls made by the selection
	Sort      SortKey
	Rows      []PidSummary // sorted and truncated
	Missing   []int
}

// Summary sorts the selected processes by key and keeps the first count.
func Summary(reg *registry.Registry, sel Selection, key SortKey, count int) (*SummaryReport, error) {
	if len(sel.PIDs) == 0 {
		return nil, ErrNoData
	}
	less, err := summaryOrder(key)
	if err != nil {
		return nil, err
	}

	rows := make([]PidSummary, 0, len(sel.PIDs))
	total := 0
	for _, pid := range sel.PIDs {
		p := reg.Get(pid)
		if p == nil {
			continue
		}
		s := Summarize(p)
		total += s.Syscalls
		rows = append(rows, s)
	}
	slices.SortStableFunc(rows, less)

	first, last, _ := reg.Span()
	return &SummaryReport{
		Start:     first,
		End:       last,
		Elapsed:   reg.Elapsed(),
		Processes: len(rows),
		Syscalls:  total,
		Sort:      key,
		Rows:      truncate(rows, count),
		Missing:   sel.Missing,
	}, nil
}

// summaryOrder returns the comparison for key. PID and start time sort
// ascending, every other key descending, ties broken by PID.
func summaryOrder(key SortKey) (func(a, b PidSummary) int, error) {
	var primary func(a, b PidSummary) int
	switch key {
	case SortActiveTime:
		primary = func(a, b PidSummary) int { return cmp.Compare(b.ActiveTime, a.ActiveTime) }
	case SortTotalTime:
		primary = func(a, b PidSummary) int { return cmp.Compare(b.TotalTime, a.TotalTime) }
	case SortUserTime:
		primary = func(a, b PidSummary) int { return cmp.Compare(b.UserTime, a.UserTime) }
	case SortSyscalls:
		primary = func(a, b PidSummary) int { return cmp.Compare(b.Syscalls, a.Syscalls) }
	case SortChildren:
		primary = func(a, b PidSummary) int { return cmp.Compare(len(b.Children), len(a.Children)) }
	case SortStartTime:
		primary = func(a, b PidSummary) int { return cmp.Compare(a.Start, b.Start) }
	case SortPID:
		primary = func(a, b PidSummary) int { return 0 }
	default:
		return nil, fmt.Errorf("summary cannot be sorted by %q", key)
	}
	return func(a, b PidSummary) int {
		if c := primary(a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.PID, b.PID)
	}, nil
}

// PidDetail is a process summary with its statistics table.
type PidDetail struct {
	PidSummary
	Stats        []StatsRow
	SlowestOpens []registry.FileOpen // longest file opens, slowest first
}

// SlowestOpens is the number of file opens listed in a PID detail view.
const SlowestOpens = 10

// Details returns the detail view of every selected PID, in selection order.
// PIDs missing from the trace are reported through sel.Missing only.
func Details(reg *registry.Registry, sel Selection) ([]PidDetail, error) {
	if len(sel.PIDs) == 0 {
		return nil, ErrNoData
	}
	out := make([]PidDetail, 0, len(sel.PIDs))
	for _, pid := range sel.PIDs {
		if p := reg.Get(pid); p != nil {
			out = append(out, Detail(p))
		}
	}
	return out, nil
}

// Detail builds the detail view of one process.
func Detail(p *registry.Process) PidDetail {
	opens := slices.Clone(p.FileOpens)
	slices.SortStableFunc(opens, func(a, b registry.FileOpen) int {
		return cmp.Compare(b.Duration, a.Duration)
	})
	return PidDetail{
		PidSummary:   Summarize(p),
		Stats:        StatsTable(p.Syscalls),
		SlowestOpens: truncate(opens, SlowestOpens),
	}
}

// ListPids returns the detail view of the top count processes by key.
func ListPids(reg *registry.Registry, sel Selection, key SortKey, count int) ([]PidDetail, error) {
	summary, err := Summary(reg, sel, key, count)
	if err != nil {
		return nil, err
	}
	out := make([]PidDetail, 0, len(summary.Rows))
	for _, row := range summary.Rows {
		out = append(out, Detail(reg.Get(row.PID)))
	}
	return out, nil
}
