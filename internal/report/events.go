package report

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/mrzor/strace-summary/internal/parser"
	"github.com/mrzor/strace-summary/internal/registry"
)

// ExecRow is one successful exec.
type ExecRow struct {
	PID int
	registry.Exec
}

// Execs lists every exec of the selection in time order.
func Execs(reg *registry.Registry, sel Selection) ([]ExecRow, error) {
	var rows []ExecRow
	for _, pid := range sel.PIDs {
		p := reg.Get(pid)
		if p == nil {
			continue
		}
		for _, e := range p.Execs {
			rows = append(rows, ExecRow{PID: pid, Exec: e})
		}
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	slices.SortStableFunc(rows, func(a, b ExecRow) int {
		return eventOrder(a.Time, a.PID, b.Time, b.PID)
	})
	return rows, nil
}

// FileRow is one file open.
type FileRow struct {
	PID int
	registry.FileOpen
}

// Files lists the file opens of the selection sorted by key.
func Files(reg *registry.Registry, sel Selection, key SortKey, count int) ([]FileRow, error) {
	var rows []FileRow
	for _, pid := range sel.PIDs {
		p := reg.Get(pid)
		if p == nil {
			continue
		}
		for _, f := range p.FileOpens {
			rows = append(rows, FileRow{PID: pid, FileOpen: f})
		}
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	less, err := eventSort(key, func(r FileRow) (time.Duration, parser.Timestamp, int) {
		return r.Duration, r.Time, r.PID
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(rows, less)
	return truncate(rows, count), nil
}

// PeerResolver names the remote end of a socket descriptor annotation.
type PeerResolver interface {
	LookupDescriptor(desc string) []string
}

// IORow is one I/O call.
type IORow struct {
	PID int
	registry.IOEvent
	Peers []string // names of the socket peer, when known
}

// IO lists the I/O calls of the selection sorted by key. resolver may be nil.
func IO(reg *registry.Registry, sel Selection, key SortKey, count int, resolver PeerResolver) ([]IORow, error) {
	var rows []IORow
	for _, pid := range sel.PIDs {
		p := reg.Get(pid)
		if p == nil {
			continue
		}
		for _, ev := range p.IOEvents {
			rows = append(rows, IORow{PID: pid, IOEvent: ev})
		}
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	less, err := eventSort(key, func(r IORow) (time.Duration, parser.Timestamp, int) {
		return r.Duration, r.Time, r.PID
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(rows, less)
	rows = truncate(rows, count)

	if resolver != nil {
		for i := range rows {
			if rows[i].Descriptor != "" {
				rows[i].Peers = resolver.LookupDescriptor(rows[i].Descriptor)
			}
		}
	}
	return rows, nil
}

// eventSort orders timed events: duration descending, PID ascending or time
// ascending. Ties fall back to time, then PID.
func eventSort[T any](key SortKey, fields func(T) (time.Duration, parser.Timestamp, int)) (func(a, b T) int, error) {
	switch key {
	case SortDuration, SortPID, SortTime:
	default:
		return nil, fmt.Errorf("events cannot be sorted by %q", key)
	}
	return func(a, b T) int {
		da, ta, pa := fields(a)
		db, tb, pb := fields(b)
		switch key {
		case SortDuration:
			if c := cmp.Compare(db, da); c != 0 {
				return c
			}
		case SortPID:
			if c := cmp.Compare(pa, pb); c != 0 {
				return c
			}
		}
		return eventOrder(ta, pa, tb, pb)
	}, nil
}

func eventOrder(ta parser.Timestamp, pa int, tb parser.Timestamp, pb int) int {
	if c := cmp.Compare(ta, tb); c != 0 {
		return c
	}
	return cmp.Compare(pa, pb)
}
