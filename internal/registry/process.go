package registry

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mrzor/strace-summary/internal/parser"
)

// ExitStatus describes how a process ended.
type ExitStatus struct {
	Time       parser.Timestamp
	Code       int
	Signal     string // terminating signal, empty on a normal exit
	CoreDumped bool
}

// Killed reports whether the process died from a signal.
func (e ExitStatus) Killed() bool {
	return e.Signal != ""
}

// Success reports a normal exit with status 0.
func (e ExitStatus) Success() bool {
	return !e.Killed() && e.Code == 0
}

func (e ExitStatus) String() string {
	if e.Killed() {
		if e.CoreDumped {
			return fmt.Sprintf("killed by %s (core dumped)", e.Signal)
		}
		return "killed by " + e.Signal
	}
	return fmt.Sprintf("exited with %d", e.Code)
}

// Exec is one successful execve.
type Exec struct {
	Time    parser.Timestamp
	Program string
	Args    []string
	Exit    *ExitStatus // set on the last exec when the process exits
}

// Cmdline joins the program arguments.
func (e Exec) Cmdline() string {
	if len(e.Args) == 0 {
		return e.Program
	}
	return strings.Join(e.Args, " ")
}

// FileOpen is one open, openat or creat call.
type FileOpen struct {
	Time       parser.Timestamp
	StartKnown bool
	Duration   time.Duration
	Syscall    string
	Path       string
	Errno      string
}

// IOEvent is one read/write style call.
type IOEvent struct {
	Time        parser.Timestamp
	Syscall     string
	Duration    time.Duration
	HasDuration bool
	Bytes       int64
	Errno       string
	FD          string // raw descriptor argument
	Descriptor  string // -yyy annotation of the descriptor, if any
}

// Target returns the resolved descriptor name, falling back to the raw
// descriptor when the trace was recorded without -yyy.
func (e IOEvent) Target() string {
	if e.Descriptor != "" {
		return e.Descriptor
	}
	return e.FD
}

// Process is the model of one PID.
type Process struct {
	PID int

	// ParentPID is 0 when no clone/fork creating this PID was observed.
	ParentPID int
	Threads   map[int]struct{}
	Children  map[int]struct{}

	Program string // most recently executed program
	Execs   []Exec

	Syscalls   map[string]*SyscallStats
	FileOpens  []FileOpen
	IOEvents   []IOEvent
	FutexAddrs map[string]struct{}
	Signals    map[string]int // signals delivered to the process

	Start parser.Timestamp
	End   parser.Timestamp
	Exit  *ExitStatus

	seen bool
}

func newProcess(pid int) *Process {
	return &Process{
		PID:        pid,
		Threads:    make(map[int]struct{}),
		Children:   make(map[int]struct{}),
		Syscalls:   make(map[string]*SyscallStats),
		FutexAddrs: make(map[string]struct{}),
		Signals:    make(map[string]int),
	}
}

// HasParent reports whether lineage for this PID was observed.
func (p *Process) HasParent() bool {
	return p.ParentPID != 0
}

// Lifetime is the span between the first and last line mentioning the PID.
func (p *Process) Lifetime() time.Duration {
	return p.End.Sub(p.Start)
}

// SyscallCount returns the number of syscalls made.
func (p *Process) SyscallCount() int {
	n := 0
	for _, s := range p.Syscalls {
		n += s.Count
	}
	return n
}

// ErrorCount returns the number of failed syscalls.
func (p *Process) ErrorCount() int {
	n := 0
	for _, s := range p.Syscalls {
		n += s.ErrorCount()
	}
	return n
}

// ThreadPIDs returns the thread siblings in ascending order.
func (p *Process) ThreadPIDs() []int {
	return sortedKeys(p.Threads)
}

// ChildPIDs returns the children in ascending order.
func (p *Process) ChildPIDs() []int {
	return sortedKeys(p.Children)
}

// Cmdline returns the command line of the most recent exec.
func (p *Process) Cmdline() string {
	if len(p.Execs) == 0 {
		return p.Program
	}
	return p.Execs[len(p.Execs)-1].Cmdline()
}

// Args returns the argument vector of the most recent exec.
func (p *Process) Args() []string {
	if len(p.Execs) == 0 {
		return nil
	}
	return p.Execs[len(p.Execs)-1].Args
}

func (p *Process) touch(t parser.Timestamp) {
	if !p.seen {
		p.Start, p.End, p.seen = t, t, true
		return
	}
	p.Start = min(p.Start, t)
	p.End = max(p.End, t)
}

func sortedKeys(m map[int]struct{}) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
