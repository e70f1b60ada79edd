package registry

import (
	"slices"
	"sync"
	"time"

	"github.com/mrzor/strace-summary/internal/parser"
)

// Registry owns one Process per PID seen in a trace.
// It provides command-query separation for process access.
type Registry struct {
	mu     sync.RWMutex
	procs  map[int]*Process // PID -> process
	first  parser.Timestamp
	last   parser.Timestamp
	seen   bool
	frozen bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		procs: make(map[int]*Process),
	}
}

// Get retrieves the process for a PID (query).
// Returns nil if the PID never appeared.
func (r *Registry) Get(pid int) *Process {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.procs[pid]
}

// Len returns the number of processes (query).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.procs)
}

// PIDs returns every PID in ascending order (query).
func (r *Registry) PIDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pids := make([]int, 0, len(r.procs))
	for pid := range r.procs {
		pids = append(pids, pid)
	}
	slices.Sort(pids)
	return pids
}

// Processes returns every process in PID order (query).
func (r *Registry) Processes() []*Process {
	pids := r.PIDs()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Process, 0, len(pids))
	for _, pid := range pids {
		out = append(out, r.procs[pid])
	}
	return out
}

// Span returns the first and last timestamps of the trace (query).
func (r *Registry) Span() (first, last parser.Timestamp, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.first, r.last, r.seen
}

// Elapsed returns the real time covered by the trace (query).
func (r *Registry) Elapsed() time.Duration {
	first, last, ok := r.Span()
	if !ok {
		return 0
	}
	return last.Sub(first)
}

// Frozen reports whether Freeze was called (query).
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Freeze marks the registry read-only (command). Later mutations panic.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// lock acquires the write lock for a command.
func (r *Registry) lock() {
	r.mu.Lock()
	if r.frozen {
		r.mu.Unlock()
		panic("registry: mutation after Freeze")
	}
}

// getOrCreate returns the process for pid; callers hold the write lock.
func (r *Registry) getOrCreate(pid int) *Process {
	p := r.procs[pid]
	if p == nil {
		p = newProcess(pid)
		r.procs[pid] = p
	}
	return p
}

func (r *Registry) observe(t parser.Timestamp) {
	if !r.seen {
		r.first, r.last, r.seen = t, t, true
		return
	}
	r.first = min(r.first, t)
	r.last = max(r.last, t)
}

// GetOrCreate retrieves the process for a PID, creating it if needed (command).
func (r *Registry) GetOrCreate(pid int) *Process {
	r.lock()
	defer r.mu.Unlock()
	return r.getOrCreate(pid)
}

// Touch records that pid was active at t (command).
func (r *Registry) Touch(pid int, t parser.Timestamp) {
	r.lock()
	defer r.mu.Unlock()
	r.getOrCreate(pid).touch(t)
	r.observe(t)
}

// AddSyscall folds one completed call into the PID's statistics (command).
func (r *Registry) AddSyscall(pid int, name string, d time.Duration, timed bool, errno string) {
	r.lock()
	defer r.mu.Unlock()
	p := r.getOrCreate(pid)
	s := p.Syscalls[name]
	if s == nil {
		s = &SyscallStats{}
		p.Syscalls[name] = s
	}
	s.Add(d, timed, errno)
}

// AddChild records that parent created child at t (command). Thread clones
// also link the two PIDs as thread siblings. A child keeps the first parent
// it was seen with.
func (r *Registry) AddChild(parent, child int, t parser.Timestamp, thread bool) {
	if parent == child {
		return
	}
	r.lock()
	defer r.mu.Unlock()
	pp := r.getOrCreate(parent)
	cp := r.getOrCreate(child)
	pp.Children[child] = struct{}{}
	if cp.ParentPID == 0 {
		cp.ParentPID = parent
	}
	cp.touch(t)
	if thread {
		pp.Threads[child] = struct{}{}
		cp.Threads[parent] = struct{}{}
	}
}

// AddExec appends a successful exec and makes it the current program (command).
func (r *Registry) AddExec(pid int, exec Exec) {
	r.lock()
	defer r.mu.Unlock()
	p := r.getOrCreate(pid)
	p.Execs = append(p.Execs, exec)
	p.Program = exec.Program
}

// AddFileOpen appends an open call (command).
func (r *Registry) AddFileOpen(pid int, open FileOpen) {
	r.lock()
	defer r.mu.Unlock()
	p := r.getOrCreate(pid)
	p.FileOpens = append(p.FileOpens, open)
}

// AddIOEvent appends an I/O call (command).
func (r *Registry) AddIOEvent(pid int, ev IOEvent) {
	r.lock()
	defer r.mu.Unlock()
	p := r.getOrCreate(pid)
	p.IOEvents = append(p.IOEvents, ev)
}

// AddFutexAddr records a private futex address used by pid (command).
func (r *Registry) AddFutexAddr(pid int, addr string) {
	r.lock()
	defer r.mu.Unlock()
	r.getOrCreate(pid).FutexAddrs[addr] = struct{}{}
}

// AddSignal counts a signal delivered to pid (command).
func (r *Registry) AddSignal(pid int, name string) {
	r.lock()
	defer r.mu.Unlock()
	r.getOrCreate(pid).Signals[name]++
}

// SetExit records how pid terminated (command). The status is also attached
// to the last executed program.
func (r *Registry) SetExit(pid int, status ExitStatus) {
	r.lock()
	defer r.mu.Unlock()
	p := r.getOrCreate(pid)
	st := status
	p.Exit = &st
	p.touch(status.Time)
	r.observe(status.Time)
	if n := len(p.Execs); n > 0 {
		p.Execs[n-1].Exit = &st
	}
}

// SetThreadGroup makes every member a thread sibling of every other member
// (command).
func (r *Registry) SetThreadGroup(members []int) {
	r.lock()
	defer r.mu.Unlock()
	for _, a := range members {
		pa := r.getOrCreate(a)
		for _, b := range members {
			if a != b {
				pa.Threads[b] = struct{}{}
			}
		}
	}
}
