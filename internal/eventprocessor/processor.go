package eventprocessor

import (
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mrzor/strace-summary/internal/parser"
	"github.com/mrzor/strace-summary/internal/pseudo_reverse_dns"
	"github.com/mrzor/strace-summary/internal/reconciler"
	"github.com/mrzor/strace-summary/internal/registry"
)

var (
	cloneSyscalls = map[string]bool{"clone": true, "clone3": true, "fork": true, "vfork": true}
	execSyscalls  = map[string]bool{"execve": true, "execveat": true}

	// openSyscalls maps each open-family call to the index of its path argument.
	openSyscalls = map[string]int{"open": 0, "creat": 0, "openat": 1, "openat2": 1}

	// IOSyscalls lists the calls recorded as I/O events.
	IOSyscalls = map[string]bool{
		"read": true, "write": true,
		"recv": true, "recvfrom": true, "recvmsg": true,
		"send": true, "sendto": true, "sendmsg": true,
		"pread64": true, "pwrite64": true,
		"readv": true, "writev": true,
		"preadv": true, "pwritev": true, "preadv2": true, "pwritev2": true,
	}
)

// Processor coordinates event processing.
// It reconciles interrupted calls and applies lineage and records to the
// registry.
type Processor struct {
	reconciler *reconciler.Reconciler
	registry   *registry.Registry
	resolver   *pseudo_reverse_dns.Resolver
	logger     zerolog.Logger
}

// NewProcessor creates a new event processor. resolver may be nil.
func NewProcessor(reg *registry.Registry, resolver *pseudo_reverse_dns.Resolver, logger zerolog.Logger) *Processor {
	return &Processor{
		reconciler: reconciler.New(logger),
		registry:   reg,
		resolver:   resolver,
		logger:     logger,
	}
}

// HandleEvent routes one parsed event. Events must arrive in file order.
func (p *Processor) HandleEvent(ev *parser.Event) error {
	p.registry.Touch(ev.PID, ev.Time)

	switch ev.Kind {
	case parser.KindSignal:
		p.registry.AddSignal(ev.PID, ev.Name)
	case parser.KindExit:
		p.registry.SetExit(ev.PID, registry.ExitStatus{
			Time:       ev.Time,
			Code:       ev.ExitCode,
			Signal:     ev.Signal,
			CoreDumped: ev.CoreDumped,
		})
	case parser.KindUnfinished:
		// A thread blocked at the end of the trace never resumes, so its
		// futex address is only visible here.
		if ev.Name == "futex" {
			p.handleFutex(ev.PID, ev.Args)
		}
	}

	rec, err := p.reconciler.HandleEvent(ev)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	p.HandleRecord(rec)
	return nil
}

// HandleRecord applies one complete syscall to the registry.
func (p *Processor) HandleRecord(rec *reconciler.Record) {
	p.registry.AddSyscall(rec.PID, rec.Name, rec.Duration, rec.HasDuration, rec.Return.Errno)

	switch {
	case cloneSyscalls[rec.Name]:
		p.handleClone(rec)
	case execSyscalls[rec.Name]:
		p.handleExec(rec)
	case IOSyscalls[rec.Name]:
		p.handleIO(rec)
	case rec.Name == "futex":
		p.handleFutex(rec.PID, rec.Args)
	default:
		if idx, ok := openSyscalls[rec.Name]; ok {
			p.handleOpen(rec, idx)
		}
	}
}

// Finish flushes calls left pending at end of input and returns the
// reconciliation counters.
func (p *Processor) Finish() reconciler.Stats {
	if n := p.reconciler.Flush(); n > 0 {
		p.logger.Debug().Int("dropped", n).Msg("discarded unfinished syscalls at end of trace")
	}
	return p.reconciler.Stats()
}

// handleClone processes clone/clone3/fork/vfork returns.
func (p *Processor) handleClone(rec *reconciler.Record) {
	if rec.Failed() || !rec.Return.Numeric || rec.Return.Value <= 0 {
		return
	}
	child := int(rec.Return.Value)
	thread := false
	if rec.Name == "clone" || rec.Name == "clone3" {
		for _, arg := range rec.Args {
			if strings.Contains(arg, "CLONE_THREAD") {
				thread = true
				break
			}
		}
	}
	p.registry.AddChild(rec.PID, child, rec.Start, thread)
}

// handleExec processes successful execve/execveat calls.
func (p *Processor) handleExec(rec *reconciler.Record) {
	if rec.Failed() || !rec.Return.Numeric || rec.Return.Value != 0 {
		return
	}
	pathIdx := 0
	if rec.Name == "execveat" {
		pathIdx = 1
	}
	program := parser.Unquote(rec.Arg(pathIdx))
	if program == "" {
		// resumed without its unfinished half: the path is unknown
		return
	}
	args := parser.StringArray(rec.Arg(pathIdx + 1))

	p.registry.AddExec(rec.PID, registry.Exec{
		Time:    rec.Start,
		Program: program,
		Args:    args,
	})

	if p.resolver != nil {
		p.resolver.IngestEndpoints(args...)
	}
}

// handleOpen processes open/openat/creat calls.
func (p *Processor) handleOpen(rec *reconciler.Record, pathIdx int) {
	p.registry.AddFileOpen(rec.PID, registry.FileOpen{
		Time:       rec.Start,
		StartKnown: rec.StartKnown,
		Duration:   rec.Duration,
		Syscall:    rec.Name,
		Path:       openPath(rec, pathIdx),
		Errno:      rec.Return.Errno,
	})
}

// openPath prefers the -yyy annotation of the returned descriptor, then the
// path argument joined with the -yyy annotation of the directory descriptor.
func openPath(rec *reconciler.Record, pathIdx int) string {
	if resolved := rec.ResolvedPath(); resolved != "" {
		return resolved
	}
	raw := parser.Unquote(rec.Arg(pathIdx))
	if raw == "" || path.IsAbs(raw) {
		return raw
	}
	if pathIdx > 0 {
		if _, dir, ok := parser.SplitDescriptor(rec.Arg(0)); ok && path.IsAbs(dir) {
			return path.Join(dir, raw)
		}
	}
	return raw
}

// handleIO processes read/write style calls.
func (p *Processor) handleIO(rec *reconciler.Record) {
	fd, desc, _ := parser.SplitDescriptor(rec.Arg(0))
	p.registry.AddIOEvent(rec.PID, registry.IOEvent{
		Time:        rec.Start,
		Syscall:     rec.Name,
		Duration:    rec.Duration,
		HasDuration: rec.HasDuration,
		Bytes:       rec.Bytes(),
		Errno:       rec.Return.Errno,
		FD:          fd,
		Descriptor:  desc,
	})
}

// handleFutex records addresses of private futex waits and wakes.
func (p *Processor) handleFutex(pid int, args []string) {
	if len(args) < 2 {
		return
	}
	op := args[1]
	if !strings.Contains(op, "_PRIVATE") {
		return
	}
	if !strings.HasPrefix(op, "FUTEX_WAIT") && !strings.HasPrefix(op, "FUTEX_WAKE") {
		return
	}
	p.registry.AddFutexAddr(pid, args[0])
}
