package report

import (
	"time"

	"github.com/mrzor/strace-summary/internal/registry"
)

// WaitSyscalls lists the calls counted as wait time.
var WaitSyscalls = map[string]bool{
	"nanosleep":       true,
	"clock_nanosleep": true,
	"futex":           true,
	"select":          true,
	"pselect6":        true,
	"poll":            true,
	"ppoll":           true,
	"wait4":           true,
	"waitid":          true,
	"pause":           true,
	"epoll_wait":      true,
	"epoll_pwait":     true,
}

// IsWait reports whether time spent in syscall counts as waiting.
func IsWait(syscall string) bool {
	return WaitSyscalls[syscall]
}

// Split returns the time p spent in active and waiting syscalls.
func Split(p *registry.Process) (active, wait time.Duration) {
	for name, s := range p.Syscalls {
		if IsWait(name) {
			wait += s.Total
		} else {
			active += s.Total
		}
	}
	return active, wait
}
