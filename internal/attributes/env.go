package attributes

import (
	"github.com/mrzor/strace-summary/internal/registry"
	"github.com/mrzor/strace-summary/internal/report"
)

// exprEnv is the type-checking template of Env.
func exprEnv() map[string]interface{} {
	return map[string]interface{}{
		"pid":       0,
		"ppid":      0,
		"program":   "",
		"cmdline":   "",
		"args":      []string{},
		"syscalls":  0,
		"errors":    0,
		"calls":     map[string]int{},
		"active_us": 0,
		"wait_us":   0,
		"total_us":  0,
		"user_us":   0,
		"children":  []int{},
		"threads":   []int{},
		"exit_code": 0,
		"killed_by": "",
		"files":     []string{},
	}
}

// Env builds the evaluation environment of p.
func Env(p *registry.Process) map[string]interface{} {
	s := report.Summarize(p)

	calls := make(map[string]int, len(p.Syscalls))
	for name, st := range p.Syscalls {
		calls[name] = st.Count
	}

	files := make([]string, 0, len(p.FileOpens))
	for _, f := range p.FileOpens {
		files = append(files, f.Path)
	}

	exitCode, killedBy := -1, ""
	if p.Exit != nil {
		exitCode, killedBy = p.Exit.Code, p.Exit.Signal
	}

	args := p.Args()
	if args == nil {
		args = []string{}
	}

	return map[string]interface{}{
		"pid":       p.PID,
		"ppid":      p.ParentPID,
		"program":   p.Program,
		"cmdline":   p.Cmdline(),
		"args":      args,
		"syscalls":  s.Syscalls,
		"errors":    s.Errors,
		"calls":     calls,
		"active_us": int(s.ActiveTime.Microseconds()),
		"wait_us":   int(s.WaitTime.Microseconds()),
		"total_us":  int(s.TotalTime.Microseconds()),
		"user_us":   int(s.UserTime.Microseconds()),
		"children":  s.Children,
		"threads":   s.Threads,
		"exit_code": exitCode,
		"killed_by": killedBy,
		"files":     files,
	}
}
