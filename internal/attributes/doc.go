// Package attributes provides expression evaluation over traced processes:
// PID filters, custom span attributes, trace IDs and parent span IDs.
//
// Expressions use the expr language and see one process at a time through
// the variables built by Env:
//
//	pid, ppid          int
//	program, cmdline   string
//	args               []string      arguments of the last exec
//	syscalls, errors   int
//	calls              map[string]int  syscall name -> count
//	active_us, wait_us, total_us, user_us  int
//	children, threads  []int
//	exit_code          int           -1 when no exit was traced
//	killed_by          string        terminating signal, "" otherwise
//	files              []string      opened paths
//
// Four evaluators:
//   - Filter: Boolean PID filter (--filter)
//   - Evaluator: Custom attribute expressions (-a name=expr)
//   - TraceIDEvaluator: Trace ID expressions (32 hex chars)
//   - ParentIDEvaluator: Parent span ID expressions (16 hex chars)
//
// Invalid trace IDs are automatically hashed with SHA-256 to produce valid IDs.
// Invalid parent IDs result in a null parent (zero span ID).
package attributes
