// Package registry owns the per-PID model built while a trace is ingested.
//
// Process holds everything known about one PID: lineage (parent, children,
// thread siblings), executed programs, incremental syscall statistics, file
// opens, I/O events, private futex addresses and exit status.
//
// Registry provides command-query separation:
//
// Queries (read-only):
//   - Get(pid) - Retrieve one process
//   - PIDs() / Processes() - All processes in PID order
//   - Span() / Elapsed() - First and last timestamps of the trace
//
// Commands (mutations):
//   - Touch(pid, t) - Create lazily and extend the observed lifetime
//   - AddSyscall(pid, ...) - Update incremental statistics
//   - AddChild(parent, child, t, thread) - Record a clone/fork edge
//   - AddExec / AddFileOpen / AddIOEvent / AddFutexAddr / AddSignal
//   - SetExit(pid, status) - Record termination
//   - SetThreadGroup(pids) - Materialize a thread group (post-pass)
//   - Freeze() - Reject further mutations
//
// Thread-safe with RWMutex for concurrent access.
package registry
