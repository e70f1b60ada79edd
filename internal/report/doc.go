// Package report answers the analysis queries over a frozen registry.
//
// Every report is a pure read-only function returning a render-ready value:
//
//	                    ┌──────────────────────┐
//	  --pid/--filter ──►│ Select / Expand      │──► Selection{PIDs, Missing}
//	  --related         └──────────┬───────────┘
//	  --threads                    │
//	                               ▼
//	  ┌──────────┬──────────┬──────┴─────┬────────────┬──────────┬─────────┐
//	  │ Summary  │ ListPids │ Directories│ Quantize   │ IO       │ Files   │
//	  │ Details  │          │ (trie)     │ (log2)     │          │ Execs   │
//	  └──────────┴──────────┴────────────┴────────────┴──────────┴─────────┘
//
// Durations are split into active and wait time by syscall name: calls that
// block waiting on other tasks or timers (see WaitSyscalls) count as wait
// time, everything else as active time.
//
// Queries take the registry read lock through its query methods and may run
// concurrently.
package report

import "errors"

// ErrNoData is returned when a query has nothing to report.
var ErrNoData = errors.New("no data found")
