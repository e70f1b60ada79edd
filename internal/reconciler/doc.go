// Package reconciler joins interrupted strace syscalls back into single
// timed records.
//
// strace splits a syscall in two when another traced thread prints while it
// is blocked: an "unfinished" line carrying the leading arguments and a
// "resumed" line carrying the rest, the return value and the duration.
//
// State Machine (per PID):
//
//	┌─────────┐   call line: emit record
//	│  Idle   │ ─────────────────────────┐
//	└────┬────┘ ◄───────────────────────┘
//	     │
//	     │ unfinished line
//	     ▼
//	┌─────────┐   unfinished line: drop stale entry, keep new one
//	│ Pending │ ◄──┐
//	└────┬────┘ ───┘
//	     │
//	     │ resumed line (same syscall)
//	     ▼
//	┌─────────┐
//	│  Merge  │  args = partial + rest
//	└────┬────┘  duration = explicit <d> or resumed_time - start_time
//	     │
//	     ▼
//	  emit record, back to Idle
//
// A resumed line without a matching pending entry yields a best-effort record
// whose start time is unknown. Entries still pending at end of input are
// discarded by Flush.
package reconciler
