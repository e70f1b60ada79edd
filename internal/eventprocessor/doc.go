// Package eventprocessor routes parsed strace events into the process
// registry. It is the single mutation entry point during ingestion.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│      Parsed events (file order)         │
//	└─────────────────┬───────────────────────┘
//	                  │
//	                  ▼
//	┌─────────────────────────────────────────┐
//	│   eventprocessor                        │  ← Event routing
//	│   - Touches process lifetimes           │
//	│   - Routes by event kind / syscall      │
//	└─────────┬───────────────────────────────┘
//	          │
//	          ├──→ signal / exit ─────→ registry.AddSignal / SetExit
//	          │
//	          ├──→ unfinished futex ──→ registry.AddFutexAddr
//	          │
//	          ├──→ all lines ─────────→ reconciler
//	          │                          - Joins unfinished/resumed pairs
//	          │                          - Produces complete records
//	          │
//	          └──→ records ───────────→ registry
//	               - every call: incremental syscall stats
//	               - clone/fork/vfork: parent/child and thread edges
//	               - execve: executed programs, endpoint resolver
//	               - open/openat/creat: file opens
//	               - read/write/send/recv family: I/O events
//	               - private futex: futex addresses
//
// Events must be delivered in file order; the processor is not safe for
// concurrent use.
package eventprocessor
