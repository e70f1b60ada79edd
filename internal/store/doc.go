// Package store dumps an analyzed trace into a SQLite database so it can be
// queried with SQL after the fact.
//
// Every dump is one run, identified by a random UUID. All other tables
// reference the run:
//
//	runs ──┬── processes      (one row per PID)
//	       ├── syscall_stats  (one row per PID and syscall)
//	       ├── execs
//	       ├── file_opens
//	       └── io_events
//
// Times are microseconds as read from the trace: since midnight for -tt
// captures, since the epoch for -ttt captures. A dump is written in a
// single transaction.
package store
