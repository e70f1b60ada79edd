package parser

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the shape of a parsed line.
type Kind int

// Line shapes produced by ParseLine.
const (
	KindCall Kind = iota
	KindUnfinished
	KindResumed
	KindSignal
	KindExit
)

func (k Kind) String() string {
	switch k {
	case KindCall:
		return "call"
	case KindUnfinished:
		return "unfinished"
	case KindResumed:
		return "resumed"
	case KindSignal:
		return "signal"
	case KindExit:
		return "exit"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Return is the decoded right-hand side of `= ...` on call and resumed lines.
type Return struct {
	Raw       string // textual return value: "3", "-1", "?", "0x7f12..."
	Value     int64  // numeric value of Raw, valid when Numeric is set
	Numeric   bool
	Path      string // -yyy annotation attached to the value, e.g. 3</etc/passwd>
	Errno     string // ENOENT, EAGAIN, ...
	ErrnoDesc string // text inside the parentheses following Errno
	Note      string // trailing annotation on successful calls, e.g. "Timeout"
}

// Failed reports whether the call carried an error annotation.
func (r Return) Failed() bool {
	return r.Errno != ""
}

// Event is one parsed strace line.
type Event struct {
	PID  int
	Time Timestamp
	Kind Kind

	// Name is the syscall name for call, unfinished and resumed lines and the
	// signal name for signal lines.
	Name string

	// Args holds the top-level arguments. For unfinished lines it is the
	// partial list before the interruption, for resumed lines the remainder.
	Args []string

	Return      Return
	Duration    time.Duration
	HasDuration bool

	// Exit lines.
	ExitCode   int
	Signal     string // set when the process was killed by a signal
	CoreDumped bool
}

// Killed reports whether an exit event describes death by signal.
func (e *Event) Killed() bool {
	return e.Kind == KindExit && e.Signal != ""
}

func (e *Event) String() string {
	switch e.Kind {
	case KindSignal:
		return fmt.Sprintf("%d %s --- %s ---", e.PID, e.Time, e.Name)
	case KindExit:
		if e.Killed() {
			return fmt.Sprintf("%d %s +++ killed by %s +++", e.PID, e.Time, e.Signal)
		}
		return fmt.Sprintf("%d %s +++ exited with %d +++", e.PID, e.Time, e.ExitCode)
	case KindUnfinished:
		return fmt.Sprintf("%d %s %s(%s <unfinished ...>", e.PID, e.Time, e.Name, strings.Join(e.Args, ", "))
	case KindResumed:
		return fmt.Sprintf("%d %s <... %s resumed>%s) = %s", e.PID, e.Time, e.Name, strings.Join(e.Args, ", "), e.Return.Raw)
	default:
		return fmt.Sprintf("%d %s %s(%s) = %s", e.PID, e.Time, e.Name, strings.Join(e.Args, ", "), e.Return.Raw)
	}
}
