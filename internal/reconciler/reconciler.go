package reconciler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrzor/strace-summary/internal/parser"
)

// Record is one complete syscall, either read from a single line or merged
// from an unfinished/resumed pair.
type Record struct {
	PID         int
	Name        string
	Start       parser.Timestamp
	StartKnown  bool
	Duration    time.Duration
	HasDuration bool
	Args        []string
	Return      parser.Return
}

// Arg returns the i-th argument or "" when the call had fewer.
func (r *Record) Arg(i int) string {
	if i < 0 || i >= len(r.Args) {
		return ""
	}
	return r.Args[i]
}

// Failed reports whether the call returned an error.
func (r *Record) Failed() bool {
	return r.Return.Failed()
}

// Bytes returns the number of bytes a successful transfer moved.
func (r *Record) Bytes() int64 {
	if r.Failed() || !r.Return.Numeric || r.Return.Value < 0 {
		return 0
	}
	return r.Return.Value
}

// ResolvedPath returns the -yyy annotation of the returned descriptor.
func (r *Record) ResolvedPath() string {
	return r.Return.Path
}

// pendingCall holds the unfinished half of an interrupted syscall.
type pendingCall struct {
	name  string
	args  []string
	start parser.Timestamp
}

// Stats counts reconciliation outcomes.
type Stats struct {
	Records  int // records emitted
	Merged   int // unfinished/resumed pairs joined
	Stale    int // pending entries replaced before their resumption
	Orphaned int // resumed lines without a matching pending entry
	Dangling int // pending entries discarded by Flush
}

// Reconciler tracks at most one pending syscall per PID.
type Reconciler struct {
	pending map[int]*pendingCall // PID -> unfinished call
	stats   Stats
	logger  zerolog.Logger
}

// New creates a reconciler that reports anomalies to logger.
func New(logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		pending: make(map[int]*pendingCall),
		logger:  logger,
	}
}

// HandleEvent consumes one parsed event in file order.
// Returns the completed record, or nil if the event does not complete a
// syscall (unfinished, signal and exit lines).
func (r *Reconciler) HandleEvent(ev *parser.Event) (*Record, error) {
	switch ev.Kind {
	case parser.KindCall:
		return r.emit(&Record{
			PID:         ev.PID,
			Name:        ev.Name,
			Start:       ev.Time,
			StartKnown:  true,
			Duration:    ev.Duration,
			HasDuration: ev.HasDuration,
			Args:        ev.Args,
			Return:      ev.Return,
		}), nil
	case parser.KindUnfinished:
		r.handleUnfinished(ev)
		return nil, nil
	case parser.KindResumed:
		return r.handleResumed(ev), nil
	case parser.KindSignal, parser.KindExit:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown event kind %v for pid %d", ev.Kind, ev.PID)
	}
}

func (r *Reconciler) handleUnfinished(ev *parser.Event) {
	if stale, ok := r.pending[ev.PID]; ok {
		r.stats.Stale++
		r.logger.Warn().
			Int("pid", ev.PID).
			Str("stale", stale.name).
			Str("stale_start", stale.start.String()).
			Str("syscall", ev.Name).
			Msg("discarding unfinished syscall that was never resumed")
	}
	r.pending[ev.PID] = &pendingCall{
		name:  ev.Name,
		args:  ev.Args,
		start: ev.Time,
	}
}

func (r *Reconciler) handleResumed(ev *parser.Event) *Record {
	call, ok := r.pending[ev.PID]
	if ok {
		delete(r.pending, ev.PID)
	}

	if !ok || call.name != ev.Name {
		if ok {
			r.stats.Stale++
			r.logger.Warn().
				Int("pid", ev.PID).
				Str("pending", call.name).
				Str("resumed", ev.Name).
				Msg("resumed syscall does not match pending call")
		}
		r.stats.Orphaned++
		r.logger.Debug().
			Int("pid", ev.PID).
			Str("syscall", ev.Name).
			Msg("resumed syscall without unfinished half")
		return r.emit(&Record{
			PID:         ev.PID,
			Name:        ev.Name,
			Start:       ev.Time,
			Duration:    ev.Duration,
			HasDuration: ev.HasDuration,
			Args:        ev.Args,
			Return:      ev.Return,
		})
	}

	rec := &Record{
		PID:         ev.PID,
		Name:        ev.Name,
		Start:       call.start,
		StartKnown:  true,
		Duration:    ev.Duration,
		HasDuration: true,
		Args:        mergeArgs(call.args, ev.Args),
		Return:      ev.Return,
	}
	if !ev.HasDuration {
		rec.Duration = max(ev.Time.Sub(call.start), 0)
	}
	r.stats.Merged++
	return r.emit(rec)
}

func (r *Reconciler) emit(rec *Record) *Record {
	r.stats.Records++
	return rec
}

func mergeArgs(partial, rest []string) []string {
	merged := make([]string, 0, len(partial)+len(rest))
	merged = append(merged, partial...)
	return append(merged, rest...)
}

// Pending returns the name of the syscall PID is blocked in, if any.
func (r *Reconciler) Pending(pid int) (string, bool) {
	call, ok := r.pending[pid]
	if !ok {
		return "", false
	}
	return call.name, true
}

// Flush discards every pending entry at end of input and returns how many
// were dropped.
func (r *Reconciler) Flush() int {
	n := len(r.pending)
	for pid, call := range r.pending {
		r.logger.Debug().
			Int("pid", pid).
			Str("syscall", call.name).
			Str("start", call.start.String()).
			Msg("dropping syscall still unfinished at end of trace")
	}
	clear(r.pending)
	r.stats.Dangling += n
	return n
}

// Stats returns the counters accumulated so far.
func (r *Reconciler) Stats() Stats {
	return r.stats
}
