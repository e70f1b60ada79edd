package parser

import "errors"

// ErrMissingFlags reports a trace recorded without the options the analysis
// depends on.
var ErrMissingFlags = errors.New("strace command must include '-f', '-T' and '-tt' OR '-ttt'")

// CheckFlags inspects the first line of a trace. The line must start with a
// PID and a -tt or -ttt timestamp, and a completed call must carry a -T
// duration.
func CheckFlags(line string) error {
	ev, err := ParseLine(line)
	if err != nil {
		return errors.Join(ErrMissingFlags, err)
	}
	if ev.Kind == KindCall && !ev.HasDuration && ev.Return.Raw != "?" {
		return ErrMissingFlags
	}
	return nil
}
