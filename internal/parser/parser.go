package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrParseFailure is wrapped by every error ParseLine returns.
var ErrParseFailure = errors.New("unrecognized strace line")

const (
	unfinishedSuffix = "<unfinished ...>"
	resumedPrefix    = "<... "
	resumedMarker    = " resumed>"
)

func failure(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParseFailure, fmt.Sprintf(format, args...))
}

// ParseLine parses one line of strace output.
func ParseLine(line string) (*Event, error) {
	ev := &Event{}
	body, err := parsePrefix(line, ev)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasPrefix(body, "--- "):
		err = parseSignal(body, ev)
	case strings.HasPrefix(body, "+++ "):
		err = parseExit(body, ev)
	case strings.HasPrefix(body, resumedPrefix):
		err = parseResumed(body, ev)
	default:
		err = parseCall(body, ev)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// parsePrefix reads the PID and timestamp columns and returns the rest of
// the line.
func parsePrefix(line string, ev *Event) (string, error) {
	rest := strings.TrimLeft(line, " \t")
	if strings.HasPrefix(rest, "[pid ") {
		rest = strings.TrimLeft(rest[len("[pid "):], " ")
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", failure("unterminated [pid N] prefix")
		}
		rest = rest[:end] + rest[end+1:]
	}

	pidField, rest, ok := cutField(rest)
	if !ok {
		return "", failure("missing pid column")
	}
	pid, err := strconv.Atoi(pidField)
	if err != nil || pid <= 0 {
		return "", failure("invalid pid %q", pidField)
	}

	tsField, rest, ok := cutField(rest)
	if !ok {
		return "", failure("missing timestamp column")
	}
	ts, err := ParseTimestamp(tsField)
	if err != nil {
		return "", failure("%v", err)
	}

	ev.PID = pid
	ev.Time = ts
	return strings.TrimRight(rest, " \t\r\n"), nil
}

// cutField splits off the first whitespace separated field.
func cutField(s string) (field, rest string, ok bool) {
	s = strings.TrimLeft(s, " \t")
	if s == "" {
		return "", "", false
	}
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, "", true
	}
	return s[:i], strings.TrimLeft(s[i:], " \t"), true
}

func parseSignal(body string, ev *Event) error {
	if !strings.HasSuffix(body, "---") || len(body) < len("--- X ---") {
		return failure("unterminated signal line")
	}
	inner := strings.TrimSpace(body[3 : len(body)-3])
	name, _, _ := strings.Cut(inner, " ")
	if !strings.HasPrefix(name, "SIG") {
		return failure("signal line without signal name")
	}
	ev.Kind = KindSignal
	ev.Name = name
	return nil
}

func parseExit(body string, ev *Event) error {
	if !strings.HasSuffix(body, "+++") {
		return failure("unterminated exit line")
	}
	inner := strings.TrimSpace(body[3 : len(body)-3])
	ev.Kind = KindExit

	if code, ok := strings.CutPrefix(inner, "exited with "); ok {
		n, err := strconv.Atoi(strings.TrimSpace(code))
		if err != nil {
			return failure("invalid exit code %q", code)
		}
		ev.ExitCode = n
		return nil
	}
	if sig, ok := strings.CutPrefix(inner, "killed by "); ok {
		if before, found := strings.CutSuffix(sig, "(core dumped)"); found {
			ev.CoreDumped = true
			sig = before
		}
		sig = strings.TrimSpace(sig)
		if sig == "" {
			return failure("exit line without signal")
		}
		ev.Signal = sig
		return nil
	}
	return failure("unknown exit line %q", inner)
}

func parseCall(body string, ev *Event) error {
	open := strings.IndexByte(body, '(')
	if open <= 0 {
		return failure("no argument list")
	}
	name := body[:open]
	if !isSyscallName(name) {
		return failure("invalid syscall name %q", name)
	}
	ev.Name = name

	if partial, ok := strings.CutSuffix(body, unfinishedSuffix); ok {
		args, err := splitPartial(strings.TrimSpace(partial[open+1:]))
		if err != nil {
			return failure("%s: %v", name, err)
		}
		ev.Kind = KindUnfinished
		ev.Args = args
		return nil
	}

	args, end, err := splitArgs(body[open+1:], true)
	if err != nil {
		return failure("%s: %v", name, err)
	}
	ev.Kind = KindCall
	ev.Args = args
	return parseResult(body[open+1+end:], ev)
}

func parseResumed(body string, ev *Event) error {
	marker := strings.Index(body, resumedMarker)
	if marker < 0 {
		return failure("resumed line without marker")
	}
	name := body[len(resumedPrefix):marker]
	if !isSyscallName(name) {
		return failure("invalid syscall name %q", name)
	}
	rest := body[marker+len(resumedMarker):]
	if strings.HasSuffix(rest, unfinishedSuffix) {
		return failure("%s resumed and interrupted again", name)
	}

	ev.Kind = KindResumed
	ev.Name = name

	// "<... open resumed> = 3": every argument was on the unfinished line.
	if strings.HasPrefix(strings.TrimSpace(rest), "=") {
		return parseResult(rest, ev)
	}

	args, end, err := splitArgs(rest, true)
	if err != nil {
		return failure("%s resumed: %v", name, err)
	}
	ev.Args = args
	return parseResult(rest[end:], ev)
}

// splitPartial splits the arguments of an unfinished line. The list may
// already be closed, as in `execve("/bin/ls", ["ls"], 0x7ffd) <unfinished ...>`.
func splitPartial(s string) ([]string, error) {
	if strings.HasSuffix(s, ")") {
		if args, end, err := splitArgs(s, true); err == nil && end == len(s) {
			return args, nil
		}
	}
	args, _, err := splitArgs(s, false)
	return args, err
}

// parseResult decodes " = ret [ERRNO (desc)] [<duration>]".
func parseResult(s string, ev *Event) error {
	s = strings.TrimSpace(s)
	rhs, ok := strings.CutPrefix(s, "=")
	if !ok {
		return failure("%s: missing return value", ev.Name)
	}
	rhs = strings.TrimSpace(rhs)

	if strings.HasSuffix(rhs, ">") {
		if lt := strings.LastIndexByte(rhs, '<'); lt >= 0 && (lt == 0 || rhs[lt-1] == ' ') {
			inner := rhs[lt+1 : len(rhs)-1]
			if inner == "unavailable" {
				rhs = strings.TrimSpace(rhs[:lt])
			} else if d, err := ParseDuration(inner); err == nil {
				ev.Duration = d
				ev.HasDuration = true
				rhs = strings.TrimSpace(rhs[:lt])
			}
		}
	}
	if rhs == "" {
		return failure("%s: empty return value", ev.Name)
	}

	ret := Return{}
	end := strings.IndexAny(rhs, " <")
	if end < 0 {
		end = len(rhs)
	}
	ret.Raw = rhs[:end]
	rest := rhs[end:]
	if strings.HasPrefix(rest, "<") {
		stop, err := skipAnnotation(rest, 0)
		if err != nil {
			return failure("%s: %v", ev.Name, err)
		}
		ret.Path = rest[1 : stop-1]
		rest = rest[stop:]
	}
	if v, err := strconv.ParseInt(ret.Raw, 0, 64); err == nil {
		ret.Value = v
		ret.Numeric = true
	} else if u, err := strconv.ParseUint(ret.Raw, 0, 64); err == nil {
		ret.Value = int64(u) //nolint:gosec // addresses above MaxInt64 keep their bit pattern
		ret.Numeric = true
	}

	rest = strings.TrimSpace(rest)
	if word, desc := splitErrno(rest); word != "" {
		ret.Errno = word
		ret.ErrnoDesc = desc
	} else if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
		ret.Note = rest[1 : len(rest)-1]
	}
	ev.Return = ret
	return nil
}

// splitErrno recognizes "ENOENT (No such file or directory)" and bare
// "ERESTARTSYS" style suffixes.
func splitErrno(s string) (string, string) {
	word, rest, _ := strings.Cut(s, " ")
	if len(word) < 2 || word[0] != 'E' {
		return "", ""
	}
	for i := 1; i < len(word); i++ {
		c := word[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
			return "", ""
		}
	}
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
		rest = rest[1 : len(rest)-1]
	}
	return word, rest
}

func isSyscallName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '_' && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
