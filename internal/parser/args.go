package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// splitArgs scans s as a comma separated argument list. Delimiters inside
// quoted strings, nested (), [] and {} groups and N<...> descriptor
// annotations do not split arguments.
//
// When closed is set the list must end with an unmatched ')' and the index
// just past it is returned. Otherwise the whole of s is consumed and every
// group must be balanced at the end.
func splitArgs(s string, closed bool) ([]string, int, error) {
	var (
		args  []string
		stack []byte
		start int
	)

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"':
			end, err := skipString(s, i)
			if err != nil {
				return nil, 0, err
			}
			i = end
			continue
		case c == '<' && i > 0 && isAnnotationOwner(s[i-1]):
			end, err := skipAnnotation(s, i)
			if err != nil {
				return nil, 0, err
			}
			i = end
			continue
		case c == '(' || c == '[' || c == '{':
			stack = append(stack, closerOf(c))
		case c == ')' || c == ']' || c == '}':
			if len(stack) == 0 {
				if c == ')' && closed {
					return appendArg(args, s[start:i]), i + 1, nil
				}
				return nil, 0, fmt.Errorf("unbalanced %q at offset %d", c, i)
			}
			if want := stack[len(stack)-1]; want != c {
				return nil, 0, fmt.Errorf("expected %q, found %q at offset %d", want, c, i)
			}
			stack = stack[:len(stack)-1]
		case c == ',' && len(stack) == 0:
			args = appendArg(args, s[start:i])
			start = i + 1
		}
		i++
	}

	if closed {
		return nil, 0, fmt.Errorf("argument list is not terminated")
	}
	if len(stack) > 0 {
		return nil, 0, fmt.Errorf("argument list is truncated inside %q group", stack[len(stack)-1])
	}
	return appendArg(args, s[start:]), len(s), nil
}

func appendArg(args []string, raw string) []string {
	if arg := strings.TrimSpace(raw); arg != "" {
		args = append(args, arg)
	}
	return args
}

func closerOf(c byte) byte {
	switch c {
	case '(':
		return ')'
	case '[':
		return ']'
	default:
		return '}'
	}
}

// isAnnotationOwner reports whether a '<' following c opens a -yyy annotation
// such as 3</etc/passwd> or AT_FDCWD</home/user>.
func isAnnotationOwner(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// skipString returns the index just past the quoted string starting at i.
func skipString(s string, i int) (int, error) {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '"':
			return j + 1, nil
		}
	}
	return 0, fmt.Errorf("unterminated string at offset %d", i)
}

// skipAnnotation returns the index just past the <...> annotation starting
// at i. Socket annotations like <TCP:[1.2.3.4:80->5.6.7.8:9]> contain '>'
// inside brackets.
func skipAnnotation(s string, i int) (int, error) {
	depth := 0
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '[':
			depth++
		case ']':
			depth--
		case '>':
			if depth <= 0 {
				return j + 1, nil
			}
		}
	}
	return 0, fmt.Errorf("unterminated descriptor annotation at offset %d", i)
}

// SplitDescriptor splits a -yyy annotated argument such as "3</tmp/x>" into
// the raw descriptor "3" and the annotation "/tmp/x". Arguments without an
// annotation are returned unchanged with ok unset.
func SplitDescriptor(arg string) (fd, annotation string, ok bool) {
	if !strings.HasSuffix(arg, ">") {
		return arg, "", false
	}
	i := strings.IndexByte(arg, '<')
	if i <= 0 || !isAnnotationOwner(arg[i-1]) {
		return arg, "", false
	}
	return arg[:i], arg[i+1 : len(arg)-1], true
}

// Unquote returns the contents of a strace string argument. A trailing "..."
// marking truncation is dropped. Arguments that are not strings are
// returned unchanged.
func Unquote(arg string) string {
	if !strings.HasPrefix(arg, `"`) {
		return arg
	}
	end, err := skipString(arg, 0)
	if err != nil {
		return strings.Trim(arg, `"`)
	}
	quoted := arg[:end]
	if s, err := strconv.Unquote(quoted); err == nil {
		return s
	}
	return quoted[1 : len(quoted)-1]
}

// StringArray decodes an array argument such as ["ls", "-l"] into its
// unquoted elements. A trailing "..." element is kept verbatim.
func StringArray(arg string) []string {
	if !strings.HasPrefix(arg, "[") || !strings.HasSuffix(arg, "]") {
		return nil
	}
	items, _, err := splitArgs(arg[1:len(arg)-1], false)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, Unquote(item))
	}
	return out
}
