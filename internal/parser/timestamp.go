package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const microsPerDay = 24 * 60 * 60 * 1_000_000

// Timestamp is a point in time with microsecond resolution. Values parsed
// from -tt output count microseconds since midnight; values parsed from -ttt
// output count microseconds since the Unix epoch.
type Timestamp int64

// Sub returns the duration t-u.
func (t Timestamp) Sub(u Timestamp) time.Duration {
	return time.Duration(t-u) * time.Microsecond
}

// Add returns t+d truncated to microseconds.
func (t Timestamp) Add(d time.Duration) Timestamp {
	return t + Timestamp(d/time.Microsecond)
}

// IsUnix reports whether t was read from an epoch-based (-ttt) timestamp.
func (t Timestamp) IsUnix() bool {
	return t >= microsPerDay
}

// TimeOfDay returns the offset of t from midnight.
func (t Timestamp) TimeOfDay() time.Duration {
	return time.Duration(int64(t)%microsPerDay) * time.Microsecond
}

// String formats t the way strace printed it.
func (t Timestamp) String() string {
	if t.IsUnix() {
		return fmt.Sprintf("%d.%06d", int64(t)/1_000_000, int64(t)%1_000_000)
	}
	us := int64(t)
	h := us / 3_600_000_000
	us -= h * 3_600_000_000
	m := us / 60_000_000
	us -= m * 60_000_000
	s := us / 1_000_000
	us -= s * 1_000_000
	return fmt.Sprintf("%02d:%02d:%02d.%06d", h, m, s, us)
}

// ParseTimestamp parses "HH:MM:SS.ffffff" or "SSSSSSSSSS.ffffff".
func ParseTimestamp(s string) (Timestamp, error) {
	whole, frac, ok := strings.Cut(s, ".")
	if !ok {
		return 0, fmt.Errorf("timestamp %q has no fractional part", s)
	}
	micros, err := parseMicros(frac)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q: %w", s, err)
	}

	if !strings.Contains(whole, ":") {
		secs, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("timestamp %q: %w", s, err)
		}
		return Timestamp(secs*1_000_000 + micros), nil
	}

	parts := strings.Split(whole, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("timestamp %q is not HH:MM:SS", s)
	}
	var fields [3]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("timestamp %q: %w", s, err)
		}
		fields[i] = v
	}
	if fields[0] > 23 || fields[1] > 59 || fields[2] > 60 {
		return 0, fmt.Errorf("timestamp %q out of range", s)
	}
	secs := fields[0]*3600 + fields[1]*60 + fields[2]
	return Timestamp(secs*1_000_000 + micros), nil
}

// ParseDuration parses the seconds value strace prints between angle
// brackets with -T, e.g. "0.000512".
func ParseDuration(s string) (time.Duration, error) {
	whole, frac, _ := strings.Cut(s, ".")
	secs, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("duration %q is not a number of seconds", s)
	}
	var micros int64
	if frac != "" {
		if micros, err = parseMicros(frac); err != nil {
			return 0, fmt.Errorf("duration %q: %w", s, err)
		}
	}
	return time.Duration(secs)*time.Second + time.Duration(micros)*time.Microsecond, nil
}

// parseMicros reads a decimal fraction as microseconds, padding or
// truncating it to six digits.
func parseMicros(frac string) (int64, error) {
	if frac == "" {
		return 0, fmt.Errorf("empty fraction")
	}
	for i := 0; i < len(frac); i++ {
		if frac[i] < '0' || frac[i] > '9' {
			return 0, fmt.Errorf("invalid fraction %q", frac)
		}
	}
	if len(frac) > 6 {
		frac = frac[:6]
	}
	for len(frac) < 6 {
		frac += "0"
	}
	return strconv.ParseInt(frac, 10, 64)
}
