package report

import (
	"fmt"
	"slices"
	"strings"
)

// SortKey orders report rows.
type SortKey string

// Sort keys accepted by the reports.
const (
	SortActiveTime SortKey = "active_time"
	SortTotalTime  SortKey = "total_time"
	SortUserTime   SortKey = "user_time"
	SortPID        SortKey = "pid"
	SortSyscalls   SortKey = "syscalls"
	SortChildren   SortKey = "children"
	SortStartTime  SortKey = "start_time"
	SortCount      SortKey = "count"
	SortDuration   SortKey = "duration"
	SortTime       SortKey = "time"
)

// Keys accepted per report family, default first.
var (
	SummarySortKeys   = []SortKey{SortActiveTime, SortTotalTime, SortUserTime, SortPID, SortSyscalls, SortChildren, SortStartTime}
	EventSortKeys     = []SortKey{SortDuration, SortPID, SortTime}
	DirectorySortKeys = []SortKey{SortDuration, SortCount, SortPID, SortTime}
)

// ParseSortKey validates s against allowed. An empty s selects the first
// allowed key.
func ParseSortKey(s string, allowed []SortKey) (SortKey, error) {
	if s == "" {
		return allowed[0], nil
	}
	key := SortKey(strings.ToLower(s))
	if !slices.Contains(allowed, key) {
		names := make([]string, len(allowed))
		for i, k := range allowed {
			names[i] = string(k)
		}
		return "", fmt.Errorf("invalid sort key %q, expected one of: %s", s, strings.Join(names, ", "))
	}
	return key, nil
}

// truncate caps rows at count; count <= 0 keeps everything.
func truncate[T any](rows []T, count int) []T {
	if count > 0 && len(rows) > count {
		return rows[:count]
	}
	return rows
}
