package timesync

import (
	"fmt"
	"os"
	"time"

	"github.com/mrzor/strace-summary/internal/parser"
)

// DateLayout is the accepted --date format.
const DateLayout = "2006-01-02"

// Converter maps parser timestamps onto wall-clock time.
type Converter struct {
	midnight time.Time
}

// NewConverter anchors time-of-day timestamps on the calendar day of date,
// in date's location.
func NewConverter(date time.Time) *Converter {
	y, m, d := date.Date()
	return &Converter{
		midnight: time.Date(y, m, d, 0, 0, 0, 0, date.Location()),
	}
}

// WallClock converts t. Epoch timestamps are returned as is; time-of-day
// timestamps are offset from the anchor's midnight.
func (c *Converter) WallClock(t parser.Timestamp) time.Time {
	if t.IsUnix() {
		return time.UnixMicro(int64(t))
	}
	return c.midnight.Add(t.TimeOfDay())
}

// Anchor returns the midnight time-of-day timestamps are added to.
func (c *Converter) Anchor() time.Time {
	return c.midnight
}

// ParseDate parses a YYYY-MM-DD date in the local time zone.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want %s): %w", s, DateLayout, err)
	}
	return t, nil
}

// AnchorDate picks the anchor for input: an explicit date when set, the
// modification time of the file otherwise, and now for stdin ("-").
func AnchorDate(date, input string) (time.Time, error) {
	if date != "" {
		return ParseDate(date)
	}
	if input == "" || input == "-" {
		return time.Now(), nil
	}
	info, err := os.Stat(input)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat %s: %w", input, err)
	}
	return info.ModTime(), nil
}
