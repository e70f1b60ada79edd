package registry

import (
	"math/bits"
	"time"
)

// NumBuckets is the size of the log2 duration distribution. Durations are
// int64 nanoseconds, so no microsecond count needs more than 44 bits.
const NumBuckets = 48

// Bucket returns the log2 bucket of d. Bucket 0 covers [0, 1] µs and bucket
// n > 0 covers [2^n, 2^(n+1)-1] µs.
func Bucket(d time.Duration) int {
	us := d.Microseconds()
	if us < 1 {
		return 0
	}
	return min(bits.Len64(uint64(us))-1, NumBuckets-1)
}

// BucketRange returns the inclusive microsecond bounds of bucket n.
func BucketRange(n int) (low, high int64) {
	if n == 0 {
		return 0, 1
	}
	return 1 << n, 1<<(n+1) - 1
}

// SyscallStats aggregates every call of one syscall made by one PID without
// retaining the calls themselves.
type SyscallStats struct {
	Count  int           // calls seen
	Timed  int           // calls that carried a duration
	Total  time.Duration // sum of durations
	Max    time.Duration
	Min    time.Duration
	Errors map[string]int // errno -> occurrences

	Buckets [NumBuckets]int // log2 distribution of timed calls
}

// Add folds one call into the aggregate.
func (s *SyscallStats) Add(d time.Duration, timed bool, errno string) {
	s.Count++
	if errno != "" {
		if s.Errors == nil {
			s.Errors = make(map[string]int)
		}
		s.Errors[errno]++
	}
	if !timed {
		return
	}
	if s.Timed == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	s.Timed++
	s.Total += d
	s.Buckets[Bucket(d)]++
}

// Merge folds o into s.
func (s *SyscallStats) Merge(o *SyscallStats) {
	if o == nil {
		return
	}
	if o.Timed > 0 {
		if s.Timed == 0 || o.Min < s.Min {
			s.Min = o.Min
		}
		s.Max = max(s.Max, o.Max)
	}
	s.Count += o.Count
	s.Timed += o.Timed
	s.Total += o.Total
	for errno, n := range o.Errors {
		if s.Errors == nil {
			s.Errors = make(map[string]int)
		}
		s.Errors[errno] += n
	}
	for i, n := range o.Buckets {
		s.Buckets[i] += n
	}
}

// ErrorCount returns the number of failed calls.
func (s *SyscallStats) ErrorCount() int {
	n := 0
	for _, c := range s.Errors {
		n += c
	}
	return n
}

// Mean returns the average duration of timed calls.
func (s *SyscallStats) Mean() time.Duration {
	if s.Timed == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Timed)
}
