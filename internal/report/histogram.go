package report

import (
	"github.com/mrzor/strace-summary/internal/registry"
)

// HistogramBucket is one row of a quantized distribution.
type HistogramBucket struct {
	Low   int64 // inclusive bound, microseconds
	High  int64 // inclusive bound, microseconds
	Count int
	Ratio float64 // Count relative to the fullest bucket
}

// Histogram is the log2 distribution of one syscall's durations.
type Histogram struct {
	Syscall string
	PIDs    []int
	Buckets []HistogramBucket // contiguous from bucket 0 to the highest used
	Total   int               // timed calls counted
}

// Quantize builds the duration distribution of syscall across the
// selection. Calls without a duration are not counted.
func Quantize(reg *registry.Registry, sel Selection, syscall string) (*Histogram, error) {
	var counts [registry.NumBuckets]int
	total, highest := 0, -1
	for _, pid := range sel.PIDs {
		p := reg.Get(pid)
		if p == nil {
			continue
		}
		s := p.Syscalls[syscall]
		if s == nil {
			continue
		}
		for i, n := range s.Buckets {
			if n == 0 {
				continue
			}
			counts[i] += n
			total += n
			highest = max(highest, i)
		}
	}
	if total == 0 {
		return nil, ErrNoData
	}

	fullest := 0
	for _, n := range counts[:highest+1] {
		fullest = max(fullest, n)
	}

	h := &Histogram{
		Syscall: syscall,
		PIDs:    sel.PIDs,
		Buckets: make([]HistogramBucket, 0, highest+1),
		Total:   total,
	}
	for i := 0; i <= highest; i++ {
		low, high := registry.BucketRange(i)
		h.Buckets = append(h.Buckets, HistogramBucket{
			Low:   low,
			High:  high,
			Count: counts[i],
			Ratio: float64(counts[i]) / float64(fullest),
		})
	}
	return h, nil
}
