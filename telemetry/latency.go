package telemetry

import (
	"sort"
	"sync/atomic"
	"time"
)

// LatencyWindows is the bucket count of a LatencyHistogram, matching the
// original's Common.h LATENCY_WINDOWS.
const LatencyWindows = 100000

// BucketWidth is the duration each bucket covers.
const BucketWidth = 100 * time.Nanosecond

// LatencyHistogram is a fixed-width latency histogram: bucket i covers
// [i*BucketWidth, (i+1)*BucketWidth), with the last bucket absorbing every
// observation at or beyond its lower bound (the original's "dump anything
// over the last window into the last window" behavior, since the fixed
// array has no unbounded tail bucket).
type LatencyHistogram struct {
	buckets [LatencyWindows]atomic.Uint64
	count   atomic.Uint64
}

// NewLatencyHistogram returns an empty histogram.
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{}
}

// Record adds one observation of d to the histogram.
func (h *LatencyHistogram) Record(d time.Duration) {
	idx := int(d / BucketWidth)
	if idx >= LatencyWindows {
		idx = LatencyWindows - 1
	}
	if idx < 0 {
		idx = 0
	}
	h.buckets[idx].Add(1)
	h.count.Add(1)
}

// Count returns the total number of recorded observations.
func (h *LatencyHistogram) Count() uint64 {
	return h.count.Load()
}

// Percentile returns the smallest bucket boundary b such that at least p
// fraction of observations fall at or below b, the analog of the
// original's report that walks LATENCY_WINDOWS accumulating counts until
// it crosses a target fraction of the total. p must be in [0, 1].
func (h *LatencyHistogram) Percentile(p float64) time.Duration {
	total := h.count.Load()
	if total == 0 {
		return 0
	}
	target := uint64(p * float64(total))
	var cum uint64
	for i := 0; i < LatencyWindows; i++ {
		cum += h.buckets[i].Load()
		if cum >= target {
			return time.Duration(i+1) * BucketWidth
		}
	}
	return LatencyWindows * BucketWidth
}

// Mean returns the arithmetic mean latency across all recorded
// observations, using each bucket's midpoint as that bucket's value.
func (h *LatencyHistogram) Mean() time.Duration {
	total := h.count.Load()
	if total == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < LatencyWindows; i++ {
		c := h.buckets[i].Load()
		if c == 0 {
			continue
		}
		mid := float64(i)*float64(BucketWidth) + float64(BucketWidth)/2
		sum += mid * float64(c)
	}
	return time.Duration(sum / float64(total))
}

// nonEmptyBuckets is a test/debug helper returning the sorted indices of
// every bucket with at least one observation.
func (h *LatencyHistogram) nonEmptyBuckets() []int {
	var idx []int
	for i := 0; i < LatencyWindows; i++ {
		if h.buckets[i].Load() > 0 {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	return idx
}
