package telemetry

import (
	"testing"
	"time"

	"github.com/dmemtree/smarttree/node"
)

func TestCountersSnapshotSumsAcrossSlots(t *testing.T) {
	c := NewCounters(3)
	c.CacheHit(0)
	c.CacheHit(1)
	c.CacheMiss(2)
	c.LockFail(0)
	c.Try(0, OpSearch)
	c.Try(1, OpSearch)
	c.Handover(1, OpSearch)
	c.Retry(2, CASNull)
	c.Retry(2, CASNull)
	c.NodeRead(0, node.NodeType(1))
	c.NodeRead(1, node.NodeType(1))

	snap := c.Snapshot()
	if snap.CacheHit != 2 {
		t.Errorf("CacheHit = %d, want 2", snap.CacheHit)
	}
	if snap.CacheMiss != 1 {
		t.Errorf("CacheMiss = %d, want 1", snap.CacheMiss)
	}
	if snap.LockFail != 1 {
		t.Errorf("LockFail = %d, want 1", snap.LockFail)
	}
	if snap.TryCnt[OpSearch] != 2 {
		t.Errorf("TryCnt[OpSearch] = %d, want 2", snap.TryCnt[OpSearch])
	}
	if snap.HandoverCnt[OpSearch] != 1 {
		t.Errorf("HandoverCnt[OpSearch] = %d, want 1", snap.HandoverCnt[OpSearch])
	}
	if snap.RetryCnt[CASNull] != 2 {
		t.Errorf("RetryCnt[CASNull] = %d, want 2", snap.RetryCnt[CASNull])
	}
	if snap.NodeTypeReads[node.NodeType(1)] != 2 {
		t.Errorf("NodeTypeReads[1] = %d, want 2", snap.NodeTypeReads[node.NodeType(1)])
	}
}

func TestRetryReasonString(t *testing.T) {
	if FirstTry.String() != "first_try" {
		t.Errorf("FirstTry.String() = %q", FirstTry.String())
	}
	if RetryReason(255).String() != "unknown" {
		t.Errorf("out-of-range RetryReason.String() should be \"unknown\"")
	}
}

func TestLatencyHistogramRecordAndCount(t *testing.T) {
	h := NewLatencyHistogram()
	for i := 0; i < 10; i++ {
		h.Record(time.Duration(i) * time.Microsecond)
	}
	if h.Count() != 10 {
		t.Errorf("Count() = %d, want 10", h.Count())
	}
}

func TestLatencyHistogramClampsOverflow(t *testing.T) {
	h := NewLatencyHistogram()
	h.Record(10 * time.Second) // far past the last bucket
	idx := h.nonEmptyBuckets()
	if len(idx) != 1 || idx[0] != LatencyWindows-1 {
		t.Errorf("overflowing observation should land in the last bucket, got %v", idx)
	}
}

func TestLatencyHistogramPercentileMonotonic(t *testing.T) {
	h := NewLatencyHistogram()
	for i := 1; i <= 100; i++ {
		h.Record(time.Duration(i) * BucketWidth)
	}
	p50 := h.Percentile(0.5)
	p99 := h.Percentile(0.99)
	if p50 <= 0 {
		t.Errorf("p50 should be positive, got %v", p50)
	}
	if p99 < p50 {
		t.Errorf("p99 (%v) should be >= p50 (%v)", p99, p50)
	}
}

func TestLatencyHistogramMeanApproximatesAverage(t *testing.T) {
	h := NewLatencyHistogram()
	h.Record(100 * BucketWidth)
	h.Record(200 * BucketWidth)
	mean := h.Mean()
	want := 150 * BucketWidth
	diff := mean - want
	if diff < 0 {
		diff = -diff
	}
	if diff > BucketWidth {
		t.Errorf("Mean() = %v, want close to %v", mean, want)
	}
}

func TestOpKindString(t *testing.T) {
	cases := map[OpKind]string{OpSearch: "search", OpInsert: "insert", OpRangeQuery: "range_query"}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", k, got, want)
		}
	}
}
