// Package telemetry is the Go stand-in for the original's scattered
// per-thread global counter arrays and the LATENCY_WINDOWS histogram
// declared in Common.h — here gathered behind one Counters type keyed by
// corort.Slot instead of by raw pthread/coroutine id, since a Runtime's
// slots already are the unit of "thread-local" in this port.
package telemetry

import (
	"sync/atomic"

	"github.com/dmemtree/smarttree/node"
)

// RetryReason enumerates why a traversal step had to retry, mirroring the
// switch-case flags threaded through the original's Tree::search /
// Tree::insert retry loops (CAS_NULL, INVALID_LEAF, CAS_LEAF,
// INVALID_NODE, SPLIT_HEADER, FIND_NEXT, CAS_EMPTY,
// INSERT_BEHIND_EMPTY, INSERT_BEHIND_TRY_NEXT, SWITCH_RETRY,
// SWITCH_FIND_TARGET).
type RetryReason uint8

const (
	FirstTry RetryReason = iota
	CASNull
	InvalidLeaf
	CASLeaf
	InvalidNode
	SplitHeader
	FindNext
	CASEmpty
	InsertBehindEmpty
	InsertBehindTryNext
	SwitchRetry
	SwitchFindTarget

	numRetryReasons
)

func (r RetryReason) String() string {
	switch r {
	case FirstTry:
		return "first_try"
	case CASNull:
		return "cas_null"
	case InvalidLeaf:
		return "invalid_leaf"
	case CASLeaf:
		return "cas_leaf"
	case InvalidNode:
		return "invalid_node"
	case SplitHeader:
		return "split_header"
	case FindNext:
		return "find_next"
	case CASEmpty:
		return "cas_empty"
	case InsertBehindEmpty:
		return "insert_behind_empty"
	case InsertBehindTryNext:
		return "insert_behind_try_next"
	case SwitchRetry:
		return "switch_retry"
	case SwitchFindTarget:
		return "switch_find_target"
	default:
		return "unknown"
	}
}

// OpKind distinguishes the operations whose try/handover counts are kept
// separately, the analog of the original's per-op (search vs. insert)
// counter pairs.
type OpKind uint8

const (
	OpSearch OpKind = iota
	OpInsert
	OpRangeQuery

	numOpKinds
)

func (k OpKind) String() string {
	switch k {
	case OpSearch:
		return "search"
	case OpInsert:
		return "insert"
	case OpRangeQuery:
		return "range_query"
	default:
		return "unknown"
	}
}

// perSlot holds one corort.Slot's counters. All fields are atomics so a
// Counters can be read concurrently with the slot that owns it (e.g. a
// Statistics() call racing live traffic), matching how the original's
// per-thread arrays were read by a separate monitor thread without extra
// synchronization.
type perSlot struct {
	cacheHit, cacheMiss   atomic.Uint64
	lockFail              atomic.Uint64
	tryCnt, handoverCnt   [numOpKinds]atomic.Uint64
	retryCnt              [numRetryReasons]atomic.Uint64
	nodeTypeReads         [8]atomic.Uint64 // indexed by node.NodeType (0 = NodeDeleted, unused)
}

// Counters is the full set of per-slot counter arrays for one Tree,
// sized for a fixed number of corort slots at construction — the analog
// of the original's file-scope arrays sized by MAX_APP_THREAD *
// MAX_CORO_NUM.
type Counters struct {
	slots []perSlot
}

// NewCounters allocates Counters for numSlots corort slots.
func NewCounters(numSlots int) *Counters {
	return &Counters{slots: make([]perSlot, numSlots)}
}

func (c *Counters) slot(i int) *perSlot {
	return &c.slots[i]
}

// CacheHit / CacheMiss record an indexcache.Cache.Lookup outcome for slot.
func (c *Counters) CacheHit(slot int)  { c.slot(slot).cacheHit.Add(1) }
func (c *Counters) CacheMiss(slot int) { c.slot(slot).cacheMiss.Add(1) }

// LockFail records one remote lock attempt (a CAS-mask on a leaf or entry
// lock bit) that found the lock already held.
func (c *Counters) LockFail(slot int) { c.slot(slot).lockFail.Add(1) }

// Try records one attempt (successful or not) at op for slot.
func (c *Counters) Try(slot int, op OpKind) { c.slot(slot).tryCnt[op].Add(1) }

// Handover records that op's local lock was handed over rather than
// independently re-acquired, the win case locktable exists for.
func (c *Counters) Handover(slot int, op OpKind) { c.slot(slot).handoverCnt[op].Add(1) }

// Retry records why a traversal step retried.
func (c *Counters) Retry(slot int, reason RetryReason) { c.slot(slot).retryCnt[reason].Add(1) }

// NodeRead records a remote read of an internal node of the given type.
func (c *Counters) NodeRead(slot int, t node.NodeType) {
	if int(t) < len(c.slot(slot).nodeTypeReads) {
		c.slot(slot).nodeTypeReads[t].Add(1)
	}
}

// Snapshot is a point-in-time, slot-summed view of Counters, returned by
// Tree.Statistics() to callers outside the hot path.
type Snapshot struct {
	CacheHit, CacheMiss uint64
	LockFail            uint64
	TryCnt, HandoverCnt map[OpKind]uint64
	RetryCnt            map[RetryReason]uint64
	NodeTypeReads       map[node.NodeType]uint64
}

// Snapshot sums every slot's counters into one aggregate view.
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		TryCnt:        make(map[OpKind]uint64, numOpKinds),
		HandoverCnt:   make(map[OpKind]uint64, numOpKinds),
		RetryCnt:      make(map[RetryReason]uint64, numRetryReasons),
		NodeTypeReads: make(map[node.NodeType]uint64),
	}
	for i := range c.slots {
		sl := &c.slots[i]
		s.CacheHit += sl.cacheHit.Load()
		s.CacheMiss += sl.cacheMiss.Load()
		s.LockFail += sl.lockFail.Load()
		for op := OpKind(0); op < numOpKinds; op++ {
			s.TryCnt[op] += sl.tryCnt[op].Load()
			s.HandoverCnt[op] += sl.handoverCnt[op].Load()
		}
		for r := RetryReason(0); r < numRetryReasons; r++ {
			s.RetryCnt[r] += sl.retryCnt[r].Load()
		}
		for nt, counter := range sl.nodeTypeReads {
			if v := counter.Load(); v > 0 {
				s.NodeTypeReads[node.NodeType(nt)] += v
			}
		}
	}
	return s
}
