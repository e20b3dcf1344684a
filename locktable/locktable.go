// Package locktable implements the client-local coordination table every
// app thread consults before issuing a remote verb: LocalLockTable in the
// original design. There is no server-side lock manager anywhere in this
// protocol — all four coordination patterns here exist purely to let
// concurrent goroutines on the *same* client short-circuit redundant RDMA
// round-trips against the *same* remote key/address, by queueing behind
// whichever goroutine is already in flight and, when safe, piggybacking on
// its result instead of re-issuing the verb.
//
// The table is sized DefaultSlots (or NewSized's argument) and indexed by
// a Go-native hash/maphash digest of the key or address (the original's
// CityHash64 stand-in — see indexKey/indexAddr), so unrelated keys
// occasionally alias to the same
// slot; every acquire path below treats that as an ordinary conflict (the
// slot's "unique" owner fails the identity check) rather than a bug.
package locktable

import (
	"hash/maphash"
	"sync"
	"sync/atomic"

	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/key"
	"github.com/dmemtree/smarttree/node"
)

// MaxHOCLHandover caps how many consecutive releases of the same
// address-keyed lock may hand straight to the next waiter in the ticket
// queue without actually releasing the remote lock, bounding how long a
// popular hot page can starve the remote unlock.
const MaxHOCLHandover = 8

// KLocalLockNum names the original design's table size (kLocalLockNum):
// 4M slots, tuned for a multi-gigabyte RDMA deployment. It is kept here
// for documentation fidelity but is not the default Table size — see
// DefaultSlots.
const KLocalLockNum = 4 * 1024 * 1024

// DefaultSlots is the Table size New() uses: a trade-off between
// hash-collision rate and table memory that's practical for a single
// process rather than a multi-gigabyte disaggregated-memory cluster.
const DefaultSlots = 1 << 16

// Value is the fixed-width application value this protocol stores per
// leaf (simulatedValLen), carried through write-combining and handover.
type Value [8]byte

// Ticket is the value returned by an acquire call, threaded back into the
// matching release call; it carries which wait epoch the caller won.
//
// The original design packs the underlying ticket/current counters into a
// single byte each (relying on uint8 wraparound to bound the "window"
// math below). Here they're widened to a monotonically increasing
// uint32 per slot instead: correctness no longer depends on wraparound
// arithmetic, at the cost of 3 extra bytes per slot that nobody misses.
type Ticket struct {
	conflict bool // a different key/addr already owns this slot's epoch
	handover bool // caller can trust the slot's cached result without redoing the remote op
}

// Conflict reports whether this acquire detected a different key/address
// already occupying the slot's current epoch — the caller must perform
// its own remote operation and must not call the matching release path
// (the slot state belongs to the other epoch's owner).
func (t Ticket) Conflict() bool { return t.conflict }

// Handover reports whether the caller is a "loser" who can adopt the
// epoch winner's already-published result instead of redoing the remote
// verb.
func (t Ticket) Handover() bool { return t.handover }

type lockNode struct {
	mu sync.Mutex

	readCurrent atomic.Uint32
	readTicket  atomic.Uint32
	readHandover bool

	writeCurrent atomic.Uint32
	writeTicket  atomic.Uint32
	writeHandover bool

	windowStart atomic.Bool
	readWindow  int
	writeWindow int
	rMu, wMu    sync.Mutex

	uniqueReadKey  *key.Key
	uniqueWriteKey *key.Key
	uniqueAddr     gaddr.Addr

	res      bool
	retValue Value
	retEntry node.InternalEntry

	wcMu     sync.Mutex
	wcBuffer Value

	handoverCnt int

	cond *sync.Cond
}

// Table is the client-local lock table: one per app thread in the
// original design, but safe for concurrent use by many goroutines here
// since Go gives every goroutine equally cheap access to one shared table.
type Table struct {
	seed  maphash.Seed
	slots []lockNode
}

// New builds an empty Table with DefaultSlots slots.
func New() *Table {
	return NewSized(DefaultSlots)
}

// NewSized builds an empty Table with the given number of slots.
func NewSized(slots int) *Table {
	t := &Table{seed: maphash.MakeSeed(), slots: make([]lockNode, slots)}
	for i := range t.slots {
		t.slots[i].cond = sync.NewCond(&t.slots[i].mu)
	}
	return t
}

func (t *Table) indexKey(k key.Key) uint64 {
	var h maphash.Hash
	h.SetSeed(t.seed)
	h.Write(k.Bytes())
	return h.Sum64() % uint64(len(t.slots))
}

func (t *Table) indexAddr(a gaddr.Addr) uint64 {
	var h maphash.Hash
	h.SetSeed(t.seed)
	var buf [8]byte
	v := uint64(a)
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	h.Write(buf[:])
	return h.Sum64() % uint64(len(t.slots))
}

// waitForTicket blocks the calling goroutine until node's current counter for
// the given queue reaches ticket, using a condition variable instead of
// the original's coroutine-yield-into-a-busy-waiting-queue — the
// equivalent idiom once the caller is a goroutine rather than a stackful
// coroutine multiplexed onto a single OS thread.
func waitForTicket(n *lockNode, current *atomic.Uint32, ticket uint32) {
	for current.Load() != ticket {
		n.cond.L.Lock()
		if current.Load() != ticket {
			n.cond.Wait()
		}
		n.cond.L.Unlock()
	}
}

func advanceAndBroadcast(n *lockNode, current *atomic.Uint32) {
	current.Add(1)
	n.cond.L.Lock()
	n.cond.Broadcast()
	n.cond.L.Unlock()
}
