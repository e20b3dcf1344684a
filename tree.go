// Package smarttree implements the client side of a disaggregated,
// ordered key-value index: an Adaptive Radix Tree whose pages live in
// remote memory and are mutated with one-sided read/write/CAS/FAA verbs
// against a transport.Transport. There is no server-side index logic —
// every structural change, coordination decision, and cache policy is
// driven from here.
package smarttree

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dmemtree/smarttree/chunkalloc"
	"github.com/dmemtree/smarttree/corort"
	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/indexcache"
	"github.com/dmemtree/smarttree/key"
	"github.com/dmemtree/smarttree/locktable"
	"github.com/dmemtree/smarttree/node"
	"github.com/dmemtree/smarttree/telemetry"
	"github.com/dmemtree/smarttree/transport"
)

// RootPointerBase is the byte offset of tree id 0's root pointer slot
// inside memory node 0's main address space — half a chunk in, the same
// placement spec.md §6 specifies (addr = (node=0, offset = 16MiB/2 +
// 8*tree_id)).
const RootPointerBase = chunkalloc.ChunkSize / 2

// Value is the fixed-width payload stored at every leaf (VAL_LEN in the
// original design); 8 bytes is enough for a uint64 workload value and
// matches node.Leaf.Value.
type Value = [8]byte

// Tree is one client handle onto a disaggregated ART index. A Tree is
// safe for concurrent use by multiple goroutines; the only package-level
// state it touches is the remote memory graph and its own fields.
type Tree struct {
	transport transport.Transport
	allocator transport.Allocator
	cfg       Config
	treeID    uint16

	rootAddr gaddr.Addr

	cache indexcache.Cache // nil when Config.EnableCache is false
	locks *locktable.Table

	tel     *telemetry.Counters
	latency *telemetry.LatencyHistogram

	coro *corort.Runtime

	poolsMu sync.Mutex
	pools   map[uint16]*nodePool

	placementCounter atomic.Uint64
}

// NewTree opens a client handle for tree id treeID against t/alloc,
// ensuring the root pointer slot is initialized (CAS Null -> Null, a
// no-op write that also verifies the slot is reachable) per spec.md §3's
// "initialised to Null via CAS by node 0 at startup". Config.MemoryNodeNum
// must be set to the number of memory nodes t addresses.
func NewTree(ctx context.Context, tr transport.Transport, alloc transport.Allocator, treeID uint16, cfg Config) (*Tree, error) {
	if cfg.MemoryNodeNum == 0 {
		return nil, fmt.Errorf("smarttree: Config.MemoryNodeNum must be > 0")
	}
	cfg.scheme = cfg.nodeScheme()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 50
	}
	if cfg.NumCoroSlots <= 0 {
		cfg.NumCoroSlots = 8
	}

	t := &Tree{
		transport: tr,
		allocator: alloc,
		cfg:       cfg,
		treeID:    treeID,
		rootAddr:  gaddr.Make(0, RootPointerBase+8*uint64(treeID)),
		locks:     locktable.New(),
		tel:       telemetry.NewCounters(cfg.NumCoroSlots),
		latency:   telemetry.NewLatencyHistogram(),
		coro:      corort.New(cfg.NumCoroSlots),
		pools:     make(map[uint16]*nodePool),
	}

	if cfg.EnableCache {
		if cfg.CacheUseRadix {
			t.cache = indexcache.NewRadix(cfg.CacheCapacity)
		} else {
			t.cache = indexcache.NewFlat(cfg.CacheCapacity)
		}
	}

	if _, err := t.transport.CAS(ctx, transport.SpaceMain, t.rootAddr, 0, 0); err != nil {
		return nil, fmt.Errorf("smarttree: initializing root pointer for tree %d: %w", treeID, err)
	}
	return t, nil
}

// Close stops the Tree's coroutine runtime. It does not touch remote
// state: pages and leaves this client allocated remain live as long as
// something references them, per spec §3's ownership rules.
func (t *Tree) Close() {
	t.coro.Close()
}

// Statistics returns a point-in-time snapshot of this Tree's telemetry
// counters, summed across every corort slot.
func (t *Tree) Statistics() telemetry.Snapshot {
	return t.tel.Snapshot()
}

// Latency returns the Tree's latency histogram, populated by timeIt
// (remote.go) timing each transport verb it wraps.
func (t *Tree) Latency() *telemetry.LatencyHistogram {
	return t.latency
}

// Search looks up k, returning (value, true, nil) if present or (zero,
// false, nil) if absent. Transient structural conditions (CAS races,
// stale cache, CRC mismatch) are retried internally and never surface.
func (t *Tree) Search(ctx context.Context, k key.Key) (Value, bool, error) {
	return t.SearchOn(ctx, 0, k)
}

// Insert stores (k, v). With default options it is idempotent for an
// identical (k, v) pair; InsertOptions.Load suppresses rewriting an
// existing key's value, while InsertOptions.Update (the default) always
// rewrites it.
func (t *Tree) Insert(ctx context.Context, k key.Key, v Value, opts ...InsertOption) error {
	return t.InsertOn(ctx, 0, k, v, opts...)
}

// InsertOption configures one Insert call.
type InsertOption func(*insertOptions)

type insertOptions struct {
	update bool
	load   bool
}

// WithLoad marks this insert as a bulk-load: an existing key's value is
// left untouched rather than rewritten (is_load in the original design).
func WithLoad() InsertOption {
	return func(o *insertOptions) { o.load = true; o.update = false }
}

// WithUpdate marks this insert as an update: an existing key's value is
// always rewritten. This is the default behavior.
func WithUpdate() InsertOption {
	return func(o *insertOptions) { o.update = true; o.load = false }
}
