package indexcache

import (
	"sync"

	set3 "github.com/TomTonic/Set3"

	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/key"
	"github.com/dmemtree/smarttree/node"
)

// flatHandle names a FlatCache entry by its byte-prefix map key.
type flatHandle struct {
	prefix string
	e      *Entry
}

func (h *flatHandle) entry() *Entry { return h.e }

// FlatCache is a byte-prefix-keyed hash map cache with FIFO/second-chance
// eviction, the Go-native analog of NormalCache's
// tbb::concurrent_unordered_map<CacheKey, CacheEntry*>. A "second chance"
// bit on each entry is set whenever it's looked up again; eviction skips
// (and clears) that bit once before actually reclaiming the slot, so
// recently-reused entries survive one extra sweep.
type FlatCache struct {
	mu       sync.RWMutex
	byPrefix map[string]*flatEntry
	fifo     []string // insertion order, oldest first

	maxEntries int

	gcEpoch  int
	pending  *set3.Set3[string] // keys already queued for deferred reclamation, dedup guard
}

type flatEntry struct {
	entry        *Entry
	secondChance bool
}

// NewFlat builds a FlatCache holding at most maxEntries live entries
// before eviction kicks in.
func NewFlat(maxEntries int) *FlatCache {
	return &FlatCache{
		byPrefix:   make(map[string]*flatEntry),
		maxEntries: maxEntries,
		pending:    set3.Empty[string](),
	}
}

func prefixBytes(k key.Key, depth int) string {
	return string(k.Bytes()[:depth])
}

func (c *FlatCache) Add(k key.Key, p *node.InternalPage, addr gaddr.Addr) {
	e := NewEntry(p, addr)
	prefix := prefixBytes(k, e.Depth)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byPrefix[prefix]; !exists {
		if len(c.byPrefix) >= c.maxEntries {
			c.evictLocked()
		}
		c.fifo = append(c.fifo, prefix)
	}
	c.byPrefix[prefix] = &flatEntry{entry: e}
}

func (c *FlatCache) Lookup(k key.Key) (Handle, *Entry) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for depth := key.Len; depth > 0; depth-- {
		prefix := prefixBytes(k, depth)
		if fe, ok := c.byPrefix[prefix]; ok {
			fe.secondChance = true
			return &flatHandle{prefix: prefix, e: fe.entry}, fe.entry
		}
	}
	return nil, nil
}

func (c *FlatCache) Invalidate(h Handle) {
	fh, ok := h.(*flatHandle)
	if !ok || fh == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(fh.prefix)
}

func (c *FlatCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byPrefix)
}

// evictLocked implements second-chance FIFO eviction: walk the FIFO queue
// from its oldest end, clearing (and skipping) the first entry whose
// second-chance bit is set, reclaiming the first one that isn't.
func (c *FlatCache) evictLocked() {
	for len(c.fifo) > 0 {
		prefix := c.fifo[0]
		c.fifo = c.fifo[1:]
		fe, ok := c.byPrefix[prefix]
		if !ok {
			continue
		}
		if fe.secondChance {
			fe.secondChance = false
			c.fifo = append(c.fifo, prefix)
			continue
		}
		c.removeLocked(prefix)
		return
	}
}

// removeLocked drops prefix from the map and records it in the pending
// set, counting each newly recorded prefix in gcEpoch. Nothing drains the
// pending set; the *Entry itself is left to the Go garbage collector, so a
// reader holding it from a recent Lookup still sees valid data.
func (c *FlatCache) removeLocked(prefix string) {
	delete(c.byPrefix, prefix)
	if c.pending.Contains(prefix) {
		return
	}
	c.pending.Add(prefix)
	c.gcEpoch++
}
