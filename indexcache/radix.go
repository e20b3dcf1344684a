package indexcache

import (
	"sync"

	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/key"
	"github.com/dmemtree/smarttree/node"
)

// radixNode is one trie node: prefix holds the single key byte this node
// consumes beyond its parent, entry is non-nil when a cached Entry ends
// exactly here, and children fans out on the next key byte. Nodes are not
// path-compressed: a chain of single-child nodes is never merged, and no
// node is ever split.
type radixNode struct {
	prefix   []byte
	entry    *Entry
	children map[byte]*radixNode
}

func newRadixNode(prefix []byte) *radixNode {
	return &radixNode{prefix: prefix, children: make(map[byte]*radixNode)}
}

// radixHandle names a RadixCache entry by the trie node it lives on.
type radixHandle struct {
	n *radixNode
}

func (h *radixHandle) entry() *Entry { return h.n.entry }

// RadixCache is a trie cache keyed directly by key bytes, one trie node
// per key byte (no path compression), holding cached node snapshots
// instead of remote pages.
type RadixCache struct {
	mu    sync.RWMutex
	root  *radixNode
	fifo  []*radixNode
	count int

	maxEntries int
}

// NewRadix builds a RadixCache holding at most maxEntries live entries.
func NewRadix(maxEntries int) *RadixCache {
	return &RadixCache{root: newRadixNode(nil), maxEntries: maxEntries}
}

func (c *RadixCache) Add(k key.Key, p *node.InternalPage, addr gaddr.Addr) {
	e := NewEntry(p, addr)
	path := k.Bytes()[:e.Depth]

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.root
	for _, b := range path {
		child, ok := cur.children[b]
		if !ok {
			child = newRadixNode([]byte{b})
			cur.children[b] = child
		}
		cur = child
	}
	if cur.entry == nil {
		if c.count >= c.maxEntries {
			c.evictLocked()
		}
		c.count++
	}
	cur.entry = e
	c.fifo = append(c.fifo, cur)
}

func (c *RadixCache) Lookup(k key.Key) (Handle, *Entry) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cur := c.root
	var deepest *radixNode
	full := k.Bytes()
	for _, b := range full {
		child, ok := cur.children[b]
		if !ok {
			break
		}
		cur = child
		if cur.entry != nil {
			deepest = cur
		}
	}
	if deepest == nil {
		return nil, nil
	}
	return &radixHandle{n: deepest}, deepest.entry
}

func (c *RadixCache) Invalidate(h Handle) {
	rh, ok := h.(*radixHandle)
	if !ok || rh == nil || rh.n.entry == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rh.n.entry = nil
	c.count--
}

func (c *RadixCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// evictLocked drops the oldest still-populated FIFO entry, skipping
// nodes already invalidated by a prior Invalidate call.
func (c *RadixCache) evictLocked() {
	for len(c.fifo) > 0 {
		n := c.fifo[0]
		c.fifo = c.fifo[1:]
		if n.entry != nil {
			n.entry = nil
			c.count--
			return
		}
	}
}
