// Package indexcache implements the client-local cache of internal-node
// contents that lets a traversal skip a remote read for nodes near the
// root: NormalCache in the original design. Two variants are provided
// behind the same Cache interface — RadixCache, a trie with one node per
// key byte consumed so far (not path-compressed), and FlatCache, a
// byte-prefix string keyed hash
// map closer to the original's tbb::concurrent_unordered_map — so a
// Tree can be configured to trade lookup shape for memory locality.
//
// Neither variant talks to any remote memory node: a cache entry is
// always a client-local *copy* of node data, validated against the
// authoritative remote copy (by rev_ptr and header depth, see
// node.InternalPage.IsValid) before a traversal trusts it.
package indexcache

import (
	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/key"
	"github.com/dmemtree/smarttree/node"
)

// SafelyFreeEpoch computes the deferred-reclamation queue size
// (safely_free_epoch in the original). Neither cache variant consults it:
// an invalidated or evicted *Entry is simply dropped from the cache and
// left to the Go garbage collector, so a reader still holding it keeps
// seeing valid data.
func SafelyFreeEpoch(maxAppThread, maxCoroNum int) int {
	return 2 * maxAppThread * maxCoroNum
}

// Entry is a client-local snapshot of one remote internal node: the depth
// it was cached at (header depth + partial len, i.e. the number of key
// bytes already consumed reaching it) and its full entry array.
type Entry struct {
	Depth   int
	Addr    gaddr.Addr
	Records [node.PageSlots]node.InternalEntry
}

// NewEntry builds an Entry snapshot from a freshly-read InternalPage.
func NewEntry(p *node.InternalPage, addr gaddr.Addr) *Entry {
	e := &Entry{Depth: p.Hdr.Depth() + p.Hdr.PartialLen(), Addr: addr}
	e.Records = p.Entries
	return e
}

// Handle is an opaque reference returned by a cache lookup, threaded back
// into Invalidate when the entry it names turns out to be stale.
type Handle interface {
	entry() *Entry
}

// Cache is the interface RadixCache and FlatCache both satisfy.
type Cache interface {
	// Add records node data read while resolving k, addressed at addr,
	// keyed by k's first p.Hdr.Depth()+p.Hdr.PartialLen() bytes, for future
	// lookups to reuse.
	Add(k key.Key, p *node.InternalPage, addr gaddr.Addr)

	// Lookup returns the deepest cached Entry that is a prefix of k, or
	// nil if nothing is cached along k's path.
	Lookup(k key.Key) (Handle, *Entry)

	// Invalidate evicts h, e.g. after a traversal discovers the entry's
	// rev_ptr no longer matches the authoritative remote copy.
	Invalidate(h Handle)

	// Len reports how many entries are currently cached.
	Len() int
}
