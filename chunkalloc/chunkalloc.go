// Package chunkalloc implements the client-local, non-thread-safe
// log-structured bump allocator each (app thread, coroutine) pair keeps
// for one remote memory node: it hands out offsets from the tail of the
// current chunk and falls back to a caller-supplied RPC when the chunk
// runs out, exactly like LocalAllocator in the original design. There is
// no server-side allocator; all bookkeeping lives here.
package chunkalloc

import "github.com/dmemtree/smarttree/gaddr"

// ChunkSize is the size of a single remotely-allocated chunk (kChunkSize).
const ChunkSize = 16 * 1024 * 1024

type freeEntry struct {
	addr gaddr.Addr
	size uint64
}

// Allocator is a single-threaded bump allocator over one remote memory
// node's address space. Callers (one per app-thread/coroutine pair) each
// own their own Allocator; nothing here is safe for concurrent use, by
// design — the whole point is to avoid any cross-thread coordination on
// the hot allocation path.
type Allocator struct {
	head     gaddr.Addr // start of the current chunk, Null before the first chunk
	cur      gaddr.Addr // bump pointer within the current chunk
	freeList []freeEntry
}

// New returns an Allocator with no chunk yet claimed; the first Malloc
// call will report needChunk and the caller must SetChunk before
// retrying.
func New() *Allocator {
	return &Allocator{head: gaddr.Null, cur: gaddr.Null}
}

// Malloc reserves size bytes, rounding the bump pointer up to
// gaddr.AllocAlignBits first when align is true. If the current chunk
// doesn't have room, Malloc first tries the free list (a size-fitting
// entry previously returned via Free) and otherwise reports needChunk so
// the caller can fetch a fresh chunk (via the tree's chunk-allocation RPC)
// and retry through SetChunk.
func (a *Allocator) Malloc(size uint64, align bool) (addr gaddr.Addr, needChunk bool) {
	if align {
		a.cur = roundUp(a.cur)
	}
	res := a.cur
	if a.head == gaddr.Null || a.cur.Offset()+size > a.head.Offset()+ChunkSize {
		needChunk = true
	} else {
		a.cur = gaddr.Add(a.cur, int64(size))
		return res, false
	}

	for i, e := range a.freeList {
		if e.size >= size {
			a.freeList = append(a.freeList[:i], a.freeList[i+1:]...)
			return e.addr, false
		}
	}
	return res, true
}

// SetChunk installs addr as the start of a freshly-allocated chunk,
// resetting the bump pointer to its start.
func (a *Allocator) SetChunk(addr gaddr.Addr) {
	a.head = addr
	a.cur = addr
}

// Free returns a previously-allocated region to the free list for reuse
// by a later Malloc of equal or smaller size — this allocator never
// actually releases memory back to the remote node, matching the
// original's log-structured, non-reclaiming design.
func (a *Allocator) Free(addr gaddr.Addr, size uint64) {
	a.freeList = append(a.freeList, freeEntry{addr: addr, size: size})
}

func roundUp(a gaddr.Addr) gaddr.Addr {
	const align = 1 << gaddr.AllocAlignBits
	off := a.Offset()
	rounded := (off + align - 1) &^ (align - 1)
	return gaddr.Add(a, int64(rounded-off))
}
