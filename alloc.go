package smarttree

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmemtree/smarttree/chunkalloc"
	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/node"
)

// nodePool is one memory node's local bump allocator plus the mutex
// guarding it. chunkalloc.Allocator is documented as owned by one
// app-thread/coroutine pair and not safe for concurrent use — this Tree
// simplifies that to one shared pool per memory node, guarded explicitly,
// rather than threading a per-coroutine-slot allocator set through every
// call. That trade favors a small, reviewable reference implementation
// over exactly reproducing the original's per-thread allocator sharding.
type nodePool struct {
	mu    sync.Mutex
	alloc *chunkalloc.Allocator
}

// grant asks the remote allocator for one more chunk on nodeID and feeds
// it to a.
func (t *Tree) grant(ctx context.Context, nodeID uint16, a *chunkalloc.Allocator) error {
	base, _, err := t.allocator.Malloc(ctx, nodeID, 0)
	if err != nil {
		return fmt.Errorf("smarttree: chunk grant for node %d: %w", nodeID, err)
	}
	a.SetChunk(base)
	return nil
}

func (t *Tree) poolFor(nodeID uint16) *nodePool {
	t.poolsMu.Lock()
	defer t.poolsMu.Unlock()
	p, ok := t.pools[nodeID]
	if !ok {
		p = &nodePool{alloc: chunkalloc.New()}
		t.pools[nodeID] = p
	}
	return p
}

// allocBytes bump-allocates size bytes (optionally chunk-aligned) on
// nodeID, requesting a fresh chunk grant when the local pool is
// exhausted.
func (t *Tree) allocBytes(ctx context.Context, nodeID uint16, size uint64, align bool) (gaddr.Addr, error) {
	p := t.poolFor(nodeID)
	p.mu.Lock()
	defer p.mu.Unlock()
	addr, needChunk := p.alloc.Malloc(size, align)
	if !needChunk {
		return addr, nil
	}
	if err := t.grant(ctx, nodeID, p.alloc); err != nil {
		return gaddr.Null, err
	}
	addr, needChunk = p.alloc.Malloc(size, align)
	if needChunk {
		return gaddr.Null, fmt.Errorf("smarttree: allocation of %d bytes on node %d still needs a chunk after a grant", size, nodeID)
	}
	return addr, nil
}

// freeBytes returns size bytes at addr to its node's local free list,
// never issuing a remote free (pages/leaves are exclusively owned by the
// memory node that allocated them; see spec §3's ownership rules).
func (t *Tree) freeBytes(addr gaddr.Addr, size uint64) {
	p := t.poolFor(addr.NodeID())
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alloc.Free(addr, size)
}

// pickNode chooses which memory node a new page/leaf lands on. The
// original design distributes allocations across memory nodes by
// directory hashing; here a simple round-robin over MemoryNodeNum serves
// the same "spread load across nodes" purpose without needing a
// directory-service abstraction this module doesn't otherwise model.
func (t *Tree) pickNode() uint16 {
	n := t.placementCounter.Add(1)
	return uint16(n % uint64(t.cfg.MemoryNodeNum))
}

// allocLeaf bump-allocates one node.LeafSize record on a chosen memory
// node, aligned to the chunk allocator's alignment granularity so its
// packed address (stored in a leaf InternalEntry) is representable.
func (t *Tree) allocLeaf(ctx context.Context) (gaddr.Addr, error) {
	return t.allocBytes(ctx, t.pickNode(), uint64(node.LeafSize), true)
}

// allocPage bump-allocates one node.AllocAlignPageSize record, aligned to
// the chunk allocator's alignment granularity so its packed address is
// representable.
func (t *Tree) allocPage(ctx context.Context) (gaddr.Addr, error) {
	return t.allocBytes(ctx, t.pickNode(), uint64(node.AllocAlignPageSize), true)
}
