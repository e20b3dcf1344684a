package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/dmemtree/smarttree/chunkalloc"
	"github.com/dmemtree/smarttree/gaddr"
)

// nodeMemory is one simulated memory node's two address spaces. A single
// mutex serializes every verb against this node, which is stronger than
// a real one-sided-RDMA NIC provides (distinct addresses never actually
// contend there) but keeps Loopback simple and trivially race-free, which
// is what it exists for: exercising Tree logic in tests without a real
// RDMA fabric.
type nodeMemory struct {
	mu     sync.Mutex
	main   []byte
	onChip []byte
}

const loopbackOnChipSize = 1 << 20 // 1 MiB of simulated on-chip lock memory per node

func newNodeMemory(size int) *nodeMemory {
	return &nodeMemory{main: make([]byte, size), onChip: make([]byte, loopbackOnChipSize)}
}

func (n *nodeMemory) space(s Space) []byte {
	if s == SpaceOnChip {
		return n.onChip
	}
	return n.main
}

// Loopback is an in-process Transport backing every memory node with a
// plain byte slice, guarded by per-node locking instead of real RDMA
// hardware. It also implements Allocator directly, handing out whole
// chunkalloc.ChunkSize chunks by bumping a per-node offset — the
// reference "directory thread" every chunkalloc.Allocator ultimately
// calls into once its local chunk is exhausted.
type Loopback struct {
	nodes   []*nodeMemory
	mu      sync.Mutex
	nextPos []uint64 // next unhanded chunk offset per node, guarded by mu
}

// NewLoopback builds a Loopback with numNodes memory nodes, each
// spaceSize bytes of main-space storage.
func NewLoopback(numNodes int, spaceSize int) *Loopback {
	l := &Loopback{nodes: make([]*nodeMemory, numNodes), nextPos: make([]uint64, numNodes)}
	for i := range l.nodes {
		l.nodes[i] = newNodeMemory(spaceSize)
	}
	return l
}

func (l *Loopback) node(a gaddr.Addr) (*nodeMemory, error) {
	id := int(a.NodeID())
	if id < 0 || id >= len(l.nodes) {
		return nil, fmt.Errorf("transport: node id %d out of range [0,%d)", id, len(l.nodes))
	}
	return l.nodes[id], nil
}

func (l *Loopback) Read(_ context.Context, space Space, addr gaddr.Addr, size int) ([]byte, error) {
	n, err := l.node(addr)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	buf := n.space(space)
	off := addr.Offset()
	if off+uint64(size) > uint64(len(buf)) {
		return nil, fmt.Errorf("transport: read [%d,%d) out of bounds (len %d)", off, off+uint64(size), len(buf))
	}
	out := make([]byte, size)
	copy(out, buf[off:off+uint64(size)])
	return out, nil
}

func (l *Loopback) Write(_ context.Context, space Space, addr gaddr.Addr, data []byte) error {
	n, err := l.node(addr)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	buf := n.space(space)
	off := addr.Offset()
	if off+uint64(len(data)) > uint64(len(buf)) {
		return fmt.Errorf("transport: write [%d,%d) out of bounds (len %d)", off, off+uint64(len(data)), len(buf))
	}
	copy(buf[off:], data)
	return nil
}

func (l *Loopback) CAS(_ context.Context, space Space, addr gaddr.Addr, old, new uint64) (bool, error) {
	n, err := l.node(addr)
	if err != nil {
		return false, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	cur := readWordLocked(n, space, addr)
	if cur != old {
		return false, nil
	}
	writeWordLocked(n, space, addr, new)
	return true, nil
}

func (l *Loopback) CASMask(_ context.Context, space Space, addr gaddr.Addr, old, new, mask uint64) (bool, error) {
	n, err := l.node(addr)
	if err != nil {
		return false, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	cur := readWordLocked(n, space, addr)
	if cur&mask != old&mask {
		return false, nil
	}
	writeWordLocked(n, space, addr, (cur &^ mask) | (new & mask))
	return true, nil
}

func (l *Loopback) FAABoundary(_ context.Context, space Space, addr gaddr.Addr, addVal uint64, mask uint64) (uint64, error) {
	n, err := l.node(addr)
	if err != nil {
		return 0, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	cur := readWordLocked(n, space, addr)
	sum := ((cur & mask) + addVal) & mask
	writeWordLocked(n, space, addr, (cur&^mask)|sum)
	return cur, nil
}

func (l *Loopback) ReadBatch(ctx context.Context, ops []ReadOp) ([][]byte, error) {
	out := make([][]byte, len(ops))
	for i, op := range ops {
		data, err := l.Read(ctx, op.Space, op.Addr, op.Size)
		if err != nil {
			return nil, err
		}
		out[i] = data
	}
	return out, nil
}

func (l *Loopback) WriteBatch(ctx context.Context, ops []WriteOp) error {
	for _, op := range ops {
		if err := l.Write(ctx, op.Space, op.Addr, op.Data); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loopback) CASRead(ctx context.Context, cas CASOp, read ReadOp) (bool, []byte, error) {
	swapped, err := l.CAS(ctx, cas.Space, cas.Addr, cas.Old, cas.New)
	if err != nil || !swapped {
		return swapped, nil, err
	}
	data, err := l.Read(ctx, read.Space, read.Addr, read.Size)
	return swapped, data, err
}

func (l *Loopback) ReadCAS(ctx context.Context, read ReadOp, cas CASOp) ([]byte, bool, error) {
	data, err := l.Read(ctx, read.Space, read.Addr, read.Size)
	if err != nil {
		return nil, false, err
	}
	swapped, err := l.CAS(ctx, cas.Space, cas.Addr, cas.Old, cas.New)
	return data, swapped, err
}

func (l *Loopback) CASWrite(ctx context.Context, cas CASOp, write WriteOp) (bool, error) {
	swapped, err := l.CAS(ctx, cas.Space, cas.Addr, cas.Old, cas.New)
	if err != nil || !swapped {
		return swapped, err
	}
	return swapped, l.Write(ctx, write.Space, write.Addr, write.Data)
}

func (l *Loopback) WriteCAS(ctx context.Context, write WriteOp, cas CASOp) (bool, error) {
	if err := l.Write(ctx, write.Space, write.Addr, write.Data); err != nil {
		return false, err
	}
	return l.CAS(ctx, cas.Space, cas.Addr, cas.Old, cas.New)
}

func (l *Loopback) WriteCASMask(ctx context.Context, write WriteOp, cas CASMaskOp) (bool, error) {
	if err := l.Write(ctx, write.Space, write.Addr, write.Data); err != nil {
		return false, err
	}
	return l.CASMask(ctx, cas.Space, cas.Addr, cas.Old, cas.New, cas.Mask)
}

func (l *Loopback) WriteFAA(ctx context.Context, write WriteOp, faa FAAOp) (uint64, error) {
	if err := l.Write(ctx, write.Space, write.Addr, write.Data); err != nil {
		return 0, err
	}
	return l.FAABoundary(ctx, faa.Space, faa.Addr, faa.AddVal, faa.Mask)
}

func (l *Loopback) TwoCASMask(ctx context.Context, first, second CASMaskOp) (bool, bool, error) {
	firstSwapped, err := l.CASMask(ctx, first.Space, first.Addr, first.Old, first.New, first.Mask)
	if err != nil {
		return false, false, err
	}
	secondSwapped, err := l.CASMask(ctx, second.Space, second.Addr, second.Old, second.New, second.Mask)
	return firstSwapped, secondSwapped, err
}

// Poll, PollOnce and PollBatch are no-ops: every Loopback verb above
// already blocks to completion, so there is never anything outstanding
// to wait for.
func (l *Loopback) Poll(_ context.Context, count int) (int, error) { return count, nil }

func (l *Loopback) PollOnce(_ context.Context) (uint64, bool, error) { return 0, false, nil }

func (l *Loopback) PollBatch(_ context.Context, _ int) ([]uint64, error) { return nil, nil }

// Malloc implements Allocator by bumping a per-node offset counter,
// handing out non-overlapping chunkalloc.ChunkSize regions.
func (l *Loopback) Malloc(_ context.Context, node uint16, _ int) (gaddr.Addr, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if int(node) >= len(l.nodes) {
		return gaddr.Null, 0, fmt.Errorf("transport: node id %d out of range", node)
	}
	base := l.nextPos[node]
	if base+chunkalloc.ChunkSize > uint64(len(l.nodes[node].main)) {
		return gaddr.Null, 0, ErrAllocationFailed
	}
	l.nextPos[node] = base + chunkalloc.ChunkSize
	return gaddr.Make(node, base), chunkalloc.ChunkSize, nil
}

func readWordLocked(n *nodeMemory, space Space, addr gaddr.Addr) uint64 {
	buf := n.space(space)
	off := addr.Offset()
	return binary.LittleEndian.Uint64(buf[off : off+8])
}

func writeWordLocked(n *nodeMemory, space Space, addr gaddr.Addr, v uint64) {
	buf := n.space(space)
	off := addr.Offset()
	binary.LittleEndian.PutUint64(buf[off:off+8], v)
}
