package smarttree

import (
	"context"
	"time"

	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/node"
	"github.com/dmemtree/smarttree/transport"
)

// timeIt feeds op's wall-clock duration into the Tree's latency
// histogram, the Go-native home for what the original's coroutine runtime
// timestamped around every posted verb (see telemetry.LatencyHistogram's
// doc comment).
func (t *Tree) timeIt(fn func() error) error {
	start := time.Now()
	err := fn()
	t.latency.Record(time.Since(start))
	return err
}

func (t *Tree) readEntry(ctx context.Context, addr gaddr.Addr) (node.InternalEntry, error) {
	var e node.InternalEntry
	err := t.timeIt(func() error {
		buf, err := t.transport.Read(ctx, transport.SpaceMain, addr, node.EntrySize)
		if err != nil {
			return err
		}
		e = node.EntryFromUint64(leUint64(buf))
		return nil
	})
	return e, err
}

func (t *Tree) casEntry(ctx context.Context, addr gaddr.Addr, old, new node.InternalEntry) (bool, error) {
	var ok bool
	err := t.timeIt(func() error {
		var err error
		ok, err = t.transport.CAS(ctx, transport.SpaceMain, addr, old.Uint64(), new.Uint64())
		return err
	})
	return ok, err
}

func (t *Tree) readLeaf(ctx context.Context, addr gaddr.Addr) (*node.Leaf, error) {
	var l *node.Leaf
	err := t.timeIt(func() error {
		buf, err := t.transport.Read(ctx, transport.SpaceMain, addr, node.LeafSize)
		if err != nil {
			return err
		}
		l = node.DecodeLeaf(buf)
		return nil
	})
	return l, err
}

func (t *Tree) writeLeaf(ctx context.Context, addr gaddr.Addr, l *node.Leaf) error {
	return t.timeIt(func() error {
		return t.transport.Write(ctx, transport.SpaceMain, addr, l.Encode())
	})
}

// readPage reads exactly the bytes for numSlots worth of a node's
// declared capacity (spec §4.7.1 step 3a: "read the child page exactly
// the bytes for its declared node_type").
func (t *Tree) readPage(ctx context.Context, addr gaddr.Addr, numSlots int) (*node.InternalPage, error) {
	size := node.RevPtrSize + node.HeaderSize + numSlots*node.EntrySize
	var p *node.InternalPage
	err := t.timeIt(func() error {
		buf, err := t.transport.Read(ctx, transport.SpaceMain, addr, size)
		if err != nil {
			return err
		}
		p = node.DecodeInternalPage(buf)
		return nil
	})
	return p, err
}

// readPageTail reads the remainder of a page beyond the first numSlots
// entries, for when a header's actual node_type is larger than the
// parent entry claimed (spec §4.7.1 step 3a's "second read for the
// tail").
func (t *Tree) readPageTail(ctx context.Context, addr gaddr.Addr, fromSlot, toSlot int) ([]node.InternalEntry, error) {
	off := node.EntryOffset(fromSlot)
	size := (toSlot - fromSlot) * node.EntrySize
	var entries []node.InternalEntry
	err := t.timeIt(func() error {
		buf, err := t.transport.Read(ctx, transport.SpaceMain, gaddr.Add(addr, int64(off)), size)
		if err != nil {
			return err
		}
		entries = make([]node.InternalEntry, toSlot-fromSlot)
		for i := range entries {
			entries[i] = node.EntryFromUint64(leUint64(buf[i*node.EntrySize:]))
		}
		return nil
	})
	return entries, err
}

func (t *Tree) writePage(ctx context.Context, addr gaddr.Addr, p *node.InternalPage) error {
	return t.timeIt(func() error {
		return t.transport.Write(ctx, transport.SpaceMain, addr, p.Encode())
	})
}

// repairRevPtr fires a best-effort, fire-and-forget CAS to fix up a
// stale rev_ptr (spec §4.7.1 step 2a / §4.7.10): lost races are benign
// since readers always re-validate rev_ptr before trusting a cached
// entry. recordAddr is the page/leaf's own address — rev_ptr is always
// the first word of either encoding, so the CAS targets recordAddr
// directly.
func (t *Tree) repairRevPtr(recordAddr gaddr.Addr, observed, want gaddr.Addr) {
	go func() {
		_, _ = t.transport.CAS(context.Background(), transport.SpaceMain, recordAddr, uint64(observed), uint64(want))
	}()
}

func leUint64(buf []byte) uint64 {
	return uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24 |
		uint64(buf[4])<<32 | uint64(buf[5])<<40 | uint64(buf[6])<<48 | uint64(buf[7])<<56
}
