package smarttree

import (
	"context"
	"errors"

	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/key"
	"github.com/dmemtree/smarttree/node"
	"github.com/dmemtree/smarttree/transport"
)

// errNodeFull is the safety-valve error for a node that has filled all 256
// physical slots — it can't happen in practice (256 slots, 256 possible
// partial byte values, one child per value) but guards against an infinite
// scan if it somehow did.
var errNodeFull = errors.New("smarttree: node exhausted all physical slots")

// growAndInsertLeaf implements §4.7.7: the traversal found no empty slot
// within the node's declared capacity, so it walks the remaining physical
// slots up to node.PageSlots looking for one to claim with a fresh leaf
// (insert-behind), then grows the node's declared node_type to cover it.
// tailEntries holds the already-read entries for slots
// [tailStart, tailStart+len(tailEntries)); once those are exhausted,
// growAndInsertLeaf reads further physical slots directly.
func (t *Tree) growAndInsertLeaf(ctx context.Context, pageAddr gaddr.Addr, hdr node.Header, parentEntryAddr gaddr.Addr, parentEntry node.InternalEntry, tailEntries []node.InternalEntry, tailStart int, partial uint8, k key.Key, v Value) (filedSlot int, err error) {
	scheme := t.cfg.scheme
	art := t.cfg.EnableART

	slot := tailStart
	for slot < node.PageSlots {
		var e node.InternalEntry
		if i := slot - tailStart; i < len(tailEntries) {
			e = tailEntries[i]
		} else {
			e, err = t.readEntry(ctx, gaddr.Add(pageAddr, int64(node.EntryOffset(slot))))
			if err != nil {
				return -1, err
			}
		}
		if !e.IsNull() {
			slot++
			continue
		}

		slotAddr := gaddr.Add(pageAddr, int64(node.EntryOffset(slot)))
		leafAddr, aerr := t.allocLeaf(ctx)
		if aerr != nil {
			return -1, aerr
		}
		leaf := node.NewLeaf(k, v, slotAddr)
		if werr := t.writeLeaf(ctx, leafAddr, leaf); werr != nil {
			t.freeBytes(leafAddr, uint64(node.LeafSize))
			return -1, werr
		}

		newLeafEntry := node.NewLeafEntry(partial, 0, leafAddr)
		swapped, cerr := t.casEntry(ctx, slotAddr, node.NullEntry, newLeafEntry)
		if cerr != nil {
			t.freeBytes(leafAddr, uint64(node.LeafSize))
			return -1, cerr
		}
		if !swapped {
			// Someone else filed this slot first; the slot is no longer
			// empty, so try the next one.
			t.freeBytes(leafAddr, uint64(node.LeafSize))
			slot++
			continue
		}

		newType := node.NumToNodeType(slot+1, scheme, art)
		if newType != hdr.NodeType() {
			t.growNodeType(ctx, pageAddr, hdr, parentEntryAddr, parentEntry, newType)
		}
		return slot, nil
	}
	return -1, errNodeFull
}

// growNodeType CAS-masks the node's header and its parent entry's
// node_type field in one round trip (Transport.TwoCASMask), so a reader
// mid-traversal never observes the entry claiming a wider capacity than
// the header it points at (or vice versa) for longer than one verb.
//
// Either half losing its race is tolerated: a lost header CAS means a
// concurrent grower already advanced node_type at least this far, and a
// lost entry CAS means whoever holds the current entry will retry and
// observe a node_type at least covering the slot this caller just filed.
// Neither failure needs to be retried here — the occupied slot itself is
// already durable.
func (t *Tree) growNodeType(ctx context.Context, pageAddr gaddr.Addr, hdr node.Header, parentEntryAddr gaddr.Addr, parentEntry node.InternalEntry, newType node.NodeType) {
	headerAddr := gaddr.Add(pageAddr, int64(node.HeaderOffset))
	first := transport.CASMaskOp{
		Space: transport.SpaceMain,
		Addr:  headerAddr,
		Old:   hdr.Uint64(),
		New:   hdr.WithNodeType(newType).Uint64(),
		Mask:  node.HeaderNodeTypeMask,
	}
	second := transport.CASMaskOp{
		Space: transport.SpaceMain,
		Addr:  parentEntryAddr,
		Old:   parentEntry.Uint64(),
		New:   parentEntry.WithNodeType(newType).Uint64(),
		Mask:  node.EntryNodeTypeMask,
	}
	_, _, _ = t.transport.TwoCASMask(ctx, first, second)
}
