package smarttree

import (
	"context"

	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/key"
	"github.com/dmemtree/smarttree/node"
	"github.com/dmemtree/smarttree/transport"
)

// forkChild describes one of the two children a newly created fork node
// (the innermost node built by buildFork) files under a selector byte:
// either a brand-new leaf for the key being inserted, or an existing
// leaf/node entry being re-filed unchanged at a new address-relative slot.
type forkChild struct {
	partial   uint8
	isNewLeaf bool
	leafKey   key.Key
	leafVal   Value
	existing  node.InternalEntry // valid when !isNewLeaf
}

// buildFork implements the shared machinery behind leaf split (§4.7.5)
// and header split (§4.7.6): both need "allocate path-compressed node(s)
// covering a common run of bytes, ending in one node that forks into two
// children" (out-of-place node creation, §4.7.8). commonLen bytes of
// compressed path starting at depth are split across
// ceil(commonLen/(MaxPartialLen+1)) chained nodes, each holding up to
// node.MaxPartialLen header bytes; the innermost node holds childA/childB
// at the two selector bytes the caller computed.
//
// parentAddr is the address of the entry slot the caller will eventually
// CAS (old -> the returned head entry); it becomes the outermost new
// node's rev_ptr. On success the caller still owns repairing the
// untouched child's (the "existing" one's) rev_ptr — buildFork only wires
// the fresh chain.
func (t *Tree) buildFork(ctx context.Context, k key.Key, parentAddr gaddr.Addr, depth, commonLen int, childA, childB forkChild) (head node.InternalEntry, pageAddrs []gaddr.Addr, newLeafAddr gaddr.Addr, err error) {
	scheme := t.cfg.scheme
	art := t.cfg.EnableART

	type seg struct {
		depth, len int
	}
	var segs []seg
	curDepth := depth
	remaining := commonLen
	for remaining > node.MaxPartialLen {
		segs = append(segs, seg{depth: curDepth, len: node.MaxPartialLen})
		curDepth += node.MaxPartialLen + 1
		remaining -= node.MaxPartialLen + 1
	}
	finalDepth := curDepth
	finalLen := remaining

	pageAddrs = make([]gaddr.Addr, len(segs)+1)
	for i := range pageAddrs {
		addr, aerr := t.allocPage(ctx)
		if aerr != nil {
			t.freePages(pageAddrs[:i])
			return 0, nil, gaddr.Null, aerr
		}
		pageAddrs[i] = addr
	}
	finalAddr := pageAddrs[len(pageAddrs)-1]

	resolve := func(c forkChild, slot int) (node.InternalEntry, error) {
		if !c.isNewLeaf {
			return c.existing.WithPartial(c.partial), nil
		}
		addr, aerr := t.allocLeaf(ctx)
		if aerr != nil {
			return 0, aerr
		}
		leaf := node.NewLeaf(c.leafKey, c.leafVal, gaddr.Add(finalAddr, int64(node.EntryOffset(slot))))
		if werr := t.writeLeaf(ctx, addr, leaf); werr != nil {
			t.freeBytes(addr, uint64(node.LeafSize))
			return 0, werr
		}
		newLeafAddr = addr
		return node.NewLeafEntry(c.partial, 0, addr), nil
	}

	entryA, err := resolve(childA, 0)
	if err != nil {
		t.freePages(pageAddrs)
		return 0, nil, gaddr.Null, err
	}
	entryB, err := resolve(childB, 1)
	if err != nil {
		t.freePages(pageAddrs)
		t.freeNewLeaf(newLeafAddr)
		return 0, nil, gaddr.Null, err
	}

	finalType := node.NumToNodeType(2, scheme, art)
	finalPage := node.NewInternalPage(k, finalLen, finalDepth, finalType, gaddr.Null)
	finalPage.Entries[0] = entryA
	finalPage.Entries[1] = entryB

	pages := make([]*node.InternalPage, len(segs)+1)
	pages[len(pages)-1] = finalPage
	nextAddr := finalAddr
	nextType := finalType
	for i := len(segs) - 1; i >= 0; i-- {
		s := segs[i]
		linkByte := key.Partial(k, s.depth+node.MaxPartialLen+1)
		p := node.NewInternalPage(k, s.len, s.depth, node.NumToNodeType(1, scheme, art), gaddr.Null)
		p.Entries[0] = node.NewNodeEntry(linkByte, nextType, nextAddr)
		pages[i] = p
		nextAddr = pageAddrs[i]
		nextType = node.NumToNodeType(1, scheme, art)
	}

	// §4.7.8: the fresh chain's pages are never visible to anyone until the
	// caller's CAS publishes the head entry, so writing them out is safe to
	// batch into as few doorbells as Config.WriteOroMax allows rather than
	// one round trip per page.
	batchCap := t.cfg.WriteOroMax
	for start := 0; start < len(pages); start += batchCap {
		end := min(start+batchCap, len(pages))
		ops := make([]transport.WriteOp, end-start)
		for i := start; i < end; i++ {
			p := pages[i]
			if i == 0 {
				p.RevPtr = parentAddr
			} else {
				p.RevPtr = gaddr.Add(pageAddrs[i-1], int64(node.EntryOffset(0)))
			}
			ops[i-start] = transport.WriteOp{Space: transport.SpaceMain, Addr: pageAddrs[i], Data: p.Encode()}
		}
		if werr := t.transport.WriteBatch(ctx, ops); werr != nil {
			t.freePages(pageAddrs)
			t.freeNewLeaf(newLeafAddr)
			return 0, nil, gaddr.Null, werr
		}
	}

	headType := node.NumToNodeType(1, scheme, art)
	if len(segs) == 0 {
		headType = finalType
	}
	head = node.NewNodeEntry(0, headType, pageAddrs[0])
	return head, pageAddrs, newLeafAddr, nil
}

func (t *Tree) freePages(addrs []gaddr.Addr) {
	for _, a := range addrs {
		if !a.IsNull() {
			t.freeBytes(a, uint64(node.AllocAlignPageSize))
		}
	}
}

func (t *Tree) freeNewLeaf(addr gaddr.Addr) {
	if !addr.IsNull() {
		t.freeBytes(addr, uint64(node.LeafSize))
	}
}

// leafSplit implements §4.7.5: the traversal landed on a leaf whose key
// differs from k. Build a fork between the existing leaf (unchanged,
// re-filed under its differing byte) and a brand-new leaf for (k, v).
func (t *Tree) leafSplit(ctx context.Context, parentAddr gaddr.Addr, depth int, existing node.InternalEntry, existingLeaf *node.Leaf, k key.Key, v Value) (node.InternalEntry, []gaddr.Addr, gaddr.Addr, error) {
	partialLen := key.LCP(existingLeaf.Key, k, depth)
	diffPartial := key.Partial(existingLeaf.Key, depth+partialLen+1)
	newPartial := key.Partial(k, depth+partialLen+1)

	childA := forkChild{partial: diffPartial, existing: existing}
	childB := forkChild{partial: newPartial, isNewLeaf: true, leafKey: k, leafVal: v}
	return t.buildFork(ctx, k, parentAddr, depth, partialLen, childA, childB)
}

// headerSplitMismatchIndex returns the index within hdr's compressed
// partial bytes where k first diverges, or -1 if hdr fully matches k.
func headerSplitMismatchIndex(hdr node.Header, k key.Key) int {
	d := hdr.Depth()
	for i := 0; i < hdr.PartialLen(); i++ {
		if key.Partial(k, d+i+1) != hdr.Partial(i) {
			return i
		}
	}
	return -1
}

// headerSplit implements §4.7.6/§4.7.1.3.d: the current node's header
// diverges from k at diffIdx. Build a fork between the existing node
// (unchanged address, re-filed under the header's old byte at diffIdx)
// and a brand-new leaf for (k, v); the caller is responsible for
// CAS-masking the existing node's own header down to SplitHeader(hdr,
// diffIdx) once the fork is published.
func (t *Tree) headerSplit(ctx context.Context, parentAddr gaddr.Addr, existing node.InternalEntry, hdr node.Header, diffIdx int, k key.Key, v Value) (node.InternalEntry, []gaddr.Addr, gaddr.Addr, error) {
	commonLen := diffIdx
	diffPartial := hdr.Partial(diffIdx)
	newPartial := key.Partial(k, hdr.Depth()+diffIdx+1)

	childA := forkChild{partial: diffPartial, existing: existing}
	childB := forkChild{partial: newPartial, isNewLeaf: true, leafKey: k, leafVal: v}
	return t.buildFork(ctx, k, parentAddr, hdr.Depth(), commonLen, childA, childB)
}
