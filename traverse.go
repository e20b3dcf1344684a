package smarttree

import (
	"context"
	"fmt"

	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/indexcache"
	"github.com/dmemtree/smarttree/key"
	"github.com/dmemtree/smarttree/locktable"
	"github.com/dmemtree/smarttree/node"
	"github.com/dmemtree/smarttree/telemetry"
	"github.com/dmemtree/smarttree/transport"
)

// cacheStart bundles what a cache-assisted traversal resumes from: the
// cached child entry itself, the address of the slot that holds it, and
// the depth that slot's own page should be validated against.
type cacheStart struct {
	handle indexcache.Handle
	addr   gaddr.Addr
	entry  node.InternalEntry
	depth  int
}

// lookupFromCache tries to shortcut a traversal's first hop through the
// client-side cache (§4.7.1 step 1): find the deepest cached page with a
// child filed under k's next byte, and resume there instead of at the
// root. A miss on the cached byte is inconclusive, not evidence of
// staleness — the caller falls back to reading the root fresh.
func (t *Tree) lookupFromCache(slotID int, k key.Key) (cacheStart, bool) {
	if t.cache == nil {
		return cacheStart{}, false
	}
	handle, e := t.cache.Lookup(k)
	if e == nil {
		t.tel.CacheMiss(slotID)
		return cacheStart{}, false
	}
	t.tel.CacheHit(slotID)
	b := key.Partial(k, e.Depth+1)
	for i := 0; i < node.PageSlots; i++ {
		if c := e.Records[i]; !c.IsNull() && c.Partial() == b {
			return cacheStart{handle: handle, addr: gaddr.Add(e.Addr, int64(node.EntryOffset(i))), entry: c, depth: e.Depth + 1}, true
		}
	}
	return cacheStart{}, false
}

// descendResult is what descending through one internal page's worth of
// traversal produces: either a header mismatch (key diverges from this
// node's compressed path), or a scanned child slot (possibly empty) along
// with childDepth, the depth value the next hop (leaf or node) should be
// validated/split against.
type descendResult struct {
	page       *node.InternalPage
	pageAddr   gaddr.Addr
	declaredNum int
	valid      bool
	mismatch   int // index into page.Hdr's partial where k diverges, -1 if none
	childByte  uint8
	childDepth int
	childAddr  gaddr.Addr
	child      node.InternalEntry // NullEntry if no slot carries childByte yet
}

// descendNode reads the child page entryAddr/entry point at, merges its
// tail if the node has grown past entry's declared capacity, validates it
// against the expected (entryAddr, depth) pair, and scans it for the child
// filed under k's next byte (§4.7.1 steps 3-4).
func (t *Tree) descendNode(ctx context.Context, slotID int, entryAddr gaddr.Addr, entry node.InternalEntry, depth int, k key.Key, fromCache bool) (descendResult, error) {
	pageAddr := entry.Addr()
	declaredNum := node.NodeTypeToNum(entry.NodeType(), t.cfg.scheme, t.cfg.EnableART)

	page, err := t.readPage(ctx, pageAddr, declaredNum)
	if err != nil {
		return descendResult{}, err
	}
	t.tel.NodeRead(slotID, entry.NodeType())

	if !page.IsValid(entryAddr, depth, fromCache) {
		t.tel.Retry(slotID, telemetry.InvalidNode)
		return descendResult{page: page, pageAddr: pageAddr, declaredNum: declaredNum}, nil
	}

	actualNum := node.NodeTypeToNum(page.Hdr.NodeType(), t.cfg.scheme, t.cfg.EnableART)
	if actualNum > declaredNum {
		tail, terr := t.readPageTail(ctx, pageAddr, declaredNum, actualNum)
		if terr != nil {
			return descendResult{}, terr
		}
		copy(page.Entries[declaredNum:actualNum], tail)
		declaredNum = actualNum
	}

	if page.RevPtr != entryAddr {
		t.repairRevPtr(pageAddr, page.RevPtr, entryAddr)
	}

	if mismatch := headerSplitMismatchIndex(page.Hdr, k); mismatch != -1 {
		return descendResult{page: page, pageAddr: pageAddr, declaredNum: declaredNum, valid: true, mismatch: mismatch}, nil
	}

	if t.cache != nil {
		t.cache.Add(k, page, pageAddr)
	}

	newDepth := page.Hdr.Depth() + page.Hdr.PartialLen()
	b := key.Partial(k, newDepth+1)
	res := descendResult{page: page, pageAddr: pageAddr, declaredNum: declaredNum, valid: true, mismatch: -1, childByte: b, childDepth: newDepth + 1}
	for i := 0; i < declaredNum; i++ {
		if c := page.Entries[i]; !c.IsNull() && c.Partial() == b {
			res.childAddr = gaddr.Add(pageAddr, int64(node.EntryOffset(i)))
			res.child = c
			return res, nil
		}
	}
	return res, nil
}

// search implements §4.7.1's read-only traversal: follow entries from the
// cache or root down to either a matching leaf or a dead end, retrying
// from the root on this same goroutine up to Config.MaxRetries times
// whenever a structural race makes the path taken mid-traversal stale.
func (t *Tree) search(ctx context.Context, slotID int, k key.Key) (Value, bool, error) {
	for attempt := 0; attempt < t.cfg.MaxRetries; attempt++ {
		v, found, retry, err := t.searchAttempt(ctx, slotID, k)
		if err != nil {
			return Value{}, false, err
		}
		if !retry {
			return v, found, nil
		}
	}
	return Value{}, false, fmt.Errorf("smarttree: search(%s) exceeded %d retries", k, t.cfg.MaxRetries)
}

func (t *Tree) searchAttempt(ctx context.Context, slotID int, k key.Key) (val Value, found, retry bool, err error) {
	t.tel.Try(slotID, telemetry.OpSearch)

	entryAddr := t.rootAddr
	depth := 0
	fromCache := false
	var cacheHandle indexcache.Handle
	var entry node.InternalEntry

	if start, ok := t.lookupFromCache(slotID, k); ok {
		cacheHandle, entryAddr, entry, depth, fromCache = start.handle, start.addr, start.entry, start.depth, true
	} else {
		entry, err = t.readEntry(ctx, entryAddr)
		if err != nil {
			return Value{}, false, false, err
		}
	}

	for {
		if entry.IsNull() {
			return Value{}, false, false, nil
		}

		if entry.IsLeaf() {
			leafAddr := entry.Addr()

			// Read delegation (§4.5/§2's C5 fast path): a goroutine that
			// loses the epoch race for this key adopts the winner's
			// published result instead of issuing its own remote read.
			var ticket locktable.Ticket
			if t.cfg.ReadDelegation {
				ticket = t.locks.AcquireReadLock(k)
				if !ticket.Conflict() && ticket.Handover() {
					var res bool
					var retValue locktable.Value
					t.locks.ReleaseReadLock(k, ticket, &res, &retValue)
					return Value(retValue), res, false, nil
				}
			}

			leaf, lerr := t.readLeaf(ctx, leafAddr)
			if lerr != nil {
				return Value{}, false, false, lerr
			}
			if leaf.RevPtr != entryAddr {
				t.repairRevPtr(leafAddr, leaf.RevPtr, entryAddr)
			}

			var leafVal Value
			var leafFound, leafRetry bool
			switch {
			case !leaf.Valid || !leaf.IsConsistent():
				t.tel.Retry(slotID, telemetry.InvalidLeaf)
				if cacheHandle != nil {
					t.cache.Invalidate(cacheHandle)
				}
				leafRetry = true
			case leaf.Key == k:
				leafVal, leafFound = leaf.Value, true
			}

			if t.cfg.ReadDelegation && !ticket.Conflict() {
				res := leafFound
				retValue := locktable.Value(leafVal)
				t.locks.ReleaseReadLock(k, ticket, &res, &retValue)
			}
			return leafVal, leafFound, leafRetry, nil
		}

		r, derr := t.descendNode(ctx, slotID, entryAddr, entry, depth, k, fromCache)
		if derr != nil {
			return Value{}, false, false, derr
		}
		if !r.valid {
			if cacheHandle != nil {
				t.cache.Invalidate(cacheHandle)
			}
			return Value{}, false, true, nil
		}
		if r.mismatch != -1 {
			return Value{}, false, false, nil
		}

		entryAddr = r.childAddr
		entry = r.child
		depth = r.childDepth
		fromCache = false
	}
}

// insert implements §4.7.2: the same structural traversal as search, but
// on reaching a dead end or a same-key leaf it mutates remote state (CAS
// in a new leaf, split a leaf or a header, grow a node, or update a
// leaf's value) instead of merely reporting.
func (t *Tree) insert(ctx context.Context, slotID int, k key.Key, v Value, opts insertOptions) error {
	for attempt := 0; attempt < t.cfg.MaxRetries; attempt++ {
		done, err := t.insertAttempt(ctx, slotID, k, v, opts)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return fmt.Errorf("smarttree: insert(%s) exceeded %d retries", k, t.cfg.MaxRetries)
}

func (t *Tree) insertAttempt(ctx context.Context, slotID int, k key.Key, v Value, opts insertOptions) (done bool, err error) {
	t.tel.Try(slotID, telemetry.OpInsert)

	entryAddr := t.rootAddr
	depth := 0
	fromCache := false
	var cacheHandle indexcache.Handle
	var entry node.InternalEntry

	if start, ok := t.lookupFromCache(slotID, k); ok {
		cacheHandle, entryAddr, entry, depth, fromCache = start.handle, start.addr, start.entry, start.depth, true
	} else {
		entry, err = t.readEntry(ctx, entryAddr)
		if err != nil {
			return false, err
		}
	}

	for {
		if entry.IsNull() {
			leafAddr, aerr := t.allocLeaf(ctx)
			if aerr != nil {
				return false, aerr
			}
			leaf := node.NewLeaf(k, v, entryAddr)
			if werr := t.writeLeaf(ctx, leafAddr, leaf); werr != nil {
				t.freeBytes(leafAddr, uint64(node.LeafSize))
				return false, werr
			}
			newEntry := node.NewLeafEntry(key.Partial(k, depth), 0, leafAddr)
			swapped, cerr := t.casEntry(ctx, entryAddr, node.NullEntry, newEntry)
			if cerr != nil {
				t.freeBytes(leafAddr, uint64(node.LeafSize))
				return false, cerr
			}
			if !swapped {
				t.freeBytes(leafAddr, uint64(node.LeafSize))
				t.tel.Retry(slotID, telemetry.CASNull)
				if cacheHandle != nil {
					t.cache.Invalidate(cacheHandle)
				}
				return false, nil
			}
			return true, nil
		}

		if entry.IsLeaf() {
			return t.insertAtLeaf(ctx, slotID, entryAddr, entry, depth, k, v, opts, cacheHandle)
		}

		r, derr := t.descendNode(ctx, slotID, entryAddr, entry, depth, k, fromCache)
		if derr != nil {
			return false, derr
		}
		if !r.valid {
			if cacheHandle != nil {
				t.cache.Invalidate(cacheHandle)
			}
			return false, nil
		}

		if r.mismatch != -1 {
			headEntry, pageAddrs, newLeafAddr, herr := t.headerSplit(ctx, entryAddr, entry, r.page.Hdr, r.mismatch, k, v)
			if herr != nil {
				return false, herr
			}
			swapped, cerr := t.casEntry(ctx, entryAddr, entry, headEntry)
			if cerr != nil {
				t.freePages(pageAddrs)
				t.freeNewLeaf(newLeafAddr)
				return false, cerr
			}
			if !swapped {
				t.freePages(pageAddrs)
				t.freeNewLeaf(newLeafAddr)
				t.tel.Retry(slotID, telemetry.SplitHeader)
				if cacheHandle != nil {
					t.cache.Invalidate(cacheHandle)
				}
				return false, nil
			}
			shrunk := node.SplitHeader(r.page.Hdr, r.mismatch)
			headerAddr := gaddr.Add(r.pageAddr, int64(node.HeaderOffset))
			_, _ = t.transport.CAS(ctx, transport.SpaceMain, headerAddr, r.page.Hdr.Uint64(), shrunk.Uint64())
			return true, nil
		}

		if r.child.IsNull() {
			_, ferr := t.growAndInsertLeaf(ctx, r.pageAddr, r.page.Hdr, entryAddr, entry, r.page.Entries[:r.declaredNum], 0, r.childByte, k, v)
			if ferr == errNodeFull {
				t.tel.Retry(slotID, telemetry.InsertBehindTryNext)
				return false, nil
			}
			if ferr != nil {
				return false, ferr
			}
			return true, nil
		}

		entryAddr = r.childAddr
		entry = r.child
		depth = r.childDepth
		fromCache = false
	}
}

// insertAtLeaf handles a traversal that landed on an existing leaf entry:
// same key means update (in-place or out-of-place, per Config and
// insertOptions), differing key means a leaf split (§4.7.5). depth is the
// number of key bytes already known to match between this leaf's key and
// k (i.e. including the selector byte that routed the traversal here).
func (t *Tree) insertAtLeaf(ctx context.Context, slotID int, entryAddr gaddr.Addr, entry node.InternalEntry, depth int, k key.Key, v Value, opts insertOptions, cacheHandle indexcache.Handle) (bool, error) {
	leafAddr := entry.Addr()
	leaf, err := t.readLeaf(ctx, leafAddr)
	if err != nil {
		return false, err
	}
	if leaf.RevPtr != entryAddr {
		t.repairRevPtr(leafAddr, leaf.RevPtr, entryAddr)
	}
	if !leaf.Valid || !leaf.IsConsistent() {
		t.tel.Retry(slotID, telemetry.InvalidLeaf)
		if cacheHandle != nil {
			t.cache.Invalidate(cacheHandle)
		}
		return false, nil
	}

	if leaf.Key == k {
		if opts.load {
			return true, nil
		}
		if t.cfg.InPlaceUpdate {
			if err := t.updateLeafInPlace(ctx, slotID, leafAddr, leaf, v); err != nil {
				return false, err
			}
			return true, nil
		}
		_, ok, err := t.updateLeafOutOfPlace(ctx, slotID, entryAddr, entry, leafAddr, k, v)
		if err != nil {
			return false, err
		}
		if !ok {
			t.tel.Retry(slotID, telemetry.CASLeaf)
			return false, nil
		}
		return true, nil
	}

	headEntry, pageAddrs, newLeafAddr, serr := t.leafSplit(ctx, entryAddr, depth, entry, leaf, k, v)
	if serr != nil {
		return false, serr
	}
	swapped, cerr := t.casEntry(ctx, entryAddr, entry, headEntry)
	if cerr != nil {
		t.freePages(pageAddrs)
		t.freeNewLeaf(newLeafAddr)
		return false, cerr
	}
	if !swapped {
		t.freePages(pageAddrs)
		t.freeNewLeaf(newLeafAddr)
		t.tel.Retry(slotID, telemetry.CASLeaf)
		if cacheHandle != nil {
			t.cache.Invalidate(cacheHandle)
		}
		return false, nil
	}
	return true, nil
}
