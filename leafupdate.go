package smarttree

import (
	"context"
	"hash/maphash"

	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/key"
	"github.com/dmemtree/smarttree/locktable"
	"github.com/dmemtree/smarttree/node"
	"github.com/dmemtree/smarttree/telemetry"
	"github.com/dmemtree/smarttree/transport"
)

// onChipLockRegionBytes sizes the on-chip lock bit array this Tree hashes
// leaf addresses into when Config.EmbeddedLock is false (§4.7.3's
// "separate bit array at a well-known on-chip address").
const onChipLockRegionBytes = 1 << 16

// lockWordOffset places the embedded lock byte in the last 8-byte window
// of a Leaf record, so it's reachable by an 8-byte CAS-mask without
// needing Leaf's own (non-8-aligned) byte layout to change.
const lockWordOffset = node.LeafSize - 8

// lockByteMask isolates the top byte of that 8-byte window: 0x00 means
// unlocked, 0xFF means locked.
const lockByteMask = uint64(0xFF) << 56

var lockHashSeed = maphash.MakeSeed()

// leafLockTarget returns the (space, address, mask) a CAS-mask targets to
// acquire/release leafAddr's in-place-update lock, per Config.EmbeddedLock
// (a bit inside the leaf itself) vs. the on-chip alternative (a bit array
// hashed by leaf offset, §4.7.3).
func (t *Tree) leafLockTarget(leafAddr gaddr.Addr) (transport.Space, gaddr.Addr, uint64) {
	if t.cfg.EmbeddedLock {
		return transport.SpaceMain, gaddr.Add(leafAddr, lockWordOffset), lockByteMask
	}
	var h maphash.Hash
	h.SetSeed(lockHashSeed)
	var buf [8]byte
	off := leafAddr.Offset()
	for i := 0; i < 8; i++ {
		buf[i] = byte(off >> (8 * i))
	}
	h.Write(buf[:])
	bitIndex := h.Sum64() % uint64(onChipLockRegionBytes*8)
	wordOffset := (bitIndex / 64) * 8
	bit := bitIndex % 64
	return transport.SpaceOnChip, gaddr.Make(leafAddr.NodeID(), wordOffset), uint64(1) << bit
}

// acquireRemoteBitLock spins a CAS-mask against a single lock bit until it
// goes from clear to set, the remote primitive every address-keyed lock in
// this file (leaf-embedded, on-chip, or entry-keyed) ultimately reduces to.
// Every failed CAS attempt counts as a lock_fail against slot, mirroring the
// original's per-thread lock-fail counter.
func (t *Tree) acquireRemoteBitLock(ctx context.Context, slot int, space transport.Space, addr gaddr.Addr, mask uint64) error {
	for {
		ok, err := t.transport.CASMask(ctx, space, addr, 0, mask, mask)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		t.tel.LockFail(slot)
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (t *Tree) releaseRemoteBitLock(ctx context.Context, space transport.Space, addr gaddr.Addr, mask uint64) {
	_, _ = t.transport.CASMask(ctx, space, addr, mask, 0, mask)
}

func (t *Tree) acquireRemoteLeafLock(ctx context.Context, slot int, leafAddr gaddr.Addr) error {
	space, addr, mask := t.leafLockTarget(leafAddr)
	return t.acquireRemoteBitLock(ctx, slot, space, addr, mask)
}

func (t *Tree) releaseRemoteLeafLock(ctx context.Context, leafAddr gaddr.Addr) {
	space, addr, mask := t.leafLockTarget(leafAddr)
	t.releaseRemoteBitLock(ctx, space, addr, mask)
}

// onChipLockBit hashes addr down to one bit of the on-chip lock region,
// shared by the leaf on-chip lock target (Config.EmbeddedLock == false)
// and by the entry-keyed lock the ROWEX baseline uses — an InternalEntry's
// 64 bits are fully packed (see node.InternalEntry), leaving no spare bit
// to embed a lock into the way a Leaf's trailing word allows.
func onChipLockBit(addr gaddr.Addr) (gaddr.Addr, uint64) {
	var h maphash.Hash
	h.SetSeed(lockHashSeed)
	var buf [8]byte
	off := addr.Offset()
	for i := 0; i < 8; i++ {
		buf[i] = byte(off >> (8 * i))
	}
	h.Write(buf[:])
	bitIndex := h.Sum64() % uint64(onChipLockRegionBytes*8)
	wordOffset := (bitIndex / 64) * 8
	bit := bitIndex % 64
	return gaddr.Make(addr.NodeID(), wordOffset), uint64(1) << bit
}

func (t *Tree) acquireRemoteEntryLock(ctx context.Context, slot int, entryAddr gaddr.Addr) error {
	wordAddr, mask := onChipLockBit(entryAddr)
	return t.acquireRemoteBitLock(ctx, slot, transport.SpaceOnChip, wordAddr, mask)
}

func (t *Tree) releaseRemoteEntryLock(ctx context.Context, entryAddr gaddr.Addr) {
	wordAddr, mask := onChipLockBit(entryAddr)
	t.releaseRemoteBitLock(ctx, transport.SpaceOnChip, wordAddr, mask)
}

// withLeafLock runs fn while holding leafAddr's in-place-update lock. When
// Config.HOCLHandover is enabled, repeated same-address lock/unlock pairs
// from this client collapse through locktable's handover chain (the
// remote CAS-mask acquire/release is elided for a handed-over successor);
// otherwise every call does its own remote acquire/release.
func (t *Tree) withLeafLock(ctx context.Context, slot int, leafAddr gaddr.Addr, fn func() error) error {
	if !t.cfg.HOCLHandover {
		if err := t.acquireRemoteLeafLock(ctx, slot, leafAddr); err != nil {
			return err
		}
		err := fn()
		t.releaseRemoteLeafLock(ctx, leafAddr)
		return err
	}

	ticket := t.locks.AcquireLock(leafAddr)
	if !ticket.HandedOver() {
		if err := t.acquireRemoteLeafLock(ctx, slot, leafAddr); err != nil {
			return err
		}
	}
	err := fn()
	t.locks.ReleaseLock(leafAddr, func(addr gaddr.Addr) {
		t.releaseRemoteLeafLock(ctx, addr)
	})
	return err
}

// updateLeafInPlace implements §4.7.3: lock the leaf, rewrite its
// value/checksum, unlock. The leaf's address and rev_ptr do not change, so
// no parent CAS or cache invalidation is needed on success.
//
// When Config.WriteCombining is set, concurrent in-place updates of the
// same leaf collapse through locktable's write-combining queue: every
// caller but the epoch's actual writer skips the remote write entirely,
// and the one that does write picks up CombiningValue's last-write-wins
// buffer rather than its own stale v.
func (t *Tree) updateLeafInPlace(ctx context.Context, slot int, leafAddr gaddr.Addr, leaf *node.Leaf, v Value) error {
	write := func(val Value) error {
		return t.withLeafLock(ctx, slot, leafAddr, func() error {
			leaf.Value = val
			leaf.SetConsistent()
			return t.writeLeaf(ctx, leafAddr, leaf)
		})
	}

	if !t.cfg.WriteCombining {
		return write(v)
	}

	k := leaf.Key
	ticket := t.locks.AcquireWriteLock(k, locktable.Value(v))
	if ticket.Conflict() {
		return write(v)
	}

	var err error
	if ticket.Handover() {
		t.tel.Handover(slot, telemetry.OpInsert)
	} else {
		final, _ := t.locks.CombiningValue(k, locktable.Value(v))
		err = write(Value(final))
	}
	t.locks.ReleaseWriteLock(k, ticket)
	return err
}

// updateLeafOutOfPlace implements §4.7.4: allocate a new leaf, write it,
// then CAS entryAddr (the parent's InternalEntry slot) old -> new. On
// success the old leaf is asynchronously invalidated; on failure the
// observed entry is returned so the caller can retry against it.
//
// Unless Config.ROWEXBaseline is set, the entry CAS is coordinated through
// locktable's CAS-handover queue: every caller targeting the same key but
// the epoch winner skips redoing its own CAS and adopts the winner's
// published (entry, ok) pair instead.
func (t *Tree) updateLeafOutOfPlace(ctx context.Context, slot int, entryAddr gaddr.Addr, oldEntry node.InternalEntry, oldLeafAddr gaddr.Addr, k key.Key, v Value) (newEntry node.InternalEntry, ok bool, err error) {
	if t.cfg.ROWEXBaseline {
		return t.updateLeafOutOfPlaceROWEX(ctx, slot, entryAddr, oldEntry, oldLeafAddr, k, v)
	}

	ticket := t.locks.AcquireCASLock(k)
	if ticket.HandedOver() {
		t.tel.Handover(slot, telemetry.OpInsert)
	} else {
		newEntry, ok, err = t.updateLeafOutOfPlaceOnce(ctx, entryAddr, oldEntry, oldLeafAddr, k, v)
	}
	t.locks.ReleaseCASLock(k, &ok, &newEntry)
	return newEntry, ok, err
}

// updateLeafOutOfPlaceROWEX is the ROWEXBaseline comparison mode: instead of
// the default CAS-handover queue keyed by k, entryAddr itself is guarded by
// locktable's address-keyed lock-handover pair (the same primitive
// withLeafLock uses for leafAddr), giving exclusive access to the slot
// across its read-modify-CAS without the handover queue's value-adoption
// semantics.
func (t *Tree) updateLeafOutOfPlaceROWEX(ctx context.Context, slot int, entryAddr gaddr.Addr, oldEntry node.InternalEntry, oldLeafAddr gaddr.Addr, k key.Key, v Value) (node.InternalEntry, bool, error) {
	ticket := t.locks.AcquireLock(entryAddr)
	if !ticket.HandedOver() {
		if err := t.acquireRemoteEntryLock(ctx, slot, entryAddr); err != nil {
			return 0, false, err
		}
	} else {
		t.tel.Handover(slot, telemetry.OpInsert)
	}

	newEntry, ok, err := t.updateLeafOutOfPlaceOnce(ctx, entryAddr, oldEntry, oldLeafAddr, k, v)

	t.locks.ReleaseLock(entryAddr, func(addr gaddr.Addr) {
		t.releaseRemoteEntryLock(ctx, addr)
	})
	return newEntry, ok, err
}

func (t *Tree) updateLeafOutOfPlaceOnce(ctx context.Context, entryAddr gaddr.Addr, oldEntry node.InternalEntry, oldLeafAddr gaddr.Addr, k key.Key, v Value) (node.InternalEntry, bool, error) {
	newAddr, err := t.allocLeaf(ctx)
	if err != nil {
		return 0, false, err
	}
	leaf := node.NewLeaf(k, v, entryAddr)
	if werr := t.writeLeaf(ctx, newAddr, leaf); werr != nil {
		t.freeBytes(newAddr, uint64(node.LeafSize))
		return 0, false, werr
	}

	newEntry := node.NewLeafEntry(oldEntry.Partial(), oldEntry.KVLen(), newAddr)
	swapped, err := t.casEntry(ctx, entryAddr, oldEntry, newEntry)
	if err != nil {
		t.freeBytes(newAddr, uint64(node.LeafSize))
		return 0, false, err
	}
	if !swapped {
		t.freeBytes(newAddr, uint64(node.LeafSize))
		observed, rerr := t.readEntry(ctx, entryAddr)
		if rerr != nil {
			return 0, false, rerr
		}
		return observed, false, nil
	}

	t.invalidateLeafAsync(oldLeafAddr)
	return newEntry, true, nil
}

// invalidateLeafAsync marks an out-of-place-superseded leaf dead,
// best-effort: a reader who raced in with the stale address detects it via
// Leaf.Valid regardless of whether this succeeds before they get there.
func (t *Tree) invalidateLeafAsync(addr gaddr.Addr) {
	go func() {
		ctx := context.Background()
		l, err := t.readLeaf(ctx, addr)
		if err != nil {
			return
		}
		l.Invalidate()
		_ = t.writeLeaf(ctx, addr, l)
	}()
}
