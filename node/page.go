package node

import (
	"encoding/binary"

	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/key"
)

// EntrySize / HeaderSize / RevPtrSize are the on-wire sizes of the fields
// making up an InternalPage, each a CAS-able 8-byte word.
const (
	EntrySize   = 8
	HeaderSize  = 8
	RevPtrSize  = 8
)

// AllocationPageSize is the raw byte size of an InternalPage on the wire:
// rev_ptr + header + 256 entries. InternalPage is always allocated at this
// size regardless of the node's current logical NodeType, so an in-place
// grow never needs to relocate the entry array.
const AllocationPageSize = RevPtrSize + HeaderSize + PageSlots*EntrySize

// AllocAlignPageSize rounds AllocationPageSize up to the chunk allocator's
// alignment granularity (1 << gaddr.AllocAlignBits).
const AllocAlignPageSize = roundUp(AllocationPageSize, gaddr.AllocAlignBits)

func roundUp(size, alignBits int) int {
	align := 1 << alignBits
	return (size + align - 1) &^ (align - 1)
}

// EntryOffset returns the byte offset of slot i's entry within an encoded
// InternalPage — the address a CAS against that single slot targets.
func EntryOffset(i int) int {
	return RevPtrSize + HeaderSize + i*EntrySize
}

// HeaderOffset is the byte offset of the header word within an encoded
// InternalPage.
const HeaderOffset = RevPtrSize

// InternalPage is the client-local decoded view of a remote internal node:
// a reverse pointer (for invalidation/validation), a path-compression
// header, and a fixed 256-slot entry array (only the header's declared
// capacity class worth of slots are logically meaningful).
type InternalPage struct {
	RevPtr  gaddr.Addr
	Hdr     Header
	Entries [PageSlots]InternalEntry
}

// NewInternalPage builds a fresh page rooted at depth, with partialLen
// bytes of k's path compressed into its header, tagged nodeType, pointing
// back at revPtr. All entry slots start null.
func NewInternalPage(k key.Key, partialLen, depth int, nodeType NodeType, revPtr gaddr.Addr) *InternalPage {
	return &InternalPage{
		RevPtr: revPtr,
		Hdr:    NewHeader(k, partialLen, depth, nodeType),
	}
}

// IsValid mirrors InternalPage::is_valid: a page is usable if it hasn't
// been logically deleted, its header depth is still consistent with the
// traversal depth the caller expects, and — if the page came from a
// cache hit — its rev_ptr still points back at the parent entry the
// caller followed.
func (p *InternalPage) IsValid(pPtr gaddr.Addr, depth int, fromCache bool) bool {
	if p.Hdr.NodeType() == NodeDeleted {
		return false
	}
	if p.Hdr.Depth() > depth {
		return false
	}
	if fromCache && pPtr != p.RevPtr {
		return false
	}
	return true
}

// Encode serializes p into its AllocationPageSize on-wire byte form.
func (p *InternalPage) Encode() []byte {
	buf := make([]byte, AllocationPageSize)
	binary.LittleEndian.PutUint64(buf[0:], uint64(p.RevPtr))
	binary.LittleEndian.PutUint64(buf[HeaderOffset:], p.Hdr.Uint64())
	for i, e := range p.Entries {
		binary.LittleEndian.PutUint64(buf[EntryOffset(i):], e.Uint64())
	}
	return buf
}

// DecodeInternalPage parses an AllocationPageSize byte buffer (or a
// shorter prefix, as produced when only a node's declared-capacity tail
// was read) into an InternalPage. Slots beyond len(buf) stay null.
func DecodeInternalPage(buf []byte) *InternalPage {
	p := &InternalPage{}
	p.RevPtr = gaddr.Addr(binary.LittleEndian.Uint64(buf[0:]))
	p.Hdr = HeaderFromUint64(binary.LittleEndian.Uint64(buf[HeaderOffset:]))
	n := (len(buf) - RevPtrSize - HeaderSize) / EntrySize
	for i := 0; i < n; i++ {
		off := EntryOffset(i)
		if off+EntrySize > len(buf) {
			break
		}
		p.Entries[i] = EntryFromUint64(binary.LittleEndian.Uint64(buf[off:]))
	}
	return p
}
