// Package gaddr implements the global address space of the disaggregated
// tree: a 16-bit memory-node id plus a 48-bit offset, packed into a single
// 64-bit word so an address fits inside one CAS-able entry (see package
// node). It also provides the 48-bit "packed" form used inside on-wire
// entries, which stores the offset right-shifted by the allocation
// alignment so it fits alongside a node id in 6 bytes.
package gaddr

import "fmt"

// AllocAlignBits is the alignment-shift applied when an address is packed
// into its 48-bit on-wire form (ALLOC_ALLIGN_BIT in the original design).
const AllocAlignBits = 8

// MemoryNodeBits / OffsetBits partition the 64-bit address.
const (
	MemoryNodeBits = 16
	OffsetBits     = 64 - MemoryNodeBits
	offsetMask     = (uint64(1) << OffsetBits) - 1
)

// Addr is a global address: memory-node id (high 16 bits) + byte offset
// (low 48 bits) inside that node's address space.
type Addr uint64

// Null is the zero address, used as a sentinel for "no entry" everywhere
// in the protocol (an empty InternalEntry, an unset rev_ptr, etc.).
const Null Addr = 0

// Make builds an Addr from a memory-node id and a byte offset.
func Make(nodeID uint16, offset uint64) Addr {
	return Addr(uint64(nodeID)<<OffsetBits | (offset & offsetMask))
}

// Max returns the address one node-id past the last valid memory node,
// offset zero — used as an exclusive upper bound in range scans over node
// ids.
func Max(memoryNodeNum uint16) Addr {
	return Make(memoryNodeNum, 0)
}

// NodeID returns the memory-node id component.
func (a Addr) NodeID() uint16 {
	return uint16(uint64(a) >> OffsetBits)
}

// Offset returns the byte-offset component within the memory node.
func (a Addr) Offset() uint64 {
	return uint64(a) & offsetMask
}

// Add returns a with delta bytes added to its offset, keeping the node id.
// Overflowing the offset range is a programmer error (it would corrupt the
// node id bits) and is not defended against, matching the original's
// unchecked GADD.
func Add(a Addr, delta int64) Addr {
	return Make(a.NodeID(), uint64(int64(a.Offset())+delta))
}

// IsNull reports whether a is the null address.
func (a Addr) IsNull() bool { return a == Null }

func (a Addr) String() string {
	return fmt.Sprintf("[%d, 0x%x]", a.NodeID(), a.Offset())
}

// Less provides the canonical (nodeID, offset) ordering used by the cache
// and allocator free lists when addresses need to be sorted.
func Less(a, b Addr) bool {
	if a.NodeID() != b.NodeID() {
		return a.NodeID() < b.NodeID()
	}
	return a.Offset() < b.Offset()
}

// PackedNodeIDBits / PackedOffsetBits split the 48-bit packed address used
// inside a node.InternalEntry: 8 bits of memory-node id plus 40 bits of
// alignment-shifted offset (48 total). This is narrower than the full Addr's
// 16-bit node id because an InternalEntry has only 48 spare bits once its
// tag bits are accounted for; clusters are assumed to fit within 256 memory
// nodes when addresses are packed this way.
const (
	PackedNodeIDBits = 8
	PackedOffsetBits = 48 - PackedNodeIDBits
)

// Packed is the 48-bit on-wire form of an Addr: the offset right-shifted by
// AllocAlignBits (so allocations are always alignment-sized) packed next to
// an 8-bit node id. It is used inside node.InternalEntry, which only has 48
// bits of spare room for a child address.
type Packed struct {
	NodeID        uint8
	ShiftedOffset uint64 // offset >> AllocAlignBits, must fit in PackedOffsetBits bits
}

// Pack converts a full Addr into its packed form. The caller is responsible
// for ensuring a.Offset() is a multiple of 1<<AllocAlignBits and a.NodeID()
// fits in 8 bits; all addresses returned by chunkalloc satisfy this for
// clusters of up to 256 memory nodes.
func Pack(a Addr) Packed {
	return Packed{NodeID: uint8(a.NodeID()), ShiftedOffset: a.Offset() >> AllocAlignBits}
}

// Unpack reconstructs the full Addr from its packed form.
func Unpack(p Packed) Addr {
	return Make(uint16(p.NodeID), p.ShiftedOffset<<AllocAlignBits)
}

// PackUint64 / UnpackUint64 marshal Packed to/from the 48-bit field layout
// (node id in the low 8 bits, shifted offset in the next 40) used when an
// InternalEntry embeds the packed address directly in its uint64 word.
func (p Packed) PackUint64() uint64 {
	return uint64(p.NodeID) | (p.ShiftedOffset << PackedNodeIDBits)
}

// UnpackUint64 reconstructs a Packed from its 48-bit field encoding.
func UnpackUint64(v uint64) Packed {
	const offsetMask48 = (uint64(1) << PackedOffsetBits) - 1
	return Packed{
		NodeID:        uint8(v & 0xFF),
		ShiftedOffset: (v >> PackedNodeIDBits) & offsetMask48,
	}
}
