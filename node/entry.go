package node

import "github.com/dmemtree/smarttree/gaddr"

// MaxKVLenInline is the largest inline kv_len an InternalEntry can carry in
// its 7-bit field before it must fall back to "external length" (encoded
// as kv_len == 0, meaning the leaf itself carries full length information).
const MaxKVLenInline = (1 << 7) - 1

// InternalEntry is the 8-byte tagged-union slot inside an InternalPage,
// packed into one uint64 so it is CAS-able as a single machine word. Bit
// layout (low to high), shared between both tags:
//
//	bits[0:8)   partial        (the key byte that selects this slot)
//	bits[8:15)  kv_len (leaf)  OR  reserved(2) + node_type(5)  (node)
//	bit[15]     is_leaf
//	bits[16:64) packed child/leaf address (48 bits, see gaddr.Packed)
type InternalEntry uint64

const (
	entryPartialShift = 0
	entryPartialMask  = uint64(0xFF)
	entryMidShift     = 8
	entryMidBits      = 7
	entryMidMask      = (uint64(1) << entryMidBits) - 1
	entryIsLeafShift  = 15
	entryAddrShift    = 16
)

// NullEntry is the zero InternalEntry, meaning "no child/leaf here".
const NullEntry InternalEntry = 0

// EntryNodeTypeMask is the bit-mask covering only a node entry's node_type
// field, for use with a masked CAS that grows a node's type in the parent
// entry without disturbing its partial byte or address (§4.7.7 node-type
// grow, paired with header.HeaderNodeTypeMask via Transport.TwoCASMask).
const EntryNodeTypeMask uint64 = entryMidMask << entryMidShift

// IsNull reports whether e is the null entry.
func (e InternalEntry) IsNull() bool { return e == NullEntry }

// IsLeaf reports whether e tags a leaf address (vs. a child node address).
func (e InternalEntry) IsLeaf() bool {
	return (uint64(e)>>entryIsLeafShift)&1 == 1
}

// Partial returns the key byte this slot was filed under.
func (e InternalEntry) Partial() uint8 {
	return uint8(uint64(e) >> entryPartialShift & entryPartialMask)
}

// KVLen returns the inline kv length for a leaf entry (0 means "external
// length", i.e. the leaf record itself carries the authoritative length).
func (e InternalEntry) KVLen() uint8 {
	return uint8(uint64(e) >> entryMidShift & entryMidMask)
}

// NodeType returns the logical capacity class for a node entry.
func (e InternalEntry) NodeType() NodeType {
	return NodeType(uint64(e) >> entryMidShift & entryMidMask)
}

// Addr unpacks and returns the full global address this entry points at.
func (e InternalEntry) Addr() gaddr.Addr {
	packed := gaddr.UnpackUint64(uint64(e) >> entryAddrShift)
	return gaddr.Unpack(packed)
}

// NewLeafEntry builds an entry tagging addr as a leaf, filed under partial,
// with the given inline kv length (0 for "external length").
func NewLeafEntry(partial uint8, kvLen uint8, addr gaddr.Addr) InternalEntry {
	v := uint64(partial) << entryPartialShift
	v |= (uint64(kvLen) & entryMidMask) << entryMidShift
	v |= uint64(1) << entryIsLeafShift
	v |= gaddr.Pack(addr).PackUint64() << entryAddrShift
	return InternalEntry(v)
}

// NewNodeEntry builds an entry tagging addr as a child internal node, filed
// under partial, with the given logical capacity class.
func NewNodeEntry(partial uint8, nodeType NodeType, addr gaddr.Addr) InternalEntry {
	v := uint64(partial) << entryPartialShift
	v |= (uint64(nodeType) & entryMidMask) << entryMidShift
	v |= uint64(0) << entryIsLeafShift
	v |= gaddr.Pack(addr).PackUint64() << entryAddrShift
	return InternalEntry(v)
}

// WithPartial returns e with only its partial byte replaced, preserving
// the tag and address — used when an entry is re-filed under a different
// selector byte after a header split.
func (e InternalEntry) WithPartial(partial uint8) InternalEntry {
	cleared := uint64(e) &^ (entryPartialMask << entryPartialShift)
	return InternalEntry(cleared | uint64(partial)<<entryPartialShift)
}

// WithNodeType returns e (a node entry) with only its node_type field
// replaced — the value half of the masked entry-CAS used by node-type grow
// (§4.7.7), applied together with a header CAS-mask over the same field.
func (e InternalEntry) WithNodeType(t NodeType) InternalEntry {
	cleared := uint64(e) &^ (entryMidMask << entryMidShift)
	return InternalEntry(cleared | (uint64(t)&entryMidMask)<<entryMidShift)
}

// Uint64 returns the raw packed word, the representation a CAS operates on.
func (e InternalEntry) Uint64() uint64 { return uint64(e) }

// EntryFromUint64 reconstructs an InternalEntry from its raw packed word.
func EntryFromUint64(v uint64) InternalEntry { return InternalEntry(v) }
