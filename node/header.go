package node

import "github.com/dmemtree/smarttree/key"

// MaxPartialLen is the maximum number of path-compressed prefix bytes a
// Header can carry inline (hPartialLenMax in the original design).
const MaxPartialLen = 6

// Header is an InternalPage's 8-byte header packed into one uint64 so it
// can be CAS-masked (node_type updated independently of depth/partial),
// exactly like InternalEntry. Bit layout (low to high):
//
//	bits[0:8)   depth
//	bits[8:13)  node_type (5 bits)
//	bits[13:16) partial_len (3 bits)
//	bits[16:64) partial[0..5] (6 bytes)
type Header uint64

const (
	hdrDepthShift   = 0
	hdrNodeTypeShift = 8
	hdrNodeTypeBits  = 5
	hdrNodeTypeMask  = (uint64(1) << hdrNodeTypeBits) - 1
	hdrPartialLenShift = 13
	hdrPartialLenBits  = 3
	hdrPartialLenMask  = (uint64(1) << hdrPartialLenBits) - 1
	hdrPartialShift    = 16
)

// HeaderNodeTypeMask is the bit-mask covering only the node_type field,
// for use with a masked CAS that updates node_type without disturbing
// depth/partial_len/partial (§4.7.7 node-type grow).
const HeaderNodeTypeMask uint64 = hdrNodeTypeMask << hdrNodeTypeShift

// NewHeader builds a Header for a node rooted at depth, with partialLen
// bytes of k's path (starting at depth) compressed inline, tagged with
// nodeType.
func NewHeader(k key.Key, partialLen, depth int, nodeType NodeType) Header {
	var v uint64
	v |= uint64(depth) << hdrDepthShift
	v |= (uint64(nodeType) & hdrNodeTypeMask) << hdrNodeTypeShift
	v |= (uint64(partialLen) & hdrPartialLenMask) << hdrPartialLenShift
	for i := 0; i < partialLen; i++ {
		b := key.Partial(k, depth+i+1)
		v |= uint64(b) << (hdrPartialShift + 8*uint(i))
	}
	return Header(v)
}

// Depth returns the byte position where this node's key begins.
func (h Header) Depth() int { return int(uint64(h) >> hdrDepthShift & 0xFF) }

// NodeType returns the logical capacity class encoded in h.
func (h Header) NodeType() NodeType {
	return NodeType(uint64(h) >> hdrNodeTypeShift & hdrNodeTypeMask)
}

// PartialLen returns the number of inline compressed prefix bytes (0..6).
func (h Header) PartialLen() int {
	return int(uint64(h) >> hdrPartialLenShift & hdrPartialLenMask)
}

// Partial returns the i-th compressed prefix byte (0 <= i < PartialLen()).
func (h Header) Partial(i int) uint8 {
	return uint8(uint64(h) >> (hdrPartialShift + 8*uint(i)))
}

// WithNodeType returns h with only its node_type field replaced — the
// value half of a masked CAS against HeaderNodeTypeMask.
func (h Header) WithNodeType(t NodeType) Header {
	cleared := uint64(h) &^ HeaderNodeTypeMask
	return Header(cleared | (uint64(t)&hdrNodeTypeMask)<<hdrNodeTypeShift)
}

// Uint64 returns the raw packed word, the representation a CAS/CAS-mask
// operates on.
func (h Header) Uint64() uint64 { return uint64(h) }

// HeaderFromUint64 reconstructs a Header from its raw packed word.
func HeaderFromUint64(v uint64) Header { return Header(v) }

// IsMatch reports whether every compressed prefix byte in h agrees with k
// at the corresponding depth.
func (h Header) IsMatch(k key.Key) bool {
	d := h.Depth()
	for i := 0; i < h.PartialLen(); i++ {
		if key.Partial(k, d+i+1) != h.Partial(i) {
			return false
		}
	}
	return true
}

// SplitHeader implements the header-prefix-mismatch split from §4.3: at
// byte index diffIdx within old's compressed partial, the new header
// covers the suffix old.partial[diffIdx+1:] starting one byte deeper; the
// node_type field is carried over from old unchanged.
func SplitHeader(old Header, diffIdx int) Header {
	var v uint64
	newPartialLen := old.PartialLen() - diffIdx - 1
	newDepth := old.Depth() + diffIdx + 1
	v |= uint64(newDepth) << hdrDepthShift
	v |= uint64(old) & HeaderNodeTypeMask
	v |= (uint64(newPartialLen) & hdrPartialLenMask) << hdrPartialLenShift
	for i := 0; i < newPartialLen; i++ {
		b := old.Partial(diffIdx + 1 + i)
		v |= uint64(b) << (hdrPartialShift + 8*uint(i))
	}
	return Header(v)
}
