// Package key implements fixed-width byte keys and the partial-byte
// extraction, longest-common-prefix, and +/-1 utilities the ART traversal
// needs. Keys are a compile-time-bounded number of bytes (Len), unlike the
// teacher's variable-length multimap.Key, because the on-wire Leaf and
// InternalEntry layouts bake in a fixed key size (see package node).
package key

import (
	"encoding/binary"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Len is the fixed key width in bytes. It mirrors define::keyLen in the
// original design (8 bytes, enough for a uint64 workload key).
const Len = 8

// Key is a fixed-width, comparable byte key — comparable so it can be used
// directly as a Go map key (range_query returns map[key.Key]node.Value).
type Key [Len]byte

// FromBytes copies up to Len bytes of b into a Key, zero-padding on the
// right if b is shorter and truncating if it is longer — matching the
// original str2key behavior.
func FromBytes(b []byte) Key {
	var k Key
	n := len(b)
	if n > Len {
		n = Len
	}
	copy(k[:], b[:n])
	return k
}

// FromString normalizes s to Unicode NFC (matching the teacher's
// multimap.FromString) and takes its UTF-8 bytes as a fixed-width Key.
func FromString(s string) Key {
	return FromBytes([]byte(norm.NFC.String(s)))
}

// FromUint64 encodes u as an 8-byte big-endian Key so that lexicographic Key
// order matches numeric order.
func FromUint64(u uint64) Key {
	var k Key
	binary.BigEndian.PutUint64(k[:], u)
	return k
}

// ToUint64 is the inverse of FromUint64 over the first 8 bytes of k.
func ToUint64(k Key) uint64 {
	return binary.BigEndian.Uint64(k[:])
}

// Bytes returns a copy of k as a byte slice.
func (k Key) Bytes() []byte {
	b := make([]byte, Len)
	copy(b, k[:])
	return b
}

func (k Key) String() string {
	const hex = "0123456789abcdef"
	var sb strings.Builder
	sb.WriteByte('[')
	for i, b := range k {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte(hex[b>>4])
		sb.WriteByte(hex[b&0x0F])
	}
	sb.WriteByte(']')
	return sb.String()
}

// Less reports whether a is lexicographically less than b.
func Less(a, b Key) bool {
	for i := 0; i < Len; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Compare returns -1, 0, or 1 per the usual comparison convention.
func Compare(a, b Key) int {
	for i := 0; i < Len; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Partial returns the byte of k at position depth-1 (1-indexed, "the byte
// consumed to reach depth"), or 0 at depth 0. This is the core extraction
// primitive ART traversal uses at every level.
func Partial(k Key, depth int) uint8 {
	if depth == 0 {
		return 0
	}
	return k[depth-1]
}

// Leftmost returns the key that agrees with k on its first depth bytes and
// is zero-padded afterwards — the smallest key sharing that prefix.
func Leftmost(k Key, depth int) Key {
	var res Key
	copy(res[:depth], k[:depth])
	return res
}

// Rightmost returns the key that agrees with k on its first depth bytes and
// is 0xFF-padded afterwards — the largest key sharing that prefix.
func Rightmost(k Key, depth int) Key {
	var res Key
	copy(res[:depth], k[:depth])
	for i := depth; i < Len; i++ {
		res[i] = 0xFF
	}
	return res
}

// RemakePrefix rebuilds the key prefix of a node's header after substituting
// the byte at depth-1 with diffPartial — used when range query narrows a
// from/to bound along a chosen tree edge.
func RemakePrefix(k Key, depth int, diffPartial uint8) Key {
	var res Key
	if depth > 0 {
		copy(res[:depth-1], k[:depth-1])
		res[depth-1] = diffPartial
	}
	return res
}

// LCP returns the number of consecutive bytes a and b agree on, starting at
// depth, up to the remaining key length.
func LCP(a, b Key, depth int) int {
	max := Len - depth
	i := 0
	for ; i < max; i++ {
		if Partial(a, depth+i+1) != Partial(b, depth+i+1) {
			return i
		}
	}
	return i
}

// Add1 returns k+1 with carry propagating from the last byte leftwards.
// Overflow past the first byte is undefined behavior (the caller must avoid
// it), matching the original design's documented limitation.
func Add1(k Key) Key {
	res := k
	for i := Len - 1; i >= 0; i-- {
		if res[i] < 0xFF {
			res[i]++
			return res
		}
		res[i] = 0
	}
	return res
}

// Sub1 returns k-1 with borrow propagating from the last byte leftwards.
// Underflow past the first byte (k == zero key) is undefined behavior.
func Sub1(k Key) Key {
	res := k
	for i := Len - 1; i >= 0; i-- {
		if res[i] > 0 {
			res[i]--
			return res
		}
		res[i] = 0xFF
	}
	return res
}
