package node

import (
	"encoding/binary"

	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/internal/crc64k"
	"github.com/dmemtree/smarttree/key"
)

// LeafSize is the on-wire byte size of a Leaf: rev_ptr, valid byte,
// checksum, key, value, lock byte. Matches define::simulatedValLen (the
// value is a fixed-width uint64, not a variable-length blob) and
// define::keyLen (8 bytes).
const LeafSize = RevPtrSize + 1 + 8 + key.Len + 8 + 1

// leaf byte offsets within its encoded form.
const (
	leafRevPtrOff    = 0
	leafValidOff     = leafRevPtrOff + RevPtrSize
	leafChecksumOff  = leafValidOff + 1
	leafKeyOff       = leafChecksumOff + 8
	leafValueOff     = leafKeyOff + key.Len
	leafLockOff      = leafValueOff + 8
)

// Leaf is the client-local decoded view of a remote leaf record. Value is
// the fixed 8-byte payload (define::simulatedValLen); RevPtr is the
// address of the InternalEntry slot that should point at this leaf, used
// to validate a leaf reached via a stale cached entry. Lock is the
// trailing byte of the record, the one the embedded-lock pattern sets and
// clears with a CAS-mask on the leaf's last 8-byte word; the on-chip-lock
// pattern uses a separate on-chip bit array instead and leaves Lock at 0.
type Leaf struct {
	RevPtr   gaddr.Addr
	Valid    bool
	Checksum uint64
	Key      key.Key
	Value    [8]byte
	Lock     uint8
}

// NewLeaf builds a fresh, valid, consistent leaf for k/v, reverse-pointing
// at revPtr.
func NewLeaf(k key.Key, v [8]byte, revPtr gaddr.Addr) *Leaf {
	l := &Leaf{RevPtr: revPtr, Valid: true, Key: k, Value: v}
	l.SetConsistent()
	return l
}

// SetConsistent recomputes and stores Checksum over the current Key/Value,
// the write-time half of the is_consistent/set_consistent invariant.
func (l *Leaf) SetConsistent() {
	l.Checksum = crc64k.Sum(l.Key.Bytes(), l.Value[:])
}

// IsConsistent reports whether Checksum still matches Key/Value — a leaf
// read mid-write (torn by a concurrent in-place update) fails this check
// and must be retried rather than trusted.
func (l *Leaf) IsConsistent() bool {
	return l.Checksum == crc64k.Sum(l.Key.Bytes(), l.Value[:])
}

// Invalidate marks l as logically deleted — set on the old leaf after an
// out-of-place update has published the new one, so a reader who still
// holds the old address can detect it's stale.
func (l *Leaf) Invalidate() {
	l.Valid = false
}

// Encode serializes l into its LeafSize on-wire byte form.
func (l *Leaf) Encode() []byte {
	buf := make([]byte, LeafSize)
	binary.LittleEndian.PutUint64(buf[leafRevPtrOff:], uint64(l.RevPtr))
	if l.Valid {
		buf[leafValidOff] = 1
	}
	binary.LittleEndian.PutUint64(buf[leafChecksumOff:], l.Checksum)
	copy(buf[leafKeyOff:], l.Key.Bytes())
	copy(buf[leafValueOff:], l.Value[:])
	buf[leafLockOff] = l.Lock
	return buf
}

// DecodeLeaf parses a LeafSize byte buffer into a Leaf.
func DecodeLeaf(buf []byte) *Leaf {
	l := &Leaf{}
	l.RevPtr = gaddr.Addr(binary.LittleEndian.Uint64(buf[leafRevPtrOff:]))
	l.Valid = buf[leafValidOff] != 0
	l.Checksum = binary.LittleEndian.Uint64(buf[leafChecksumOff:])
	l.Key = key.FromBytes(buf[leafKeyOff : leafKeyOff+key.Len])
	copy(l.Value[:], buf[leafValueOff:leafValueOff+8])
	l.Lock = buf[leafLockOff]
	return l
}
