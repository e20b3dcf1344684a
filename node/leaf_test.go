package node

import (
	"testing"

	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/key"
)

func TestNewLeafIsConsistent(t *testing.T) {
	k := key.FromUint64(123)
	var v [8]byte
	v[0] = 0xAA
	l := NewLeaf(k, v, gaddr.Make(0, 0x200))
	if !l.Valid {
		t.Errorf("new leaf should be valid")
	}
	if !l.IsConsistent() {
		t.Errorf("new leaf should be consistent")
	}
}

func TestLeafTornWriteDetected(t *testing.T) {
	k := key.FromUint64(1)
	var v [8]byte
	l := NewLeaf(k, v, gaddr.Null)
	l.Value[0] = 0xFF // simulate a torn in-place update: value changed without recomputing checksum
	if l.IsConsistent() {
		t.Errorf("leaf with stale checksum after value change should be inconsistent")
	}
}

func TestLeafInvalidate(t *testing.T) {
	k := key.FromUint64(1)
	var v [8]byte
	l := NewLeaf(k, v, gaddr.Null)
	l.Invalidate()
	if l.Valid {
		t.Errorf("Invalidate should clear Valid")
	}
}

func TestLeafEncodeDecodeRoundTrip(t *testing.T) {
	k := key.FromUint64(0x0A0B0C0D0E0F1011)
	var v [8]byte
	copy(v[:], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	rev := gaddr.Make(4, 0x1800)
	l := NewLeaf(k, v, rev)
	l.Lock = 1

	buf := l.Encode()
	if len(buf) != LeafSize {
		t.Fatalf("Encode() length = %d, want %d", len(buf), LeafSize)
	}
	l2 := DecodeLeaf(buf)
	if l2.RevPtr != l.RevPtr {
		t.Errorf("RevPtr round trip: got %v, want %v", l2.RevPtr, l.RevPtr)
	}
	if l2.Valid != l.Valid {
		t.Errorf("Valid round trip: got %v, want %v", l2.Valid, l.Valid)
	}
	if l2.Checksum != l.Checksum {
		t.Errorf("Checksum round trip: got %x, want %x", l2.Checksum, l.Checksum)
	}
	if l2.Key != l.Key {
		t.Errorf("Key round trip: got %v, want %v", l2.Key, l.Key)
	}
	if l2.Value != l.Value {
		t.Errorf("Value round trip: got %v, want %v", l2.Value, l.Value)
	}
	if l2.Lock != l.Lock {
		t.Errorf("Lock round trip: got %d, want %d", l2.Lock, l.Lock)
	}
}
