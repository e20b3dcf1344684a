package node

import (
	"testing"

	"github.com/dmemtree/smarttree/gaddr"
)

func TestNewLeafEntryRoundTrip(t *testing.T) {
	addr := gaddr.Make(3, 0x1200)
	e := NewLeafEntry(0xAB, 8, addr)
	if !e.IsLeaf() {
		t.Errorf("expected leaf entry")
	}
	if e.Partial() != 0xAB {
		t.Errorf("Partial() = %x, want AB", e.Partial())
	}
	if e.KVLen() != 8 {
		t.Errorf("KVLen() = %d, want 8", e.KVLen())
	}
	if got := e.Addr(); got != addr {
		t.Errorf("Addr() = %v, want %v", got, addr)
	}
}

func TestNewNodeEntryRoundTrip(t *testing.T) {
	addr := gaddr.Make(7, 0x4000)
	e := NewNodeEntry(0x01, nodeType3, addr)
	if e.IsLeaf() {
		t.Errorf("expected non-leaf entry")
	}
	if e.NodeType() != nodeType3 {
		t.Errorf("NodeType() = %v, want nodeType3", e.NodeType())
	}
	if got := e.Addr(); got != addr {
		t.Errorf("Addr() = %v, want %v", got, addr)
	}
}

func TestEntryUint64RoundTrip(t *testing.T) {
	addr := gaddr.Make(1, 0x800)
	e := NewLeafEntry(0x10, 4, addr)
	e2 := EntryFromUint64(e.Uint64())
	if e2 != e {
		t.Errorf("EntryFromUint64(e.Uint64()) = %v, want %v", e2, e)
	}
}

func TestEntryWithPartial(t *testing.T) {
	addr := gaddr.Make(0, 0x80)
	e := NewLeafEntry(0x01, 2, addr)
	e2 := e.WithPartial(0xFE)
	if e2.Partial() != 0xFE {
		t.Errorf("WithPartial did not update Partial()")
	}
	if e2.KVLen() != e.KVLen() || e2.Addr() != e.Addr() || e2.IsLeaf() != e.IsLeaf() {
		t.Errorf("WithPartial disturbed other fields")
	}
}

func TestEntryWithNodeType(t *testing.T) {
	addr := gaddr.Make(2, 0x100)
	e := NewNodeEntry(0x05, nodeType1, addr)
	e2 := e.WithNodeType(nodeType4)
	if e2.NodeType() != nodeType4 {
		t.Errorf("WithNodeType did not update NodeType()")
	}
	if e2.Partial() != e.Partial() || e2.Addr() != e.Addr() {
		t.Errorf("WithNodeType disturbed other fields")
	}
}

func TestNullEntry(t *testing.T) {
	if !NullEntry.IsNull() {
		t.Errorf("NullEntry.IsNull() should be true")
	}
	addr := gaddr.Make(0, 0x40)
	e := NewLeafEntry(0, 1, addr)
	if e.IsNull() {
		t.Errorf("a constructed entry with nonzero fields should not be null")
	}
}
