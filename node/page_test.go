package node

import (
	"testing"

	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/key"
)

func TestNewInternalPageEmpty(t *testing.T) {
	k := key.FromUint64(1)
	rev := gaddr.Make(0, 0x100)
	p := NewInternalPage(k, 2, 0, nodeType1, rev)
	for i, e := range p.Entries {
		if !e.IsNull() {
			t.Fatalf("slot %d should start null", i)
		}
	}
	if p.RevPtr != rev {
		t.Errorf("RevPtr = %v, want %v", p.RevPtr, rev)
	}
}

func TestInternalPageEncodeDecodeRoundTrip(t *testing.T) {
	k := key.FromUint64(0x0102030405060708)
	rev := gaddr.Make(2, 0x400)
	p := NewInternalPage(k, 3, 1, nodeType2, rev)
	p.Entries[5] = NewLeafEntry(0x42, 8, gaddr.Make(1, 0x800))
	p.Entries[9] = NewNodeEntry(0x43, nodeType1, gaddr.Make(3, 0xC00))

	buf := p.Encode()
	if len(buf) != AllocationPageSize {
		t.Fatalf("Encode() length = %d, want %d", len(buf), AllocationPageSize)
	}
	p2 := DecodeInternalPage(buf)
	if p2.RevPtr != p.RevPtr {
		t.Errorf("RevPtr round trip: got %v, want %v", p2.RevPtr, p.RevPtr)
	}
	if p2.Hdr != p.Hdr {
		t.Errorf("Hdr round trip: got %v, want %v", p2.Hdr, p.Hdr)
	}
	if p2.Entries[5] != p.Entries[5] {
		t.Errorf("Entries[5] round trip: got %v, want %v", p2.Entries[5], p.Entries[5])
	}
	if p2.Entries[9] != p.Entries[9] {
		t.Errorf("Entries[9] round trip: got %v, want %v", p2.Entries[9], p.Entries[9])
	}
}

func TestDecodeInternalPagePartialBuffer(t *testing.T) {
	k := key.FromUint64(7)
	p := NewInternalPage(k, 0, 0, nodeType1, gaddr.Null)
	p.Entries[0] = NewLeafEntry(1, 1, gaddr.Make(0, 0x100))
	full := p.Encode()

	truncated := full[:EntryOffset(1)]
	p2 := DecodeInternalPage(truncated)
	if p2.Entries[0] != p.Entries[0] {
		t.Errorf("Entries[0] should survive truncation to just past slot 0")
	}
	if !p2.Entries[1].IsNull() {
		t.Errorf("Entries[1] should stay null when buffer doesn't cover it")
	}
}

func TestInternalPageIsValid(t *testing.T) {
	k := key.FromUint64(1)
	rev := gaddr.Make(0, 0x100)
	p := NewInternalPage(k, 0, 3, nodeType1, rev)

	if !p.IsValid(rev, 3, true) {
		t.Errorf("freshly built page should be valid against its own rev_ptr and depth")
	}
	if p.IsValid(gaddr.Make(9, 9), 3, true) {
		t.Errorf("page should be invalid when rev_ptr mismatches and fromCache is true")
	}
	if !p.IsValid(gaddr.Make(9, 9), 3, false) {
		t.Errorf("rev_ptr mismatch should be ignored when fromCache is false")
	}
	if p.IsValid(rev, 2, true) {
		t.Errorf("page should be invalid when its header depth exceeds the caller's expected depth")
	}

	p.Hdr = p.Hdr.WithNodeType(NodeDeleted)
	if p.IsValid(rev, 3, true) {
		t.Errorf("a deleted page should never be valid")
	}
}
