package gaddr

import "testing"

func TestMakeNodeIDAndOffset(t *testing.T) {
	a := Make(7, 0x123456789)
	if a.NodeID() != 7 {
		t.Fatalf("NodeID() = %d, want 7", a.NodeID())
	}
	if a.Offset() != 0x123456789 {
		t.Fatalf("Offset() = %#x, want %#x", a.Offset(), 0x123456789)
	}
}

func TestNullIsZero(t *testing.T) {
	if Null != Addr(0) {
		t.Fatalf("Null should be the zero value")
	}
	if !Null.IsNull() {
		t.Fatalf("Null.IsNull() should be true")
	}
	if Make(0, 0) != Null {
		t.Fatalf("Make(0,0) should equal Null")
	}
}

func TestAdd(t *testing.T) {
	a := Make(3, 100)
	b := Add(a, 50)
	if b.NodeID() != 3 || b.Offset() != 150 {
		t.Fatalf("Add produced %v, want node 3 offset 150", b)
	}
	c := Add(b, -150)
	if c.Offset() != 0 {
		t.Fatalf("Add with negative delta = %v", c)
	}
}

func TestLess(t *testing.T) {
	a := Make(1, 10)
	b := Make(1, 20)
	c := Make(2, 0)
	if !Less(a, b) {
		t.Fatalf("expected a < b")
	}
	if Less(b, a) {
		t.Fatalf("expected !(b < a)")
	}
	if !Less(b, c) {
		t.Fatalf("expected lower node id to order first regardless of offset: b < c")
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	a := Make(42, 0x1000) // offset aligned to AllocAlignBits
	p := Pack(a)
	got := Unpack(p)
	if got != a {
		t.Fatalf("round trip: got %v, want %v", got, a)
	}
}

func TestPackedUint64RoundTrip(t *testing.T) {
	a := Make(200, 0x1000)
	p := Pack(a)
	v := p.PackUint64()
	got := UnpackUint64(v)
	if got != p {
		t.Fatalf("PackUint64 round trip: got %+v, want %+v", got, p)
	}
	if Unpack(got) != a {
		t.Fatalf("full round trip: got %v, want %v", Unpack(got), a)
	}
}

func TestMax(t *testing.T) {
	m := Max(16)
	if m.NodeID() != 16 || m.Offset() != 0 {
		t.Fatalf("Max(16) = %v", m)
	}
}
