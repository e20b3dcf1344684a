package node

import (
	"testing"

	"github.com/dmemtree/smarttree/key"
)

func TestHeaderRoundTrip(t *testing.T) {
	k := key.FromUint64(0x0102030405060708)
	h := NewHeader(k, 3, 2, nodeType2)
	if h.Depth() != 2 {
		t.Errorf("Depth() = %d, want 2", h.Depth())
	}
	if h.NodeType() != nodeType2 {
		t.Errorf("NodeType() = %v, want nodeType2", h.NodeType())
	}
	if h.PartialLen() != 3 {
		t.Errorf("PartialLen() = %d, want 3", h.PartialLen())
	}
	for i := 0; i < 3; i++ {
		want := key.Partial(k, 2+i+1)
		if got := h.Partial(i); got != want {
			t.Errorf("Partial(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestHeaderUint64RoundTrip(t *testing.T) {
	k := key.FromUint64(42)
	h := NewHeader(k, 2, 5, nodeType3)
	h2 := HeaderFromUint64(h.Uint64())
	if h2 != h {
		t.Errorf("HeaderFromUint64(h.Uint64()) = %v, want %v", h2, h)
	}
}

func TestHeaderWithNodeType(t *testing.T) {
	k := key.FromUint64(1)
	h := NewHeader(k, 1, 0, nodeType1)
	h2 := h.WithNodeType(nodeType4)
	if h2.NodeType() != nodeType4 {
		t.Errorf("WithNodeType did not change NodeType")
	}
	if h2.Depth() != h.Depth() || h2.PartialLen() != h.PartialLen() {
		t.Errorf("WithNodeType disturbed other fields")
	}
}

func TestHeaderIsMatch(t *testing.T) {
	k := key.FromUint64(0x0102030405060708)
	h := NewHeader(k, 2, 1, nodeType1)
	if !h.IsMatch(k) {
		t.Errorf("IsMatch should be true for the key the header was built from")
	}
	other := key.FromUint64(0x0102FF0405060708)
	if h.IsMatch(other) {
		t.Errorf("IsMatch should be false once a compressed byte diverges")
	}
}

func TestSplitHeader(t *testing.T) {
	k := key.FromUint64(0x0102030405060708)
	old := NewHeader(k, 5, 1, nodeType2)
	split := SplitHeader(old, 1)
	if split.Depth() != old.Depth()+2 {
		t.Errorf("SplitHeader depth = %d, want %d", split.Depth(), old.Depth()+2)
	}
	if split.PartialLen() != old.PartialLen()-2 {
		t.Errorf("SplitHeader partial len = %d, want %d", split.PartialLen(), old.PartialLen()-2)
	}
	for i := 0; i < split.PartialLen(); i++ {
		if split.Partial(i) != old.Partial(i+2) {
			t.Errorf("SplitHeader partial[%d] = %d, want %d", i, split.Partial(i), old.Partial(i+2))
		}
	}
}
