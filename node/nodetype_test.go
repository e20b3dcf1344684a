package node

import "testing"

func TestNodeTypeToNumClassic(t *testing.T) {
	cases := []struct {
		t    NodeType
		want int
	}{
		{nodeType1, 4},
		{nodeType2, 16},
		{nodeType3, 48},
		{nodeType4, 256},
		{NodeDeleted, 0},
	}
	for _, c := range cases {
		if got := NodeTypeToNum(c.t, SchemeClassic, true); got != c.want {
			t.Errorf("NodeTypeToNum(%v, classic, true) = %d, want %d", c.t, got, c.want)
		}
	}
}

func TestNodeTypeToNumFineGrained(t *testing.T) {
	want := []int{0, 4, 8, 16, 32, 64, 128, 256}
	for i := 0; i <= 7; i++ {
		got := NodeTypeToNum(NodeType(i), SchemeFineGrained, true)
		if got != want[i] {
			t.Errorf("NodeTypeToNum(%d, fine, true) = %d, want %d", i, got, want[i])
		}
	}
}

func TestNodeTypeToNumARTDisabled(t *testing.T) {
	if got := NodeTypeToNum(nodeType1, SchemeClassic, false); got != PageSlots {
		t.Errorf("with art disabled, expected full PageSlots capacity, got %d", got)
	}
}

func TestNumToNodeTypeClassicRoundTrip(t *testing.T) {
	for _, n := range []int{1, 4, 15, 16, 47, 48, 200, 256} {
		nt := NumToNodeType(n, SchemeClassic, true)
		cap := NodeTypeToNum(nt, SchemeClassic, true)
		if cap < n {
			t.Errorf("NumToNodeType(%d) = %v with capacity %d, too small", n, nt, cap)
		}
	}
}

func TestNumToNodeTypeZeroIsDeleted(t *testing.T) {
	if got := NumToNodeType(0, SchemeClassic, true); got != NodeDeleted {
		t.Errorf("NumToNodeType(0) = %v, want NodeDeleted", got)
	}
}

func TestMaxNodeTypeOrdinal(t *testing.T) {
	if MaxNodeTypeOrdinal(SchemeClassic) != nodeType4 {
		t.Errorf("classic max ordinal should be nodeType4")
	}
	if MaxNodeTypeOrdinal(SchemeFineGrained) != nodeType7 {
		t.Errorf("fine-grained max ordinal should be nodeType7")
	}
}
