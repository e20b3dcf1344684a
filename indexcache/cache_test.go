package indexcache

import (
	"testing"

	"github.com/dmemtree/smarttree/gaddr"
	"github.com/dmemtree/smarttree/key"
	"github.com/dmemtree/smarttree/node"
)

func buildPage(depth int, nt node.NodeType) *node.InternalPage {
	k := key.FromUint64(0x0102030405060708)
	return node.NewInternalPage(k, 0, depth, nt, gaddr.Null)
}

func testBothCaches(t *testing.T, build func(maxEntries int) Cache) {
	t.Helper()

	t.Run("AddThenLookupFindsLongestPrefix", func(t *testing.T) {
		c := build(16)
		k := key.FromUint64(0x0102030405060708)
		p := buildPage(2, node.NodeType(1))
		addr := gaddr.Make(1, 0x100)
		c.Add(k, p, addr)

		h, e := c.Lookup(k)
		if e == nil {
			t.Fatalf("expected a cache hit for the key used to build the entry")
		}
		if e.Addr != addr {
			t.Errorf("Entry.Addr = %v, want %v", e.Addr, addr)
		}
		if h == nil {
			t.Fatalf("Lookup should return a non-nil handle alongside a hit")
		}
	})

	t.Run("LookupMissReturnsNil", func(t *testing.T) {
		c := build(16)
		k := key.FromUint64(1)
		h, e := c.Lookup(k)
		if e != nil || h != nil {
			t.Errorf("Lookup on an empty cache should return (nil, nil), got (%v, %v)", h, e)
		}
	})

	t.Run("InvalidateRemovesEntry", func(t *testing.T) {
		c := build(16)
		k := key.FromUint64(0x0102030405060708)
		p := buildPage(1, node.NodeType(1))
		c.Add(k, p, gaddr.Make(0, 0x40))

		h, _ := c.Lookup(k)
		if h == nil {
			t.Fatalf("expected a hit before Invalidate")
		}
		c.Invalidate(h)

		if got := c.Len(); got != 0 {
			t.Errorf("Len() after invalidating the only entry = %d, want 0", got)
		}
	})

	t.Run("EvictsWhenOverCapacity", func(t *testing.T) {
		c := build(2)
		for i := uint64(0); i < 4; i++ {
			k := key.FromUint64(i + 1)
			p := buildPage(int(i%7)+1, node.NodeType(1))
			c.Add(k, p, gaddr.Make(0, 0x40*(i+1)))
		}
		if got := c.Len(); got > 2 {
			t.Errorf("Len() = %d, should never exceed maxEntries=2", got)
		}
	})
}

func TestFlatCache(t *testing.T) {
	testBothCaches(t, func(maxEntries int) Cache { return NewFlat(maxEntries) })
}

func TestRadixCache(t *testing.T) {
	testBothCaches(t, func(maxEntries int) Cache { return NewRadix(maxEntries) })
}

func TestSafelyFreeEpoch(t *testing.T) {
	if got := SafelyFreeEpoch(65, 8); got != 1040 {
		t.Errorf("SafelyFreeEpoch(65, 8) = %d, want 1040", got)
	}
}
