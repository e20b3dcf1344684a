package key

import "testing"

func TestFromUint64ToUint64RoundTrip(t *testing.T) {
	vals := []uint64{0, 1, 42, 0xFFFFFFFFFFFFFFFF, 0x0102030405060708}
	for _, v := range vals {
		k := FromUint64(v)
		if got := ToUint64(k); got != v {
			t.Fatalf("round trip %d: got %d", v, got)
		}
	}
}

func TestPartial(t *testing.T) {
	k := FromUint64(0x0102030405060708)
	if Partial(k, 0) != 0 {
		t.Fatalf("Partial(k,0) should be 0")
	}
	if Partial(k, 1) != 0x01 {
		t.Fatalf("Partial(k,1) = %x, want 0x01", Partial(k, 1))
	}
	if Partial(k, 8) != 0x08 {
		t.Fatalf("Partial(k,8) = %x, want 0x08", Partial(k, 8))
	}
}

func TestLCPIdenticalKeys(t *testing.T) {
	k := FromUint64(12345)
	if got := LCP(k, k, 0); got != Len {
		t.Fatalf("LCP(k,k,0) = %d, want %d", got, Len)
	}
	if got := LCP(k, k, 3); got != Len-3 {
		t.Fatalf("LCP(k,k,3) = %d, want %d", got, Len-3)
	}
}

func TestLCPDivergingKeys(t *testing.T) {
	a := FromBytes([]byte{0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01})
	b := FromBytes([]byte{0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x02})
	if got := LCP(a, b, 0); got != 7 {
		t.Fatalf("LCP = %d, want 7", got)
	}
}

func TestLeftmostRightmost(t *testing.T) {
	k := FromBytes([]byte{0xAB, 0xCD, 0, 0, 0, 0, 0, 0})
	lm := Leftmost(k, 2)
	if Partial(lm, 1) != 0xAB || Partial(lm, 2) != 0xCD {
		t.Fatalf("leftmost prefix mismatch: %v", lm)
	}
	for i := 3; i <= Len; i++ {
		if Partial(lm, i) != 0 {
			t.Fatalf("leftmost padding at %d should be 0, got %x", i, Partial(lm, i))
		}
	}
	rm := Rightmost(k, 2)
	for i := 3; i <= Len; i++ {
		if Partial(rm, i) != 0xFF {
			t.Fatalf("rightmost padding at %d should be 0xFF, got %x", i, Partial(rm, i))
		}
	}
}

func TestAdd1Sub1RoundTrip(t *testing.T) {
	k := FromUint64(100)
	if got := ToUint64(Add1(k)); got != 101 {
		t.Fatalf("Add1: got %d, want 101", got)
	}
	if got := ToUint64(Sub1(k)); got != 99 {
		t.Fatalf("Sub1: got %d, want 99", got)
	}
}

func TestAdd1Carry(t *testing.T) {
	k := FromBytes([]byte{0, 0, 0, 0, 0, 0, 0, 0xFF})
	got := Add1(k)
	want := FromBytes([]byte{0, 0, 0, 0, 0, 0, 1, 0})
	if got != want {
		t.Fatalf("Add1 carry: got %v, want %v", got, want)
	}
}

func TestSub1Borrow(t *testing.T) {
	k := FromBytes([]byte{0, 0, 0, 0, 0, 0, 1, 0})
	got := Sub1(k)
	want := FromBytes([]byte{0, 0, 0, 0, 0, 0, 0, 0xFF})
	if got != want {
		t.Fatalf("Sub1 borrow: got %v, want %v", got, want)
	}
}

func TestLess(t *testing.T) {
	a := FromUint64(1)
	b := FromUint64(2)
	if !Less(a, b) {
		t.Fatalf("expected 1 < 2")
	}
	if Less(b, a) {
		t.Fatalf("expected !(2 < 1)")
	}
	if Less(a, a) {
		t.Fatalf("expected !(a < a)")
	}
}

func TestFromStringTruncatesAndPads(t *testing.T) {
	short := FromString("hi")
	if short[0] != 'h' || short[1] != 'i' || short[2] != 0 {
		t.Fatalf("short string key: %v", short)
	}
	long := FromString("0123456789")
	if long.Bytes()[0] != '0' || len(long.Bytes()) != Len {
		t.Fatalf("long string key should truncate to Len bytes: %v", long)
	}
}

func TestKeyIsComparableMapKey(t *testing.T) {
	m := map[Key]int{}
	m[FromUint64(1)] = 10
	m[FromUint64(2)] = 20
	if m[FromUint64(1)] != 10 {
		t.Fatalf("Key should work as a map key")
	}
}
