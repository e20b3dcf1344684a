package chunkalloc

import (
	"testing"

	"github.com/dmemtree/smarttree/gaddr"
)

func TestMallocNeedsChunkBeforeFirstSetChunk(t *testing.T) {
	a := New()
	_, needChunk := a.Malloc(64, true)
	if !needChunk {
		t.Fatalf("first Malloc before any SetChunk should report needChunk")
	}
}

func TestMallocWithinChunk(t *testing.T) {
	a := New()
	chunk := gaddr.Make(1, 0x10000)
	a.SetChunk(chunk)

	addr1, needChunk := a.Malloc(64, false)
	if needChunk {
		t.Fatalf("Malloc within a fresh chunk should not need a new chunk")
	}
	if addr1 != chunk {
		t.Errorf("first Malloc should return the chunk start, got %v want %v", addr1, chunk)
	}
	addr2, needChunk2 := a.Malloc(32, false)
	if needChunk2 {
		t.Fatalf("second Malloc should still fit in the chunk")
	}
	if addr2.Offset() != addr1.Offset()+64 {
		t.Errorf("bump pointer should advance by the previous size, got offset %x want %x", addr2.Offset(), addr1.Offset()+64)
	}
}

func TestMallocExhaustsChunk(t *testing.T) {
	a := New()
	chunk := gaddr.Make(1, 0x10000)
	a.SetChunk(chunk)
	_, needChunk := a.Malloc(ChunkSize+1, false)
	if !needChunk {
		t.Fatalf("Malloc larger than the chunk should report needChunk")
	}
}

func TestFreeListReuse(t *testing.T) {
	a := New()
	chunk := gaddr.Make(1, 0x10000)
	a.SetChunk(chunk)

	freed := gaddr.Make(1, 0x2000)
	a.Free(freed, 128)

	a2 := New() // simulate exhaustion by never setting a chunk
	addr, needChunk := a2.Malloc(64, false)
	if !needChunk {
		t.Fatalf("with no chunk and an empty free list, Malloc must report needChunk")
	}
	_ = addr

	a.cur = gaddr.Add(a.head, ChunkSize) // force exhaustion on the real allocator
	got, needChunk2 := a.Malloc(64, false)
	if needChunk2 {
		t.Fatalf("Malloc should satisfy from the free list instead of reporting needChunk")
	}
	if got != freed {
		t.Errorf("Malloc should return the free-list entry, got %v want %v", got, freed)
	}
}

func TestAlignment(t *testing.T) {
	a := New()
	chunk := gaddr.Make(1, 0x10000)
	a.SetChunk(chunk)
	a.Malloc(3, true) // advances cur to offset 3, unaligned
	addr, needChunk := a.Malloc(8, true)
	if needChunk {
		t.Fatalf("unexpected needChunk")
	}
	if addr.Offset()%(1<<gaddr.AllocAlignBits) != 0 {
		t.Errorf("aligned Malloc should return an address rounded up to the alignment, got offset %x", addr.Offset())
	}
}
