// Package transport defines the one-sided-verb contract a Tree issues
// against remote memory: the Go analog of DSM in the original design.
// Every verb here is a single round trip to one memory node — there is
// no index logic on the other end, only byte storage and the handful of
// atomic primitives (CAS, CAS-mask, fetch-and-add) a real RDMA NIC offers
// one-sided. smarttree's tree logic reaches remote memory only through
// this interface (cmd/smarttree-demo imports this package just to build a
// Loopback): a real deployment swaps Loopback for a client wired to an actual
// RDMA fabric without touching any tree logic.
package transport

import (
	"context"
	"errors"

	"github.com/dmemtree/smarttree/gaddr"
)

// Space selects which of a memory node's two address spaces a verb
// targets: Main is the bulk page/leaf storage, OnChip is the tiny
// NIC-local memory used for the on-chip-lock coordination pattern
// (ON_CHIP_SIZE in the original), addressed by the same gaddr.Addr
// namespace but backed by separate, much smaller, word-addressable
// storage used only for leaf locks via CAS-mask.
type Space uint8

const (
	SpaceMain Space = iota
	SpaceOnChip
)

// ErrAllocationFailed wraps any failure of the chunk-granting RPC
// (Allocator.Malloc) — the only transport-layer failure mode a Tree
// treats as unrecoverable rather than as a retry signal, since an
// exhausted cluster can't be waited out by restarting from the root.
var ErrAllocationFailed = errors.New("transport: remote chunk allocation failed")

// Transport is the one-sided verb surface a Tree drives. Every method
// blocks the calling goroutine until its round trip completes; corort
// supplies the concurrency (many goroutines each blocked on their own
// verb) that a coroutine-per-request model would otherwise provide via
// explicit yield points. A Transport is shared by every goroutine driving
// one Tree and must be safe for concurrent use.
type Transport interface {
	Read(ctx context.Context, space Space, addr gaddr.Addr, size int) ([]byte, error)
	Write(ctx context.Context, space Space, addr gaddr.Addr, data []byte) error

	// CAS compares the 8 bytes at addr against old and, if equal, writes
	// new, returning whether the swap happened.
	CAS(ctx context.Context, space Space, addr gaddr.Addr, old, new uint64) (bool, error)

	// CASMask is a masked CAS: only the bits set in mask are compared
	// against old and written from new; the rest of the word is left
	// untouched. Used by node-type grow to update a header's node_type
	// field without disturbing depth/partial bytes packed into the same
	// word, and by the on-chip lock region's single-bit leaf locks.
	CASMask(ctx context.Context, space Space, addr gaddr.Addr, old, new, mask uint64) (bool, error)

	// FAABoundary performs a fetch-and-add of addVal into the bits
	// selected by mask at addr, returning the pre-add value of the full
	// word — used by the ROWEX baseline's reader/writer counters and by
	// statistics counters kept in remote memory.
	FAABoundary(ctx context.Context, space Space, addr gaddr.Addr, addVal uint64, mask uint64) (uint64, error)

	// ReadBatch issues len(ops) reads concurrently, each independent of
	// the others, returning results in the same order as ops — the
	// primitive behind range query's "batch-read all surviving entries"
	// step.
	ReadBatch(ctx context.Context, ops []ReadOp) ([][]byte, error)

	// WriteBatch issues len(ops) writes concurrently; it fails the whole
	// call on the first error, since writes in this protocol are never
	// best-effort — a failed one means the caller's retry loop restarts
	// from the root anyway.
	WriteBatch(ctx context.Context, ops []WriteOp) error

	// CASRead performs a CAS, then — only if it succeeded — a read,
	// folded into one blocking call so a caller doesn't pay two
	// scheduling round trips for a verb pair it always issues together
	// (acquiring a lock, then reading the data it guards).
	CASRead(ctx context.Context, cas CASOp, read ReadOp) (swapped bool, data []byte, err error)

	// ReadCAS performs a read, then a CAS, regardless of the read's
	// content — used where the read result only informs what the caller
	// does with a later verb, not whether to attempt this CAS.
	ReadCAS(ctx context.Context, read ReadOp, cas CASOp) (data []byte, swapped bool, err error)

	// CASWrite performs a CAS, then — only if it succeeded — a write.
	CASWrite(ctx context.Context, cas CASOp, write WriteOp) (swapped bool, err error)

	// WriteCAS performs a write, then a CAS — the out-of-place update
	// pattern: publish new data, then swing the parent pointer onto it.
	WriteCAS(ctx context.Context, write WriteOp, cas CASOp) (swapped bool, err error)

	// WriteCASMask is WriteCAS with a masked second verb.
	WriteCASMask(ctx context.Context, write WriteOp, cas CASMaskOp) (swapped bool, err error)

	// WriteFAA performs a write, then a fetch-and-add — used by
	// lock-handover's write-and-unlock batching (publish the new value,
	// then clear the lock bit via FAA in the same round trip).
	WriteFAA(ctx context.Context, write WriteOp, faa FAAOp) (preAdd uint64, err error)

	// TwoCASMask performs two independent masked CASes in one round
	// trip, reporting each swap's success — used by node-type grow, which
	// must retype the node's header and its parent entry's node_type field
	// atomically-as-a-pair from the client's point of view.
	TwoCASMask(ctx context.Context, first, second CASMaskOp) (firstSwapped, secondSwapped bool, err error)

	// Poll blocks until at least count previously-issued asynchronous
	// verbs complete (or ctx is done), returning how many did. A
	// synchronous Transport such as Loopback can implement this as a
	// no-op returning count immediately, since every verb above already
	// blocks to completion.
	Poll(ctx context.Context, count int) (completed int, err error)

	// PollOnce is the non-blocking single-completion poll: it reports at
	// most one completion without waiting, for a caller that wants to
	// interleave polling with other work rather than block.
	PollOnce(ctx context.Context) (completionID uint64, ok bool, err error)

	// PollBatch is the non-blocking variant of Poll: it drains up to
	// maxCount already-completed verbs without waiting for more.
	PollBatch(ctx context.Context, maxCount int) (completionIDs []uint64, err error)
}

// CASOp / CASMaskOp / FAAOp bundle the arguments of the verbs above so
// they can be passed around as values and used inside the paired-verb
// methods without repeating every field.
type CASOp struct {
	Space    Space
	Addr     gaddr.Addr
	Old, New uint64
}

type CASMaskOp struct {
	Space         Space
	Addr          gaddr.Addr
	Old, New, Mask uint64
}

type FAAOp struct {
	Space  Space
	Addr   gaddr.Addr
	AddVal uint64
	Mask   uint64
}

// ReadOp is one leg of a ReadBatch call or a paired verb.
type ReadOp struct {
	Space Space
	Addr  gaddr.Addr
	Size  int
}

// WriteOp is one leg of a WriteBatch call or a paired verb.
type WriteOp struct {
	Space Space
	Addr  gaddr.Addr
	Data  []byte
}

// Allocator is the RPC fallback a chunkalloc.Allocator calls into once
// its local bump allocator reports needChunk — the original's MALLOC
// message to the directory thread owning a memory node.
type Allocator interface {
	// Malloc requests a fresh chunk on memory node node's directory dir,
	// returning its base address and actual size (normally
	// chunkalloc.ChunkSize).
	Malloc(ctx context.Context, node uint16, dir int) (base gaddr.Addr, size int, err error)
}
