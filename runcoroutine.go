package smarttree

import (
	"context"

	"github.com/dmemtree/smarttree/corort"
	"github.com/dmemtree/smarttree/key"
)

// NumCoroSlots reports how many corort worker goroutines this Tree owns
// (Config.NumCoroSlots), the range RunCoroutine's slot argument must stay
// within.
func (t *Tree) NumCoroSlots() int {
	return t.coro.NumSlots()
}

// RunCoroutine implements §4.8's client coroutine runtime as the public
// entry point a caller drives concurrency through: fn runs to completion
// on slot's dedicated worker goroutine, with RunCoroutine blocking until
// it does. Submitting fn here is the Go-native analog of the original
// tagging every one-sided op with a coroutine sink and yielding — corort
// supplies the scheduling, fn supplies the logical unit of work (normally
// one SearchOn/InsertOn call, so its telemetry lands in the right slot's
// counters).
//
// Per-coroutine submission order equals completion order (§4.8's ordering
// guarantee); across different slots there is no ordering relationship.
func (t *Tree) RunCoroutine(ctx context.Context, slot corort.Slot, fn func(ctx context.Context, tree *Tree, slot corort.Slot) error) error {
	return t.coro.Submit(ctx, slot, func(ctx context.Context, s corort.Slot) error {
		return fn(ctx, t, s)
	})
}

// SearchOn is Search with an explicit corort slot, for callers driving
// concurrency through RunCoroutine: telemetry (cache hit/miss, retries,
// node reads) is keyed by slot exactly as the original keys its per-thread
// counter arrays by coroutine id.
func (t *Tree) SearchOn(ctx context.Context, slot corort.Slot, k key.Key) (Value, bool, error) {
	return t.search(ctx, int(slot), k)
}

// InsertOn is Insert with an explicit corort slot; see SearchOn.
func (t *Tree) InsertOn(ctx context.Context, slot corort.Slot, k key.Key, v Value, opts ...InsertOption) error {
	o := insertOptions{update: true}
	for _, apply := range opts {
		apply(&o)
	}
	return t.insert(ctx, int(slot), k, v, o)
}
