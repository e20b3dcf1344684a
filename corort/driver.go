package corort

import (
	"context"
	"sync"
)

// Generator produces the next unit of work for a slot, or ok==false once
// exhausted — the analog of RequstGen::next() paired with a slot running
// out of its assigned request range.
type Generator[T any] func() (req T, ok bool)

// RunWorkload drives gen across every one of r's slots concurrently,
// handing each item to work until gen is exhausted on every slot — the
// analog of Tree::run_coroutine(gen_func, work_func, coro_cnt, ...): one
// RequstGen per coroutine, run to completion, then the call returns once
// every coroutine's queue has drained.
func RunWorkload[T any](ctx context.Context, r *Runtime, gens []Generator[T], work func(ctx context.Context, slot Slot, req T) error) []error {
	errs := make([]error, len(gens))
	var wg sync.WaitGroup
	for i, gen := range gens {
		if i >= r.NumSlots() {
			break
		}
		wg.Add(1)
		go func(slot Slot, gen Generator[T]) {
			defer wg.Done()
			for {
				req, ok := gen()
				if !ok {
					return
				}
				if err := r.Submit(ctx, slot, func(ctx context.Context, s Slot) error {
					return work(ctx, s, req)
				}); err != nil {
					errs[slot] = err
					return
				}
			}
		}(Slot(i), gen)
	}
	wg.Wait()
	return errs
}
