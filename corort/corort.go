// Package corort is the Go stand-in for the original's stackful
// coroutine runtime (boost::coroutines symmetric_coroutine +
// CoroContext's yield/master/busy_waiting_queue triple). The original
// multiplexes coro_cnt coroutines onto one OS thread, yielding back to a
// master poll loop at every blocking RDMA verb so the thread can service
// other coroutines while one waits. Go goroutines are already stackful
// and cooperatively rescheduled at blocking points by the runtime
// scheduler, so Runtime maps one worker goroutine per coroutine slot
// directly onto the same contract: submit a unit of work against a slot,
// block the caller until it completes, and preserve the invariant that
// completions for one slot are observed in submission order.
package corort

import "context"

// Slot identifies one coroutine's worker goroutine, the analog of
// CoroContext.coro_id — used by telemetry to key per-coroutine counters.
type Slot int

// WorkFunc is one unit of work run on a Slot's worker goroutine: the
// analog of Tree::WorkFunc, given the slot id it's running on.
type WorkFunc func(ctx context.Context, slot Slot) error

// Runtime owns MaxCoroNum worker goroutines, each a long-lived loop
// pulling WorkFunc values off its own channel and running them to
// completion before taking the next — the direct analog of one app
// thread's coro_cnt coroutines cycling through a master poll loop, with
// Go's scheduler playing the role the original's explicit yield/resume
// pair plays between a blocked coroutine and the master.
type Runtime struct {
	slots   []chan task
	results []chan error
	done    chan struct{}
}

type task struct {
	ctx context.Context
	fn  WorkFunc
	id  Slot
}

// New starts a Runtime with numSlots worker goroutines (MAX_CORO_NUM in
// the original, typically 8).
func New(numSlots int) *Runtime {
	r := &Runtime{
		slots:   make([]chan task, numSlots),
		results: make([]chan error, numSlots),
		done:    make(chan struct{}),
	}
	for i := 0; i < numSlots; i++ {
		r.slots[i] = make(chan task)
		r.results[i] = make(chan error)
		go r.worker(Slot(i))
	}
	return r
}

func (r *Runtime) worker(slot Slot) {
	in := r.slots[slot]
	out := r.results[slot]
	for {
		select {
		case t, ok := <-in:
			if !ok {
				return
			}
			out <- t.fn(t.ctx, t.id)
		case <-r.done:
			return
		}
	}
}

// Submit runs fn on slot's worker goroutine and blocks the caller until
// it completes — the synchronous analog of pushing fn's blocking points
// onto slot's busy_waiting_queue and yielding into the master loop until
// each one's predicate fires.
func (r *Runtime) Submit(ctx context.Context, slot Slot, fn WorkFunc) error {
	select {
	case r.slots[slot] <- task{ctx: ctx, fn: fn, id: slot}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-r.results[slot]:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NumSlots returns how many worker goroutines this Runtime owns.
func (r *Runtime) NumSlots() int { return len(r.slots) }

// Close stops every worker goroutine. A Runtime with in-flight Submit
// calls must not be closed concurrently with them.
func (r *Runtime) Close() {
	close(r.done)
}
