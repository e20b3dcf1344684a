package corort

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsOnExpectedSlot(t *testing.T) {
	r := New(4)
	defer r.Close()

	ctx := context.Background()
	var sawSlot Slot = -1
	err := r.Submit(ctx, 2, func(_ context.Context, s Slot) error {
		sawSlot = s
		return nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sawSlot != 2 {
		t.Errorf("work ran on slot %d, want 2", sawSlot)
	}
}

func TestSubmitPropagatesError(t *testing.T) {
	r := New(2)
	defer r.Close()

	wantErr := errors.New("boom")
	err := r.Submit(context.Background(), 0, func(context.Context, Slot) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Submit() error = %v, want %v", err, wantErr)
	}
}

func TestSubmitOrderingWithinSlot(t *testing.T) {
	r := New(1)
	defer r.Close()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		if err := r.Submit(context.Background(), 0, func(context.Context, Slot) error {
			order = append(order, i)
			return nil
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("ordering broken: order = %v", order)
		}
	}
}

func TestSubmitRespectsContextCancellation(t *testing.T) {
	r := New(1)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Submit(ctx, 0, func(context.Context, Slot) error {
		return nil
	})
	if err == nil {
		t.Fatalf("Submit with an already-cancelled context should return an error")
	}
}

func TestRunWorkloadDrainsAllGenerators(t *testing.T) {
	r := New(4)
	defer r.Close()

	const perSlot = 10
	gens := make([]Generator[int], r.NumSlots())
	for i := range gens {
		remaining := perSlot
		gens[i] = func() (int, bool) {
			if remaining == 0 {
				return 0, false
			}
			remaining--
			return remaining, true
		}
	}

	var processed atomic.Int64
	errs := RunWorkload(context.Background(), r, gens, func(_ context.Context, _ Slot, _ int) error {
		processed.Add(1)
		return nil
	})
	for _, err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := processed.Load(); got != int64(perSlot*len(gens)) {
		t.Errorf("processed %d items, want %d", got, perSlot*len(gens))
	}
}

func TestCloseStopsWorkers(t *testing.T) {
	r := New(1)
	r.Close()

	done := make(chan struct{})
	go func() {
		r.Submit(context.Background(), 0, func(context.Context, Slot) error { return nil })
		close(done)
	}()
	select {
	case <-done:
		t.Fatalf("Submit should block forever against a closed Runtime's drained worker, not return")
	case <-time.After(50 * time.Millisecond):
	}
}
