package slice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// numbers serves the integers [0, total) in pages.
func numbers(total int) (FetchFunc[int], *atomic.Int32) {
	var calls atomic.Int32
	return func(ctx context.Context, start, count int) ([]int, int, error) {
		calls.Add(1)
		var out []int
		for i := start; i < min(start+count, total); i++ {
			out = append(out, i)
		}
		return out, total, nil
	}, &calls
}

func drain(it *Iterator[int]) []int {
	var out []int
	for {
		v, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func TestIterate(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		opts      IterOptions
		wantCalls int32
	}{
		{name: "empty", total: 0, opts: IterOptions{PageSize: 10}, wantCalls: 1},
		{name: "single page", total: 7, opts: IterOptions{PageSize: 10}, wantCalls: 1},
		{name: "exact pages", total: 30, opts: IterOptions{PageSize: 10, Workers: 2}, wantCalls: 3},
		{name: "partial last page", total: 95, opts: IterOptions{PageSize: 10, Workers: 4, Queue: 3}, wantCalls: 10},
		{name: "defaults", total: 2500, wantCalls: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetch, calls := numbers(tt.total)
			it := Iterate(context.Background(), fetch, tt.opts)
			got := drain(it)

			if len(got) != tt.total {
				t.Fatalf("Iterate() yielded %d items, want %d", len(got), tt.total)
			}
			for i, v := range got {
				if v != i {
					t.Fatalf("item %d = %d, want items in order", i, v)
				}
			}
			if err := it.Err(); err != nil {
				t.Errorf("Err() = %v", err)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("fetches = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestIterate_OutOfOrderPages(t *testing.T) {
	// Later pages return first; the iterator must still yield in order.
	total := 50
	fetch := func(ctx context.Context, start, count int) ([]int, int, error) {
		time.Sleep(time.Duration(total-start) * 100 * time.Microsecond)
		var out []int
		for i := start; i < min(start+count, total); i++ {
			out = append(out, i)
		}
		return out, total, nil
	}
	got := drain(Iterate(context.Background(), fetch, IterOptions{PageSize: 5, Workers: 4}))
	if len(got) != total {
		t.Fatalf("Iterate() yielded %d items, want %d", len(got), total)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("item %d = %d, want items in order", i, v)
		}
	}
}

func TestIterate_Error(t *testing.T) {
	boom := errors.New("503 Service Unavailable")
	fetch := func(ctx context.Context, start, count int) ([]int, int, error) {
		if start >= 20 {
			return nil, 0, boom
		}
		out := make([]int, count)
		for i := range out {
			out[i] = start + i
		}
		return out, 100, nil
	}
	it := Iterate(context.Background(), fetch, IterOptions{PageSize: 10, Workers: 2})
	got := drain(it)
	if len(got) != 20 {
		t.Errorf("Iterate() yielded %d items before the failing page, want 20", len(got))
	}
	if !errors.Is(it.Err(), boom) {
		t.Errorf("Err() = %v, want %v", it.Err(), boom)
	}

	first := func(ctx context.Context, start, count int) ([]int, int, error) { return nil, 0, boom }
	it = Iterate(context.Background(), first, IterOptions{})
	if got := drain(it); len(got) != 0 || !errors.Is(it.Err(), boom) {
		t.Errorf("Iterate() = %d items, err %v", len(got), it.Err())
	}
}

func TestIterate_Stop(t *testing.T) {
	var (
		mu      sync.Mutex
		fetched int
	)
	fetch := func(ctx context.Context, start, count int) ([]int, int, error) {
		mu.Lock()
		fetched++
		mu.Unlock()
		out := make([]int, count)
		for i := range out {
			out[i] = start + i
		}
		return out, 1 << 20, nil
	}
	it := Iterate(context.Background(), fetch, IterOptions{PageSize: 10, Workers: 2, Queue: 1})
	for range 15 {
		if _, ok := it.Next(); !ok {
			t.Fatal("Next() = false before Stop")
		}
	}
	it.Stop()

	if _, ok := it.Next(); ok {
		t.Error("Next() = true after Stop")
	}
	mu.Lock()
	defer mu.Unlock()
	// Only pages already in flight at cancellation may still be fetched.
	if fetched > 20 {
		t.Errorf("fetched %d pages of an abandoned listing", fetched)
	}
}

func TestIterate_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetch, _ := numbers(1000)
	it := Iterate(ctx, fetch, IterOptions{PageSize: 10, Queue: 1})
	if _, ok := it.Next(); !ok {
		t.Fatal("Next() = false")
	}
	cancel()
	n := len(drain(it))
	if n >= 999 {
		t.Errorf("Iterate() yielded %d more items after cancel", n)
	}
}
