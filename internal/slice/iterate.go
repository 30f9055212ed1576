package slice

import (
	"context"
	"sync"
)

// FetchFunc fetches count items starting at start and reports the current total.
type FetchFunc[T any] func(ctx context.Context, start, count int) (items []T, total int, err error)

// IterOptions configures Iterate.
type IterOptions struct {
	PageSize int // items per fetch, default 1000
	Workers  int // concurrent page fetches, default 4
	Queue    int // items buffered ahead of the consumer, default PageSize
}

func (o IterOptions) withDefaults() IterOptions {
	if o.PageSize <= 0 {
		o.PageSize = 1000
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Queue <= 0 {
		o.Queue = o.PageSize
	}
	return o
}

// Iterator yields the items of a paged listing in order. Pages are fetched
// concurrently ahead of the consumer, bounded by the worker count and the
// queue size.
type Iterator[T any] struct {
	items  chan T
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

// Iterate starts fetching pages in the background. The caller must either
// read until Next returns false or call Stop.
func Iterate[T any](ctx context.Context, fetch FetchFunc[T], opts IterOptions) *Iterator[T] {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)
	it := &Iterator[T]{items: make(chan T, opts.Queue), cancel: cancel}
	go it.run(ctx, fetch, opts)
	return it
}

// Next returns the next item, or false once the listing is exhausted,
// failed or stopped.
func (it *Iterator[T]) Next() (T, bool) {
	v, ok := <-it.items
	return v, ok
}

// Err returns the first fetch error, if any.
func (it *Iterator[T]) Err() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.err
}

// Stop abandons the iteration and waits for in-flight fetches to drain.
func (it *Iterator[T]) Stop() {
	it.cancel()
	for range it.items {
	}
}

func (it *Iterator[T]) fail(err error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.err == nil {
		it.err = err
	}
}

type page[T any] struct {
	index int
	items []T
	err   error
}

func (it *Iterator[T]) run(ctx context.Context, fetch FetchFunc[T], opts IterOptions) {
	defer close(it.items)
	defer it.cancel()

	first, total, err := fetch(ctx, 0, opts.PageSize)
	if err != nil {
		it.fail(err)
		return
	}
	if !it.emit(ctx, first) {
		return
	}
	pages := (total + opts.PageSize - 1) / opts.PageSize
	if pages <= 1 || len(first) < opts.PageSize {
		return
	}

	// Each dispatched page holds a token until it has been emitted, which
	// bounds the pages buffered out of order.
	tokens := make(chan struct{}, opts.Workers)
	jobs := make(chan int)
	results := make(chan page[T], opts.Workers)

	var wg sync.WaitGroup
	for range opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				items, _, err := fetch(ctx, idx*opts.PageSize, opts.PageSize)
				select {
				case results <- page[T]{index: idx, items: items, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for idx := 1; idx < pages; idx++ {
			select {
			case tokens <- struct{}{}:
			case <-ctx.Done():
				return
			}
			select {
			case jobs <- idx:
			case <-ctx.Done():
				return
			}
		}
	}()
	defer wg.Wait()
	defer it.cancel()

	pending := make(map[int]page[T])
	for next := 1; next < pages; {
		p, ok := pending[next]
		if !ok {
			select {
			case r := <-results:
				pending[r.index] = r
			case <-ctx.Done():
				return
			}
			continue
		}
		delete(pending, next)
		if p.err != nil {
			it.fail(p.err)
			return
		}
		if !it.emit(ctx, p.items) {
			return
		}
		<-tokens
		if len(p.items) < opts.PageSize {
			return
		}
		next++
	}
}

func (it *Iterator[T]) emit(ctx context.Context, items []T) bool {
	for _, v := range items {
		select {
		case it.items <- v:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
