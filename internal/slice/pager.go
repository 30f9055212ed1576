package slice

import (
	"context"
	"fmt"
)

// Source is a listing ordered by (timestamp desc, id desc).
type Source[T any] interface {
	Count(ctx context.Context) (int, error)
	// Fetch returns up to limit rows. When after is non-nil it returns the
	// rows that strictly follow the cursor and ignores offset.
	Fetch(ctx context.Context, after *Cursor, offset, limit int) ([]T, error)
}

// Result is one served page.
type Result[T any] struct {
	Start int
	Total int
	Items []T
	// Seek reports that the page was read from a cached cursor.
	Seek bool
}

// Pager serves pages of a Source. Sequential requests resume from the
// cursor left by the previous page instead of scanning past an offset, so
// rows added at the top of the listing between requests neither repeat nor
// displace rows in later pages.
type Pager[T any] struct {
	cache    *Cache
	maxCount int
	cursorOf func(T) Cursor
}

// NewPager creates a pager. cursorOf extracts the sort key of a row.
func NewPager[T any](cache *Cache, maxCount int, cursorOf func(T) Cursor) *Pager[T] {
	return &Pager[T]{cache: cache, maxCount: maxCount, cursorOf: cursorOf}
}

// Page serves the window params of src. filters and subjects identify the
// listing for the cursor cache.
func (p *Pager[T]) Page(ctx context.Context, src Source[T], filters map[string]string, subjects []string, params Params) (Result[T], error) {
	total, err := src.Count(ctx)
	if err != nil {
		return Result[T]{}, fmt.Errorf("counting rows: %w", err)
	}
	w, err := Window(params, total, p.maxCount)
	if err != nil {
		return Result[T]{}, err
	}
	res := Result[T]{Start: w.Start, Total: total}
	if w.Count == 0 {
		return res, nil
	}

	if w.Start > 0 {
		if cur, ok := p.cache.Get(Fingerprint(filters, subjects, w.Start)); ok {
			res.Items, err = src.Fetch(ctx, &cur, 0, w.Count)
			if err != nil {
				return Result[T]{}, fmt.Errorf("fetching rows after cursor: %w", err)
			}
			res.Seek = true
		}
	}
	if !res.Seek {
		res.Items, err = src.Fetch(ctx, nil, w.Start, w.Count)
		if err != nil {
			return Result[T]{}, fmt.Errorf("fetching rows at offset: %w", err)
		}
	}

	if n := len(res.Items); n > 0 {
		p.cache.Put(Fingerprint(filters, subjects, w.Start+n), p.cursorOf(res.Items[n-1]))
	}
	return res, nil
}
