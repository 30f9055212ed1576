// Package slice serves stable pages of listings ordered newest first, and
// iterates over large listings from the client side.
package slice

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"maps"
	"slices"
	"strconv"
	"time"

	"mn-go/internal/fault"
)

// Params are the requested start offset and page size.
type Params struct {
	Start int
	Count int
}

// ParseParams parses start and count query values. Empty values take the
// defaults of 0 and defaultCount.
func ParseParams(start, count string, defaultCount int) (Params, error) {
	p := Params{Count: defaultCount}
	if start != "" {
		n, err := strconv.Atoi(start)
		if err != nil {
			return Params{}, fault.NewInvalidRequest("start must be an integer. start=%q", start)
		}
		p.Start = n
	}
	if count != "" {
		n, err := strconv.Atoi(count)
		if err != nil {
			return Params{}, fault.NewInvalidRequest("count must be an integer. count=%q", count)
		}
		p.Count = n
	}
	return p, p.Validate()
}

// Validate rejects negative values.
func (p Params) Validate() error {
	if p.Start < 0 {
		return fault.NewInvalidRequest("start must be a non-negative integer. start=%d", p.Start)
	}
	if p.Count < 0 {
		return fault.NewInvalidRequest("count must be a non-negative integer. count=%d", p.Count)
	}
	return nil
}

// Window clamps p to a result set of total rows and a maximum page size.
// A start at or past a non-empty total is rejected.
func Window(p Params, total, maxCount int) (Params, error) {
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	if total > 0 && p.Start >= total {
		return Params{}, fault.NewInvalidRequest("requested a non-existing slice. start=%d, count=%d, total=%d",
			p.Start, p.Count, total)
	}
	count := min(p.Count, total-p.Start)
	if maxCount > 0 {
		count = min(count, maxCount)
	}
	return Params{Start: p.Start, Count: max(count, 0)}, nil
}

// Cursor is the sort key of the last row served: the modified timestamp
// and the row id that breaks ties.
type Cursor struct {
	Timestamp time.Time
	ID        int64
}

// Before reports whether row (ts, id) strictly follows c in listing order.
func (c Cursor) Before(ts time.Time, id int64) bool {
	return ts.Before(c.Timestamp) || (ts.Equal(c.Timestamp) && id < c.ID)
}

// Fingerprint keys a position in a listing. filters are the normalized
// query filters, without start and count; subjects are the caller's
// effective subjects.
func Fingerprint(filters map[string]string, subjects []string, start int) string {
	sorted := slices.Sorted(maps.Keys(filters))
	pairs := make([][2]string, 0, len(sorted))
	for _, k := range sorted {
		pairs = append(pairs, [2]string{k, filters[k]})
	}
	subj := slices.Clone(subjects)
	slices.Sort(subj)

	b, _ := json.Marshal(struct {
		Filters  [][2]string `json:"f"`
		Subjects []string    `json:"s"`
		Start    int         `json:"start"`
	}{pairs, subj, start})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
