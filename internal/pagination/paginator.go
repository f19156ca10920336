// Package pagination splits ordered collections into fixed-size numbered pages.
package pagination

import (
	"context"
	"strconv"
	"strings"
)

// DefaultPerPage is the page size used across listing pages.
const DefaultPerPage = 10

// Source is an ordered collection that can be counted and sliced.
type Source[T any] interface {
	Count(ctx context.Context) (int64, error)
	Fetch(ctx context.Context, limit, offset int) ([]T, error)
}

// Page is one window of a paginated collection. Number is 1-based.
type Page[T any] struct {
	Items        []T   `json:"object_list"`
	Number       int   `json:"number"`
	NumPages     int   `json:"num_pages"`
	Count        int64 `json:"count"`
	PerPage      int   `json:"per_page"`
	HasNext      bool  `json:"has_next"`
	HasPrevious  bool  `json:"has_previous"`
	NextPage     int   `json:"next_page_number,omitempty"`
	PreviousPage int   `json:"previous_page_number,omitempty"`
	StartIndex   int64 `json:"start_index"`
	EndIndex     int64 `json:"end_index"`
}

// NumPages returns the page count for total items; an empty collection still has one page.
func NumPages(total int64, perPage int) int {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if total <= 0 {
		return 1
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}

// Resolve turns a raw page parameter into a valid page number.
// Non-integers fall back to 1, values below 1 become 1 and values past
// the end become the last page.
func Resolve(raw string, total int64, perPage int) int {
	last := NumPages(total, perPage)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	switch {
	case err != nil, n < 1:
		return 1
	case n > last:
		return last
	default:
		return n
	}
}

// Paginate counts src, resolves raw to a page number and fetches that window.
func Paginate[T any](ctx context.Context, src Source[T], raw string, perPage int) (*Page[T], error) {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	total, err := src.Count(ctx)
	if err != nil {
		return nil, err
	}

	number := Resolve(raw, total, perPage)
	var items []T
	if total > 0 {
		items, err = src.Fetch(ctx, perPage, (number-1)*perPage)
		if err != nil {
			return nil, err
		}
	}
	return build(items, number, total, perPage), nil
}

func build[T any](items []T, number int, total int64, perPage int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	numPages := NumPages(total, perPage)
	p := &Page[T]{
		Items:       items,
		Number:      number,
		NumPages:    numPages,
		Count:       total,
		PerPage:     perPage,
		HasNext:     number < numPages,
		HasPrevious: number > 1,
	}
	if p.HasNext {
		p.NextPage = number + 1
	}
	if p.HasPrevious {
		p.PreviousPage = number - 1
	}
	if total > 0 {
		p.StartIndex = int64((number-1)*perPage) + 1
		p.EndIndex = p.StartIndex + int64(len(items)) - 1
	}
	return p
}
