package querycache

// Paged is the cached value of an infinite query: an ordered list of pages,
// each an ordered list of items. All operations return a new value; cached
// values are replaced wholesale, never mutated in place, so a retained
// snapshot stays valid for rollback.
type Paged[T any] struct {
	Pages [][]T `json:"pages" msgpack:"pages"`
}

// AppendPage adds a page at the tail, preserving fetch order.
func (p Paged[T]) AppendPage(page []T) Paged[T] {
	pages := make([][]T, 0, len(p.Pages)+1)
	pages = append(pages, p.Pages...)
	pages = append(pages, page)
	return Paged[T]{Pages: pages}
}

// PrependToFirstPage puts newly created items at the head of the first page
// so they show at the most-recent position without a refetch.
func (p Paged[T]) PrependToFirstPage(items ...T) Paged[T] {
	if len(p.Pages) == 0 {
		return Paged[T]{Pages: [][]T{items}}
	}
	first := make([]T, 0, len(items)+len(p.Pages[0]))
	first = append(first, items...)
	first = append(first, p.Pages[0]...)

	pages := make([][]T, len(p.Pages))
	copy(pages, p.Pages)
	pages[0] = first
	return Paged[T]{Pages: pages}
}

// Map applies fn to every item, returning a new Paged. Used for in-place-
// looking edits (flip a flag on one post) without touching the old value.
func (p Paged[T]) Map(fn func(T) T) Paged[T] {
	pages := make([][]T, len(p.Pages))
	for i, page := range p.Pages {
		out := make([]T, len(page))
		for j, item := range page {
			out[j] = fn(item)
		}
		pages[i] = out
	}
	return Paged[T]{Pages: pages}
}

// Filter keeps only items for which fn returns true.
func (p Paged[T]) Filter(fn func(T) bool) Paged[T] {
	pages := make([][]T, len(p.Pages))
	for i, page := range p.Pages {
		out := make([]T, 0, len(page))
		for _, item := range page {
			if fn(item) {
				out = append(out, item)
			}
		}
		pages[i] = out
	}
	return Paged[T]{Pages: pages}
}

// Flatten concatenates pages in order, preserving intra-page order.
func (p Paged[T]) Flatten() []T {
	n := 0
	for _, page := range p.Pages {
		n += len(page)
	}
	out := make([]T, 0, n)
	for _, page := range p.Pages {
		out = append(out, page...)
	}
	return out
}

// Len is the total item count across pages.
func (p Paged[T]) Len() int {
	n := 0
	for _, page := range p.Pages {
		n += len(page)
	}
	return n
}
