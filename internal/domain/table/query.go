package table

// QueryState is the complete query of one table. Transitions return a new
// value and never mutate the receiver.
type QueryState struct {
	Page            int
	PageSize        int
	RawSearch       string
	DebouncedSearch string
	Sort            Sort
}

// NewQueryState returns the state a table starts with.
func NewQueryState(pageSize int, sort Sort) QueryState {
	return QueryState{Page: 1, PageSize: pageSize, Sort: sort}
}

// WithRawSearch records a keystroke. The debounced search is left untouched.
func (q QueryState) WithRawSearch(raw string) QueryState {
	q.RawSearch = raw
	return q
}

// WithSettledSearch commits a debounced search value and resets to page 1.
func (q QueryState) WithSettledSearch(search string) QueryState {
	q.DebouncedSearch = search
	q.Page = 1
	return q
}

// WithSort applies a sort request for key.
func (q QueryState) WithSort(key string) QueryState {
	q.Sort = q.Sort.Toggle(key)
	return q
}

// WithPage moves to page, clamped to at least 1.
func (q QueryState) WithPage(page int) QueryState {
	if page < 1 {
		page = 1
	}
	q.Page = page
	return q
}

// Request builds the fetch request for the current state.
func (q QueryState) Request() FetchRequest {
	return FetchRequest{
		Page:   q.Page,
		Limit:  q.PageSize,
		Search: q.DebouncedSearch,
		SortBy: q.Sort.String(),
	}
}
