package table

import (
	"net/url"
	"strconv"
)

// Page is one bounded slice of a larger record set.
type Page[T any] struct {
	Items      []T // Items in server order
	TotalPages int // TotalPages is always at least 1
}

// NewPage creates a Page, treating a non-positive total as a single page.
func NewPage[T any](items []T, totalPages int) *Page[T] {
	if totalPages < 1 {
		totalPages = 1
	}
	return &Page[T]{Items: items, TotalPages: totalPages}
}

// TotalPagesFor returns the number of pages needed for total records at limit per page.
func TotalPagesFor(total, limit int64) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	return int((total + limit - 1) / limit)
}

// FetchRequest is what a fetcher receives for one page.
type FetchRequest struct {
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
	Search string `json:"search"`
	SortBy string `json:"sortBy"` // field:ASC or field:DESC
}

// Offset returns the zero-based record offset of the requested page.
func (r FetchRequest) Offset() int {
	if r.Page < 1 {
		return 0
	}
	return (r.Page - 1) * r.Limit
}

// Query encodes the request as URL query parameters.
func (r FetchRequest) Query() url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(r.Page))
	q.Set("limit", strconv.Itoa(r.Limit))
	q.Set("search", r.Search)
	q.Set("sortBy", r.SortBy)
	return q
}

// Key is a canonical string identifying the request, stable across calls.
func (r FetchRequest) Key() string {
	return r.Query().Encode()
}
