package table

// Status is the render state of a table.
type Status string

const (
	StatusLoading Status = "loading"
	StatusError   Status = "error"
	StatusReady   Status = "ready"
)

// QueryView is the query part of a rendered table.
type QueryView struct {
	Page          int    `json:"page"`
	PageSize      int    `json:"pageSize"`
	Search        string `json:"search"`        // raw input as typed
	AppliedSearch string `json:"appliedSearch"` // debounced value sent to the fetcher
	SortKey       string `json:"sortKey"`
	SortDirection string `json:"sortDirection"`
	SortBy        string `json:"sortBy"`

	// Indicators holds the header arrow of every sortable column.
	Indicators map[string]string `json:"indicators,omitempty"`
}

// View is a rendered snapshot of a table. Items are only present when the
// status is ready.
type View struct {
	Table      string    `json:"table"`
	Status     Status    `json:"status"`
	Version    uint64    `json:"version"`
	Query      QueryView `json:"query"`
	Items      []any     `json:"items"`
	TotalPages int       `json:"totalPages"`
	Error      string    `json:"error,omitempty"`
}
