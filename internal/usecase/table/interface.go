package table

import (
	"context"
	"io"

	domain "sync-admin/internal/domain/table"
)

// Fetcher loads one page of records for a fetch request.
// Implementations must honour ctx cancellation where they can; the controller
// discards superseded results either way.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, req domain.FetchRequest) (*domain.Page[T], error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc[T any] func(ctx context.Context, req domain.FetchRequest) (*domain.Page[T], error)

// Fetch calls f(ctx, req).
func (f FetcherFunc[T]) Fetch(ctx context.Context, req domain.FetchRequest) (*domain.Page[T], error) {
	return f(ctx, req)
}

// Session is the record-type independent surface of a controller, used by
// transports that drive tables of different record types. The ctx of each
// interaction only supplies the request id for the fetch it triggers.
type Session interface {
	Table() string
	Search(ctx context.Context, raw string)
	RequestSort(ctx context.Context, key string) (View, error)
	SetPage(ctx context.Context, page int) View
	Refresh(ctx context.Context) View
	View() View
	Export(w io.Writer) (string, error)
	Subscribe() (<-chan View, func())
	Close()
}
