package cache

import (
	"context"
	"time"

	"github.com/IvanBrykalov/querycache/reactive"
)

// Result is the read-only, reactive view a consumer gets from FetchQuery.
// All methods are safe for concurrent use by multiple goroutines.
type Result[V any] interface {
	// Status returns the full snapshot: phase, data and last update time.
	Status() Status[V]

	// Signal exposes Status as a reactive signal.
	Signal() reactive.Signal[Status[V]]

	// Data returns the cached value, falling back to QueryOptions.DefaultValue.
	Data() (V, bool)

	// IsLoading: first fetch in flight, no data yet.
	IsLoading() bool
	// IsFetching: refetch in flight, previous data still shown.
	IsFetching() bool
	// IsStale: data older than the entry's stale time.
	IsStale() bool
	// IsInvalid: invalidated and waiting for a refetch.
	IsInvalid() bool

	// UpdatedAt returns the time of the last successful fetch, if any.
	UpdatedAt() (time.Time, bool)

	// Refetch forces a new fetch regardless of staleness.
	Refetch()

	// Await blocks until data is loaded.
	Await(ctx context.Context) (V, error)

	// Close stops observing; the cached entry is kept.
	Close()
}

// Compile-time check: *QueryResult implements Result.
var _ Result[int] = (*QueryResult[string, int])(nil)
