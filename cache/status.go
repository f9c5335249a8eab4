package cache

import "time"

// Phase is the lifecycle position of a query entry.
type Phase uint8

const (
	// Created: the entry exists but was never fetched.
	Created Phase = iota
	// Loading: the first fetch is in flight; there is no data yet.
	Loading
	// Loaded: at least one fetch completed and nothing is in flight.
	Loaded
	// Fetching: a refetch is in flight; previous data is still available.
	Fetching
	// Invalid: explicitly invalidated; data is kept but must be refetched
	// on the next observation.
	Invalid
)

func (p Phase) String() string {
	switch p {
	case Created:
		return "created"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Fetching:
		return "fetching"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Status is an immutable snapshot of an entry.
// Data is meaningful only when HasData is true; UpdatedAt is zero until the
// first successful fetch.
type Status[V any] struct {
	Phase     Phase
	Data      V
	HasData   bool
	UpdatedAt time.Time

	// version orders snapshots of one entry (see entry.publish); entry
	// identifies that entry inside a QueryResult view.
	version uint64
	entry   uint64
}

// Value returns the cached data and whether there is any.
func (s Status[V]) Value() (V, bool) { return s.Data, s.HasData }

// InFlight reports whether a fetch is running for the entry.
func (s Status[V]) InFlight() bool { return s.Phase == Loading || s.Phase == Fetching }

// Stale reports whether the data is older than staleTime at now.
// A non-positive staleTime means data never goes stale.
func (s Status[V]) Stale(now time.Time, staleTime time.Duration) bool {
	if staleTime <= 0 || !s.HasData || s.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(s.UpdatedAt) > staleTime
}
