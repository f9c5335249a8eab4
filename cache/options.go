package cache

import (
	"time"

	"github.com/IvanBrykalov/querycache/clock"
	"github.com/rs/zerolog"
)

// EvictReason explains why an entry was removed from its store.
type EvictReason int

const (
	// EvictIdle: the entry stayed unobserved for its whole CacheTime.
	EvictIdle EvictReason = iota
	// EvictClosed: the Client was closed.
	EvictClosed
)

// FetchOutcome classifies a finished fetch.
type FetchOutcome int

const (
	// FetchApplied: the result became the entry's Loaded data.
	FetchApplied FetchOutcome = iota
	// FetchDiscarded: the fetch was superseded (newer epoch, invalidation,
	// manual write) and its result was dropped.
	FetchDiscarded
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	// Hit: an observation was served from the entry without fetching.
	Hit()
	// Miss: an observation started a fetch.
	Miss()
	// Dedup: a trigger found a fetch already in flight and joined it.
	Dedup()
	Fetch(outcome FetchOutcome, took time.Duration)
	Invalidate()
	Evict(reason EvictReason)
	// Size reports resident entries across all typed stores.
	Size(entries int)
}

// Options configures a Client. Zero values are safe; defaults are applied in New():
//   - nil Clock   => clock.System()
//   - nil Metrics => NoopMetrics
//   - nil Logger  => zerolog.Nop()
//   - Shards <= 0 => auto (rounded up to power of two)
type Options struct {
	// Shards is the number of lock shards in each typed store.
	Shards int

	// Clock drives timestamps, staleness, eviction and refetch intervals.
	Clock clock.Clock

	Metrics Metrics
	Logger  *zerolog.Logger
}

// ResourceOption tells a rendering layer whether to wait for the first load.
// The cache itself treats both values the same.
type ResourceOption int

const (
	// NonBlocking renders with whatever data is available.
	NonBlocking ResourceOption = iota
	// Blocking waits for the first load before rendering.
	Blocking
)

func (r ResourceOption) String() string {
	if r == Blocking {
		return "blocking"
	}
	return "non-blocking"
}

// QueryOptions configures one observation of a query. Zero durations are unset.
//
// StaleTime and CacheTime are stored on the entry when set, so the most
// recent observer that sets them wins.
type QueryOptions[V any] struct {
	// DefaultValue is reported by Data while the entry has no data yet.
	DefaultValue *V

	// RefetchInterval forces a periodic refetch while this observer is attached.
	RefetchInterval time.Duration

	// StaleTime is the age after which data is stale and refetched on access.
	StaleTime time.Duration

	// CacheTime is how long an unobserved entry is retained before eviction.
	// Unset means entries are kept until the Client is closed.
	CacheTime time.Duration

	ResourceOption ResourceOption
}
