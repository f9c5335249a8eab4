package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/querycache/clock"
	"github.com/IvanBrykalov/querycache/internal/util"
	"github.com/IvanBrykalov/querycache/reactive"
	"github.com/rs/zerolog"
)

// Fetcher produces the value for a key. It may block; the cache calls it on
// its own goroutine with the Client's root context, which is cancelled by
// Client.Close. The cache has no notion of failure: a fetcher that can fail
// encodes the failure in V.
type Fetcher[K comparable, V any] func(ctx context.Context, key K) V

// Client owns every query entry, timer and in-flight fetch. Entries outlive
// the consumers observing them; consumers hold a *QueryResult.
// All methods and query functions are safe for concurrent use.
type Client struct {
	opt   Options
	clock clock.Clock
	log   zerolog.Logger

	// ctx is the root scope; fetches run under it.
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	store *cacheStore
}

// Stats is a point-in-time summary of the cache.
type Stats struct {
	Types   int    // distinct (K, V) pairs in use
	Entries int    // resident entries
	Created uint64 // entries created since New
	Evicted uint64 // entries removed by idle eviction or Close
}

// New constructs a Client with the provided Options.
// Defaults:
//   - nil Clock   -> clock.System()
//   - nil Metrics -> NoopMetrics
//   - nil Logger  -> zerolog.Nop()
//   - Shards <= 0 -> auto, rounded up to the next power of two
func New(opt Options) *Client {
	if opt.Clock == nil {
		opt.Clock = clock.System()
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Shards <= 0 {
		opt.Shards = util.ReasonableShardCount()
	} else {
		opt.Shards = int(util.NextPow2(uint64(opt.Shards)))
	}
	logger := zerolog.Nop()
	if opt.Logger != nil {
		logger = *opt.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opt:    opt,
		clock:  opt.Clock,
		log:    logger.With().Str("component", "querycache").Logger(),
		ctx:    ctx,
		cancel: cancel,
		store:  newCacheStore(),
	}
}

// Close cancels the root context, stops every eviction timer and drops all
// entries. In-flight fetches see a cancelled context; their results are
// discarded. Close is idempotent and always returns nil.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()

	dropped := 0
	c.store.each(func(es erasedStore) { dropped += es.closeAll() })
	for i := 0; i < dropped; i++ {
		c.opt.Metrics.Evict(EvictClosed)
	}
	c.opt.Metrics.Size(0)
	c.log.Info().Int("entries", dropped).Msg("Query cache closed.")
	return nil
}

// Size returns the number of resident entries across all (K, V) pairs.
func (c *Client) Size() int {
	total := 0
	c.store.each(func(es erasedStore) { total += es.len() })
	return total
}

// Stats aggregates per-store counters.
func (c *Client) Stats() Stats {
	var st Stats
	c.store.each(func(es erasedStore) {
		s := es.stats()
		st.Types += s.Types
		st.Entries += s.Entries
		st.Created += s.Created
		st.Evicted += s.Evicted
	})
	return st
}

func (c *Client) reportSize() { c.opt.Metrics.Size(c.Size()) }

func mustClient(c *Client) *Client {
	if c == nil {
		panic(ErrNilClient)
	}
	return c
}

// ---------- query functions ----------

// FetchQuery observes key: it registers an observer on the key's entry,
// fetches if the entry is new, invalidated or stale, and returns a reactive
// view of the entry. Concurrent observers of one key share a single fetch.
// The caller must Close the result to stop observing.
func FetchQuery[K comparable, V any](c *Client, key K, fetch Fetcher[K, V], opts QueryOptions[V]) *QueryResult[K, V] {
	return FetchQuerySignal(c, reactive.Const(key), fetch, opts)
}

// FetchQuerySignal is FetchQuery for a key that changes over time. Whenever
// the signal changes, the result stops observing the old entry (which keeps
// its state, including any fetch in flight) and observes the new one.
func FetchQuerySignal[K comparable, V any](c *Client, key reactive.Signal[K], fetch Fetcher[K, V], opts QueryOptions[V]) *QueryResult[K, V] {
	ts := lookup[K, V](mustClient(c), true)
	q := newQueryResult(ts, newExecutor(c, fetch), opts, key)
	q.start()
	return q
}

// PrefetchQuery warms the cache for key without handing out a view.
// With observe set, the entry counts as observed until the returned release
// function is called; otherwise the entry is left unobserved and is subject
// to eviction after its CacheTime. release is always safe to call.
func PrefetchQuery[K comparable, V any](c *Client, key K, fetch Fetcher[K, V], opts QueryOptions[V], observe bool) (release func()) {
	ts := lookup[K, V](mustClient(c), true)
	x := newExecutor(c, fetch)

	if !observe {
		e := ts.prime(key, opts.StaleTime, opts.CacheTime)
		x.execute(e, triggerObserve)
		return func() {}
	}

	e := ts.acquire(key, opts.StaleTime, opts.CacheTime)
	x.execute(e, triggerObserve)
	var once sync.Once
	return func() { once.Do(func() { ts.release(e) }) }
}

// FetchQueryData returns the data for key, fetching it if needed, and blocks
// until a value is loaded, ctx is done or the Client is closed. It joins a
// fetch that is already in flight instead of starting another one.
func FetchQueryData[K comparable, V any](ctx context.Context, c *Client, key K, fetch Fetcher[K, V], opts QueryOptions[V]) (V, error) {
	var zero V
	ts := lookup[K, V](mustClient(c), true)
	x := newExecutor(c, fetch)

	e := ts.acquire(key, opts.StaleTime, opts.CacheTime)
	defer ts.release(e)

	wake := make(chan struct{}, 1)
	unsub := e.cell.Subscribe(func(Status[V]) {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	defer unsub()

	x.execute(e, triggerObserve)
	for {
		st, ep := e.state()
		switch {
		case st.Phase == Loaded:
			return st.Data, nil
		case c.closed.Load():
			return zero, ErrClosed
		case ep == 0:
			// Nothing in flight (e.g. invalidated mid-load): start over.
			if x.execute(e, triggerObserve) {
				continue
			}
		default:
			v, ok, err := e.flights.Wait(ctx, ep)
			if err != nil {
				return zero, err
			}
			if ok && e.currentEpoch() == ep {
				return v, nil
			}
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-c.ctx.Done():
			return zero, ErrClosed
		}
	}
}

// InvalidateQuery marks the entry for key Invalid, keeping its data.
// Observed entries refetch right away; unobserved ones on their next
// observation. It reports whether the entry existed.
func InvalidateQuery[K comparable, V any](c *Client, key K) bool {
	ts := lookup[K, V](mustClient(c), false)
	if ts == nil {
		return false
	}
	return ts.invalidate(key)
}

// InvalidateQueries invalidates every present key and returns those keys in
// input order. It returns nil when no query of this (K, V) pair exists.
func InvalidateQueries[K comparable, V any](c *Client, keys []K) []K {
	ts := lookup[K, V](mustClient(c), false)
	if ts == nil {
		return nil
	}
	return ts.invalidateMany(keys)
}

// GetQueryData returns the status of the entry for key without observing or
// fetching it.
func GetQueryData[K comparable, V any](c *Client, key K) (Status[V], bool) {
	ts := lookup[K, V](mustClient(c), false)
	if ts == nil {
		return Status[V]{}, false
	}
	e, ok := ts.peek(key)
	if !ok {
		return Status[V]{}, false
	}
	return e.snapshot(), true
}

// SetQueryData stores v as freshly loaded data for key, creating the entry if
// needed. A fetch in flight for the entry is superseded.
func SetQueryData[K comparable, V any](c *Client, key K, v V) {
	ts := lookup[K, V](mustClient(c), true)
	e := ts.prime(key, 0, 0)

	e.mu.Lock()
	st := e.writeLocked(v, c.clock.Now())
	e.mu.Unlock()

	c.log.Debug().Str("type", ts.name).Interface("key", key).Msg("Query data set.")
	e.publish(st)
}
