// Package cache provides a generic, reactive, asynchronous query cache:
// given a key, it fetches the associated value once, shares it with every
// concurrent consumer, tracks freshness and in-flight status, and notifies
// subscribers as the status changes.
//
// Design
//
//   - Entries: each key has one entry, a small state machine
//     (Created → Loading → Loaded ⇄ Fetching, any loaded state → Invalid).
//     Entries belong to the Client, not to consumers; a consumer only
//     registers as an observer.
//
//   - Storage: one typed store per (K, V) pair, created lazily and addressed
//     by the pair's reflect.Type. Each typed store is split into shards, each
//     protected by an RWMutex. Lock order is shard, then entry.
//
//   - Dedup: a fetch is started only when none is in flight for the entry.
//     Every started fetch gets a new epoch; a result is applied only if its
//     epoch is still current, so late results of superseded fetches
//     (manual refetch, invalidation, SetQueryData) are discarded.
//
//   - Staleness: derived at read time from UpdatedAt and StaleTime. A stale
//     entry is refetched when it is next observed; its data stays visible
//     while Fetching.
//
//   - Eviction: when the last observer leaves, an entry with a CacheTime
//     arms a one-shot timer. The timer re-checks at fire time that the entry
//     is still unobserved; a new observer disarms it.
//
//   - Reactivity: statuses are published through reactive.Cell. A
//     QueryResult follows a key signal (switch-map) and mirrors the observed
//     entry into its own view.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Dedup/Fetch/Invalidate/Evict/Size.
//     NoopMetrics is the default; metrics/prom exports them to Prometheus.
//
//   - Logging: zerolog; Options.Logger defaults to a no-op logger.
//
// Basic usage
//
//	c := cache.New(cache.Options{})
//	defer c.Close()
//
//	q := cache.FetchQuery(c, "post:1", func(ctx context.Context, k string) string {
//	    return loadPost(ctx, k)
//	}, cache.QueryOptions[string]{StaleTime: 5 * time.Second, CacheTime: 10 * time.Second})
//	defer q.Close()
//
//	post, err := q.Await(ctx)
//
// Following a changing key
//
//	id := reactive.NewCell(1)
//	q := cache.FetchQuerySignal(c, id, fetchPost, cache.QueryOptions[Post]{})
//	id.Set(2) // q now observes post 2; post 1 stays cached
//
// Invalidation
//
//	cache.InvalidateQuery[string, string](c, "post:1")
//	cache.InvalidateQueries[string, string](c, []string{"post:1", "post:2"})
//
// Fetch failures are not modelled by the cache. A fetcher that can fail
// returns a value that carries the failure (see package fetcher).
package cache
