package cache

import "time"

// trigger is the reason an executor run was requested.
type trigger uint8

const (
	// triggerObserve: a consumer started observing, switched to the entry, or
	// saw it become Invalid. Fetches only if the entry needs it.
	triggerObserve trigger = iota
	// triggerInterval: the observer's refetch interval elapsed. Fetches
	// unless a fetch is already in flight.
	triggerInterval
	// triggerManual: an explicit refetch. Always fetches, superseding any
	// fetch in flight.
	triggerManual
)

func (t trigger) String() string {
	switch t {
	case triggerObserve:
		return "observe"
	case triggerInterval:
		return "interval"
	default:
		return "manual"
	}
}

// executor drives fetch cycles for one observer's fetcher.
type executor[K comparable, V any] struct {
	c     *Client
	fetch Fetcher[K, V]
}

func newExecutor[K comparable, V any](c *Client, fetch Fetcher[K, V]) executor[K, V] {
	if fetch == nil {
		panic(ErrNilFetcher)
	}
	return executor[K, V]{c: mustClient(c), fetch: fetch}
}

// execute starts a fetch for e if trig calls for one and reports whether it did.
// The transition to Loading/Fetching is published before execute returns;
// the fetch itself runs on its own goroutine.
func (x executor[K, V]) execute(e *entry[K, V], trig trigger) bool {
	c := x.c
	if c.closed.Load() {
		return false
	}
	now := c.clock.Now()

	e.mu.Lock()
	if e.evicted {
		e.mu.Unlock()
		return false
	}
	if trig != triggerManual {
		if e.inflight != 0 {
			e.mu.Unlock()
			c.opt.Metrics.Dedup()
			return false
		}
		if trig == triggerObserve && !e.needsFetchLocked(now) {
			e.mu.Unlock()
			c.opt.Metrics.Hit()
			return false
		}
	}
	superseded := e.inflight
	ep, st := e.beginFetchLocked()
	key := e.key
	e.mu.Unlock()

	if trig == triggerObserve {
		c.opt.Metrics.Miss()
	}
	c.log.Debug().
		Str("type", e.store.name).
		Interface("key", key).
		Stringer("trigger", trig).
		Uint64("epoch", ep).
		Uint64("superseded", superseded).
		Stringer("phase", st.Phase).
		Msg("Query fetch started.")

	e.publish(st)
	go x.run(e, key, ep, now)
	return true
}

// run calls the fetcher for epoch ep and applies the result if ep is still
// current when it returns.
func (x executor[K, V]) run(e *entry[K, V], key K, ep uint64, started time.Time) {
	c := x.c
	// The leader's Do never reports an error.
	v, _ := e.flights.Do(c.ctx, ep, func() V { return x.fetch(c.ctx, key) })

	now := c.clock.Now()
	took := now.Sub(started)
	if c.ctx.Err() != nil {
		// Closed while fetching; the fetcher saw a cancelled context.
		c.opt.Metrics.Fetch(FetchDiscarded, took)
		return
	}

	e.mu.Lock()
	st, applied := e.completeLocked(ep, v, now)
	e.mu.Unlock()

	if !applied {
		c.opt.Metrics.Fetch(FetchDiscarded, took)
		c.log.Debug().Str("type", e.store.name).Interface("key", key).Uint64("epoch", ep).Msg("Superseded fetch result discarded.")
		return
	}
	c.opt.Metrics.Fetch(FetchApplied, took)
	c.log.Debug().Str("type", e.store.name).Interface("key", key).Uint64("epoch", ep).Dur("took", took).Msg("Query fetch applied.")
	e.publish(st)
}
