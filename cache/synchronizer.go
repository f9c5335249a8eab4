package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/querycache/clock"
	"github.com/IvanBrykalov/querycache/reactive"
)

// QueryResult is one consumer's observation of a query. It follows the key
// signal (switch-map), keeps the observed entry's observer count, reruns the
// executor when the entry needs data, and mirrors the entry's status into
// its own reactive view.
type QueryResult[K comparable, V any] struct {
	ts   *typedStore[K, V]
	exec executor[K, V]
	opts QueryOptions[V]
	keys reactive.Signal[K]
	view *reactive.Cell[Status[V]]

	// viewing is the id of the entry the view currently mirrors (0 = none).
	viewing atomic.Uint64

	// bindMu serializes start, key switches and Close.
	bindMu sync.Mutex

	// ---- guarded by mu ----
	mu       sync.Mutex
	key      K
	ent      *entry[K, V]
	unwatch  func()
	interval clock.Timer
	gen      uint64 // bumped per binding; stale interval callbacks compare it
	closed   bool
	unkeys   func()
	done     chan struct{}
}

func newQueryResult[K comparable, V any](ts *typedStore[K, V], x executor[K, V], opts QueryOptions[V], keys reactive.Signal[K]) *QueryResult[K, V] {
	return &QueryResult[K, V]{
		ts:   ts,
		exec: x,
		opts: opts,
		keys: keys,
		view: reactive.NewCell(Status[V]{Phase: Created}),
		done: make(chan struct{}),
	}
}

// start subscribes to the key signal and binds the current key. Subscribing
// first means a key written concurrently is never missed.
func (q *QueryResult[K, V]) start() {
	unkeys := q.keys.Subscribe(func(K) { q.follow() })
	q.mu.Lock()
	q.unkeys = unkeys
	q.mu.Unlock()
	q.follow()
}

// follow binds the latest key. Reading the signal under bindMu makes the
// last binding always reflect the latest key, whatever order callers run in.
func (q *QueryResult[K, V]) follow() {
	q.bindMu.Lock()
	defer q.bindMu.Unlock()
	q.bindLocked(q.keys.Get())
}

func (q *QueryResult[K, V]) bindLocked(key K) {
	q.mu.Lock()
	if q.closed || (q.ent != nil && q.key == key) {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	ent := q.ts.acquire(key, q.opts.StaleTime, q.opts.CacheTime)
	q.viewing.Store(ent.id)
	unwatch := ent.cell.Subscribe(func(st Status[V]) { q.onStatus(ent, st) })

	q.mu.Lock()
	old, oldUnwatch, oldInterval := q.ent, q.unwatch, q.interval
	q.key, q.ent, q.unwatch, q.interval = key, ent, unwatch, nil
	q.gen++
	gen := q.gen
	q.mu.Unlock()

	// The previous entry is left exactly as it is; only this observation moves.
	if old != nil {
		if oldInterval != nil {
			oldInterval.Stop()
		}
		oldUnwatch()
		q.ts.release(old)
	}

	q.mirror(ent, ent.snapshot())
	q.exec.execute(ent, triggerObserve)
	q.armInterval(ent, gen)
}

// onStatus runs for every status published by an entry this result has
// subscribed to.
func (q *QueryResult[K, V]) onStatus(ent *entry[K, V], st Status[V]) {
	if q.viewing.Load() != ent.id {
		return
	}
	q.mirror(ent, st)
	if st.Phase == Invalid || st.Phase == Created {
		// Observed and in need of data: refetch now. Other observers of the
		// same entry do the same and are deduplicated by the executor.
		q.exec.execute(ent, triggerObserve)
	}
}

// mirror copies st into the view unless it is older than what the view shows.
func (q *QueryResult[K, V]) mirror(ent *entry[K, V], st Status[V]) {
	q.view.Update(func(old Status[V]) (Status[V], bool) {
		if q.viewing.Load() != ent.id {
			return old, false
		}
		if old.entry == ent.id && st.version <= old.version {
			return old, false
		}
		st.entry = ent.id
		return st, true
	})
}

func (q *QueryResult[K, V]) armInterval(ent *entry[K, V], gen uint64) {
	d := q.opts.RefetchInterval
	if d <= 0 || q.exec.c.closed.Load() {
		return
	}
	t := q.exec.c.clock.AfterFunc(d, func() { q.onInterval(ent, gen) })

	q.mu.Lock()
	if q.closed || q.gen != gen {
		q.mu.Unlock()
		t.Stop()
		return
	}
	q.interval = t
	q.mu.Unlock()
}

func (q *QueryResult[K, V]) onInterval(ent *entry[K, V], gen uint64) {
	q.mu.Lock()
	current := !q.closed && q.gen == gen
	q.mu.Unlock()
	if !current {
		return
	}
	q.exec.execute(ent, triggerInterval)
	q.armInterval(ent, gen)
}

func (q *QueryResult[K, V]) current() *entry[K, V] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ent
}

// ---------- read side ----------

// Key returns the key currently observed.
func (q *QueryResult[K, V]) Key() K {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.key
}

// Status returns the observed entry's status.
func (q *QueryResult[K, V]) Status() Status[V] { return q.view.Get() }

// Signal exposes the status as a reactive signal.
func (q *QueryResult[K, V]) Signal() reactive.Signal[Status[V]] { return q.view }

// Subscribe calls fn after every status change of the observed entry,
// including the change caused by switching keys. fn must not call Close.
func (q *QueryResult[K, V]) Subscribe(fn func(Status[V])) (cancel func()) {
	return q.view.Subscribe(fn)
}

// Data returns the cached data, or QueryOptions.DefaultValue while there is
// none. ok is false when neither exists.
func (q *QueryResult[K, V]) Data() (v V, ok bool) {
	if d, ok := q.view.Get().Value(); ok {
		return d, true
	}
	if q.opts.DefaultValue != nil {
		return *q.opts.DefaultValue, true
	}
	return v, false
}

// IsLoading reports whether the first fetch is in flight.
func (q *QueryResult[K, V]) IsLoading() bool { return q.view.Get().Phase == Loading }

// IsFetching reports whether a refetch is in flight while old data is shown.
func (q *QueryResult[K, V]) IsFetching() bool { return q.view.Get().Phase == Fetching }

// IsInvalid reports whether the entry was invalidated and not yet refetched.
func (q *QueryResult[K, V]) IsInvalid() bool { return q.view.Get().Phase == Invalid }

// IsStale reports whether the data is older than the entry's stale time.
func (q *QueryResult[K, V]) IsStale() bool {
	ent := q.current()
	if ent == nil {
		return false
	}
	return ent.isStale(q.exec.c.clock.Now())
}

// UpdatedAt returns the time of the last successful fetch.
func (q *QueryResult[K, V]) UpdatedAt() (time.Time, bool) {
	st := q.view.Get()
	return st.UpdatedAt, !st.UpdatedAt.IsZero()
}

// ResourceOption returns the option this result was created with.
func (q *QueryResult[K, V]) ResourceOption() ResourceOption { return q.opts.ResourceOption }

// Refetch starts a new fetch regardless of staleness. A fetch already in
// flight is superseded and its result discarded.
func (q *QueryResult[K, V]) Refetch() {
	if ent := q.current(); ent != nil {
		q.exec.execute(ent, triggerManual)
	}
}

// Await blocks until the observed entry is Loaded and returns its data.
// It returns ctx.Err() when ctx is done and ErrClosed when the result or the
// Client is closed first.
func (q *QueryResult[K, V]) Await(ctx context.Context) (V, error) {
	var zero V
	wake := make(chan struct{}, 1)
	cancel := q.view.Subscribe(func(Status[V]) {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	defer cancel()

	for {
		if st := q.view.Get(); st.Phase == Loaded {
			return st.Data, nil
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.done:
			return zero, ErrClosed
		case <-q.exec.c.ctx.Done():
			return zero, ErrClosed
		}
	}
}

// Close stops observing. The entry stays in the cache; when it was the last
// observer, the entry's eviction countdown starts. Close is idempotent.
func (q *QueryResult[K, V]) Close() {
	q.bindMu.Lock()
	defer q.bindMu.Unlock()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	ent, unwatch, interval, unkeys := q.ent, q.unwatch, q.interval, q.unkeys
	q.ent, q.unwatch, q.interval = nil, nil, nil
	q.gen++
	q.mu.Unlock()

	q.viewing.Store(0)
	close(q.done)
	if unkeys != nil {
		unkeys()
	}
	if interval != nil {
		interval.Stop()
	}
	if unwatch != nil {
		unwatch()
	}
	if ent != nil {
		q.ts.release(ent)
	}
}
