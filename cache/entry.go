package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/querycache/clock"
	"github.com/IvanBrykalov/querycache/internal/singleflight"
	"github.com/IvanBrykalov/querycache/reactive"
)

var entryIDs atomic.Uint64

// entry is the per-key state machine. It is owned by its typed store and
// outlives every consumer; consumers only hold a reference plus an observer
// count slot.
//
// Lock order: shard.mu before entry.mu. Reactive notifications are never
// delivered while mu is held.
type entry[K comparable, V any] struct {
	id    uint64
	key   K
	store *typedStore[K, V]

	// ---- guarded by mu ----
	mu        sync.Mutex
	status    Status[V]
	observers int
	staleTime time.Duration
	cacheTime time.Duration

	// epoch is bumped for every started fetch and whenever an in-flight
	// fetch is superseded; inflight is the epoch of the running fetch (0 = idle).
	epoch    uint64
	inflight uint64

	evictTimer clock.Timer
	evictGen   uint64
	evicted    bool

	cell    *reactive.Cell[Status[V]]
	flights singleflight.Group[uint64, V]
}

func newEntry[K comparable, V any](key K, store *typedStore[K, V]) *entry[K, V] {
	return &entry[K, V]{
		id:    entryIDs.Add(1),
		key:   key,
		store: store,
		cell:  reactive.NewCell(Status[V]{Phase: Created}),
	}
}

// snapshot returns the current status.
func (e *entry[K, V]) snapshot() Status[V] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// state returns the current status and the in-flight epoch (0 = idle).
func (e *entry[K, V]) state() (Status[V], uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, e.inflight
}

func (e *entry[K, V]) currentEpoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}

func (e *entry[K, V]) isStale(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.Stale(now, e.staleTime)
}

// publish pushes st to subscribers unless a newer snapshot got there first.
// Must be called without e.mu held.
func (e *entry[K, V]) publish(st Status[V]) {
	e.cell.Update(func(old Status[V]) (Status[V], bool) {
		if st.version <= old.version {
			return old, false
		}
		return st, true
	})
}

// ---------- transitions (mu held) ----------

func (e *entry[K, V]) setLocked(st Status[V]) Status[V] {
	st.version = e.status.version + 1
	e.status = st
	return st
}

// needsFetchLocked reports whether an observation should start a fetch.
func (e *entry[K, V]) needsFetchLocked(now time.Time) bool {
	switch e.status.Phase {
	case Created, Invalid:
		return true
	case Loaded:
		return e.status.Stale(now, e.staleTime)
	default:
		return false
	}
}

// beginFetchLocked opens a new epoch: Created → Loading, anything with data →
// Fetching. Any fetch already in flight is superseded.
func (e *entry[K, V]) beginFetchLocked() (uint64, Status[V]) {
	e.epoch++
	e.inflight = e.epoch

	next := e.status
	if next.HasData {
		next.Phase = Fetching
	} else {
		next.Phase = Loading
	}
	return e.epoch, e.setLocked(next)
}

// completeLocked applies the result of the fetch started at epoch ep.
// It reports false, leaving the entry untouched, if ep was superseded.
func (e *entry[K, V]) completeLocked(ep uint64, v V, now time.Time) (Status[V], bool) {
	if ep != e.epoch {
		return e.status, false
	}
	e.inflight = 0
	return e.setLocked(e.loadedLocked(v, now)), true
}

// writeLocked stores v as freshly loaded data, superseding any fetch in flight.
func (e *entry[K, V]) writeLocked(v V, now time.Time) Status[V] {
	e.epoch++
	e.inflight = 0
	return e.setLocked(e.loadedLocked(v, now))
}

// loadedLocked builds a Loaded status; UpdatedAt never moves backwards.
func (e *entry[K, V]) loadedLocked(v V, now time.Time) Status[V] {
	if now.Before(e.status.UpdatedAt) {
		now = e.status.UpdatedAt
	}
	return Status[V]{Phase: Loaded, Data: v, HasData: true, UpdatedAt: now}
}

// invalidateLocked marks the entry Invalid, keeping data and UpdatedAt.
// A fetch in flight is superseded because its result may predate the
// invalidation. An entry without data has nothing to mark: Created stays
// Created and Loading falls back to Created. changed is false when nothing
// needs publishing.
func (e *entry[K, V]) invalidateLocked() (st Status[V], changed bool) {
	if e.inflight != 0 {
		e.epoch++
		e.inflight = 0
	}
	switch e.status.Phase {
	case Created, Invalid:
		return e.status, false
	case Loading:
		return e.setLocked(Status[V]{Phase: Created}), true
	default:
		next := e.status
		next.Phase = Invalid
		return e.setLocked(next), true
	}
}

// applyOptionsLocked records per-entry timing options supplied by an observer.
func (e *entry[K, V]) applyOptionsLocked(staleTime, cacheTime time.Duration) {
	if staleTime > 0 {
		e.staleTime = staleTime
	}
	if cacheTime > 0 {
		e.cacheTime = cacheTime
	}
}

// ---------- observers & eviction timer (mu held) ----------

func (e *entry[K, V]) attachLocked() {
	e.observers++
	e.disarmLocked()
}

func (e *entry[K, V]) detachLocked() {
	if e.observers == 0 {
		panic("querycache: observer released twice")
	}
	e.observers--
	e.armEvictionLocked()
}

// armEvictionLocked starts the eviction timer when the entry is unobserved
// and has a cache time. It is a no-op when the timer is already running.
func (e *entry[K, V]) armEvictionLocked() {
	if e.evicted || e.observers > 0 || e.cacheTime <= 0 || e.evictTimer != nil {
		return
	}
	if e.store.c.closed.Load() {
		return
	}
	e.evictGen++
	gen := e.evictGen
	e.evictTimer = e.store.c.clock.AfterFunc(e.cacheTime, func() { e.store.evict(e, gen) })
}

// disarmLocked cancels a pending eviction. Bumping the generation turns a
// callback that already fired, but has not yet taken the locks, into a no-op.
func (e *entry[K, V]) disarmLocked() {
	if e.evictTimer != nil {
		e.evictTimer.Stop()
		e.evictTimer = nil
	}
	e.evictGen++
}
