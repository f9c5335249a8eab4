package cache

import (
	"sync"
	"time"

	"github.com/IvanBrykalov/querycache/internal/util"
)

// typedStore maps keys of one (K, V) pair to their entries. Keys are spread
// over independently locked shards; each shard owns its part of the map.
type typedStore[K comparable, V any] struct {
	c      *Client
	name   string
	shards []*shard[K, V]
	hash   func(K) uint64
}

// shard is an independent partition of a typed store with its own lock and map.
type shard[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu sync.RWMutex
	m  map[K]*entry[K, V]

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_       util.CacheLinePad
	created util.PaddedAtomicUint64
	evicted util.PaddedAtomicUint64
}

func newTypedStore[K comparable, V any](c *Client, name string) *typedStore[K, V] {
	n := c.opt.Shards
	ss := make([]*shard[K, V], n)
	for i := range ss {
		ss[i] = &shard[K, V]{m: make(map[K]*entry[K, V])}
	}
	return &typedStore[K, V]{
		c:      c,
		name:   name,
		shards: ss,
		hash:   util.Hasher[K](),
	}
}

// getShard picks a shard by hashing the key.
func (s *typedStore[K, V]) getShard(k K) *shard[K, V] {
	return s.shards[util.ShardIndex(s.hash(k), len(s.shards))]
}

// getOrCreateLocked returns the entry for k, creating it in Created state.
// On a closed Client the entry is detached: never stored, never evicted.
// sh.mu must be held for writing.
func (s *typedStore[K, V]) getOrCreateLocked(sh *shard[K, V], k K) (*entry[K, V], bool) {
	if e, ok := sh.m[k]; ok {
		return e, false
	}
	e := newEntry(k, s)
	if s.c.closed.Load() {
		e.evicted = true
		return e, false
	}
	sh.m[k] = e
	sh.created.Add(1)
	return e, true
}

// acquire returns the entry for k with one more observer registered.
// Lookup and registration share a critical section so a pending eviction
// cannot remove the entry in between.
func (s *typedStore[K, V]) acquire(k K, staleTime, cacheTime time.Duration) *entry[K, V] {
	sh := s.getShard(k)
	sh.mu.Lock()
	e, created := s.getOrCreateLocked(sh, k)
	e.mu.Lock()
	e.applyOptionsLocked(staleTime, cacheTime)
	e.attachLocked()
	e.mu.Unlock()
	sh.mu.Unlock()

	if created {
		s.onCreated(e)
	}
	return e
}

// prime returns the entry for k without observing it. A new unobserved
// entry starts its eviction countdown immediately.
func (s *typedStore[K, V]) prime(k K, staleTime, cacheTime time.Duration) *entry[K, V] {
	sh := s.getShard(k)
	sh.mu.Lock()
	e, created := s.getOrCreateLocked(sh, k)
	e.mu.Lock()
	e.applyOptionsLocked(staleTime, cacheTime)
	e.armEvictionLocked()
	e.mu.Unlock()
	sh.mu.Unlock()

	if created {
		s.onCreated(e)
	}
	return e
}

// release drops one observer; the last one out arms the eviction timer.
func (s *typedStore[K, V]) release(e *entry[K, V]) {
	e.mu.Lock()
	e.detachLocked()
	e.mu.Unlock()
}

// peek returns the entry for k if present.
func (s *typedStore[K, V]) peek(k K) (*entry[K, V], bool) {
	sh := s.getShard(k)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.m[k]
	return e, ok
}

// invalidate marks the entry for k Invalid. It reports whether k was present.
// Only an actual change is counted and published. Observers react to the
// published status; invalidate itself never fetches.
func (s *typedStore[K, V]) invalidate(k K) bool {
	e, ok := s.peek(k)
	if !ok {
		return false
	}
	e.mu.Lock()
	st, changed := e.invalidateLocked()
	e.mu.Unlock()

	if !changed {
		return true
	}
	s.c.opt.Metrics.Invalidate()
	s.c.log.Debug().Str("type", s.name).Interface("key", k).Stringer("phase", st.Phase).Msg("Query invalidated.")
	e.publish(st)
	return true
}

// invalidateMany invalidates every present key and returns them in input order.
func (s *typedStore[K, V]) invalidateMany(keys []K) []K {
	var out []K
	for _, k := range keys {
		if s.invalidate(k) {
			out = append(out, k)
		}
	}
	return out
}

// evict removes e if it is still the resident, unobserved entry for its key
// and gen still identifies the armed timer. Called only by the eviction timer.
func (s *typedStore[K, V]) evict(e *entry[K, V], gen uint64) {
	sh := s.getShard(e.key)
	sh.mu.Lock()
	e.mu.Lock()
	if e.evicted || e.observers > 0 || gen != e.evictGen {
		e.mu.Unlock()
		sh.mu.Unlock()
		return
	}
	e.evictTimer = nil
	e.evicted = true
	if cur, ok := sh.m[e.key]; ok && cur == e {
		delete(sh.m, e.key)
	}
	e.mu.Unlock()
	sh.mu.Unlock()

	sh.evicted.Add(1)
	s.c.opt.Metrics.Evict(EvictIdle)
	s.c.log.Debug().Str("type", s.name).Interface("key", e.key).Msg("Idle query evicted.")
	s.c.reportSize()
}

func (s *typedStore[K, V]) onCreated(e *entry[K, V]) {
	s.c.log.Debug().Str("type", s.name).Interface("key", e.key).Msg("Query entry created.")
	s.c.reportSize()
}

// ---------- erasedStore ----------

func (s *typedStore[K, V]) len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.m)
		sh.mu.RUnlock()
	}
	return total
}

func (s *typedStore[K, V]) stats() Stats {
	st := Stats{Types: 1}
	for _, sh := range s.shards {
		sh.mu.RLock()
		st.Entries += len(sh.m)
		sh.mu.RUnlock()
		st.Created += sh.created.Load()
		st.Evicted += sh.evicted.Load()
	}
	return st
}

// closeAll stops every eviction timer and empties the store.
func (s *typedStore[K, V]) closeAll() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n := len(sh.m)
		for k, e := range sh.m {
			e.mu.Lock()
			e.disarmLocked()
			e.evicted = true
			e.mu.Unlock()
			delete(sh.m, k)
		}
		sh.evicted.Add(uint64(n))
		sh.mu.Unlock()
		total += n
	}
	return total
}
