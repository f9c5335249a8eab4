package cache

import (
	"fmt"
	"reflect"
	"sync"
)

// erasedStore is the type-independent view of a typedStore used for
// client-wide bookkeeping.
type erasedStore interface {
	len() int
	stats() Stats
	closeAll() int
}

// cacheStore holds one typed store per (K, V) pair. It is the single point of
// type erasure: values are asserted back to *typedStore[K, V] on every access.
type cacheStore struct {
	mu    sync.RWMutex
	typed map[reflect.Type]erasedStore
}

func newCacheStore() *cacheStore {
	return &cacheStore{typed: make(map[reflect.Type]erasedStore)}
}

// typeID identifies the (K, V) pair.
func typeID[K comparable, V any]() reflect.Type {
	return reflect.TypeFor[*typedStore[K, V]]()
}

// typeName is the human-readable (K, V) pair used in logs.
func typeName[K comparable, V any]() string {
	return reflect.TypeFor[K]().String() + "/" + reflect.TypeFor[V]().String()
}

// lookup returns the typed store for (K, V), creating it when create is set.
// It returns nil if the store does not exist and create is false.
// A store registered under the same identifier with a different concrete type
// is an integration error and panics with ErrTypeMismatch.
func lookup[K comparable, V any](c *Client, create bool) *typedStore[K, V] {
	s := c.store
	id := typeID[K, V]()

	s.mu.RLock()
	es, ok := s.typed[id]
	s.mu.RUnlock()

	if !ok {
		if !create {
			return nil
		}
		s.mu.Lock()
		if es, ok = s.typed[id]; !ok {
			es = newTypedStore[K, V](c, typeName[K, V]())
			s.typed[id] = es
		}
		s.mu.Unlock()
	}

	ts, ok := es.(*typedStore[K, V])
	if !ok {
		panic(fmt.Errorf("%w: %v is registered as %T", ErrTypeMismatch, id, es))
	}
	return ts
}

func (s *cacheStore) each(fn func(erasedStore)) {
	s.mu.RLock()
	stores := make([]erasedStore, 0, len(s.typed))
	for _, es := range s.typed {
		stores = append(stores, es)
	}
	s.mu.RUnlock()
	for _, es := range stores {
		fn(es)
	}
}
