// Package singleflight coalesces concurrent work for the same key.
// The query cache keys flights by fetch epoch, so one Group per entry
// guarantees each epoch's fetch function runs exactly once while any
// number of waiters share its result.
package singleflight

import (
	"context"
	"sync"
)

// Group coalesces concurrent function calls for the same key K so that
// the supplied fn is executed at most once. Other concurrent callers
// wait for the shared result.
//
// Concurrency notes:
//   - The first caller for a given key becomes the leader and runs fn.
//   - Followers wait on c.done. Publishing val happens-before
//     close(c.done), so reads after <-done observe the final value.
//   - Cancelling ctx in a follower unblocks only that follower; it does
//     NOT cancel the leader's fn.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed when val is published
	val  V
}

// Do runs fn once for the given key. Concurrent calls with the same key
// wait for the shared result. If ctx is cancelled in a follower, that
// follower returns ctx.Err() while the leader continues to run fn.
// The leader itself ignores ctx; thread it into fn if the work should stop.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() V) (V, error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		return wait(ctx, c)
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	v := fn()

	c.val = v
	close(c.done)

	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()

	return v, nil
}

// Wait joins the in-flight call for key without starting one.
// ok is false when nothing is in flight for key.
func (g *Group[K, V]) Wait(ctx context.Context, key K) (v V, ok bool, err error) {
	g.mu.Lock()
	c, found := g.m[key]
	g.mu.Unlock()
	if !found {
		return v, false, nil
	}
	v, err = wait(ctx, c)
	return v, true, err
}

// InFlight returns the number of keys currently being computed.
func (g *Group[K, V]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

func wait[V any](ctx context.Context, c *call[V]) (V, error) {
	select {
	case <-c.done:
		return c.val, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
