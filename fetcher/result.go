// Package fetcher holds helpers for building cache.Fetcher functions.
//
// The query cache has no notion of failure: whatever a fetcher returns is
// stored as the entry's data. Result carries the error next to the value so
// that a failed fetch is cached, observed and invalidated like any other
// outcome, and a consumer decides what to show.
package fetcher

import (
	"context"

	"github.com/IvanBrykalov/querycache/cache"
)

// Result is a fetched value or the error that prevented fetching it.
type Result[V any] struct {
	Value V
	Err   error
}

// Ok wraps a successfully fetched value.
func Ok[V any](v V) Result[V] { return Result[V]{Value: v} }

// Fail wraps a fetch error.
func Fail[V any](err error) Result[V] { return Result[V]{Err: err} }

// Get returns the value and error, in the usual Go order.
func (r Result[V]) Get() (V, error) { return r.Value, r.Err }

// Failed reports whether the fetch failed.
func (r Result[V]) Failed() bool { return r.Err != nil }

// Wrap adapts a conventional (V, error) function to a cache.Fetcher whose
// data is a Result.
func Wrap[K comparable, V any](fn func(ctx context.Context, key K) (V, error)) cache.Fetcher[K, Result[V]] {
	return func(ctx context.Context, key K) Result[V] {
		v, err := fn(ctx, key)
		if err != nil {
			return Fail[V](err)
		}
		return Ok(v)
	}
}
