// Package clock abstracts time for the query cache so that staleness and
// eviction can be driven deterministically in tests.
package clock

import "time"

// Timer is a cancellable one-shot callback scheduled by a Clock.
type Timer interface {
	// Stop prevents the callback from running. It reports false if the
	// callback already ran or the timer was already stopped.
	Stop() bool
}

// Clock provides the current time and schedules callbacks.
// Implementations must be safe for concurrent use.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f on its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

type system struct{}

// System returns a Clock backed by package time.
func System() Clock { return system{} }

func (system) Now() time.Time { return time.Now() }

func (system) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Compile-time check: *time.Timer satisfies Timer.
var _ Timer = (*time.Timer)(nil)
