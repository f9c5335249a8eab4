// Package reactive is a minimal observable-cell substrate used by the query
// cache to publish status changes and to follow keys that change over time.
//
// A Cell holds one value. Writers replace it with Set or Update; readers take
// a snapshot with Get or register a callback with Subscribe. Notifications are
// delivered on the writing goroutine, one delivery at a time per cell, always
// carrying the latest value. Writes that happen while a delivery is running
// (including writes from inside a subscriber) are coalesced into a follow-up
// delivery instead of recursing.
package reactive

import "sync"

// Signal is the read side of a reactive value.
type Signal[T any] interface {
	// Get returns the current value.
	Get() T
	// Subscribe registers fn to be called after every change.
	// The returned function removes the subscription; it is safe to call
	// more than once.
	Subscribe(fn func(T)) (cancel func())
}

// Cell is a readable and writable reactive value. The zero Cell is not
// usable; construct with NewCell.
type Cell[T any] struct {
	mu        sync.Mutex
	value     T
	subs      map[uint64]func(T)
	nextID    uint64
	dirty     bool
	notifying bool
}

// NewCell returns a Cell holding v.
func NewCell[T any](v T) *Cell[T] {
	return &Cell[T]{value: v, subs: make(map[uint64]func(T))}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set replaces the value and notifies subscribers.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	c.dirty = true
	c.notifyLocked()
}

// Update applies fn to the current value under the cell lock. When fn reports
// changed, the returned value is stored and subscribers are notified.
// fn must not call back into the same cell.
func (c *Cell[T]) Update(fn func(old T) (T, bool)) bool {
	c.mu.Lock()
	next, changed := fn(c.value)
	if !changed {
		c.mu.Unlock()
		return false
	}
	c.value = next
	c.dirty = true
	c.notifyLocked()
	return true
}

// Subscribe registers fn. It is not called with the current value.
func (c *Cell[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (c *Cell[T]) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// notifyLocked is entered with c.mu held and returns with it released.
func (c *Cell[T]) notifyLocked() {
	if c.notifying {
		// The active delivery loop will pick up the new value.
		c.mu.Unlock()
		return
	}
	c.notifying = true
	for c.dirty {
		c.dirty = false
		v := c.value
		subs := make([]func(T), 0, len(c.subs))
		for _, fn := range c.subs {
			subs = append(subs, fn)
		}
		c.mu.Unlock()
		for _, fn := range subs {
			fn(v)
		}
		c.mu.Lock()
	}
	c.notifying = false
	c.mu.Unlock()
}

type constSignal[T any] struct{ v T }

// Const returns a Signal that never changes.
func Const[T any](v T) Signal[T] { return constSignal[T]{v: v} }

func (s constSignal[T]) Get() T                   { return s.v }
func (s constSignal[T]) Subscribe(func(T)) func() { return func() {} }

var (
	_ Signal[int] = (*Cell[int])(nil)
	_ Signal[int] = constSignal[int]{}
)
