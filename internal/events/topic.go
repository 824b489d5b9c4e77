// Package events provides typed publish/subscribe topics. Every subscription
// returns a disposer so that teardown is always symmetric with registration.
package events

import (
	"sort"
	"sync"
)

// Dispose removes a subscription. Calling it more than once is a no-op.
type Dispose func()

// Topic delivers values of type T to its subscribers in subscription order.
// Topic is safe for concurrent use; handlers run on the publisher's goroutine.
type Topic[T any] struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[uint64]func(T)
}

// NewTopic creates an empty Topic.
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{handlers: make(map[uint64]func(T))}
}

// Subscribe registers fn and returns its disposer.
//
// Precondition: fn must be non-nil.
// Postcondition: fn receives every value published until the disposer is called.
func (t *Topic[T]) Subscribe(fn func(T)) Dispose {
	t.mu.Lock()
	id := t.next
	t.next++
	t.handlers[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.handlers, id)
			t.mu.Unlock()
		})
	}
}

// Publish delivers v to a snapshot of the current subscribers.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	ids := make([]uint64, 0, len(t.handlers))
	for id := range t.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, t.handlers[id])
	}
	t.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of live subscriptions.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}

// Group collects disposers so a component can release all of its
// subscriptions at once.
type Group struct {
	mu       sync.Mutex
	disposes []Dispose
}

// Add records d for a later Dispose call.
func (g *Group) Add(d Dispose) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disposes = append(g.disposes, d)
}

// Dispose calls every recorded disposer in reverse order and forgets them.
func (g *Group) Dispose() {
	g.mu.Lock()
	ds := g.disposes
	g.disposes = nil
	g.mu.Unlock()
	for i := len(ds) - 1; i >= 0; i-- {
		ds[i]()
	}
}
