// Package pubsub is a small broadcast primitive: an explicit subscriber
// list plus one cached last-value slot, so subscribers that attach after
// a value was published can still start from the current state.
package pubsub

import (
	"sync"
	"sync/atomic"
)

type Topic[T any] struct {
	mu     sync.Mutex
	subs   map[*Sub[T]]bool
	last   T
	has    bool
	closed bool
}

type Sub[T any] struct {
	ch      chan T
	dropped uint64
}

func NewTopic[T any]() *Topic[T] {
	t := &Topic[T]{}
	t.subs = make(map[*Sub[T]]bool)
	return t
}

// C is the subscriber's receive channel. It is closed on Unsubscribe and
// on topic Close.
func (s *Sub[T]) C() <-chan T {
	return s.ch
}

// Dropped counts values discarded because the subscriber was not keeping
// up with its buffer.
func (s *Sub[T]) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

func (s *Sub[T]) push(v T) {
	select {
	case s.ch <- v:
	default:
		atomic.AddUint64(&s.dropped, 1)
	}
}

func (t *Topic[T]) Subscribe(buffer int) *Sub[T] {
	sub := &Sub[T]{ch: make(chan T, buffer)}
	t.mu.Lock()
	if t.closed {
		close(sub.ch)
	} else {
		t.subs[sub] = true
	}
	t.mu.Unlock()
	return sub
}

// SubscribeReplay subscribes and immediately delivers the cached last
// value, if any, so a late subscriber is never left without initial state.
func (t *Topic[T]) SubscribeReplay(buffer int) *Sub[T] {
	sub := &Sub[T]{ch: make(chan T, buffer)}
	t.mu.Lock()
	if t.closed {
		close(sub.ch)
	} else {
		t.subs[sub] = true
		if t.has {
			sub.push(t.last)
		}
	}
	t.mu.Unlock()
	return sub
}

func (t *Topic[T]) Unsubscribe(sub *Sub[T]) {
	t.mu.Lock()
	if t.subs[sub] {
		delete(t.subs, sub)
		close(sub.ch)
	}
	t.mu.Unlock()
}

// Publish caches v as the last value and fans it out. It never blocks on
// a slow subscriber.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.last = v
	t.has = true
	for sub := range t.subs {
		sub.push(v)
	}
	t.mu.Unlock()
}

func (t *Topic[T]) Last() (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.has
}

func (t *Topic[T]) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		for sub := range t.subs {
			delete(t.subs, sub)
			close(sub.ch)
		}
	}
	t.mu.Unlock()
}
