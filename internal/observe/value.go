// Package observe provides an observable value with fan-out subscriptions.
package observe

import (
	"context"
	"sync"
)

// Value holds a current value and broadcasts every change to its subscribers.
//
// Each subscriber has its own unbounded queue drained by a pump goroutine, so a slow
// subscriber never blocks Set. A subscriber first receives the value current at the
// time it subscribed, then every later change in order.
type Value[T any] struct {
	mu     sync.Mutex
	cur    T
	equal  func(a, b T) bool
	subs   map[uint64]*subscriber[T]
	nextID uint64
	closed bool
}

// New returns a Value holding initial. When equal is non-nil, Set ignores a value
// equal to the current one.
func New[T any](initial T, equal func(a, b T) bool) *Value[T] {
	return &Value[T]{
		cur:   initial,
		equal: equal,
		subs:  make(map[uint64]*subscriber[T]),
	}
}

// NewComparable returns a Value that coalesces consecutive equal values.
func NewComparable[T comparable](initial T) *Value[T] {
	return New(initial, func(a, b T) bool { return a == b })
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set stores x and notifies subscribers. Returns false when x was coalesced
// or the value is closed.
func (v *Value[T]) Set(x T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.setLocked(x)
}

// Update applies fn to the current value and stores the result atomically.
func (v *Value[T]) Update(fn func(T) T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.setLocked(fn(v.cur))
}

func (v *Value[T]) setLocked(x T) bool {
	if v.closed {
		return false
	}
	if v.equal != nil && v.equal(v.cur, x) {
		return false
	}
	v.cur = x
	for _, s := range v.subs {
		s.push(x)
	}
	return true
}

// Subscribe returns a channel of values and a cancel func. The channel is closed
// after cancel or Close. Cancel is idempotent.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := newSubscriber[T]()
	if v.closed {
		s.stop()
		go s.pump()
		return s.out, func() {}
	}

	id := v.nextID
	v.nextID++
	v.subs[id] = s
	s.push(v.cur)
	go s.pump()

	cancel := func() {
		v.mu.Lock()
		delete(v.subs, id)
		v.mu.Unlock()
		s.stop()
	}
	return s.out, cancel
}

// Close stops every subscription. Later Sets are ignored.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for id, s := range v.subs {
		s.stop()
		delete(v.subs, id)
	}
}

// Await blocks until pred holds for the value, returning that value.
func Await[T any](ctx context.Context, v *Value[T], pred func(T) bool) (T, error) {
	ch, cancel := v.Subscribe()
	defer cancel()

	for {
		select {
		case x, ok := <-ch:
			if !ok {
				var zero T
				return zero, context.Canceled
			}
			if pred(x) {
				return x, nil
			}
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

type subscriber[T any] struct {
	mu       sync.Mutex
	queue    []T
	notify   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	out      chan T
}

func newSubscriber[T any]() *subscriber[T] {
	return &subscriber[T]{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan T),
	}
}

func (s *subscriber[T]) push(x T) {
	s.mu.Lock()
	s.queue = append(s.queue, x)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber[T]) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *subscriber[T]) pump() {
	defer close(s.out)
	var zero T
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			x := s.queue[0]
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.out <- x:
			case <-s.done:
				return
			}
		}
	}
}
