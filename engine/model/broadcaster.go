package model

import (
	"sync"

	"github.com/Carmen-Shannon/tracey"
)

// SubscriberBuffer is the channel capacity of every subscription.
const SubscriberBuffer = 16

// Broadcaster fans values out to subscribers. Publish never blocks: a subscriber whose buffer is
// full misses the value. Safe for concurrent use.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	name   string
	subs   map[int]chan T
	next   int
	closed bool
}

// NewBroadcaster creates a Broadcaster. The name only appears in log output.
//
// Parameters:
//   - name: the event name
//
// Returns:
//   - *Broadcaster[T]: the broadcaster
func NewBroadcaster[T any](name string) *Broadcaster[T] {
	return &Broadcaster[T]{name: name, subs: make(map[int]chan T)}
}

// Subscribe registers a subscriber.
//
// Returns:
//   - <-chan T: receives published values until cancel is called or the broadcaster closes
//   - func(): cancel, which unsubscribes and closes the channel; safe to call more than once
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, SubscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish offers v to every subscriber.
//
// Parameters:
//   - v: the value to publish
//
// Returns:
//   - int: the number of subscribers that received v
func (b *Broadcaster[T]) Publish(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for id, ch := range b.subs {
		select {
		case ch <- v:
			delivered++
		default:
			tracey.Logger().Warn("subscriber lagging, dropped event", "event", b.name, "subscriber", id)
		}
	}
	return delivered
}

// Len returns the number of subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later subscriptions receive a closed channel.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
