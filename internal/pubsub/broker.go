// Package pubsub provides explicit, cancellable subscriptions for in-process
// event fan-out.
package pubsub

import "sync"

// Broker fans published values out to every live subscription. Slow
// subscribers lose values rather than block the publisher.
type Broker[T any] struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*Subscription[T]
	buffer int
}

// Subscription is a handle on one subscriber. It stays live until Cancel is
// called or the broker is closed.
type Subscription[T any] struct {
	id     int
	ch     chan T
	broker *Broker[T]
	once   sync.Once
}

func NewBroker[T any](buffer int) *Broker[T] {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker[T]{subs: make(map[int]*Subscription[T]), buffer: buffer}
}

func (b *Broker[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &Subscription[T]{id: b.nextID, ch: make(chan T, b.buffer), broker: b}
	b.subs[s.id] = s
	return s
}

// Publish delivers v to every subscriber and returns how many accepted it.
func (b *Broker[T]) Publish(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	delivered := 0
	for _, s := range b.subs {
		select {
		case s.ch <- v:
			delivered++
		default:
		}
	}
	return delivered
}

func (b *Broker[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close cancels every subscription.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	subs := make([]*Subscription[T], 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
}

// C returns the delivery channel. It is closed after Cancel.
func (s *Subscription[T]) C() <-chan T { return s.ch }

func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		delete(b.subs, s.id)
		close(s.ch)
		b.mu.Unlock()
	})
}
