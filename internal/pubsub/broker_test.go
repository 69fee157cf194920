package pubsub

import "testing"

func TestBrokerDeliversToAllSubscribers(t *testing.T) {
	b := NewBroker[string](4)
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	if got := b.Publish("hello"); got != 2 {
		t.Fatalf("Publish() delivered = %d, want 2", got)
	}
	if v := <-s1.C(); v != "hello" {
		t.Fatalf("s1 got %q, want hello", v)
	}
	if v := <-s2.C(); v != "hello" {
		t.Fatalf("s2 got %q, want hello", v)
	}
}

func TestSubscriptionCancelStopsDelivery(t *testing.T) {
	b := NewBroker[int](4)
	s := b.Subscribe()
	s.Cancel()
	s.Cancel()

	if got := b.Publish(1); got != 0 {
		t.Fatalf("Publish() delivered = %d, want 0 after cancel", got)
	}
	if _, ok := <-s.C(); ok {
		t.Fatalf("channel still open after Cancel")
	}
	if b.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", b.Len())
	}
}

func TestBrokerDropsForFullSubscriber(t *testing.T) {
	b := NewBroker[int](1)
	s := b.Subscribe()
	b.Publish(1)
	if got := b.Publish(2); got != 0 {
		t.Fatalf("Publish() on full buffer delivered = %d, want 0", got)
	}
	if v := <-s.C(); v != 1 {
		t.Fatalf("got %d, want first value 1", v)
	}
}

func TestBrokerCloseCancelsSubscriptions(t *testing.T) {
	b := NewBroker[int](1)
	s := b.Subscribe()
	b.Close()
	if _, ok := <-s.C(); ok {
		t.Fatalf("channel still open after Close")
	}
}
