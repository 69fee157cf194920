package memory

import (
	"context"

	"github.com/ent0n29/glassvoice/internal/pubsub"
)

type ChangeKind string

const (
	ChangeMemory       ChangeKind = "memory"
	ChangeInstructions ChangeKind = "instructions"
)

type Change struct {
	Kind    ChangeKind
	Key     string
	Deleted bool
}

// Notifying wraps a Store and publishes a Change after every successful
// mutation. Live sessions subscribe to push reconfiguration.
type Notifying struct {
	Store
	changes *pubsub.Broker[Change]
}

func NewNotifying(store Store) *Notifying {
	return &Notifying{Store: store, changes: pubsub.NewBroker[Change](16)}
}

func (n *Notifying) Subscribe() *pubsub.Subscription[Change] {
	return n.changes.Subscribe()
}

func (n *Notifying) Set(ctx context.Context, key, value string) error {
	if err := n.Store.Set(ctx, key, value); err != nil {
		return err
	}
	key, _ = normalizeKey(key)
	n.changes.Publish(Change{Kind: ChangeMemory, Key: key})
	return nil
}

func (n *Notifying) Delete(ctx context.Context, key string) (bool, error) {
	existed, err := n.Store.Delete(ctx, key)
	if err != nil || !existed {
		return existed, err
	}
	key, _ = normalizeKey(key)
	n.changes.Publish(Change{Kind: ChangeMemory, Key: key, Deleted: true})
	return true, nil
}

func (n *Notifying) SetInstructions(ctx context.Context, text string) error {
	if err := n.Store.SetInstructions(ctx, text); err != nil {
		return err
	}
	n.changes.Publish(Change{Kind: ChangeInstructions})
	return nil
}

func (n *Notifying) Close() error {
	n.changes.Close()
	return n.Store.Close()
}
