package watch

import (
	"context"
	"sync"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
)

type topic struct {
	collection string
	id         string
}

// MemoryBroker delivers changes to subscribers in the same process.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[topic]map[*Subscription]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[topic]map[*Subscription]struct{}),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, changes []repositories.Change) error {
	for _, c := range changes {
		b.dispatch(SnapshotOf(c.Collection, c.ID, c.Document))
	}
	return nil
}

func (b *MemoryBroker) dispatch(snap Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[topic{snap.Collection, snap.ID}] {
		sub.deliver(snap)
	}
}

func (b *MemoryBroker) Subscribe(ctx context.Context, collection, id string) (*Subscription, error) {
	t := topic{collection, id}
	var sub *Subscription
	sub = newSubscription(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[t], sub)
		if len(b.subs[t]) == 0 {
			delete(b.subs, t)
		}
	})

	b.mu.Lock()
	if b.subs[t] == nil {
		b.subs[t] = make(map[*Subscription]struct{})
	}
	b.subs[t][sub] = struct{}{}
	b.mu.Unlock()

	closeOnDone(ctx, sub)
	return sub, nil
}

// Close ends every open subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	var all []*Subscription
	for _, subs := range b.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
	return nil
}
