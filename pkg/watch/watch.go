package watch

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
)

// SubscriptionBufferSize is how many undelivered snapshots a subscription holds.
// When full the oldest pending snapshot is dropped.
const SubscriptionBufferSize = 8

// Snapshot is an immutable view of one document at one version.
type Snapshot struct {
	Collection string
	ID         string
	Exists     bool
	Version    int64
	Data       json.RawMessage
}

// SnapshotOf builds a snapshot from a document. A nil document yields a deletion snapshot.
func SnapshotOf(collection, id string, doc *repositories.Document) Snapshot {
	if doc == nil {
		return Snapshot{Collection: collection, ID: id}
	}
	return Snapshot{
		Collection: collection,
		ID:         id,
		Exists:     true,
		Version:    doc.Version,
		Data:       doc.Data,
	}
}

// Broker fans committed changes out to document subscribers.
type Broker interface {
	Publish(ctx context.Context, changes []repositories.Change) error
	// Subscribe delivers every later change of collection/id until the subscription
	// is closed or ctx is done.
	Subscribe(ctx context.Context, collection, id string) (*Subscription, error)
	Close() error
}

// Subscription is a cancellable stream of snapshots of one document.
type Subscription struct {
	ch       chan Snapshot
	mu       sync.Mutex
	closed   bool
	onClose  func()
	doneOnce sync.Once
	done     chan struct{}
}

func newSubscription(onClose func()) *Subscription {
	return &Subscription{
		ch:      make(chan Snapshot, SubscriptionBufferSize),
		onClose: onClose,
		done:    make(chan struct{}),
	}
}

// C yields snapshots. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		close(s.done)
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// deliver never blocks. A full buffer loses its oldest snapshot.
func (s *Subscription) deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// closeOnDone ends s when ctx is done.
func closeOnDone(ctx context.Context, s *Subscription) {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
}
