package watch

import (
	"context"
	"encoding/json"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
)

// Event is one typed observation of a watched document.
type Event[T any] struct {
	Exists  bool
	Version int64
	// Value is nil when the document does not exist.
	Value *T
}

// Stream is a typed subscription that starts with the current state of the document.
type Stream[T any] struct {
	sub *Subscription
	out chan Event[T]
}

// Watch subscribes to collection/id and emits the current document first.
// Snapshots that are not newer than the last emitted one are skipped.
func Watch[T any](ctx context.Context, broker Broker, repo repositories.Repository, collection, id string) (*Stream[T], error) {
	sub, err := broker.Subscribe(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	doc, err := repo.Get(ctx, collection, id)
	if err != nil && !repositories.IsNotFound(err) {
		sub.Close()
		return nil, err
	}
	initial := SnapshotOf(collection, id, doc)

	s := &Stream[T]{
		sub: sub,
		out: make(chan Event[T], 1),
	}
	go s.run(initial)
	return s, nil
}

func (s *Stream[T]) run(initial Snapshot) {
	defer close(s.out)

	last := initial
	if !s.emit(initial) {
		return
	}
	for snap := range s.sub.C() {
		if snap.Exists && last.Exists && snap.Version <= last.Version {
			continue
		}
		if !snap.Exists && !last.Exists {
			continue
		}
		last = snap
		if !s.emit(snap) {
			return
		}
	}
}

func (s *Stream[T]) emit(snap Snapshot) bool {
	ev := Event[T]{Exists: snap.Exists, Version: snap.Version}
	if snap.Exists {
		v := new(T)
		if err := json.Unmarshal(snap.Data, v); err != nil {
			log.Warn("Failed to decode %s/%s at version %d: %v", snap.Collection, snap.ID, snap.Version, err)
			return true
		}
		ev.Value = v
	}
	select {
	case s.out <- ev:
		return true
	case <-s.sub.Done():
		return false
	}
}

// C yields events until the stream is closed.
func (s *Stream[T]) C() <-chan Event[T] {
	return s.out
}

func (s *Stream[T]) Close() {
	s.sub.Close()
}
