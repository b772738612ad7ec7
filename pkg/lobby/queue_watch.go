package lobby

import (
	"context"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/game"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/watch"
)

// QueueWatch reports the match a queue entry was paired into.
// The id it yields is a hint: the entry may also vanish because it was cancelled or swept.
type QueueWatch struct {
	stream *watch.Stream[types.QueueEntry]
	out    chan string
}

// C yields at most one match id and is closed once the entry is gone or the watch is closed.
func (w *QueueWatch) C() <-chan string {
	return w.out
}

func (w *QueueWatch) Close() {
	w.stream.Close()
}

func (s *Service) WatchQueue(ctx context.Context, caller, entryID string) (*QueueWatch, error) {
	doc, err := s.repository.Get(ctx, types.QueueCollection, entryID)
	if err != nil && !repositories.IsNotFound(err) {
		return nil, err
	}
	if doc != nil {
		entry, err := repositories.Decode[types.QueueEntry](doc)
		if err != nil {
			return nil, err
		}
		if entry.CreatorID != caller {
			return nil, game.PermissionDenied("queue entry %s belongs to another player", entryID)
		}
	}

	stream, err := watch.Watch[types.QueueEntry](ctx, s.broker, s.repository, types.QueueCollection, entryID)
	if err != nil {
		return nil, err
	}
	w := &QueueWatch{
		stream: stream,
		out:    make(chan string, 1),
	}
	go w.run(ctx, s, caller)
	return w, nil
}

func (w *QueueWatch) run(ctx context.Context, s *Service, caller string) {
	defer close(w.out)
	defer w.stream.Close()

	for ev := range w.stream.C() {
		if ev.Exists {
			continue
		}
		matchID, err := s.activeMatchFor(ctx, caller)
		if err != nil {
			log.Warn("Failed to look up match for %s after queue entry removal: %v", caller, err)
			return
		}
		if matchID != "" {
			w.out <- matchID
		}
		return
	}
}

// activeMatchFor returns the most recent active match of uid, or "".
func (s *Service) activeMatchFor(ctx context.Context, uid string) (string, error) {
	docs, err := s.repository.Query(ctx, repositories.Query{
		Collection: types.MatchesCollection,
		Where: []repositories.Filter{
			{Field: "players", Op: repositories.OpArrayContains, Value: uid},
			{Field: "state.status", Op: repositories.OpEqual, Value: types.MatchStatusActive},
		},
	})
	if err != nil || len(docs) == 0 {
		return "", err
	}
	return docs[len(docs)-1].ID, nil
}
