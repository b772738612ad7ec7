package remote

import (
	"context"
	"sync"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/game"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/watch"
)

// GameWatch streams a game together with its current round.
// Every transition rewrites the game document, so watching the game is enough.
type GameWatch struct {
	stream *watch.Stream[types.RemoteGame]
	out    chan GameView
	done   chan struct{}
	once   sync.Once
}

// C is closed when the game is deleted or the watch is closed.
func (w *GameWatch) C() <-chan GameView {
	return w.out
}

func (w *GameWatch) Close() {
	w.once.Do(func() { close(w.done) })
	w.stream.Close()
}

func (s *Service) Watch(ctx context.Context, caller, gameID string) (*GameWatch, error) {
	view, err := s.Get(ctx, caller, gameID)
	if err != nil {
		return nil, err
	}
	if !view.Game.HasPlayer(caller) {
		return nil, game.PermissionDenied("not a participant of game %s", gameID)
	}

	stream, err := watch.Watch[types.RemoteGame](ctx, s.broker, s.repository, types.RemoteGamesCollection, gameID)
	if err != nil {
		return nil, err
	}
	w := &GameWatch{
		stream: stream,
		out:    make(chan GameView, watch.SubscriptionBufferSize),
		done:   make(chan struct{}),
	}
	go w.run(ctx, s)
	return w, nil
}

func (w *GameWatch) run(ctx context.Context, s *Service) {
	defer close(w.out)
	defer w.stream.Close()

	for ev := range w.stream.C() {
		if !ev.Exists {
			return
		}
		view := GameView{Game: ev.Value}
		if ev.Value.CurrentRoundID != "" {
			doc, err := s.repository.Get(ctx, types.RemoteRoundsCollection, ev.Value.CurrentRoundID)
			if err != nil && !repositories.IsNotFound(err) {
				log.Warn("Failed to load round %s: %v", ev.Value.CurrentRoundID, err)
				return
			}
			if doc != nil {
				if view.Round, err = repositories.Decode[types.RemoteRound](doc); err != nil {
					log.Warn("Failed to decode round %s: %v", ev.Value.CurrentRoundID, err)
					return
				}
			}
		}
		select {
		case w.out <- view:
		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}
