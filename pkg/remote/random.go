package remote

import (
	"context"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/game"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/notify"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
)

const (
	// RandomGameScanLimit bounds the waiting games considered by FindRandomGame.
	RandomGameScanLimit = 20
	// InviteScanLimit bounds the users considered when inviting a random opponent.
	InviteScanLimit = 200
)

// RandomGameResult reports whether FindRandomGame joined an existing game or opened a new one.
type RandomGameResult struct {
	GameView
	Created bool `json:"created"`
}

// FindRandomGame joins the oldest waiting game created by someone else,
// or opens one and invites a random player with a registered device.
func (s *Service) FindRandomGame(ctx context.Context, caller string) (*RandomGameResult, error) {
	var result *RandomGameResult
	err := s.repository.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		docs, err := tx.Query(ctx, repositories.Query{
			Collection: types.RemoteGamesCollection,
			Where: []repositories.Filter{
				{Field: "status", Op: repositories.OpEqual, Value: types.RemoteGameWaiting},
			},
			Limit: RandomGameScanLimit,
		})
		if err != nil {
			return err
		}

		var own *types.RemoteGame
		for _, doc := range docs {
			g, err := repositories.Decode[types.RemoteGame](doc)
			if err != nil {
				return err
			}
			if g.PlayerAUID == caller {
				if own == nil {
					own = g
				}
				continue
			}

			if err := s.withdrawWaitingGames(ctx, tx, caller); err != nil {
				return err
			}
			name, err := displayName(ctx, tx, caller)
			if err != nil {
				return err
			}
			view, _, err := s.applyTx(ctx, tx, g.ID, game.Transition{
				Action:    game.ActionJoin,
				Actor:     caller,
				ActorName: name,
			})
			if err != nil {
				return err
			}
			result = &RandomGameResult{GameView: *view}
			return nil
		}

		if own != nil {
			result = &RandomGameResult{GameView: GameView{Game: own}}
			return nil
		}
		g, err := s.createTx(ctx, tx, caller)
		if err != nil {
			return err
		}
		result = &RandomGameResult{GameView: GameView{Game: g}, Created: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g := result.Game
	if result.Created {
		log.Info("Player %s opened remote game %s while looking for an opponent", caller, g.ID)
		s.inviteRandomOpponent(ctx, caller, g)
	} else if g.Status == types.RemoteGameActive {
		log.Info("Player %s joined remote game %s", caller, g.ID)
		s.notifyBestEffort(ctx, g.PlayerAUID, notify.Notification{
			Title: "Game on",
			Body:  g.PlayerBName + " joined your game. Set a trick.",
			Data:  map[string]string{"gameId": g.ID},
		})
	}
	return result, nil
}

// withdrawWaitingGames cancels every game the caller opened that is still waiting,
// so joining another game never leaves one behind for a third player.
func (s *Service) withdrawWaitingGames(ctx context.Context, tx repositories.Tx, caller string) error {
	docs, err := tx.Query(ctx, repositories.Query{
		Collection: types.RemoteGamesCollection,
		Where: []repositories.Filter{
			{Field: "status", Op: repositories.OpEqual, Value: types.RemoteGameWaiting},
			{Field: "playerAUid", Op: repositories.OpEqual, Value: caller},
		},
	})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if _, _, err := s.applyTx(ctx, tx, doc.ID, game.Transition{Action: game.ActionCancel, Actor: caller}); err != nil {
			return err
		}
		log.Debug("Withdrew waiting game %s of %s", doc.ID, caller)
	}
	return nil
}

// inviteRandomOpponent notifies one randomly chosen player. Failures are logged only.
func (s *Service) inviteRandomOpponent(ctx context.Context, caller string, g *types.RemoteGame) {
	docs, err := s.repository.Query(ctx, repositories.Query{
		Collection: types.UsersCollection,
		Limit:      InviteScanLimit,
	})
	if err != nil {
		log.Warn("Failed to list players to invite: %v", err)
		return
	}

	var eligible []string
	for _, doc := range docs {
		u, err := repositories.Decode[types.User](doc)
		if err != nil {
			log.Warn("Failed to decode user %s: %v", doc.ID, err)
			continue
		}
		if doc.ID != caller && len(u.FCMTokens) > 0 {
			eligible = append(eligible, doc.ID)
		}
	}
	if len(eligible) == 0 {
		log.Debug("No player to invite to game %s", g.ID)
		return
	}

	n, err := s.random.Uint32()
	if err != nil {
		log.Warn("Failed to pick a player to invite: %v", err)
		return
	}
	invitee := eligible[int(n%uint32(len(eligible)))]
	s.notifyBestEffort(ctx, invitee, notify.Notification{
		Title: "Challenge waiting",
		Body:  g.PlayerAName + " is looking for a game of S.K.A.T.E.",
		Data:  map[string]string{"gameId": g.ID},
	})
}
