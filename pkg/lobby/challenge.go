package lobby

import (
	"context"

	"github.com/google/uuid"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
)

// Challenge invites opponentID to a match that starts once they accept.
func (s *Service) Challenge(ctx context.Context, caller, opponentID string, stance types.Stance) (*types.Match, error) {
	stance, err := normalizeStance(stance)
	if err != nil {
		return nil, err
	}
	if opponentID == "" || opponentID == caller {
		return nil, game.InvalidArgument("choose another player to challenge")
	}

	var m *types.Match
	err = s.repository.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		profile, err := loadProfile(ctx, tx, caller)
		if err != nil {
			return err
		}
		doc, err := tx.Get(ctx, types.UsersCollection, opponentID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return game.NotFound("player %s not found", opponentID)
			}
			return err
		}
		opponent, err := repositories.Decode[types.User](doc)
		if err != nil {
			return err
		}
		if opponent.DisplayName == "" {
			opponent.DisplayName = opponentID
		}

		now := s.now()
		m = &types.Match{
			ID:      uuid.NewString(),
			Players: [2]string{caller, opponentID},
			PlayerData: map[string]types.PlayerData{
				caller: {
					DisplayName: profile.DisplayName,
					AvatarURL:   profile.PhotoURL,
					Stance:      stance,
				},
				opponentID: {
					DisplayName: opponent.DisplayName,
					AvatarURL:   opponent.PhotoURL,
					Stance:      types.StanceRegular,
				},
			},
			State: types.MatchState{
				Status:       types.MatchStatusPendingAccept,
				TurnPlayerID: caller,
				Phase:        types.PhaseSetterRecording,
			},
			ChallengerID: caller,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return tx.Create(ctx, types.MatchesCollection, m.ID, m)
	})
	if err != nil {
		return nil, err
	}
	log.Info("Player %s challenged %s to match %s", caller, opponentID, m.ID)
	return m, nil
}

// Accept starts a pending challenge. The starting player is drawn by coin flip.
func (s *Service) Accept(ctx context.Context, caller, matchID string, stance types.Stance) (*types.Match, error) {
	if stance != "" && !stance.Valid() {
		return nil, game.InvalidArgument("unknown stance %q", stance)
	}
	slot, err := game.CoinFlip(s.random)
	if err != nil {
		return nil, game.Unavailable(err, "failed to draw starting player")
	}
	m, _, err := s.matches.Apply(ctx, matchID, game.Transition{
		Action:      game.ActionAccept,
		Actor:       caller,
		Stance:      stance,
		StarterSlot: slot,
	})
	return m, err
}

// Decline rejects a pending challenge as the challenged player.
func (s *Service) Decline(ctx context.Context, caller, matchID string) (*types.Match, error) {
	m, _, err := s.matches.Apply(ctx, matchID, game.Transition{Action: game.ActionDecline, Actor: caller})
	return m, err
}

// Abandon withdraws a pending challenge as the challenger.
func (s *Service) Abandon(ctx context.Context, caller, matchID string) (*types.Match, error) {
	m, _, err := s.matches.Apply(ctx, matchID, game.Transition{Action: game.ActionAbandon, Actor: caller})
	return m, err
}
