package lobby

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/matches"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/watch"
)

// QuickMatchScanLimit is how many waiting entries a quick match considers.
const QuickMatchScanLimit = 10

// Service owns matchmaking, direct challenges and match creation.
type Service struct {
	repository repositories.Repository
	broker     watch.Broker
	matches    *matches.Service
	random     game.RandomSource
	now        func() time.Time
}

// NewServiceOptions contains options for creating a new Service.
type NewServiceOptions struct {
	Repository repositories.Repository
	Broker     watch.Broker
	Matches    *matches.Service
	// Random defaults to game.CryptoSource.
	Random game.RandomSource
	// Now defaults to the current UTC time.
	Now func() time.Time
}

func NewService(opts NewServiceOptions) *Service {
	random := opts.Random
	if random == nil {
		random = game.CryptoSource{}
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repository: opts.Repository,
		broker:     opts.Broker,
		matches:    opts.Matches,
		random:     random,
		now:        now,
	}
}

type QuickMatchResult struct {
	// MatchID is the new match, or the queue entry id while waiting.
	MatchID      string `json:"matchId"`
	IsWaiting    bool   `json:"isWaiting"`
	QueueEntryID string `json:"queueEntryId,omitempty"`
}

func waitingFilter() repositories.Filter {
	return repositories.Filter{Field: "status", Op: repositories.OpEqual, Value: types.QueueStatusWaiting}
}

func normalizeStance(stance types.Stance) (types.Stance, error) {
	if stance == "" {
		return types.StanceRegular, nil
	}
	if !stance.Valid() {
		return "", game.InvalidArgument("unknown stance %q", stance)
	}
	return stance, nil
}

// FindQuickMatch pairs the caller with the oldest waiting player, or queues the caller.
// The read, the decision and the writes happen in one transaction.
func (s *Service) FindQuickMatch(ctx context.Context, caller string, stance types.Stance) (*QuickMatchResult, error) {
	stance, err := normalizeStance(stance)
	if err != nil {
		return nil, err
	}

	var result *QuickMatchResult
	err = s.repository.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		profile, err := loadProfile(ctx, tx, caller)
		if err != nil {
			return err
		}

		docs, err := tx.Query(ctx, repositories.Query{
			Collection: types.QueueCollection,
			Where:      []repositories.Filter{waitingFilter()},
			Limit:      QuickMatchScanLimit,
		})
		if err != nil {
			return err
		}

		var own *types.QueueEntry
		var opponent *types.QueueEntry
		for _, doc := range docs {
			entry, err := repositories.Decode[types.QueueEntry](doc)
			if err != nil {
				return err
			}
			if entry.CreatorID == caller {
				if own == nil {
					own = entry
				}
				continue
			}
			if opponent == nil {
				opponent = entry
			}
		}

		if opponent == nil {
			if own == nil {
				own, err = s.ownWaitingEntry(ctx, tx, caller)
				if err != nil {
					return err
				}
			}
			if own != nil {
				result = &QuickMatchResult{MatchID: own.ID, IsWaiting: true, QueueEntryID: own.ID}
				return nil
			}
			entry := &types.QueueEntry{
				ID:               uuid.NewString(),
				CreatorID:        caller,
				CreatorName:      profile.DisplayName,
				CreatorAvatarURL: profile.PhotoURL,
				Stance:           stance,
				Status:           types.QueueStatusWaiting,
				CreatedAt:        s.now(),
			}
			if err := tx.Create(ctx, types.QueueCollection, entry.ID, entry); err != nil {
				return err
			}
			result = &QuickMatchResult{MatchID: entry.ID, IsWaiting: true, QueueEntryID: entry.ID}
			return nil
		}

		if err := tx.Delete(ctx, types.QueueCollection, opponent.ID); err != nil {
			return err
		}
		if own == nil {
			own, err = s.ownWaitingEntry(ctx, tx, caller)
			if err != nil {
				return err
			}
		}
		if own != nil {
			if err := tx.Delete(ctx, types.QueueCollection, own.ID); err != nil {
				return err
			}
		}

		slot, err := game.CoinFlip(s.random)
		if err != nil {
			return game.Unavailable(err, "failed to draw starting player")
		}
		now := s.now()
		m := &types.Match{
			ID:      uuid.NewString(),
			Players: [2]string{opponent.CreatorID, caller},
			PlayerData: map[string]types.PlayerData{
				opponent.CreatorID: {
					DisplayName: opponent.CreatorName,
					AvatarURL:   opponent.CreatorAvatarURL,
					Stance:      opponent.Stance,
				},
				caller: {
					DisplayName: profile.DisplayName,
					AvatarURL:   profile.PhotoURL,
					Stance:      stance,
				},
			},
			State: types.MatchState{
				Status: types.MatchStatusActive,
				Phase:  types.PhaseSetterRecording,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		m.State.TurnPlayerID = m.Players[slot]
		if err := tx.Create(ctx, types.MatchesCollection, m.ID, m); err != nil {
			return err
		}
		result = &QuickMatchResult{MatchID: m.ID, IsWaiting: false, QueueEntryID: opponent.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.IsWaiting {
		log.Debug("Player %s waiting in queue entry %s", caller, result.QueueEntryID)
	} else {
		log.Info("Player %s paired into match %s", caller, result.MatchID)
	}
	return result, nil
}

func (s *Service) ownWaitingEntry(ctx context.Context, tx repositories.Tx, caller string) (*types.QueueEntry, error) {
	docs, err := tx.Query(ctx, repositories.Query{
		Collection: types.QueueCollection,
		Where: []repositories.Filter{
			{Field: "creatorId", Op: repositories.OpEqual, Value: caller},
			waitingFilter(),
		},
		Limit: 1,
	})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return repositories.Decode[types.QueueEntry](docs[0])
}

// CancelMatchmaking removes the caller's queue entry. A missing entry counts as already cancelled.
func (s *Service) CancelMatchmaking(ctx context.Context, caller, entryID string) error {
	return s.repository.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		doc, err := tx.Get(ctx, types.QueueCollection, entryID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return nil
			}
			return err
		}
		entry, err := repositories.Decode[types.QueueEntry](doc)
		if err != nil {
			return err
		}
		if entry.CreatorID != caller {
			return game.PermissionDenied("queue entry %s belongs to another player", entryID)
		}
		return tx.Delete(ctx, types.QueueCollection, entryID)
	})
}

// loadProfile returns the caller's stored profile, or a placeholder named after the uid.
func loadProfile(ctx context.Context, tx repositories.Tx, uid string) (*types.User, error) {
	doc, err := tx.Get(ctx, types.UsersCollection, uid)
	if err != nil {
		if repositories.IsNotFound(err) {
			return &types.User{ID: uid, DisplayName: uid}, nil
		}
		return nil, err
	}
	u, err := repositories.Decode[types.User](doc)
	if err != nil {
		return nil, err
	}
	if u.DisplayName == "" {
		u.DisplayName = uid
	}
	return u, nil
}
