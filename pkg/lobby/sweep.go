package lobby

import (
	"context"
	"time"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/game"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
)

// SweepStaleQueue deletes waiting queue entries created before now-olderThan.
func (s *Service) SweepStaleQueue(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	removed := 0
	err := s.repository.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		removed = 0
		docs, err := tx.Query(ctx, repositories.Query{
			Collection: types.QueueCollection,
			Where:      []repositories.Filter{waitingFilter()},
		})
		if err != nil {
			return err
		}
		for _, doc := range docs {
			entry, err := repositories.Decode[types.QueueEntry](doc)
			if err != nil {
				return err
			}
			if !entry.CreatedAt.Before(cutoff) {
				continue
			}
			if err := tx.Delete(ctx, types.QueueCollection, entry.ID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Info("Swept %d stale queue entries", removed)
	}
	return removed, nil
}

// ExpireChallenges cancels pending challenges created before now-olderThan.
func (s *Service) ExpireChallenges(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	docs, err := s.repository.Query(ctx, repositories.Query{
		Collection: types.MatchesCollection,
		Where: []repositories.Filter{
			{Field: "state.status", Op: repositories.OpEqual, Value: types.MatchStatusPendingAccept},
		},
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, doc := range docs {
		m, err := repositories.Decode[types.Match](doc)
		if err != nil {
			return expired, err
		}
		if !m.CreatedAt.Before(cutoff) {
			continue
		}
		_, _, err = s.matches.Apply(ctx, m.ID, game.Transition{Action: game.ActionAbandon, Actor: m.ChallengerID})
		if err != nil {
			// Accepted or declined since the query.
			if game.IsCode(err, game.CodeIllegalTransition) {
				continue
			}
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		log.Info("Expired %d pending challenges", expired)
	}
	return expired, nil
}
