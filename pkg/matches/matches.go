package matches

import (
	"context"
	"time"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/game"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/watch"
	"go.uber.org/zap"
)

// Service runs in-person turn transitions as repository transactions.
type Service struct {
	repository repositories.Repository
	broker     watch.Broker
	rules      game.Rules
	now        func() time.Time
}

// NewServiceOptions contains options for creating a new Service.
type NewServiceOptions struct {
	Repository repositories.Repository
	Broker     watch.Broker
	Rules      game.Rules
	// Now defaults to the current UTC time.
	Now func() time.Time
}

func NewService(opts NewServiceOptions) *Service {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repository: opts.Repository,
		broker:     opts.Broker,
		rules:      opts.Rules,
		now:        now,
	}
}

// SetTrick is the setter's submission.
type SetTrick struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ClipURL     string `json:"clipUrl,omitempty"`
}

func (s *Service) Get(ctx context.Context, caller, matchID string) (*types.Match, error) {
	doc, err := s.repository.Get(ctx, types.MatchesCollection, matchID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, game.NotFound("match %s not found", matchID)
		}
		return nil, err
	}
	m, err := repositories.Decode[types.Match](doc)
	if err != nil {
		return nil, err
	}
	if !m.HasPlayer(caller) {
		return nil, game.PermissionDenied("not a participant of match %s", matchID)
	}
	return m, nil
}

// Apply re-reads the match inside a transaction and applies t. On any error nothing is written.
func (s *Service) Apply(ctx context.Context, matchID string, t game.Transition) (*types.Match, game.Outcome, error) {
	if t.Now.IsZero() {
		t.Now = s.now()
	}

	var result *types.Match
	var outcome game.Outcome
	err := s.repository.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		doc, err := tx.Get(ctx, types.MatchesCollection, matchID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return game.NotFound("match %s not found", matchID)
			}
			return err
		}
		m, err := repositories.Decode[types.Match](doc)
		if err != nil {
			return err
		}

		out, err := game.NewInPerson(m, s.rules).Apply(t)
		if err != nil {
			return err
		}
		if err := tx.Set(ctx, types.MatchesCollection, matchID, m); err != nil {
			return err
		}
		result, outcome = m, out
		return nil
	})
	if err != nil {
		log.Debug("Rejected %s on match %s by %s: %v", t.Action, matchID, t.Actor, err)
		return nil, game.Outcome{}, err
	}

	if outcome.Completed || result.State.Status.Terminal() {
		log.With(
			zap.String("matchId", matchID),
			zap.String("action", string(t.Action)),
			zap.String("status", string(result.State.Status)),
			zap.String("winnerId", result.WinnerID),
		).Info("Match finished")
	}
	return result, outcome, nil
}

func (s *Service) Set(ctx context.Context, caller, matchID string, trick SetTrick) (*types.Match, error) {
	m, _, err := s.Apply(ctx, matchID, game.Transition{
		Action:           game.ActionSet,
		Actor:            caller,
		TrickName:        trick.Name,
		TrickDescription: trick.Description,
		ClipURL:          trick.ClipURL,
	})
	return m, err
}

func (s *Service) Land(ctx context.Context, caller, matchID string) (*types.Match, error) {
	m, _, err := s.Apply(ctx, matchID, game.Transition{Action: game.ActionLand, Actor: caller})
	return m, err
}

// Bail gives the caller a letter for missing the pending trick.
func (s *Service) Bail(ctx context.Context, caller, matchID string) (*types.Match, error) {
	m, _, err := s.Apply(ctx, matchID, game.Transition{Action: game.ActionBail, Actor: caller})
	return m, err
}

// Attempt submits the defender's try for the setter to judge.
func (s *Service) Attempt(ctx context.Context, caller, matchID, clipURL string) (*types.Match, error) {
	m, _, err := s.Apply(ctx, matchID, game.Transition{Action: game.ActionAttempt, Actor: caller, ClipURL: clipURL})
	return m, err
}

func (s *Service) Judge(ctx context.Context, caller, matchID string, landed bool) (*types.Match, error) {
	m, _, err := s.Apply(ctx, matchID, game.Transition{Action: game.ActionJudge, Actor: caller, Landed: landed})
	return m, err
}

func (s *Service) Forfeit(ctx context.Context, caller, matchID string) (*types.Match, error) {
	m, _, err := s.Apply(ctx, matchID, game.Transition{Action: game.ActionForfeit, Actor: caller})
	return m, err
}

// Watch streams snapshots of a match to one of its participants.
func (s *Service) Watch(ctx context.Context, caller, matchID string) (*watch.Stream[types.Match], error) {
	if _, err := s.Get(ctx, caller, matchID); err != nil {
		return nil, err
	}
	return watch.Watch[types.Match](ctx, s.broker, s.repository, types.MatchesCollection, matchID)
}
