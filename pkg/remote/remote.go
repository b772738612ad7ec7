package remote

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/notify"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/queue"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/uploads"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/watch"
	"go.uber.org/zap"
)

const (
	DefaultMaxVideoBytes    int64 = 100 << 20
	DefaultMaxVideoDuration       = 60 * time.Second
)

// Service runs the remote video-verified variant.
type Service struct {
	repository repositories.Repository
	broker     watch.Broker
	rules      game.Rules
	notifier   notify.Notifier
	jobs       queue.Queue[uploads.Job]
	random     game.RandomSource
	now        func() time.Time

	spoolDir         string
	maxVideoBytes    int64
	maxVideoDuration time.Duration
}

// NewServiceOptions contains options for creating a new Service.
type NewServiceOptions struct {
	Repository repositories.Repository
	Broker     watch.Broker
	Rules      game.Rules
	// Notifier defaults to notify.LogNotifier.
	Notifier notify.Notifier
	// Jobs receives spooled videos for the upload worker.
	Jobs queue.Queue[uploads.Job]
	// SpoolDir holds videos until they are uploaded. Defaults to the system temp dir.
	SpoolDir         string
	MaxVideoBytes    int64
	MaxVideoDuration time.Duration
	Random           game.RandomSource
	Now              func() time.Time
}

func NewService(opts NewServiceOptions) *Service {
	s := &Service{
		repository:       opts.Repository,
		broker:           opts.Broker,
		rules:            opts.Rules,
		notifier:         opts.Notifier,
		jobs:             opts.Jobs,
		random:           opts.Random,
		now:              opts.Now,
		spoolDir:         opts.SpoolDir,
		maxVideoBytes:    opts.MaxVideoBytes,
		maxVideoDuration: opts.MaxVideoDuration,
	}
	if s.notifier == nil {
		s.notifier = notify.LogNotifier{}
	}
	if s.jobs == nil {
		s.jobs = queue.NewInMemoryQueue[uploads.Job](queue.DefaultQueueSize)
	}
	if s.random == nil {
		s.random = game.CryptoSource{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.maxVideoBytes <= 0 {
		s.maxVideoBytes = DefaultMaxVideoBytes
	}
	if s.maxVideoDuration <= 0 {
		s.maxVideoDuration = DefaultMaxVideoDuration
	}
	return s
}

// GameView is a game together with its current round, if any.
type GameView struct {
	Game  *types.RemoteGame  `json:"game"`
	Round *types.RemoteRound `json:"round,omitempty"`
}

func loadGame(ctx context.Context, tx repositories.Tx, gameID string) (*types.RemoteGame, error) {
	doc, err := tx.Get(ctx, types.RemoteGamesCollection, gameID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, game.NotFound("game %s not found", gameID)
		}
		return nil, err
	}
	return repositories.Decode[types.RemoteGame](doc)
}

func loadRound(ctx context.Context, tx repositories.Tx, roundID string) (*types.RemoteRound, error) {
	doc, err := tx.Get(ctx, types.RemoteRoundsCollection, roundID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, game.NotFound("round %s not found", roundID)
		}
		return nil, err
	}
	return repositories.Decode[types.RemoteRound](doc)
}

func loadView(ctx context.Context, tx repositories.Tx, gameID string) (*GameView, error) {
	g, err := loadGame(ctx, tx, gameID)
	if err != nil {
		return nil, err
	}
	view := &GameView{Game: g}
	if g.CurrentRoundID != "" {
		if view.Round, err = loadRound(ctx, tx, g.CurrentRoundID); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// displayName returns the stored display name of uid, or uid itself.
func displayName(ctx context.Context, tx repositories.Tx, uid string) (string, error) {
	doc, err := tx.Get(ctx, types.UsersCollection, uid)
	if err != nil {
		if repositories.IsNotFound(err) {
			return uid, nil
		}
		return "", err
	}
	u, err := repositories.Decode[types.User](doc)
	if err != nil {
		return "", err
	}
	if u.DisplayName == "" {
		return uid, nil
	}
	return u.DisplayName, nil
}

// applyTx applies t to the game inside tx and writes the game, the touched round and any new round.
func (s *Service) applyTx(ctx context.Context, tx repositories.Tx, gameID string, t game.Transition) (*GameView, game.Outcome, error) {
	view, err := loadView(ctx, tx, gameID)
	if err != nil {
		return nil, game.Outcome{}, err
	}
	if t.Now.IsZero() {
		t.Now = s.now()
	}
	if t.NewRoundID == "" {
		t.NewRoundID = uuid.NewString()
	}

	old := view.Round
	v := game.NewRemote(view.Game, old, s.rules)
	out, err := v.Apply(t)
	if err != nil {
		return nil, game.Outcome{}, err
	}

	if err := tx.Set(ctx, types.RemoteGamesCollection, gameID, v.Game()); err != nil {
		return nil, game.Outcome{}, err
	}
	if old != nil {
		if err := tx.Set(ctx, types.RemoteRoundsCollection, old.ID, old); err != nil {
			return nil, game.Outcome{}, err
		}
	}
	if out.NextRound != nil {
		if err := tx.Create(ctx, types.RemoteRoundsCollection, out.NextRound.ID, out.NextRound); err != nil {
			return nil, game.Outcome{}, err
		}
	}
	return &GameView{Game: v.Game(), Round: v.Round()}, out, nil
}

func (s *Service) apply(ctx context.Context, gameID string, t game.Transition) (*GameView, game.Outcome, error) {
	var view *GameView
	var outcome game.Outcome
	err := s.repository.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if t.Action == game.ActionJoin {
			name, err := displayName(ctx, tx, t.Actor)
			if err != nil {
				return err
			}
			t.ActorName = name
		}
		var err error
		view, outcome, err = s.applyTx(ctx, tx, gameID, t)
		return err
	})
	if err != nil {
		log.Debug("Rejected %s on game %s by %s: %v", t.Action, gameID, t.Actor, err)
		return nil, game.Outcome{}, err
	}
	s.logOutcome(gameID, t, view, outcome)
	return view, outcome, nil
}

func (s *Service) logOutcome(gameID string, t game.Transition, view *GameView, out game.Outcome) {
	switch {
	case out.Completed || view.Game.Status == types.RemoteGameCancelled:
		log.With(
			zap.String("gameId", gameID),
			zap.String("action", string(t.Action)),
			zap.String("status", string(view.Game.Status)),
			zap.String("winnerUid", view.Game.WinnerUID),
		).Info("Remote game finished")
	case out.Disputed:
		log.With(
			zap.String("gameId", gameID),
			zap.String("roundId", view.Game.CurrentRoundID),
		).Info("Round disputed")
	}
}

// Create opens a waiting game owned by the caller.
func (s *Service) Create(ctx context.Context, caller string) (*GameView, error) {
	var g *types.RemoteGame
	err := s.repository.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		g, err = s.createTx(ctx, tx, caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info("Player %s created remote game %s", caller, g.ID)
	return &GameView{Game: g}, nil
}

func (s *Service) createTx(ctx context.Context, tx repositories.Tx, caller string) (*types.RemoteGame, error) {
	name, err := displayName(ctx, tx, caller)
	if err != nil {
		return nil, err
	}
	now := s.now()
	g := &types.RemoteGame{
		ID:             uuid.NewString(),
		PlayerAUID:     caller,
		PlayerAName:    name,
		Status:         types.RemoteGameWaiting,
		CurrentTurnUID: caller,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.Create(ctx, types.RemoteGamesCollection, g.ID, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Service) Join(ctx context.Context, caller, gameID string) (*GameView, error) {
	view, _, err := s.apply(ctx, gameID, game.Transition{Action: game.ActionJoin, Actor: caller})
	if err != nil {
		return nil, err
	}
	s.notifyBestEffort(ctx, view.Game.PlayerAUID, notify.Notification{
		Title: "Game on",
		Body:  view.Game.PlayerBName + " joined your game. Set a trick.",
		Data:  map[string]string{"gameId": gameID},
	})
	return view, nil
}

// SetComplete records the offense's set video. Normally driven by the upload pipeline.
func (s *Service) SetComplete(ctx context.Context, caller, gameID, videoID string) (*GameView, error) {
	view, _, err := s.apply(ctx, gameID, game.Transition{Action: game.ActionSetComplete, Actor: caller, VideoID: videoID})
	return view, err
}

// ReplyComplete records the defense's reply video. Normally driven by the upload pipeline.
func (s *Service) ReplyComplete(ctx context.Context, caller, gameID, videoID string) (*GameView, error) {
	view, _, err := s.apply(ctx, gameID, game.Transition{Action: game.ActionReplyComplete, Actor: caller, VideoID: videoID})
	return view, err
}

// Resolve records the offense's claim for the current round.
func (s *Service) Resolve(ctx context.Context, caller, gameID string, result types.RoundResult) (*GameView, error) {
	view, _, err := s.apply(ctx, gameID, game.Transition{Action: game.ActionResolve, Actor: caller, Result: result})
	return view, err
}

// Confirm records the defense's claim. The bool reports whether the claims disagreed.
func (s *Service) Confirm(ctx context.Context, caller, gameID string, result types.RoundResult) (*GameView, bool, error) {
	view, out, err := s.apply(ctx, gameID, game.Transition{Action: game.ActionConfirm, Actor: caller, Result: result})
	if err != nil {
		return nil, false, err
	}
	return view, out.Disputed, nil
}

// Adjudicate settles a disputed round. Only moderators may call it.
func (s *Service) Adjudicate(ctx context.Context, caller string, moderator bool, gameID string, result types.RoundResult) (*GameView, error) {
	if !moderator {
		return nil, game.PermissionDenied("only moderators can settle disputes")
	}
	view, _, err := s.apply(ctx, gameID, game.Transition{Action: game.ActionAdjudicate, Actor: caller, Result: result})
	return view, err
}

// Cancel withdraws a waiting game, or forfeits an active one.
func (s *Service) Cancel(ctx context.Context, caller, gameID string) (*GameView, error) {
	view, _, err := s.apply(ctx, gameID, game.Transition{Action: game.ActionCancel, Actor: caller})
	return view, err
}

// Get returns the game and its current round. Waiting games are visible to anyone looking for an opponent.
func (s *Service) Get(ctx context.Context, caller, gameID string) (*GameView, error) {
	var view *GameView
	err := s.repository.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		view, err = loadView(ctx, tx, gameID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !view.Game.HasPlayer(caller) && view.Game.Status != types.RemoteGameWaiting {
		return nil, game.PermissionDenied("not a participant of game %s", gameID)
	}
	return view, nil
}

// Notify nudges the opponent of the caller.
func (s *Service) Notify(ctx context.Context, caller, gameID string) error {
	view, err := s.Get(ctx, caller, gameID)
	if err != nil {
		return err
	}
	g := view.Game
	if !g.HasPlayer(caller) {
		return game.PermissionDenied("not a participant of game %s", gameID)
	}
	opponent := g.Opponent(caller)
	if opponent == "" {
		return game.IllegalTransition("game %s has no opponent yet", gameID)
	}
	if g.Status != types.RemoteGameActive {
		return game.IllegalTransition("game is %s", g.Status)
	}

	n := notify.Notification{
		Title: "S.K.A.T.E.",
		Body:  "Your opponent is waiting on you.",
		Data:  map[string]string{"gameId": gameID},
	}
	if g.CurrentTurnUID == caller {
		n.Body = "Your opponent wants to keep the game going."
	}
	if err := s.notifier.Notify(ctx, opponent, n); err != nil {
		return game.Unavailable(err, "failed to notify opponent")
	}
	return nil
}

func (s *Service) notifyBestEffort(ctx context.Context, uid string, n notify.Notification) {
	if uid == "" {
		return
	}
	if err := s.notifier.Notify(ctx, uid, n); err != nil {
		log.Warn("Failed to notify %s: %v", uid, err)
	}
}
