package game

import (
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
)

// Remote is the asynchronous video-verified variant over a game and its current round.
// The round is nil while the game is waiting for an opponent.
type Remote struct {
	game  *types.RemoteGame
	round *types.RemoteRound
	rules Rules
}

func NewRemote(g *types.RemoteGame, r *types.RemoteRound, rules Rules) *Remote {
	return &Remote{
		game:  g,
		round: r,
		rules: rules,
	}
}

// Phase returns the current round status, or the game status when no round is open.
func (v *Remote) Phase() string {
	if v.round == nil || v.game.Status != types.RemoteGameActive {
		return string(v.game.Status)
	}
	return string(v.round.Status)
}

func (v *Remote) Turn() string {
	return v.game.CurrentTurnUID
}

func (v *Remote) Game() *types.RemoteGame {
	return v.game
}

func (v *Remote) Round() *types.RemoteRound {
	return v.round
}

// Apply validates t against the game and round and, if legal, applies it.
// A Disputed outcome is a successful transition, not an error.
func (v *Remote) Apply(t Transition) (Outcome, error) {
	g := *v.game
	var r *types.RemoteRound
	if v.round != nil {
		rc := *v.round
		r = &rc
	}

	var out Outcome
	var err error
	switch t.Action {
	case ActionJoin:
		out, err = v.join(&g, t)
	case ActionCancel:
		out, err = v.cancel(&g, t)
	case ActionSetComplete, ActionReplyComplete, ActionResolve, ActionConfirm, ActionAdjudicate:
		if err = v.requireRound(&g, r); err != nil {
			break
		}
		switch t.Action {
		case ActionSetComplete:
			err = v.setComplete(&g, r, t)
		case ActionReplyComplete:
			err = v.replyComplete(&g, r, t)
		case ActionResolve:
			err = v.resolve(r, t)
		case ActionConfirm:
			out, err = v.confirm(&g, r, t)
		case ActionAdjudicate:
			out, err = v.adjudicate(&g, r, t)
		}
	default:
		return Outcome{}, InvalidArgument("unknown action %q", t.Action)
	}
	if err != nil {
		return Outcome{}, err
	}

	g.UpdatedAt = t.Now
	*v.game = g
	if r != nil {
		r.UpdatedAt = t.Now
		if v.round == nil {
			v.round = r
		} else {
			*v.round = *r
		}
	}
	if out.NextRound != nil {
		v.round = out.NextRound
	}
	return out, nil
}

func (v *Remote) requireRound(g *types.RemoteGame, r *types.RemoteRound) error {
	if g.Status != types.RemoteGameActive {
		return IllegalTransition("game is %s", g.Status)
	}
	if r == nil || r.ID != g.CurrentRoundID {
		return NotFound("no current round for game %s", g.ID)
	}
	return nil
}

func (v *Remote) join(g *types.RemoteGame, t Transition) (Outcome, error) {
	if g.Status != types.RemoteGameWaiting {
		return Outcome{}, Conflict("game %s is no longer waiting", g.ID)
	}
	if t.Actor == g.PlayerAUID {
		return Outcome{}, IllegalTransition("cannot join your own game")
	}
	if t.NewRoundID == "" {
		return Outcome{}, InvalidArgument("round id is required")
	}
	g.PlayerBUID = t.Actor
	g.PlayerBName = t.ActorName
	g.Status = types.RemoteGameActive
	g.CurrentTurnUID = g.PlayerAUID
	next := v.openRound(g, t, g.PlayerAUID, g.PlayerBUID)
	return Outcome{NextRound: next}, nil
}

func (v *Remote) cancel(g *types.RemoteGame, t Transition) (Outcome, error) {
	if !g.HasPlayer(t.Actor) {
		return Outcome{}, PermissionDenied("not a participant of game %s", g.ID)
	}
	switch g.Status {
	case types.RemoteGameWaiting:
		if t.Actor != g.PlayerAUID {
			return Outcome{}, PermissionDenied("only the creator can cancel a waiting game")
		}
		g.Status = types.RemoteGameCancelled
		return Outcome{}, nil
	case types.RemoteGameActive:
		g.Status = types.RemoteGameCancelled
		g.WinnerUID = g.Opponent(t.Actor)
		return Outcome{WinnerID: g.WinnerUID}, nil
	default:
		return Outcome{}, IllegalTransition("game is %s", g.Status)
	}
}

func (v *Remote) setComplete(g *types.RemoteGame, r *types.RemoteRound, t Transition) error {
	if t.Actor != r.OffenseUID {
		return PermissionDenied("only the offense records the set")
	}
	if r.Status != types.RoundAwaitingSet {
		return IllegalTransition("round is %s", r.Status)
	}
	r.SetVideoID = t.VideoID
	r.Status = types.RoundAwaitingReply
	g.CurrentTurnUID = r.DefenseUID
	return nil
}

func (v *Remote) replyComplete(g *types.RemoteGame, r *types.RemoteRound, t Transition) error {
	if t.Actor != r.DefenseUID {
		return PermissionDenied("only the defense records the reply")
	}
	if r.Status != types.RoundAwaitingReply {
		return IllegalTransition("round is %s", r.Status)
	}
	r.ReplyVideoID = t.VideoID
	r.Status = types.RoundAwaitingConfirmation
	g.CurrentTurnUID = r.OffenseUID
	return nil
}

func (v *Remote) resolve(r *types.RemoteRound, t Transition) error {
	if t.Actor != r.OffenseUID {
		return PermissionDenied("only the offense can resolve a round")
	}
	if !t.Result.Valid() {
		return InvalidArgument("result must be landed or missed")
	}
	if r.Status != types.RoundAwaitingConfirmation {
		return IllegalTransition("round is %s", r.Status)
	}
	if r.OffenseClaim != "" {
		return Conflict("round %s already claimed", r.ID)
	}
	r.OffenseClaim = t.Result
	return nil
}

func (v *Remote) confirm(g *types.RemoteGame, r *types.RemoteRound, t Transition) (Outcome, error) {
	if t.Actor != r.DefenseUID {
		return Outcome{}, PermissionDenied("only the defense can confirm a round")
	}
	if !t.Result.Valid() {
		return Outcome{}, InvalidArgument("result must be landed or missed")
	}
	switch r.Status {
	case types.RoundResolved, types.RoundDisputed:
		return Outcome{}, Conflict("round %s is already %s", r.ID, r.Status)
	case types.RoundAwaitingConfirmation:
	default:
		return Outcome{}, IllegalTransition("round is %s", r.Status)
	}
	if r.OffenseClaim == "" {
		return Outcome{}, IllegalTransition("offense has not claimed a result")
	}
	r.DefenseClaim = t.Result
	if r.DefenseClaim != r.OffenseClaim {
		r.Status = types.RoundDisputed
		return Outcome{Disputed: true}, nil
	}
	return v.finish(g, r, t), nil
}

func (v *Remote) adjudicate(g *types.RemoteGame, r *types.RemoteRound, t Transition) (Outcome, error) {
	if !t.Result.Valid() {
		return Outcome{}, InvalidArgument("result must be landed or missed")
	}
	if r.Status != types.RoundDisputed {
		return Outcome{}, IllegalTransition("round is %s", r.Status)
	}
	r.AdjudicatedBy = t.Actor
	return v.finish(g, r, t), nil
}

// finish records the agreed result and applies the letter and turn effects.
func (v *Remote) finish(g *types.RemoteGame, r *types.RemoteRound, t Transition) Outcome {
	now := t.Now
	r.Result = t.Result
	r.Status = types.RoundResolved
	r.ResolvedAt = &now

	x := Exchange{Setter: r.OffenseUID, Defender: r.DefenseUID}
	if t.Result == types.ResultMissed {
		x.Failed = r.DefenseUID
	}
	s := v.rules.Score(x)

	out := Outcome{LetterTo: s.LetterTo}
	if s.LetterTo != "" && AddLetter(remoteBoard{g}, s.LetterTo) {
		g.Status = types.RemoteGameComplete
		g.WinnerUID = g.Opponent(s.LetterTo)
		out.Completed = true
		out.WinnerID = g.WinnerUID
		return out
	}

	g.CurrentTurnUID = s.NextSetter
	if t.NewRoundID != "" {
		out.NextRound = v.openRound(g, t, s.NextSetter, g.Opponent(s.NextSetter))
	}
	return out
}

func (v *Remote) openRound(g *types.RemoteGame, t Transition, offense, defense string) *types.RemoteRound {
	g.RoundNumber++
	g.CurrentRoundID = t.NewRoundID
	return &types.RemoteRound{
		ID:         t.NewRoundID,
		GameID:     g.ID,
		Number:     g.RoundNumber,
		OffenseUID: offense,
		DefenseUID: defense,
		Status:     types.RoundAwaitingSet,
		CreatedAt:  t.Now,
		UpdatedAt:  t.Now,
	}
}

type remoteBoard struct {
	g *types.RemoteGame
}

func (b remoteBoard) Letters(uid string) int {
	switch uid {
	case b.g.PlayerAUID:
		return len(b.g.PlayerALetters)
	case b.g.PlayerBUID:
		return len(b.g.PlayerBLetters)
	default:
		return 0
	}
}

func (b remoteBoard) SetLetters(uid string, n int) {
	switch uid {
	case b.g.PlayerAUID:
		b.g.PlayerALetters = Spell(n)
	case b.g.PlayerBUID:
		b.g.PlayerBLetters = Spell(n)
	}
}
