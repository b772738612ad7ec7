package game

import (
	"time"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
)

type Action string

const (
	// In-person actions.
	ActionAccept  Action = "accept"
	ActionDecline Action = "decline"
	ActionAbandon Action = "abandon"
	ActionSet     Action = "set"
	ActionLand    Action = "land"
	ActionBail    Action = "bail"
	ActionAttempt Action = "attempt"
	ActionJudge   Action = "judge"
	ActionForfeit Action = "forfeit"

	// Remote actions.
	ActionJoin          Action = "join"
	ActionSetComplete   Action = "set-complete"
	ActionReplyComplete Action = "reply-complete"
	ActionResolve       Action = "resolve"
	ActionConfirm       Action = "confirm"
	ActionAdjudicate    Action = "adjudicate"
	ActionCancel        Action = "cancel"
)

// Transition is one requested state change. Only the fields relevant to Action are read.
type Transition struct {
	Action Action
	Actor  string
	Now    time.Time

	// set
	TrickName        string
	TrickDescription string
	ClipURL          string

	// judge
	Landed bool

	// accept
	Stance      types.Stance
	StarterSlot int

	// join
	ActorName string

	// set-complete, reply-complete
	VideoID string

	// resolve, confirm, adjudicate
	Result types.RoundResult

	// NewRoundID names the round created by join or by a resolved round.
	NewRoundID string
}

// Outcome reports what a successful transition did beyond mutating the document.
type Outcome struct {
	// LetterTo is the participant who received a letter, if any.
	LetterTo  string
	Completed bool
	WinnerID  string
	Disputed  bool
	// NextRound is the round opened by the transition, remote variant only.
	NextRound *types.RemoteRound
}

// Variant is a turn state machine over one persisted game document.
// Apply either fully applies t or returns an error and leaves the document untouched.
type Variant interface {
	Phase() string
	Turn() string
	Apply(t Transition) (Outcome, error)
}
