package game

import (
	"strings"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
)

// InPerson is the live variant over a types.Match document.
type InPerson struct {
	match *types.Match
	rules Rules
}

func NewInPerson(m *types.Match, rules Rules) *InPerson {
	return &InPerson{
		match: m,
		rules: rules,
	}
}

func (v *InPerson) Phase() string {
	return string(v.match.State.Phase)
}

func (v *InPerson) Turn() string {
	return v.match.State.TurnPlayerID
}

func (v *InPerson) Match() *types.Match {
	return v.match
}

// Apply validates t against the current match and, if legal, applies it.
func (v *InPerson) Apply(t Transition) (Outcome, error) {
	if !v.match.HasPlayer(t.Actor) {
		return Outcome{}, PermissionDenied("not a participant of match %s", v.match.ID)
	}

	next := v.match.Copy()
	var out Outcome
	var err error
	switch t.Action {
	case ActionAccept:
		err = v.accept(next, t)
	case ActionDecline, ActionAbandon:
		err = v.decline(next, t)
	case ActionSet:
		err = v.set(next, t)
	case ActionLand:
		out, err = v.land(next, t)
	case ActionBail:
		out, err = v.bail(next, t)
	case ActionAttempt:
		err = v.attempt(next, t)
	case ActionJudge:
		out, err = v.judge(next, t)
	case ActionForfeit:
		out, err = v.forfeit(next, t)
	default:
		return Outcome{}, InvalidArgument("unknown action %q", t.Action)
	}
	if err != nil {
		return Outcome{}, err
	}

	next.UpdatedAt = t.Now
	*v.match = *next
	return out, nil
}

func (v *InPerson) accept(m *types.Match, t Transition) error {
	if m.State.Status != types.MatchStatusPendingAccept {
		return IllegalTransition("match is %s", m.State.Status)
	}
	if t.Actor == m.ChallengerID {
		return PermissionDenied("challenger cannot accept their own challenge")
	}
	if t.StarterSlot != 0 && t.StarterSlot != 1 {
		return InvalidArgument("starter slot %d out of range", t.StarterSlot)
	}
	if t.Stance != "" {
		if m.PlayerData == nil {
			m.PlayerData = map[string]types.PlayerData{}
		}
		pd := m.PlayerData[t.Actor]
		pd.Stance = t.Stance
		m.PlayerData[t.Actor] = pd
	}
	m.State.Status = types.MatchStatusActive
	m.State.Phase = types.PhaseSetterRecording
	m.State.TurnPlayerID = m.Players[t.StarterSlot]
	m.State.CurrentTrick = nil
	return nil
}

func (v *InPerson) decline(m *types.Match, t Transition) error {
	if m.State.Status != types.MatchStatusPendingAccept {
		return IllegalTransition("match is %s", m.State.Status)
	}
	isChallenger := t.Actor == m.ChallengerID
	if t.Action == ActionDecline && isChallenger {
		return PermissionDenied("only the challenged player can decline")
	}
	if t.Action == ActionAbandon && !isChallenger {
		return PermissionDenied("only the challenger can abandon")
	}
	m.State.Status = types.MatchStatusCancelled
	return nil
}

func (v *InPerson) set(m *types.Match, t Transition) error {
	if m.State.Status != types.MatchStatusActive {
		return ErrInvalidTurn
	}
	if m.State.Phase != types.PhaseSetterRecording || t.Actor != m.State.TurnPlayerID {
		return ErrInvalidTurn
	}
	name := strings.TrimSpace(t.TrickName)
	if name == "" {
		return InvalidArgument("trick name is required")
	}
	m.State.CurrentTrick = &types.Trick{
		Name:        name,
		Description: strings.TrimSpace(t.TrickDescription),
		SetterID:    t.Actor,
		SetAt:       t.Now,
		ClipURL:     t.ClipURL,
	}
	m.State.Phase = types.PhaseDefenderAttempting
	m.State.AttemptClipURL = ""
	m.State.RoundNumber++
	return nil
}

// defending reports whether the match awaits the defender's response.
func defending(m *types.Match) bool {
	return m.State.Status == types.MatchStatusActive &&
		m.State.Phase == types.PhaseDefenderAttempting &&
		m.State.CurrentTrick != nil
}

func (v *InPerson) land(m *types.Match, t Transition) (Outcome, error) {
	if !defending(m) || t.Actor == m.State.CurrentTrick.SetterID {
		return Outcome{}, ErrInvalidTurn
	}
	return v.score(m, ""), nil
}

func (v *InPerson) bail(m *types.Match, t Transition) (Outcome, error) {
	if !defending(m) {
		return Outcome{}, ErrInvalidTurn
	}
	return v.score(m, t.Actor), nil
}

func (v *InPerson) attempt(m *types.Match, t Transition) error {
	if !defending(m) || t.Actor == m.State.CurrentTrick.SetterID {
		return ErrInvalidTurn
	}
	m.State.Phase = types.PhaseVerification
	m.State.AttemptClipURL = t.ClipURL
	return nil
}

func (v *InPerson) judge(m *types.Match, t Transition) (Outcome, error) {
	if m.State.Status != types.MatchStatusActive ||
		m.State.Phase != types.PhaseVerification ||
		m.State.CurrentTrick == nil ||
		t.Actor != m.State.CurrentTrick.SetterID {
		return Outcome{}, ErrInvalidTurn
	}
	if t.Landed {
		return v.score(m, ""), nil
	}
	return v.score(m, m.Opponent(m.State.CurrentTrick.SetterID)), nil
}

func (v *InPerson) forfeit(m *types.Match, t Transition) (Outcome, error) {
	if m.State.Status != types.MatchStatusActive {
		return Outcome{}, IllegalTransition("match is %s", m.State.Status)
	}
	m.State.Status = types.MatchStatusCancelled
	m.State.CurrentTrick = nil
	m.State.AttemptClipURL = ""
	m.WinnerID = m.Opponent(t.Actor)
	return Outcome{WinnerID: m.WinnerID}, nil
}

// score closes the pending trick. failed is the participant who missed, or empty.
func (v *InPerson) score(m *types.Match, failed string) Outcome {
	setter := m.State.CurrentTrick.SetterID
	s := v.rules.Score(Exchange{
		Setter:   setter,
		Defender: m.Opponent(setter),
		Failed:   failed,
	})

	m.State.CurrentTrick = nil
	m.State.AttemptClipURL = ""
	m.State.Phase = types.PhaseSetterRecording
	m.State.TurnPlayerID = s.NextSetter

	out := Outcome{LetterTo: s.LetterTo}
	if s.LetterTo != "" && AddLetter(matchBoard{m}, s.LetterTo) {
		m.State.Status = types.MatchStatusCompleted
		m.WinnerID = m.Opponent(s.LetterTo)
		out.Completed = true
		out.WinnerID = m.WinnerID
	}
	return out
}

type matchBoard struct {
	m *types.Match
}

func (b matchBoard) Letters(uid string) int {
	switch b.m.Slot(uid) {
	case 0:
		return b.m.State.P1Letters
	case 1:
		return b.m.State.P2Letters
	default:
		return 0
	}
}

func (b matchBoard) SetLetters(uid string, n int) {
	switch b.m.Slot(uid) {
	case 0:
		b.m.State.P1Letters = n
	case 1:
		b.m.State.P2Letters = n
	}
}
