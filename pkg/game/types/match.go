package types

import "time"

// MatchesCollection is the repository collection holding in-person matches.
const MatchesCollection = "matches"

type MatchStatus string

const (
	MatchStatusMatchmaking   MatchStatus = "MATCHMAKING"
	MatchStatusPendingAccept MatchStatus = "PENDING_ACCEPT"
	MatchStatusActive        MatchStatus = "ACTIVE"
	MatchStatusCompleted     MatchStatus = "COMPLETED"
	MatchStatusCancelled     MatchStatus = "CANCELLED"
)

// Terminal reports whether no further transition may be applied.
func (s MatchStatus) Terminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusCancelled
}

type Phase string

const (
	PhaseSetterRecording    Phase = "SETTER_RECORDING"
	PhaseDefenderAttempting Phase = "DEFENDER_ATTEMPTING"
	PhaseVerification       Phase = "VERIFICATION"
)

type Stance string

const (
	StanceRegular Stance = "regular"
	StanceGoofy   Stance = "goofy"
)

// Valid reports whether s is a known stance.
func (s Stance) Valid() bool {
	return s == StanceRegular || s == StanceGoofy
}

// PlayerData is the public profile of a participant as captured when the match was created.
type PlayerData struct {
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Stance      Stance `json:"stance"`
}

// Trick is the trick currently pending a response.
type Trick struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	SetterID    string    `json:"setterId"`
	SetAt       time.Time `json:"setAt"`
	// ClipURL optionally references the setter's recording.
	ClipURL string `json:"clipUrl,omitempty"`
}

type MatchState struct {
	Status       MatchStatus `json:"status"`
	TurnPlayerID string      `json:"turnPlayerId"`
	Phase        Phase       `json:"phase"`
	P1Letters    int         `json:"p1Letters"`
	P2Letters    int         `json:"p2Letters"`
	CurrentTrick *Trick      `json:"currentTrick"`
	// AttemptClipURL references the defender's recorded attempt while in VERIFICATION.
	AttemptClipURL string `json:"attemptClipUrl,omitempty"`
	// RoundNumber counts SET transitions. Informational only.
	RoundNumber int `json:"roundNumber"`
}

// Match is the authoritative record of one in-person game.
type Match struct {
	ID string `json:"id"`
	// Players holds exactly two distinct participant IDs. Slot 0 is player 1.
	Players    [2]string             `json:"players"`
	PlayerData map[string]PlayerData `json:"playerData"`
	State      MatchState            `json:"state"`
	WinnerID   string                `json:"winnerId,omitempty"`
	// ChallengerID is set for matches created by a direct challenge.
	ChallengerID string    `json:"challengerId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Slot returns the player slot (0 or 1) of uid, or -1 if uid is not a participant.
func (m *Match) Slot(uid string) int {
	for i, p := range m.Players {
		if p == uid {
			return i
		}
	}
	return -1
}

// HasPlayer reports whether uid is one of the two participants.
func (m *Match) HasPlayer(uid string) bool {
	return m.Slot(uid) >= 0
}

// Opponent returns the other participant, or "" if uid is not a participant.
func (m *Match) Opponent(uid string) string {
	switch m.Slot(uid) {
	case 0:
		return m.Players[1]
	case 1:
		return m.Players[0]
	default:
		return ""
	}
}

// Copy returns a deep copy of the match.
func (m *Match) Copy() *Match {
	c := *m
	if m.PlayerData != nil {
		c.PlayerData = make(map[string]PlayerData, len(m.PlayerData))
		for k, v := range m.PlayerData {
			c.PlayerData[k] = v
		}
	}
	if m.State.CurrentTrick != nil {
		trick := *m.State.CurrentTrick
		c.State.CurrentTrick = &trick
	}
	return &c
}
