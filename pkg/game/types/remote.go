package types

import "time"

const (
	RemoteGamesCollection  = "remote_games"
	RemoteRoundsCollection = "remote_rounds"
	RemoteVideosCollection = "remote_videos"
)

type RemoteGameStatus string

const (
	RemoteGameWaiting   RemoteGameStatus = "waiting"
	RemoteGameActive    RemoteGameStatus = "active"
	RemoteGameComplete  RemoteGameStatus = "complete"
	RemoteGameCancelled RemoteGameStatus = "cancelled"
)

type RoundStatus string

const (
	RoundAwaitingSet          RoundStatus = "awaiting_set"
	RoundAwaitingReply        RoundStatus = "awaiting_reply"
	RoundAwaitingConfirmation RoundStatus = "awaiting_confirmation"
	RoundDisputed             RoundStatus = "disputed"
	RoundResolved             RoundStatus = "resolved"
)

// RoundResult is the outcome of the defense's reply. The zero value means no result yet.
type RoundResult string

const (
	ResultLanded RoundResult = "landed"
	ResultMissed RoundResult = "missed"
)

// Valid reports whether r is landed or missed.
func (r RoundResult) Valid() bool {
	return r == ResultLanded || r == ResultMissed
}

type VideoRole string

const (
	VideoRoleSet   VideoRole = "set"
	VideoRoleReply VideoRole = "reply"
)

// Valid reports whether r is a known role.
func (r VideoRole) Valid() bool {
	return r == VideoRoleSet || r == VideoRoleReply
}

type VideoStatus string

const (
	VideoUploading VideoStatus = "uploading"
	VideoReady     VideoStatus = "ready"
	VideoFailed    VideoStatus = "failed"
)

// RemoteGame is the game document of the asynchronous video-verified variant.
type RemoteGame struct {
	ID         string `json:"id"`
	PlayerAUID string `json:"playerAUid"`
	// PlayerBUID is empty until a second participant joins.
	PlayerBUID     string           `json:"playerBUid,omitempty"`
	PlayerAName    string           `json:"playerAName,omitempty"`
	PlayerBName    string           `json:"playerBName,omitempty"`
	PlayerALetters string           `json:"playerALetters"`
	PlayerBLetters string           `json:"playerBLetters"`
	Status         RemoteGameStatus `json:"status"`
	CurrentTurnUID string           `json:"currentTurnUid"`
	CurrentRoundID string           `json:"currentRoundId,omitempty"`
	RoundNumber    int              `json:"roundNumber"`
	WinnerUID      string           `json:"winnerUid,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// HasPlayer reports whether uid is player A or player B.
func (g *RemoteGame) HasPlayer(uid string) bool {
	return uid != "" && (uid == g.PlayerAUID || uid == g.PlayerBUID)
}

// Opponent returns the other participant, or "" if uid is not a participant.
func (g *RemoteGame) Opponent(uid string) string {
	switch uid {
	case g.PlayerAUID:
		return g.PlayerBUID
	case g.PlayerBUID:
		return g.PlayerAUID
	default:
		return ""
	}
}

// RemoteRound is one offense/defense exchange of a remote game.
type RemoteRound struct {
	ID           string      `json:"id"`
	GameID       string      `json:"gameId"`
	Number       int         `json:"number"`
	OffenseUID   string      `json:"offenseUid"`
	DefenseUID   string      `json:"defenseUid"`
	Status       RoundStatus `json:"status"`
	SetVideoID   string      `json:"setVideoId,omitempty"`
	ReplyVideoID string      `json:"replyVideoId,omitempty"`
	Result       RoundResult `json:"result,omitempty"`
	OffenseClaim RoundResult `json:"offenseClaim,omitempty"`
	DefenseClaim RoundResult `json:"defenseClaim,omitempty"`
	// AdjudicatedBy names the moderator who settled a dispute.
	AdjudicatedBy string     `json:"adjudicatedBy,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
}

// RemoteVideo tracks one uploaded clip and its transfer state.
type RemoteVideo struct {
	ID            string      `json:"id"`
	OwnerUID      string      `json:"ownerUid"`
	GameID        string      `json:"gameId"`
	RoundID       string      `json:"roundId"`
	Role          VideoRole   `json:"role"`
	StoragePath   string      `json:"storagePath"`
	URL           string      `json:"url,omitempty"`
	Status        VideoStatus `json:"status"`
	DurationMs    int64       `json:"durationMs"`
	SizeBytes     int64       `json:"sizeBytes"`
	BytesUploaded int64       `json:"bytesUploaded"`
	ContentType   string      `json:"contentType"`
	ErrorCode     string      `json:"errorCode,omitempty"`
	ErrorMessage  string      `json:"errorMessage,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}
