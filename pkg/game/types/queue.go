package types

import "time"

// QueueCollection is the repository collection holding matchmaking tickets.
const QueueCollection = "match_queue"

type QueueStatus string

const (
	QueueStatusWaiting QueueStatus = "WAITING"
	QueueStatusMatched QueueStatus = "MATCHED"
)

// QueueEntry is an ephemeral matchmaking ticket. Only its creator may delete it.
type QueueEntry struct {
	ID               string      `json:"id"`
	CreatorID        string      `json:"creatorId"`
	CreatorName      string      `json:"creatorName"`
	CreatorAvatarURL string      `json:"creatorAvatarUrl,omitempty"`
	Stance           Stance      `json:"stance"`
	Status           QueueStatus `json:"status"`
	CreatedAt        time.Time   `json:"createdAt"`
}
