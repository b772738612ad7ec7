package types

import "time"

// UsersCollection is the repository collection holding user profiles.
const UsersCollection = "users"

// User is the server-side profile of an authenticated participant.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	PhotoURL    string    `json:"photoUrl,omitempty"`
	FCMTokens   []string  `json:"fcmTokens,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
