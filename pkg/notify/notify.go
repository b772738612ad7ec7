package notify

import (
	"context"
	"time"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
)

// MaxTokensPerUser bounds the stored device tokens; the oldest is dropped first.
const MaxTokensPerUser = 10

type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notifier delivers push notifications to every registered device of a user.
type Notifier interface {
	Notify(ctx context.Context, uid string, n Notification) error
}

var _ Notifier = &LogNotifier{}

// LogNotifier only logs notifications. It is used when push messaging is not configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, uid string, n Notification) error {
	log.Info("Notification for %s: %s - %s", uid, n.Title, n.Body)
	return nil
}

// RegisterToken records a device token on the user's profile, creating the profile if needed.
func RegisterToken(ctx context.Context, repo repositories.Repository, uid, token string) error {
	return repo.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		now := time.Now().UTC()
		user := &types.User{ID: uid, DisplayName: uid, CreatedAt: now}
		doc, err := tx.Get(ctx, types.UsersCollection, uid)
		if err != nil && !repositories.IsNotFound(err) {
			return err
		}
		if doc != nil {
			if user, err = repositories.Decode[types.User](doc); err != nil {
				return err
			}
		}
		for _, t := range user.FCMTokens {
			if t == token {
				return nil
			}
		}
		user.FCMTokens = append(user.FCMTokens, token)
		if len(user.FCMTokens) > MaxTokensPerUser {
			user.FCMTokens = user.FCMTokens[len(user.FCMTokens)-MaxTokensPerUser:]
		}
		user.UpdatedAt = now
		return tx.Set(ctx, types.UsersCollection, uid, user)
	})
}

// removeTokens drops dead device tokens from the user's profile.
func removeTokens(ctx context.Context, repo repositories.Repository, uid string, dead []string) error {
	if len(dead) == 0 {
		return nil
	}
	drop := make(map[string]bool, len(dead))
	for _, t := range dead {
		drop[t] = true
	}
	return repo.RunTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		doc, err := tx.Get(ctx, types.UsersCollection, uid)
		if err != nil {
			if repositories.IsNotFound(err) {
				return nil
			}
			return err
		}
		user, err := repositories.Decode[types.User](doc)
		if err != nil {
			return err
		}
		kept := user.FCMTokens[:0]
		for _, t := range user.FCMTokens {
			if !drop[t] {
				kept = append(kept, t)
			}
		}
		user.FCMTokens = kept
		user.UpdatedAt = time.Now().UTC()
		return tx.Set(ctx, types.UsersCollection, uid, user)
	})
}
