package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
)

// multicastSender is the part of *messaging.Client used here.
type multicastSender interface {
	SendMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

var _ Notifier = &FCMNotifier{}

// FCMNotifier sends Firebase Cloud Messaging notifications to the tokens stored on users.
type FCMNotifier struct {
	repository repositories.Repository
	client     multicastSender
}

func NewFCMNotifier(ctx context.Context, app *firebase.App, repo repositories.Repository) (*FCMNotifier, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Messaging client: %v", err)
	}
	return &FCMNotifier{
		repository: repo,
		client:     client,
	}, nil
}

func (n *FCMNotifier) Notify(ctx context.Context, uid string, notification Notification) error {
	doc, err := n.repository.Get(ctx, types.UsersCollection, uid)
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", uid, err)
	}
	user, err := repositories.Decode[types.User](doc)
	if err != nil {
		return err
	}
	if len(user.FCMTokens) == 0 {
		log.Debug("User %s has no registered devices", uid)
		return nil
	}

	resp, err := n.client.SendMulticast(ctx, &messaging.MulticastMessage{
		Tokens: user.FCMTokens,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data: notification.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to send notification to %s: %w", uid, err)
	}

	var dead []string
	for i, r := range resp.Responses {
		if r.Success || i >= len(user.FCMTokens) {
			continue
		}
		if messaging.IsRegistrationTokenNotRegistered(r.Error) || messaging.IsInvalidArgument(r.Error) {
			dead = append(dead, user.FCMTokens[i])
		}
	}
	if len(dead) > 0 {
		log.Debug("Removing %d stale device tokens of %s", len(dead), uid)
		if err := removeTokens(ctx, n.repository, uid, dead); err != nil {
			log.Warn("Failed to remove stale device tokens of %s: %v", uid, err)
		}
	}
	if resp.SuccessCount == 0 {
		return fmt.Errorf("no device of %s accepted the notification", uid)
	}
	return nil
}
