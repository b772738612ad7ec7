package watch

import (
	"context"
	"fmt"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/messages"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/repositories"
	"github.com/redis/go-redis/v9"
)

func redisChannel(collection, id string) string {
	return fmt.Sprintf("skate:watch:%s:%s", collection, id)
}

// RedisBroker fans changes out through Redis Pub/Sub so that every server instance
// observes the commits of every other instance.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{
		client: client,
	}
}

func (b *RedisBroker) Publish(ctx context.Context, changes []repositories.Change) error {
	for _, c := range changes {
		snap := SnapshotOf(c.Collection, c.ID, c.Document)
		payload, err := messages.SerializeMessage(messageOf(snap))
		if err != nil {
			return err
		}
		if err := b.client.Publish(ctx, redisChannel(c.Collection, c.ID), payload).Err(); err != nil {
			return fmt.Errorf("failed to publish %s/%s: %w", c.Collection, c.ID, err)
		}
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, collection, id string) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, redisChannel(collection, id))
	// Wait for the subscription to be confirmed so no later publish is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s/%s: %w", collection, id, err)
	}

	sub := newSubscription(func() {
		if err := pubsub.Close(); err != nil {
			log.Debug("Failed to close pubsub for %s/%s: %v", collection, id, err)
		}
	})

	ch := pubsub.Channel()
	go func() {
		for {
			select {
			case <-sub.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					sub.Close()
					return
				}
				m, err := messages.DeserializeMessage([]byte(msg.Payload))
				if err != nil {
					log.Warn("Dropping malformed watch message on %s: %v", msg.Channel, err)
					continue
				}
				sub.deliver(snapshotOf(m))
			}
		}
	}()

	closeOnDone(ctx, sub)
	return sub, nil
}

func (b *RedisBroker) Close() error {
	return nil
}

// messageOf converts a snapshot to its wire envelope.
func messageOf(snap Snapshot) *messages.Message {
	m := &messages.Message{
		Type:       messages.MessageTypeSnapshot,
		Collection: snap.Collection,
		ID:         snap.ID,
		Version:    snap.Version,
		Payload:    snap.Data,
	}
	if !snap.Exists {
		m.Type = messages.MessageTypeDeleted
	}
	return m
}

func snapshotOf(m *messages.Message) Snapshot {
	return Snapshot{
		Collection: m.Collection,
		ID:         m.ID,
		Exists:     m.Type == messages.MessageTypeSnapshot,
		Version:    m.Version,
		Data:       m.Payload,
	}
}
