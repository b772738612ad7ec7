package handlers

import (
	"context"
	"net/http"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/messages"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/network"
)

// StreamOptions configures the websocket watch endpoints.
type StreamOptions struct {
	OriginPatterns []string
}

// serveStream converts every value of in to a message and writes it to a websocket
// until in is closed or the peer disconnects.
func serveStream[T any](w http.ResponseWriter, r *http.Request, opts StreamOptions, in <-chan T, convert func(T) (*messages.Message, error)) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan *messages.Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				msg, err := convert(v)
				if err != nil {
					log.Error("failed to build stream message: %v", err)
					return
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	err := network.ServeStream(w, r, network.StreamOptions{
		OriginPatterns: opts.OriginPatterns,
		Encoding:       network.EncodingFromRequest(r),
	}, out)
	if err != nil {
		log.Warn("Stream %s ended with error: %v", r.URL.Path, err)
	}
}

// snapshotMessage builds a snapshot of a watched document, or a deleted message when v is nil.
func snapshotMessage(collection, id string, version int64, v interface{}, exists bool) (*messages.Message, error) {
	if !exists {
		return &messages.Message{Type: messages.MessageTypeDeleted, Collection: collection, ID: id, Version: version}, nil
	}
	msg, err := messages.NewMessage(messages.MessageTypeSnapshot, v)
	if err != nil {
		return nil, err
	}
	msg.Collection = collection
	msg.ID = id
	msg.Version = version
	return msg, nil
}
