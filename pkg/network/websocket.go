package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/messages"
	"nhooyr.io/websocket"
)

const (
	// WriteTimeout bounds a single frame write to a slow peer.
	WriteTimeout = 10 * time.Second
	// PingInterval keeps idle watch connections alive through proxies.
	PingInterval = 30 * time.Second
)

// Encoding selects how messages are framed on a websocket.
type Encoding int

const (
	// EncodingJSON sends each message as a JSON text frame.
	EncodingJSON Encoding = iota
	// EncodingZstd sends each message as zstd-compressed JSON in a binary frame.
	EncodingZstd
)

// EncodingFromRequest reads the ?encoding= query parameter.
func EncodingFromRequest(r *http.Request) Encoding {
	if r.URL.Query().Get("encoding") == "zstd" {
		return EncodingZstd
	}
	return EncodingJSON
}

type StreamOptions struct {
	// OriginPatterns are the cross-origin hosts allowed to open a socket. "*" allows any.
	OriginPatterns []string
	Encoding       Encoding
}

// ServeStream upgrades the request and writes every message received from src.
// It returns when src is closed, the peer goes away or the request context ends.
// Anything the peer sends is discarded.
func ServeStream(w http.ResponseWriter, r *http.Request, opts StreamOptions, src <-chan *messages.Message) error {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: opts.OriginPatterns,
	})
	if err != nil {
		return fmt.Errorf("failed to upgrade to WebSocket: %v", err)
	}
	defer conn.CloseNow()
	log.Debug("New WebSocket stream from %s for %s", r.RemoteAddr, r.URL.Path)

	ctx := conn.CloseRead(r.Context())
	ping := time.NewTicker(PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Trace("WebSocket stream closed for %s", r.RemoteAddr)
			return nil
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, WriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				log.Trace("WebSocket ping to %s failed: %v", r.RemoteAddr, err)
				return nil
			}
		case msg, ok := <-src:
			if !ok {
				return conn.Close(websocket.StatusNormalClosure, "stream ended")
			}
			if err := WriteMessageToWS(ctx, conn, opts.Encoding, msg); err != nil {
				if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
					return nil
				}
				return err
			}
		}
	}
}

// WriteMessageToWS writes a Message to a WebSocket connection
func WriteMessageToWS(ctx context.Context, conn *websocket.Conn, enc Encoding, msg *messages.Message) error {
	ctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()

	var (
		typ websocket.MessageType
		b   []byte
		err error
	)
	switch enc {
	case EncodingZstd:
		typ = websocket.MessageBinary
		b, err = messages.SerializeMessage(msg)
	default:
		typ = websocket.MessageText
		b, err = json.Marshal(msg)
	}
	if err != nil {
		return fmt.Errorf("failed to serialize message: %v", err)
	}

	if err := conn.Write(ctx, typ, b); err != nil {
		return fmt.Errorf("failed to write message to WebSocket connection: %w", err)
	}
	return nil
}

// ReadMessageFromWS reads a Message from a WebSocket connection
func ReadMessageFromWS(ctx context.Context, conn *websocket.Conn) (*messages.Message, error) {
	typ, b, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}

	if typ == websocket.MessageBinary {
		msg, err := messages.DeserializeMessage(b)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize message: %v", err)
		}
		return msg, nil
	}

	msg := &messages.Message{}
	if err := json.Unmarshal(b, msg); err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %v", err)
	}
	return msg, nil
}
