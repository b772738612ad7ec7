package messages

import "encoding/json"

// Message types pushed to subscribers.
const (
	// MessageTypeSnapshot carries the full current document.
	MessageTypeSnapshot = "snapshot"
	// MessageTypeDeleted reports that the watched document no longer exists.
	MessageTypeDeleted = "deleted"
	// MessageTypeMatched carries the id of the match a queue entry was paired into.
	MessageTypeMatched = "matched"
	MessageTypeError   = "error"
)

// Message is the envelope of every pushed frame.
type Message struct {
	Type       string          `json:"type"`
	Collection string          `json:"collection,omitempty"`
	ID         string          `json:"id,omitempty"`
	Version    int64           `json:"version,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds a message whose payload is the JSON encoding of v.
func NewMessage(messageType string, v interface{}) (*Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:    messageType,
		Payload: payload,
	}, nil
}
