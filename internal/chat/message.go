// Package chat implements the support chat session: the transcript, the
// reconciliation of optimistic local sends against server-confirmed
// messages, and the controller that ties a realtime connection to the
// visibility of the chat surface.
package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OptimisticPrefix marks client-assigned ids that have not been confirmed.
const OptimisticPrefix = "optimistic-"

// Sender identifies who authored a message relative to the local user.
type Sender string

const (
	SenderLocal  Sender = "user"
	SenderRemote Sender = "counterparty"
)

// Message is one transcript entry.
type Message struct {
	ID       string
	Text     string
	Sender   Sender
	SenderID string
	// ClientID is the optimistic id echoed back by the server, if any.
	ClientID  string
	Timestamp time.Time
}

// Optimistic reports whether the message still carries a client-assigned id.
func (m Message) Optimistic() bool {
	return strings.HasPrefix(m.ID, OptimisticPrefix)
}

// WireMessage is the payload of the "message" event in both directions.
type WireMessage struct {
	ID           string `json:"id,omitempty"`
	SenderID     string `json:"senderId"`
	Text         string `json:"text"`
	OptimisticID string `json:"optimisticId,omitempty"`
	CreatedAt    int64  `json:"createdAt,omitempty"` // ms since epoch
}

// ToMessage converts a wire payload into a transcript entry. This is the
// only place the sender role is derived; received is used when the payload
// carries no creation time.
func (w WireMessage) ToMessage(localUserID string, received time.Time) Message {
	sender := SenderRemote
	if localUserID != "" && w.SenderID == localUserID {
		sender = SenderLocal
	}
	ts := received
	if w.CreatedAt > 0 {
		ts = time.UnixMilli(w.CreatedAt)
	}
	id := w.ID
	if id == "" {
		id = w.OptimisticID
	}
	return Message{
		ID:        id,
		Text:      w.Text,
		Sender:    sender,
		SenderID:  w.SenderID,
		ClientID:  w.OptimisticID,
		Timestamp: ts,
	}
}

// Event names carried in Envelope.Event.
const (
	EventNameWelcome = "welcome"
	EventNameMessage = "message"
	EventNameError   = "error"
)

// Envelope is one JSON frame on the realtime connection.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes v as the data of a named event.
func NewEnvelope(event string, v any) (Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("chat: encode %s: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// Text decodes a string payload (welcome and error events).
func (e Envelope) Text() (string, error) {
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return "", fmt.Errorf("chat: decode %s: %w", e.Event, err)
	}
	return s, nil
}

// Message decodes a message payload.
func (e Envelope) Message() (WireMessage, error) {
	var w WireMessage
	if err := json.Unmarshal(e.Data, &w); err != nil {
		return WireMessage{}, fmt.Errorf("chat: decode %s: %w", e.Event, err)
	}
	return w, nil
}
