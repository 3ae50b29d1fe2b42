// Package models defines the GORM models persisted by the relay.
package models

import (
	"strconv"
	"time"
)

// ChatMessage is one message in a support conversation. A conversation is
// keyed by the customer's user id; agent replies share that key.
type ChatMessage struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	ConversationID string    `gorm:"size:64;not null;index:idx_conversation_created"`
	SenderID       string    `gorm:"size:64;not null"`
	ClientID       string    `gorm:"size:96;index"`
	Text           string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"index:idx_conversation_created"`
}

// PublicID is the durable id sent to clients.
func (m ChatMessage) PublicID() string {
	return strconv.FormatUint(uint64(m.ID), 10)
}
