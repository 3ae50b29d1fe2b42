// Package messaging stores and queries support conversation history.
package messaging

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/haimi-h/shopify-clone-sub000/internal/models"
)

// DefaultHistoryLimit caps History when no limit is given.
const DefaultHistoryLimit = 100

// SendOpts holds optional parameters for storing a message.
type SendOpts struct {
	ClientID string // the sender's optimistic id, echoed back verbatim
	Now      time.Time
}

// Send stores a message in a conversation.
func Send(db *gorm.DB, conversationID, senderID, text string, opts SendOpts) (*models.ChatMessage, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("messaging: conversation is required")
	}
	if senderID == "" {
		return nil, fmt.Errorf("messaging: sender is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("messaging: text is required")
	}

	created := opts.Now
	if created.IsZero() {
		created = time.Now()
	}
	// SQLite compares timestamps as text, so store one zone.
	created = created.UTC()
	msg := models.ChatMessage{
		ConversationID: conversationID,
		SenderID:       senderID,
		ClientID:       opts.ClientID,
		Text:           text,
		CreatedAt:      created,
	}
	if err := db.Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("messaging: send: %w", err)
	}
	return &msg, nil
}

// HistoryOpts filters History.
type HistoryOpts struct {
	Limit   int  // most recent N messages; DefaultHistoryLimit when zero
	AfterID uint // only messages with a larger id
}

// History returns the most recent messages of a conversation, oldest first.
func History(db *gorm.DB, conversationID string, opts HistoryOpts) ([]models.ChatMessage, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("messaging: conversation is required")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	q := db.Where("conversation_id = ?", conversationID)
	if opts.AfterID > 0 {
		q = q.Where("id > ?", opts.AfterID)
	}
	var msgs []models.ChatMessage
	if err := q.Order("id DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("messaging: history %s: %w", conversationID, err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Purge deletes messages created before cutoff and returns how many were removed.
func Purge(db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.Where("created_at < ?", cutoff.UTC()).Delete(&models.ChatMessage{})
	if result.Error != nil {
		return 0, fmt.Errorf("messaging: purge: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Count returns the number of stored messages in a conversation.
func Count(db *gorm.DB, conversationID string) (int64, error) {
	var n int64
	if err := db.Model(&models.ChatMessage{}).Where("conversation_id = ?", conversationID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("messaging: count %s: %w", conversationID, err)
	}
	return n, nil
}

// Inbox returns customer-authored messages across all conversations with an
// id above afterID, oldest first.
func Inbox(db *gorm.DB, afterID uint, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var msgs []models.ChatMessage
	err := db.Where("sender_id = conversation_id AND id > ?", afterID).
		Order("id ASC").Limit(limit).Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("messaging: inbox: %w", err)
	}
	return msgs, nil
}

// LatestID returns the highest stored message id, or 0 when empty.
func LatestID(db *gorm.DB) (uint, error) {
	var msg models.ChatMessage
	err := db.Order("id DESC").Limit(1).Find(&msg).Error
	if err != nil {
		return 0, fmt.Errorf("messaging: latest id: %w", err)
	}
	return msg.ID, nil
}
