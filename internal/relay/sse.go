package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/haimi-h/shopify-clone-sub000/internal/chat"
	"github.com/haimi-h/shopify-clone-sub000/internal/messaging"
)

const (
	defaultEventPoll = 2 * time.Second
	heartbeatEvery   = 15 * time.Second
)

// inboxEvent is one customer message announced to agents.
type inboxEvent struct {
	ConversationID string           `json:"conversationId"`
	Message        chat.WireMessage `json:"message"`
}

// handleEvents streams customer messages to agents as server-sent events.
// Only messages stored after the stream opened are announced.
func (s *Server) handleEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	lastSeen, err := messaging.LatestID(s.db)
	if err != nil {
		s.log.Error("events", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}

	writeSSE(c.Writer, "connected", gin.H{"lastId": lastSeen})
	c.Writer.Flush()

	ctx := c.Request.Context()
	ticker := time.NewTicker(s.eventPoll)
	heartbeat := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopping:
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", gin.H{
				"timestamp": s.now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case <-ticker.C:
			msgs, err := messaging.Inbox(s.db, lastSeen, 0)
			if err != nil {
				s.log.Warn("events poll", "error", err)
				continue
			}
			if len(msgs) == 0 {
				continue
			}
			for i := range msgs {
				writeSSE(c.Writer, chat.EventNameMessage, inboxEvent{
					ConversationID: msgs[i].ConversationID,
					Message:        toWire(&msgs[i]),
				})
			}
			lastSeen = msgs[len(msgs)-1].ID
			c.Writer.Flush()
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
