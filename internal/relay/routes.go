package relay

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/haimi-h/shopify-clone-sub000/internal/chat"
	"github.com/haimi-h/shopify-clone-sub000/internal/messaging"
)

// DefaultAgentID is the sender id of agent replies that name no agent.
const DefaultAgentID = "support"

// registerRoutes sets up all relay routes on the Gin router.
func registerRoutes(router *gin.Engine, s *Server) {
	router.GET("/ws", s.handleWS)
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := router.Group("/api", s.requireAgent)
	api.GET("/conversations/:userId/messages", s.handleHistory)
	api.POST("/conversations/:userId/messages", s.handleAgentMessage)
	api.GET("/events", s.handleEvents)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// requireAgent guards the agent API when an agent token is configured.
func (s *Server) requireAgent(c *gin.Context) {
	if s.agentToken == "" {
		c.Next()
		return
	}
	got := bearerToken(c.GetHeader("Authorization"))
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.agentToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid agent token"})
		return
	}
	c.Next()
}

// handleWS upgrades a customer connection. The user id comes from the
// userId query parameter and a bearer credential must be present.
func (s *Server) handleWS(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	if bearerToken(c.GetHeader("Authorization")) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bearer credential is required"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("upgrade", "user", userID, "error", err)
		return
	}

	cl := newClient(userID, conn, s.log.With("user", userID))
	s.hub.add(cl)
	cl.log.Info("client connected", "conns", s.hub.connCount(userID))
	cl.enqueue(chat.EventNameWelcome, s.welcome)

	go cl.writePump()
	cl.readPump(s.handleInbound)
	s.hub.remove(cl)
	cl.log.Info("client disconnected")
}

func (s *Server) handleHealth(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleHistory(c *gin.Context) {
	userID := c.Param("userId")
	opts := messaging.HistoryOpts{}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		opts.Limit = n
	}
	if v := c.Query("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "after must be a message id"})
			return
		}
		opts.AfterID = uint(n)
	}

	msgs, err := messaging.History(s.db, userID, opts)
	if err != nil {
		s.log.Error("history", "user", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	total, err := messaging.Count(s.db, userID)
	if err != nil {
		s.log.Error("history count", "user", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	out := make([]chat.WireMessage, 0, len(msgs))
	for i := range msgs {
		out = append(out, toWire(&msgs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out, "total": total})
}

type agentMessageRequest struct {
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
}

// handleAgentMessage stores an agent reply and pushes it to every open
// connection of the customer.
func (s *Server) handleAgentMessage(c *gin.Context) {
	userID := c.Param("userId")
	var req agentMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	if req.SenderID == "" {
		req.SenderID = DefaultAgentID
	}
	if req.SenderID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent cannot post as the customer"})
		return
	}

	stored, err := messaging.Send(s.db, userID, req.SenderID, req.Text, messaging.SendOpts{Now: s.now()})
	if err != nil {
		s.log.Error("store agent message", "user", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "message could not be saved"})
		return
	}
	s.metrics.message(DirectionOutbound)

	wire := toWire(stored)
	delivered, err := s.hub.broadcast(userID, chat.EventNameMessage, wire)
	if err != nil {
		s.log.Error("broadcast", "user", userID, "error", err)
	}
	c.JSON(http.StatusCreated, gin.H{"message": wire, "delivered": delivered})
}
