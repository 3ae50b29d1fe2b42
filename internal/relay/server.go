// Package relay is a reference realtime server for the support chat. It
// speaks the same websocket protocol the client transport expects, stores
// history with GORM and lets agents reply over HTTP.
package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/haimi-h/shopify-clone-sub000/internal/chat"
	"github.com/haimi-h/shopify-clone-sub000/internal/logging"
	"github.com/haimi-h/shopify-clone-sub000/internal/messaging"
	"github.com/haimi-h/shopify-clone-sub000/internal/models"
)

// DefaultWelcome is sent to every new connection when none is configured.
const DefaultWelcome = "Hi, how can we help?"

// ServerOpts holds configuration for the relay server.
type ServerOpts struct {
	DB          *gorm.DB
	Port        int
	WelcomeText string
	RatePerSec  float64
	Burst       int
	AgentToken  string
	Notify      messaging.NotifyConfig
	Logger      *logging.Logger
	Now         func() time.Time
	Out         io.Writer
	// EventPoll is how often the agent event stream checks for new messages.
	EventPoll time.Duration
}

// Server is the relay. Create it with NewServer.
type Server struct {
	db         *gorm.DB
	port       int
	welcome    string
	agentToken string
	notify     messaging.NotifyConfig
	log        *logging.Logger
	now        func() time.Time
	out        io.Writer
	eventPoll  time.Duration
	// closed on shutdown so event streams return
	stopping chan struct{}

	hub      *hub
	limits   *limiterPool
	metrics  *Metrics
	upgrader websocket.Upgrader
	router   *gin.Engine
}

// NewServer validates opts and builds the router.
func NewServer(opts ServerOpts) (*Server, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("relay: db is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8090
	}
	welcome := strings.TrimSpace(opts.WelcomeText)
	if welcome == "" {
		welcome = DefaultWelcome
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	poll := opts.EventPoll
	if poll <= 0 {
		poll = defaultEventPoll
	}

	s := &Server{
		db:         opts.DB,
		port:       opts.Port,
		welcome:    welcome,
		agentToken: opts.AgentToken,
		notify:     opts.Notify,
		log:        logging.OrNop(opts.Logger).With("component", "relay"),
		now:        now,
		out:        opts.Out,
		eventPoll:  poll,
		stopping:   make(chan struct{}),
		limits:     newLimiterPool(opts.RatePerSec, opts.Burst),
		metrics:    NewMetrics(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Terminal clients send no Origin; browsers are not served.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.hub = newHub(s.metrics, s.limits.forget)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, s)
	s.router = router
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// RecordPurge adds n to the purged-messages counter.
func (s *Server) RecordPurge(n int64) { s.metrics.purged.Add(float64(n)) }

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// closes every websocket and shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		close(s.stopping)
		s.hub.closeAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if s.out != nil {
		fmt.Fprintf(s.out, "Relay listening on ws://localhost:%d/ws\n", s.port)
	}
	s.log.Info("relay started", "port", s.port)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}

// handleInbound processes one customer frame.
func (s *Server) handleInbound(c *client, msg chat.WireMessage, decodeErr error) {
	if decodeErr != nil {
		s.metrics.reject(ReasonMalformed)
		c.enqueue(chat.EventNameError, "malformed message")
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		s.metrics.reject(ReasonEmpty)
		c.enqueue(chat.EventNameError, "message text is required")
		return
	}
	if !s.limits.Allow(c.userID) {
		s.metrics.reject(ReasonRateLimited)
		c.enqueue(chat.EventNameError, "too many messages, slow down")
		return
	}
	if msg.SenderID != "" && msg.SenderID != c.userID {
		c.log.Warn("sender mismatch, using connection identity", "claimed", msg.SenderID)
	}

	stored, err := messaging.Send(s.db, c.userID, c.userID, text, messaging.SendOpts{
		ClientID: msg.OptimisticID,
		Now:      s.now(),
	})
	if err != nil {
		s.metrics.reject(ReasonStore)
		c.log.Error("store message", "error", err)
		c.enqueue(chat.EventNameError, "message could not be saved")
		return
	}
	s.metrics.message(DirectionInbound)
	if _, err := s.hub.broadcast(c.userID, chat.EventNameMessage, toWire(stored)); err != nil {
		c.log.Error("broadcast", "error", err)
	}
	s.notifyAgents(stored)
}

func (s *Server) notifyAgents(msg *models.ChatMessage) {
	if s.notify.Command == "" || !messaging.ShouldNotify(msg) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		messaging.Notify(ctx, msg, s.notify, s.log)
	}()
}

// toWire converts a stored message to its wire form. The durable id is the
// row id; the client's optimistic id is echoed verbatim.
func toWire(m *models.ChatMessage) chat.WireMessage {
	return chat.WireMessage{
		ID:           m.PublicID(),
		SenderID:     m.SenderID,
		Text:         m.Text,
		OptimisticID: m.ClientID,
		CreatedAt:    m.CreatedAt.UnixMilli(),
	}
}
