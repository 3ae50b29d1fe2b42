package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haimi-h/shopify-clone-sub000/internal/chat"
	"github.com/haimi-h/shopify-clone-sub000/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 64
)

var (
	errClientClosed = errors.New("relay: connection closed")
	errQueueFull    = errors.New("relay: send queue full")
)

// client is one websocket connection of a customer.
type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	log    *logging.Logger

	mu     sync.Mutex
	closed bool
}

func newClient(userID string, conn *websocket.Conn, log *logging.Logger) *client {
	return &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		log:    log,
	}
}

// enqueue queues a single event for this connection only.
func (c *client) enqueue(event string, v any) error {
	env, err := chat.NewEnvelope(event, v)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.queue(frame)
}

// queue adds frame to the send queue without blocking. It fails once the
// queue has been closed.
func (c *client) queue(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errQueueFull
	}
}

// close ends the send queue; the write pump then sends a close frame and
// closes the socket, which ends readPump. It reports false if already closed.
func (c *client) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

// readPump delivers inbound message payloads to handle until the socket
// fails. A frame that cannot be decoded is passed with a non-nil error. It
// runs on the HTTP handler goroutine.
func (c *client) readPump(handle func(*client, chat.WireMessage, error)) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("read", "error", err)
			}
			return
		}

		var env chat.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			handle(c, chat.WireMessage{}, err)
			continue
		}
		if env.Event != chat.EventNameMessage {
			c.log.Debug("ignoring event", "event", env.Event)
			continue
		}
		msg, err := env.Message()
		handle(c, msg, err)
	}
}

// writePump drains the send queue. A closed queue ends the connection with
// a normal close frame.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("write", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
