// Package ws implements chat.Transport over a WebSocket connection. Frames
// are JSON chat.Envelopes; the user id travels as the userId query
// parameter and the credential as a bearer Authorization header.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
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

	defaultQueueSize = 32
	eventBuffer      = 64
)

var (
	// ErrClosed is returned by Emit after the connection has ended.
	ErrClosed = errors.New("ws: connection closed")
	// ErrQueueFull is returned by Emit when the outbound queue is saturated.
	ErrQueueFull = errors.New("ws: outbound queue full")
)

// TransportOpts holds parameters for creating a Transport.
type TransportOpts struct {
	HandshakeTimeout time.Duration
	QueueSize        int
	Logger           *logging.Logger
}

// Transport dials WebSocket chat connections.
type Transport struct {
	dialer    *websocket.Dialer
	queueSize int
	log       *logging.Logger
}

// NewTransport creates a Transport.
func NewTransport(opts TransportOpts) *Transport {
	d := *websocket.DefaultDialer
	if opts.HandshakeTimeout > 0 {
		d.HandshakeTimeout = opts.HandshakeTimeout
	}
	qs := opts.QueueSize
	if qs <= 0 {
		qs = defaultQueueSize
	}
	return &Transport{
		dialer:    &d,
		queueSize: qs,
		log:       logging.OrNop(opts.Logger).With("component", "ws"),
	}
}

// Dial performs the WebSocket handshake. A rejected handshake is returned
// as an error carrying the HTTP status.
func (t *Transport) Dial(ctx context.Context, endpoint string, meta chat.ConnectMeta) (chat.Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("ws: parse endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("userId", meta.UserID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if meta.Token != "" {
		header.Set("Authorization", "Bearer "+meta.Token)
	}

	wsc, resp, err := t.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("ws: dial %s: %s: %w", u.Host, resp.Status, err)
		}
		return nil, fmt.Errorf("ws: dial %s: %w", u.Host, err)
	}

	c := &conn{
		ws:      wsc,
		events:  make(chan chat.Event, eventBuffer),
		send:    make(chan chat.Envelope, t.queueSize),
		closing: make(chan struct{}),
		log:     t.log.With("user", meta.UserID),
	}
	c.events <- chat.Event{Kind: chat.EventConnected}
	c.wg.Add(2)
	go c.readPump()
	go c.writePump()
	return c, nil
}

type conn struct {
	ws      *websocket.Conn
	events  chan chat.Event
	send    chan chat.Envelope
	closing chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	log     *logging.Logger
}

func (c *conn) Events() <-chan chat.Event { return c.events }

// Emit queues msg for the write pump.
func (c *conn) Emit(ctx context.Context, msg chat.WireMessage) error {
	env, err := chat.NewEnvelope(chat.EventNameMessage, msg)
	if err != nil {
		return err
	}
	select {
	case <-c.closing:
		return ErrClosed
	default:
	}
	select {
	case c.send <- env:
		return nil
	case <-c.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Close sends a close frame and waits for both pumps to exit.
func (c *conn) Close() error {
	c.shutdown()
	c.wg.Wait()
	return nil
}

func (c *conn) shutdown() {
	c.once.Do(func() { close(c.closing) })
}

// deliver hands ev to the reader unless the connection is being closed.
func (c *conn) deliver(ev chat.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.closing:
		return false
	}
}

func (c *conn) readPump() {
	defer c.wg.Done()
	defer close(c.events)
	defer c.shutdown()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closing:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Warn("connection lost", "error", err)
				} else {
					c.log.Info("connection closed by server")
				}
				c.deliver(chat.Event{Kind: chat.EventDisconnect})
			}
			return
		}

		var env chat.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("malformed frame", "error", err)
			continue
		}
		ev, ok := c.decode(env)
		if !ok {
			continue
		}
		if !c.deliver(ev) {
			return
		}
	}
}

func (c *conn) decode(env chat.Envelope) (chat.Event, bool) {
	switch env.Event {
	case chat.EventNameWelcome:
		text, err := env.Text()
		if err != nil {
			c.log.Warn("bad welcome", "error", err)
			return chat.Event{}, false
		}
		return chat.Event{Kind: chat.EventWelcome, Welcome: text}, true

	case chat.EventNameMessage:
		msg, err := env.Message()
		if err != nil {
			c.log.Warn("bad message", "error", err)
			return chat.Event{}, false
		}
		return chat.Event{Kind: chat.EventMessage, Message: msg}, true

	case chat.EventNameError:
		text, _ := env.Text()
		c.log.Warn("server error", "message", text)
		return chat.Event{}, false

	default:
		c.log.Debug("ignoring event", "event", env.Event)
		return chat.Event{}, false
	}
}

// writePump is the only writer of data frames and the only caller of
// ws.Close.
func (c *conn) writePump() {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case env := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(env); err != nil {
				c.log.Warn("write frame", "error", err)
				c.shutdown()
				return
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Debug("ping", "error", err)
				c.shutdown()
				return
			}

		case <-c.closing:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}
