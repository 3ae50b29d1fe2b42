package chat

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/haimi-h/shopify-clone-sub000/internal/logging"
	"github.com/haimi-h/shopify-clone-sub000/internal/session"
)

// DefaultDialTimeout bounds connection establishment when none is configured.
const DefaultDialTimeout = 10 * time.Second

// ErrStopped is returned by Controller methods once Run has returned.
var ErrStopped = errors.New("chat: controller stopped")

// State is the connection state of the chat surface.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is an immutable view of the chat surface for rendering.
type Snapshot struct {
	Visible  bool
	State    State
	UserID   string
	Messages []Message
	// PendingIDs holds the ids of local sends awaiting confirmation.
	PendingIDs map[string]bool
	// Err is the connection error banner, empty when healthy.
	Err string
	// CanSend is false whenever a send would be a no-op.
	CanSend bool
}

// IsPending reports whether the message with id is awaiting confirmation.
func (s Snapshot) IsPending(id string) bool {
	return s.PendingIDs[id]
}

// ControllerOpts holds parameters for creating a Controller.
type ControllerOpts struct {
	Transport   Transport
	Store       session.Store
	Endpoint    string
	Logger      *logging.Logger  // defaults to a no-op logger
	IDs         IDSource         // defaults to UUIDs
	Now         func() time.Time // defaults to time.Now
	DialTimeout time.Duration    // defaults to DefaultDialTimeout
}

// Controller gates a realtime connection on the visibility of the chat
// surface and reconciles the transcript. All state is owned by the Run
// goroutine; the exported methods hand work to it and wait for the result,
// never for the network.
type Controller struct {
	transport   Transport
	store       session.Store
	endpoint    string
	log         *logging.Logger
	ids         IDSource
	now         func() time.Time
	dialTimeout time.Duration

	cmds    chan func()
	dials   chan dialResult
	updates chan Snapshot
	done    chan struct{}
	started atomic.Bool

	// Owned by Run.
	runCtx     context.Context
	visible    bool
	state      State
	userID     string
	gen        uint64
	conn       Conn
	events     <-chan Event
	rec        *Reconciler
	errText    string
	cancelDial context.CancelFunc
}

type dialResult struct {
	gen  uint64
	conn Conn
	err  error
}

// NewController creates a Controller. Call Run to start it.
func NewController(opts ControllerOpts) (*Controller, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("chat: controller: transport is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("chat: controller: session store is required")
	}
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("chat: controller: endpoint is required")
	}
	ids := opts.IDs
	if ids == nil {
		ids = UUIDs{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	return &Controller{
		transport:   opts.Transport,
		store:       opts.Store,
		endpoint:    opts.Endpoint,
		log:         logging.OrNop(opts.Logger).With("component", "chat"),
		ids:         ids,
		now:         now,
		dialTimeout: timeout,
		cmds:        make(chan func()),
		dials:       make(chan dialResult),
		updates:     make(chan Snapshot, 1),
		done:        make(chan struct{}),
	}, nil
}

// Updates delivers the latest Snapshot after every change. Intermediate
// snapshots may be skipped. The channel is closed when Run returns.
func (c *Controller) Updates() <-chan Snapshot { return c.updates }

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Run processes commands and transport events until ctx is cancelled.
// It tears down any open connection before returning.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("chat: controller already running")
	}
	c.runCtx = ctx
	defer close(c.updates)
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			c.teardown()
			c.log.Debug("controller stopped")
			return nil

		case cmd := <-c.cmds:
			cmd()

		case res := <-c.dials:
			c.onDial(res)
			c.publish()

		case ev, ok := <-c.events:
			if !ok {
				c.log.Info("event stream ended", "user", c.userID)
				c.hide()
			} else {
				c.onEvent(ev)
			}
			c.publish()
		}
	}
}

// do runs fn on the Run goroutine and waits for it to finish.
func (c *Controller) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case c.cmds <- wrapped:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// Open makes the surface visible. If a local user is known it starts
// connecting; otherwise the surface stays inert.
func (c *Controller) Open(ctx context.Context) error {
	return c.do(ctx, func() {
		c.show()
		c.publish()
	})
}

// Close hides the surface, tears the connection down and forgets the
// transcript.
func (c *Controller) Close(ctx context.Context) error {
	return c.do(ctx, func() {
		c.hide()
		c.publish()
	})
}

// Toggle flips the visibility of the surface.
func (c *Controller) Toggle(ctx context.Context) error {
	return c.do(ctx, func() {
		if c.visible {
			c.hide()
		} else {
			c.show()
		}
		c.publish()
	})
}

// Send appends text as an optimistic message and emits it. It reports
// false, without touching the transcript or the transport, when the text
// is blank, no user is known, or the connection is not open.
func (c *Controller) Send(ctx context.Context, text string) (bool, error) {
	var sent bool
	err := c.do(ctx, func() {
		sent = c.send(text)
		if sent {
			c.publish()
		}
	})
	return sent, err
}

// Snapshot returns the current view of the surface.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.do(ctx, func() { snap = c.snapshot() })
	return snap, err
}

func (c *Controller) show() {
	if c.visible {
		return
	}
	c.visible = true
	c.errText = ""

	sess, err := c.store.Get()
	if err != nil {
		c.log.Warn("read session", "error", err)
	}
	if sess.UserID() == "" {
		c.log.Info("no local user, chat connection not attempted")
		return
	}

	c.gen++
	c.userID = sess.UserID()
	c.rec = NewReconciler(c.ids, c.now)
	c.state = StateConnecting

	dialCtx, cancel := context.WithTimeout(c.runCtx, c.dialTimeout)
	c.cancelDial = cancel
	gen := c.gen
	meta := ConnectMeta{UserID: c.userID, Token: sess.Credential}
	c.log.Info("connecting", "endpoint", c.endpoint, "user", c.userID, "session", gen)

	go func() {
		conn, err := c.transport.Dial(dialCtx, c.endpoint, meta)
		select {
		case c.dials <- dialResult{gen: gen, conn: conn, err: err}:
		case <-c.done:
			if conn != nil {
				conn.Close()
			}
		}
	}()
}

func (c *Controller) onDial(res dialResult) {
	if res.gen != c.gen || c.state != StateConnecting {
		// The surface was closed while dialing.
		if res.conn != nil {
			res.conn.Close()
		}
		return
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	if res.err != nil {
		c.fail(res.err)
		return
	}
	c.conn = res.conn
	c.events = res.conn.Events()
}

func (c *Controller) onEvent(ev Event) {
	switch ev.Kind {
	case EventConnected:
		c.markOpen()

	case EventWelcome:
		c.markOpen()
		if !c.rec.Welcome(ev.Welcome) {
			c.log.Debug("duplicate welcome ignored", "user", c.userID)
		}

	case EventMessage:
		c.markOpen()
		msg := ev.Message.ToMessage(c.userID, c.now())
		if c.rec.Receive(msg) {
			c.log.Debug("message confirmed", "id", msg.ID, "pending", c.rec.Pending())
		}

	case EventConnectError:
		c.fail(ev.Err)

	case EventDisconnect:
		c.log.Info("disconnected", "user", c.userID)
		c.hide()

	default:
		c.log.Warn("unknown transport event", "kind", ev.Kind.String())
	}
}

func (c *Controller) markOpen() {
	if c.state == StateConnecting {
		c.state = StateOpen
		c.log.Info("connected", "user", c.userID)
	}
}

// fail moves to Errored. The transcript stays on screen; nothing retries.
func (c *Controller) fail(err error) {
	c.log.Warn("connection error", "user", c.userID, "error", err)
	c.dropConn()
	c.state = StateErrored
	if err != nil {
		c.errText = "Unable to reach support chat: " + err.Error()
	} else {
		c.errText = "Unable to reach support chat"
	}
}

func (c *Controller) send(text string) bool {
	if c.rec == nil {
		return false
	}
	connected := c.state == StateOpen && c.conn != nil
	msg, ok := c.rec.Send(text, c.userID, connected)
	if !ok {
		return false
	}
	err := c.conn.Emit(c.runCtx, WireMessage{
		SenderID:     c.userID,
		Text:         msg.Text,
		OptimisticID: msg.ID,
	})
	if err != nil {
		// The optimistic entry stays; there is no resend.
		c.log.Warn("emit message", "id", msg.ID, "error", err)
	}
	c.log.Debug("message sent", "id", msg.ID, "transcript", c.rec.Len())
	return true
}

// hide closes the surface and discards all session state.
func (c *Controller) hide() {
	if !c.visible && c.state == StateClosed {
		return
	}
	c.dropConn()
	c.gen++
	c.visible = false
	c.state = StateClosed
	c.userID = ""
	c.errText = ""
	if c.rec != nil {
		c.rec.Reset()
	}
	c.rec = nil
}

func (c *Controller) dropConn() {
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.log.Debug("close connection", "error", err)
		}
	}
	c.conn = nil
	c.events = nil
}

func (c *Controller) teardown() {
	c.dropConn()
	c.visible = false
	c.state = StateClosed
}

func (c *Controller) snapshot() Snapshot {
	snap := Snapshot{
		Visible: c.visible,
		State:   c.state,
		UserID:  c.userID,
		Err:     c.errText,
		CanSend: c.visible && c.userID != "" && c.state == StateOpen,
	}
	if c.rec != nil {
		snap.Messages = c.rec.Messages()
		snap.PendingIDs = c.rec.PendingIDs()
	}
	return snap
}

// publish offers the latest snapshot, replacing one the reader has not taken.
func (c *Controller) publish() {
	snap := c.snapshot()
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- snap:
	default:
	}
}
