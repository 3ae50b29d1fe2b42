package chat

import (
	"context"
	"fmt"
	"sync"
)

// MockTransport implements Transport for testing. It records every dial
// and hands out MockConns whose inbound events are driven by the test.
type MockTransport struct {
	mu        sync.Mutex
	dialErr   error
	endpoints []string
	metas     []ConnectMeta
	conns     []*MockConn
	gate      chan struct{}
}

// NewMockTransport creates a MockTransport that dials successfully.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Dial records the attempt and returns a new MockConn, or the configured
// dial error.
func (m *MockTransport) Dial(ctx context.Context, endpoint string, meta ConnectMeta) (Conn, error) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints = append(m.endpoints, endpoint)
	m.metas = append(m.metas, meta)
	if m.dialErr != nil {
		return nil, m.dialErr
	}
	conn := NewMockConn()
	m.conns = append(m.conns, conn)
	return conn, nil
}

// --- Test helpers ---

// SetDialError makes subsequent dials fail with err (nil restores success).
func (m *MockTransport) SetDialError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialErr = err
}

// HoldDials makes dials block until the returned release func is called.
func (m *MockTransport) HoldDials() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.gate = nil
			m.mu.Unlock()
			close(gate)
		})
	}
}

// DialCount returns the number of completed dial attempts.
func (m *MockTransport) DialCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.metas)
}

// LastDial returns the endpoint and metadata of the most recent dial.
func (m *MockTransport) LastDial() (string, ConnectMeta, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.metas) == 0 {
		return "", ConnectMeta{}, false
	}
	return m.endpoints[len(m.endpoints)-1], m.metas[len(m.metas)-1], true
}

// LastConn returns the most recently created connection, or nil.
func (m *MockTransport) LastConn() *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) == 0 {
		return nil
	}
	return m.conns[len(m.conns)-1]
}

// Conns returns all connections handed out so far.
func (m *MockTransport) Conns() []*MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockConn, len(m.conns))
	copy(out, m.conns)
	return out
}

// MockConn implements Conn with a buffered event channel.
type MockConn struct {
	mu      sync.Mutex
	events  chan Event
	emitted []WireMessage
	emitErr error
	closed  bool
}

// NewMockConn creates an open MockConn.
func NewMockConn() *MockConn {
	return &MockConn{events: make(chan Event, 100)}
}

func (c *MockConn) Events() <-chan Event { return c.events }

// Emit records msg.
func (c *MockConn) Emit(ctx context.Context, msg WireMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("mock conn: closed")
	}
	if c.emitErr != nil {
		return c.emitErr
	}
	c.emitted = append(c.emitted, msg)
	return nil
}

// Close closes the event channel.
func (c *MockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.events)
	return nil
}

// Simulate delivers ev as if it came from the server. It reports false if
// the connection is already closed.
func (c *MockConn) Simulate(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.events <- ev
	return true
}

func (c *MockConn) SimulateConnected() bool {
	return c.Simulate(Event{Kind: EventConnected})
}

func (c *MockConn) SimulateWelcome(text string) bool {
	return c.Simulate(Event{Kind: EventWelcome, Welcome: text})
}

func (c *MockConn) SimulateMessage(msg WireMessage) bool {
	return c.Simulate(Event{Kind: EventMessage, Message: msg})
}

func (c *MockConn) SimulateConnectError(err error) bool {
	return c.Simulate(Event{Kind: EventConnectError, Err: err})
}

func (c *MockConn) SimulateDisconnect() bool {
	return c.Simulate(Event{Kind: EventDisconnect})
}

// SetEmitError makes subsequent emits fail with err.
func (c *MockConn) SetEmitError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitErr = err
}

// Emitted returns a copy of all emitted messages.
func (c *MockConn) Emitted() []WireMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]WireMessage, len(c.emitted))
	copy(out, c.emitted)
	return out
}

// EmitCount returns the number of emitted messages.
func (c *MockConn) EmitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.emitted)
}

// Closed reports whether Close has been called.
func (c *MockConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
