package chat

import (
	"context"
	"fmt"
)

// ConnectMeta is the identity attached to a realtime connection: the user
// id travels as a query parameter, the token as a bearer credential.
type ConnectMeta struct {
	UserID string
	Token  string
}

// Transport opens realtime connections.
type Transport interface {
	// Dial connects to endpoint. The context bounds the handshake only;
	// the returned Conn lives until Close or a transport-side disconnect.
	Dial(ctx context.Context, endpoint string, meta ConnectMeta) (Conn, error)
}

// Conn is one realtime connection.
type Conn interface {
	// Events delivers inbound events in arrival order. The channel is
	// closed when the connection has ended.
	Events() <-chan Event

	// Emit queues an outbound chat message. It does not wait for delivery.
	Emit(ctx context.Context, msg WireMessage) error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// EventKind enumerates transport events.
type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventWelcome
	EventMessage
	EventConnectError
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connect"
	case EventWelcome:
		return EventNameWelcome
	case EventMessage:
		return EventNameMessage
	case EventConnectError:
		return "connect_error"
	case EventDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one inbound transport event. Only the field matching Kind is set.
type Event struct {
	Kind    EventKind
	Welcome string
	Message WireMessage
	Err     error
}
