package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface compliance checks.
var _ Transport = (*MockTransport)(nil)
var _ Conn = (*MockConn)(nil)

func TestMockTransport_DialRecordsMeta(t *testing.T) {
	m := NewMockTransport()
	conn, err := m.Dial(context.Background(), "ws://relay/ws", ConnectMeta{UserID: "42", Token: "tok"})
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, 1, m.DialCount())

	endpoint, meta, ok := m.LastDial()
	require.True(t, ok)
	assert.Equal(t, "ws://relay/ws", endpoint)
	assert.Equal(t, ConnectMeta{UserID: "42", Token: "tok"}, meta)
	assert.Same(t, conn, m.LastConn())
}

func TestMockTransport_DialError(t *testing.T) {
	m := NewMockTransport()
	m.SetDialError(errors.New("refused"))

	_, err := m.Dial(context.Background(), "ws://x", ConnectMeta{})
	require.Error(t, err)
	assert.Nil(t, m.LastConn(), "failed dial should not create a conn")

	m.SetDialError(nil)
	_, err = m.Dial(context.Background(), "ws://x", ConnectMeta{})
	require.NoError(t, err)
	assert.Len(t, m.Conns(), 1)
}

func TestMockTransport_HoldDialsRespectsContext(t *testing.T) {
	m := NewMockTransport()
	release := m.HoldDials()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Dial(ctx, "ws://x", ConnectMeta{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, m.DialCount())
}

func TestMockConn_SimulateAndClose(t *testing.T) {
	c := NewMockConn()

	require.True(t, c.SimulateWelcome("hello"))
	ev := <-c.Events()
	assert.Equal(t, Event{Kind: EventWelcome, Welcome: "hello"}, ev)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "double Close")
	_, ok := <-c.Events()
	assert.False(t, ok, "events channel should be closed")
	assert.False(t, c.SimulateConnected(), "Simulate after Close")
	assert.True(t, c.Closed())
}

func TestMockConn_Emit(t *testing.T) {
	c := NewMockConn()
	ctx := context.Background()

	require.NoError(t, c.Emit(ctx, WireMessage{SenderID: "42", Text: "hi"}))
	c.SetEmitError(errors.New("buffer full"))
	assert.Error(t, c.Emit(ctx, WireMessage{Text: "dropped"}))
	c.SetEmitError(nil)
	c.Close()
	assert.Error(t, c.Emit(ctx, WireMessage{Text: "late"}), "Emit after Close")

	require.Equal(t, 1, c.EmitCount())
	assert.Equal(t, "hi", c.Emitted()[0].Text)
}
