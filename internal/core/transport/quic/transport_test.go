package quic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zeusrpc/internal/core/observability/log"
	"github.com/zeusync/zeusrpc/internal/core/transport"
	"github.com/zeusync/zeusrpc/internal/core/wire"
)

type echoHandler struct {
	echo     bool
	received chan wire.Packet

	mu          sync.Mutex
	attachments []any
}

func (h *echoHandler) OnConnect(c transport.Connection) {
	h.mu.Lock()
	h.attachments = append(h.attachments, c.Attachment())
	h.mu.Unlock()
}

func (h *echoHandler) OnData(c transport.Connection, p wire.Packet) {
	if h.echo {
		c.Send(p.Type, p.CorrelationID, p.Payload)
	}
	h.received <- p
}

func (h *echoHandler) OnDisconnected(transport.Connection) {}

func TestQUICTransport_RoundTrip(t *testing.T) {
	factory, err := Factory(transport.DefaultConfig(), DefaultConfig(), log.NewNop())
	require.NoError(t, err)

	serverHandler := &echoHandler{echo: true, received: make(chan wire.Packet, 4)}
	server := factory(serverHandler)
	require.NoError(t, server.Listen(context.Background(), "127.0.0.1:0"))
	defer func() { _ = server.Close() }()

	clientHandler := &echoHandler{received: make(chan wire.Packet, 4)}
	client := factory(clientHandler)
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Dial(ctx, server.Addr(), "bound")
	require.NoError(t, err)
	assert.Equal(t, wire.HeaderSize+4, conn.Send(200, 5, []byte("ping")))

	select {
	case p := <-clientHandler.received:
		assert.Equal(t, int32(200), p.Type)
		assert.Equal(t, uint64(5), p.CorrelationID)
		assert.Equal(t, []byte("ping"), p.Payload)
	case <-ctx.Done():
		t.Fatal("no echo received over QUIC")
	}

	clientHandler.mu.Lock()
	assert.Equal(t, []any{"bound"}, clientHandler.attachments)
	clientHandler.mu.Unlock()

	require.NoError(t, conn.Close())
	assert.True(t, conn.IsClosed())
}

func TestQUICTransport_ClosedTransport(t *testing.T) {
	tr, err := NewTransport(&echoHandler{received: make(chan wire.Packet, 1)}, transport.DefaultConfig(), DefaultConfig(), log.NewNop())
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	_, err = tr.Dial(context.Background(), "127.0.0.1:1", nil)
	assert.ErrorIs(t, err, transport.ErrTransportClosed)
}

func TestFactory_SharesTLSMaterial(t *testing.T) {
	factory, err := Factory(transport.DefaultConfig(), DefaultConfig(), log.NewNop())
	require.NoError(t, err)

	first, ok := factory(&echoHandler{}).(*Transport)
	require.True(t, ok)
	second, ok := factory(&echoHandler{}).(*Transport)
	require.True(t, ok)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Same(t, first.tlsConfig, second.tlsConfig)
	assert.NoError(t, first.Close())
	assert.NoError(t, second.Close())
}
